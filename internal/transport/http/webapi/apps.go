package webapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	openmodel "panel-server-go/internal/domain/open/model"
	httptransport "panel-server-go/internal/transport/http"
)

type updateAppRequest struct {
	ID uint `json:"id"`
	openmodel.Descriptor
}

func (s *Service) handleAppsList(c *gin.Context) {
	clients, err := s.deps.Open.List(c.Request.Context(), c.Query("searchValue"))
	if err != nil {
		s.fail(c, err)
		return
	}
	httptransport.RespondSuccess(c, clients)
}

func (s *Service) handleAppsGet(c *gin.Context) {
	id, ok := s.appID(c)
	if !ok {
		return
	}
	client, err := s.deps.Open.Get(c.Request.Context(), id)
	if err != nil {
		s.appError(c, err)
		return
	}
	httptransport.RespondSuccess(c, client)
}

func (s *Service) handleAppsCreate(c *gin.Context) {
	var d openmodel.Descriptor
	if err := c.ShouldBindJSON(&d); err != nil {
		s.badRequest(c, "请求参数错误")
		return
	}
	if d.Name == "" {
		s.badRequest(c, "应用名称不能为空")
		return
	}
	client, err := s.deps.Open.Register(c.Request.Context(), d)
	if err != nil {
		s.fail(c, err)
		return
	}
	httptransport.RespondSuccess(c, client)
}

func (s *Service) handleAppsUpdate(c *gin.Context) {
	var req updateAppRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == 0 {
		s.badRequest(c, "请求参数错误")
		return
	}
	client, err := s.deps.Open.Update(c.Request.Context(), req.ID, req.Descriptor)
	if err != nil {
		s.appError(c, err)
		return
	}
	httptransport.RespondSuccess(c, client)
}

func (s *Service) handleAppsDelete(c *gin.Context) {
	var ids []uint
	if err := c.ShouldBindJSON(&ids); err != nil {
		s.badRequest(c, "请求参数错误")
		return
	}
	if err := s.deps.Open.Remove(c.Request.Context(), ids); err != nil {
		s.fail(c, err)
		return
	}
	httptransport.RespondSuccess(c, nil)
}

func (s *Service) handleAppsResetSecret(c *gin.Context) {
	id, ok := s.appID(c)
	if !ok {
		return
	}
	client, err := s.deps.Open.ResetSecret(c.Request.Context(), id)
	if err != nil {
		s.appError(c, err)
		return
	}
	httptransport.RespondSuccess(c, client)
}

func (s *Service) appID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		s.badRequest(c, "无效的应用ID")
		return 0, false
	}
	return uint(id), true
}

func (s *Service) appError(c *gin.Context, err error) {
	if errors.Is(err, openmodel.ErrNotFound) {
		httptransport.Respond(c, http.StatusNotFound, nil, "应用不存在")
		return
	}
	s.fail(c, err)
}
