package webapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"panel-server-go/internal/domain/system"
	httptransport "panel-server-go/internal/transport/http"
)

const cpuSampleWindow = 200 * time.Millisecond

type frequencyRequest struct {
	Frequency int `json:"frequency"`
}

func isNotifyFailure(err error) bool {
	return errors.Is(err, system.ErrNotifyFailed)
}

func (s *Service) handleLogRemoveGet(c *gin.Context) {
	freq, err := s.deps.Settings.LogRemoveFrequency(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	httptransport.RespondSuccess(c, freq)
}

func (s *Service) handleLogRemovePut(c *gin.Context) {
	var req frequencyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Frequency < 0 {
		s.badRequest(c, "请求参数错误")
		return
	}
	job, err := s.deps.Settings.UpdateLogRemoveFrequency(c.Request.Context(), req.Frequency)
	if err != nil {
		s.fail(c, err)
		return
	}
	httptransport.RespondSuccess(c, job)
}

func (s *Service) handleUpdateCheck(c *gin.Context) {
	info, err := s.deps.Updates.Check(c.Request.Context())
	if err != nil {
		httptransport.Respond(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	httptransport.RespondSuccess(c, info)
}

func (s *Service) handleUpdateSystem(c *gin.Context) {
	if !s.deps.Maintenance.UpdateSystem(c.Request.Context()) {
		s.badRequest(c, "系统正在更新中")
		return
	}
	httptransport.RespondSuccess(c, nil)
}

func (s *Service) handleSystemInfo(c *gin.Context) {
	info, err := system.CollectInfo(c.Request.Context(), cpuSampleWindow)
	if err != nil {
		s.fail(c, err)
		return
	}
	httptransport.RespondSuccess(c, info)
}
