package webapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"panel-server-go/internal/domain/auth"
	authmodel "panel-server-go/internal/domain/auth/model"
	"panel-server-go/internal/utils"
	httptransport "panel-server-go/internal/transport/http"
)

type twoFactorLoginRequest struct {
	auth.Credentials
	Code string `json:"code"`
}

type codeRequest struct {
	Code string `json:"code"`
}

func respondResult(c *gin.Context, res auth.Result) {
	httptransport.Respond(c, res.Code, res.Data, res.Message)
}

func (s *Service) handleLogin(c *gin.Context) {
	var creds auth.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		s.badRequest(c, "请求参数错误")
		return
	}
	res, err := s.deps.Auth.Login(c.Request.Context(), creds, httptransport.RequestInfo(c), true)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondResult(c, res)
}

func (s *Service) handleTwoFactorLogin(c *gin.Context) {
	var req twoFactorLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "请求参数错误")
		return
	}
	res, err := s.deps.Auth.TwoFactorLogin(c.Request.Context(), req.Credentials, req.Code, httptransport.RequestInfo(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	respondResult(c, res)
}

func (s *Service) handleLogout(c *gin.Context) {
	platform := utils.DetectPlatform(c.GetHeader("User-Agent"))
	if err := s.deps.Auth.Logout(c.Request.Context(), platform); err != nil {
		s.fail(c, err)
		return
	}
	httptransport.RespondSuccess(c, nil)
}

func (s *Service) handleUserInfo(c *gin.Context) {
	info, err := s.deps.Auth.UserInfo(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	httptransport.RespondSuccess(c, info)
}

func (s *Service) handleUpdateUser(c *gin.Context) {
	var creds auth.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		s.badRequest(c, "请求参数错误")
		return
	}
	res, err := s.deps.Auth.UpdateCredentials(c.Request.Context(), creds)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondResult(c, res)
}

func (s *Service) handleTwoFactorInit(c *gin.Context) {
	enrollment, err := s.deps.Auth.InitTwoFactor(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	httptransport.RespondSuccess(c, enrollment)
}

func (s *Service) handleTwoFactorActivate(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "请求参数错误")
		return
	}
	ok, err := s.deps.Auth.ActivateTwoFactor(c.Request.Context(), req.Code)
	if err != nil {
		s.fail(c, err)
		return
	}
	httptransport.RespondSuccess(c, ok)
}

func (s *Service) handleTwoFactorDeactivate(c *gin.Context) {
	var req codeRequest
	// the default policy needs no code, so an empty body is fine
	_ = c.ShouldBindJSON(&req)
	ok, err := s.deps.Auth.DeactivateTwoFactor(c.Request.Context(), req.Code)
	if err != nil {
		s.fail(c, err)
		return
	}
	httptransport.RespondSuccess(c, ok)
}

func (s *Service) handleLoginLog(c *gin.Context) {
	logs, err := s.deps.Auth.LoginLogs(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if logs == nil {
		logs = []authmodel.LoginLogEntry{}
	}
	httptransport.RespondSuccess(c, logs)
}

func (s *Service) handleNotificationGet(c *gin.Context) {
	info, err := s.deps.Settings.NotificationMode(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	httptransport.RespondSuccess(c, info)
}

func (s *Service) handleNotificationPut(c *gin.Context) {
	var info authmodel.NotificationInfo
	if err := c.ShouldBindJSON(&info); err != nil {
		s.badRequest(c, "请求参数错误")
		return
	}
	res, err := s.deps.Settings.UpdateNotificationMode(c.Request.Context(), info)
	if err != nil {
		if isNotifyFailure(err) {
			httptransport.Respond(c, http.StatusBadRequest, err.Error(), "")
			return
		}
		s.fail(c, err)
		return
	}
	httptransport.RespondSuccess(c, res)
}
