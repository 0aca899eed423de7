package webapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"panel-server-go/internal/domain/auth"
	"panel-server-go/internal/domain/open"
	"panel-server-go/internal/domain/system"
	"panel-server-go/internal/platform/errors"
	"panel-server-go/internal/platform/logging"
	httptransport "panel-server-go/internal/transport/http"
)

// Dependencies lists the domain services behind the panel API.
type Dependencies struct {
	Auth        *auth.Manager
	Open        *open.Registry
	Settings    *system.Settings
	Updates     *system.UpdateChecker
	Maintenance *system.Maintenance
	// Socket upgrades /api/ws requests. Optional.
	Socket http.Handler
	Logger *logging.Logger
}

// Service WebAPI服务的HTTP传输层实现
type Service struct {
	deps   Dependencies
	logger *logging.Logger
}

// NewService 创建新的WebAPI服务实例
func NewService(deps Dependencies) (*Service, error) {
	if deps.Auth == nil {
		return nil, errors.New(errors.KindConfig, "webapi.new", "auth manager is required")
	}
	if deps.Open == nil {
		return nil, errors.New(errors.KindConfig, "webapi.new", "open registry is required")
	}
	if deps.Settings == nil || deps.Updates == nil || deps.Maintenance == nil {
		return nil, errors.New(errors.KindConfig, "webapi.new", "system services are required")
	}
	if deps.Logger == nil {
		return nil, errors.New(errors.KindConfig, "webapi.new", "logger is required")
	}
	return &Service{deps: deps, logger: deps.Logger}, nil
}

// Register 注册WebAPI相关的HTTP路由
func (s *Service) Register(_ context.Context, router *httptransport.Router) error {
	// 登录相关路由无需认证
	router.API.POST("/user/login", s.handleLogin)
	router.API.PUT("/user/two-factor/login", s.handleTwoFactorLogin)

	secured := router.Secured
	{
		secured.POST("/user/logout", s.handleLogout)
		secured.GET("/user", s.handleUserInfo)
		secured.PUT("/user", s.handleUpdateUser)
		secured.GET("/user/two-factor/init", s.handleTwoFactorInit)
		secured.PUT("/user/two-factor/active", s.handleTwoFactorActivate)
		secured.PUT("/user/two-factor/deactive", s.handleTwoFactorDeactivate)
		secured.GET("/user/login-log", s.handleLoginLog)
		secured.GET("/user/notification", s.handleNotificationGet)
		secured.PUT("/user/notification", s.handleNotificationPut)
	}
	{
		secured.GET("/system/log/remove", s.handleLogRemoveGet)
		secured.PUT("/system/log/remove", s.handleLogRemovePut)
		secured.GET("/system/update/check", s.handleUpdateCheck)
		secured.PUT("/system/update", s.handleUpdateSystem)
		secured.GET("/system/info", s.handleSystemInfo)
		if s.deps.Socket != nil {
			secured.GET("/ws", gin.WrapH(s.deps.Socket))
		}
	}
	{
		secured.GET("/apps", s.handleAppsList)
		secured.GET("/apps/:id", s.handleAppsGet)
		secured.POST("/apps", s.handleAppsCreate)
		secured.PUT("/apps", s.handleAppsUpdate)
		secured.DELETE("/apps", s.handleAppsDelete)
		secured.PUT("/apps/:id/reset-secret", s.handleAppsResetSecret)
	}

	router.Open.GET("/auth/token", s.handleOpenToken)
	router.OpenSecured.GET("/system/info", s.handleSystemInfo)

	s.logger.InfoTag("HTTP", "WebAPI服务路由注册完成")
	return nil
}

// fail records err for the middlewares and answers with a 500.
func (s *Service) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	s.logger.ErrorTag("HTTP", "%s %s 失败: %v", c.Request.Method, c.Request.URL.Path, err)
	httptransport.RespondError(c, http.StatusInternalServerError, "服务器内部错误")
}

func (s *Service) badRequest(c *gin.Context, message string) {
	httptransport.Respond(c, http.StatusBadRequest, nil, message)
}
