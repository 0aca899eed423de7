package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	domainauth "panel-server-go/internal/domain/auth"
	authstore "panel-server-go/internal/domain/auth/store"
	"panel-server-go/internal/domain/eventbus"
	domainopen "panel-server-go/internal/domain/open"
	domainsystem "panel-server-go/internal/domain/system"
	platformconfig "panel-server-go/internal/platform/config"
	platformerrors "panel-server-go/internal/platform/errors"
	platformlogging "panel-server-go/internal/platform/logging"
	platformobservability "panel-server-go/internal/platform/observability"
	platformstorage "panel-server-go/internal/platform/storage"
	httptransport "panel-server-go/internal/transport/http"
	httpwebapi "panel-server-go/internal/transport/http/webapi"
	wstransport "panel-server-go/internal/transport/ws"
	"panel-server-go/internal/utils"
)

const eventWorkers = 4

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	loader                *platformconfig.Loader
	config                *platformconfig.Config
	configPath            string
	logger                *platformlogging.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	metricsHandler        http.Handler
	db                    *gorm.DB
	secret                string
	credentialStore       authstore.Store
	events                *eventbus.AsyncEventBus
	settings              *domainsystem.Settings
	notifier              *domainsystem.LogNotifier
	updates               *domainsystem.UpdateChecker
	maintenance           *domainsystem.Maintenance
	authManager           *domainauth.Manager
	openRegistry          *domainopen.Registry
	hub                   *wstransport.Hub
	socketRouter          *wstransport.Router
	relay                 *wstransport.Relay
}

// Run 启动整个服务生命周期，负责加载配置、初始化依赖和优雅关停。
// configPath 为空时读取工作目录下的 config.yaml。
func Run(ctx context.Context, configPath string) error {
	state := &appState{
		loader: platformconfig.NewLoader().WithSource(configPath),
	}
	defer state.close()

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	if state.config == nil || state.logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger not initialised",
		)
	}
	if state.authManager == nil || state.openRegistry == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"domain services not initialised",
		)
	}

	logger := state.logger
	logBootstrapGraph(steps, logger)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if _, err := startHTTPServer(state, group, groupCtx); err != nil {
		cancel()
		return fmt.Errorf("启动 Http 服务失败: %w", err)
	}
	if state.hub != nil {
		group.Go(func() error {
			state.hub.RunIdleSweep(groupCtx, wstransport.PingInterval, wstransport.IdleTimeout)
			return nil
		})
	}
	logger.InfoTag("引导", "服务已成功启动")

	return waitForShutdown(signalCtx, cancel, logger, group, state.config.Server.ShutdownTimeout)
}

// close releases everything the init steps opened, in reverse order.
func (s *appState) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	warn := func(format string, args ...any) {
		if s.logger != nil {
			s.logger.WarnTag("引导", format, args...)
		}
	}

	if s.relay != nil {
		if err := s.relay.Stop(); err != nil {
			warn("WebSocket 转发未正常停止: %v", err)
		}
	}
	if s.maintenance != nil {
		s.maintenance.Wait()
	}
	if s.events != nil {
		s.events.Stop()
	}
	if s.credentialStore != nil {
		if err := s.credentialStore.Close(ctx); err != nil {
			warn("凭据存储未正常关闭: %v", err)
		}
	}
	if s.db != nil {
		if err := platformstorage.Close(s.db); err != nil {
			warn("数据库未正常关闭: %v", err)
		}
	}
	if s.observabilityShutdown != nil {
		if err := s.observabilityShutdown(ctx); err != nil {
			warn("可观测性未正常关闭: %v", err)
		}
	}
	if s.logger != nil {
		_ = s.logger.Close()
	}
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("引导", "初始化依赖关系概览")

	stepNames := map[string]string{
		"config:load":               "加载配置",
		"logging:init-provider":     "初始化日志提供者",
		"observability:setup-hooks": "设置可观测性钩子",
		"storage:open-database":     "打开数据库",
		"auth:load-secret":          "加载令牌密钥",
		"auth:init-store":           "初始化凭据存储",
		"events:init-bus":           "初始化事件总线",
		"system:init-services":      "初始化系统服务",
		"auth:init-manager":         "初始化认证管理器",
		"open:init-registry":        "初始化开放应用",
		"transport:init-websocket":  "初始化 WebSocket",
	}

	for _, step := range steps {
		name, ok := stepNames[step.ID]
		if !ok {
			name = step.Title
		}
		if len(step.DependsOn) == 0 {
			logger.InfoTag("引导", "%s (%s)", name, step.ID)
			continue
		}
		logger.InfoTag("引导", "%s (%s) <- %s", name, step.ID, strings.Join(step.DependsOn, ", "))
	}
	logger.InfoTag("引导", "启动服务")
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "storage:open-database",
			Title:     "Open database",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   openDatabaseStep,
		},
		{
			ID:        "auth:load-secret",
			Title:     "Load token secret",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindAuth,
			Execute:   loadSecretStep,
		},
		{
			ID:        "auth:init-store",
			Title:     "Initialise credential store",
			DependsOn: []string{"storage:open-database"},
			Kind:      platformerrors.KindStorage,
			Execute:   initCredentialStoreStep,
		},
		{
			ID:        "events:init-bus",
			Title:     "Initialise event bus",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initEventBusStep,
		},
		{
			ID:        "system:init-services",
			Title:     "Initialise system services",
			DependsOn: []string{"storage:open-database", "events:init-bus"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initSystemStep,
		},
		{
			ID:        "auth:init-manager",
			Title:     "Initialise auth manager",
			DependsOn: []string{"observability:setup-hooks", "auth:load-secret", "auth:init-store", "events:init-bus"},
			Kind:      platformerrors.KindAuth,
			Execute:   initAuthStep,
		},
		{
			ID:        "open:init-registry",
			Title:     "Initialise open client registry",
			DependsOn: []string{"storage:open-database"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initOpenRegistryStep,
		},
		{
			ID:        "transport:init-websocket",
			Title:     "Initialise websocket hub",
			DependsOn: []string{"events:init-bus"},
			Kind:      platformerrors.KindTransport,
			Execute:   initWebsocketStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	loader := state.loader
	if loader == nil {
		loader = platformconfig.NewLoader()
	}
	result, err := loader.Load()
	if err != nil {
		return err
	}
	state.config = result.Config
	state.configPath = result.Path
	if state.configPath == "" {
		state.configPath = "defaults"
	}
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}
	state.logger = logger

	logger.InfoTag("引导", "日志模块就绪 [%s] %s", state.config.Log.Level, state.configPath)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	if state.logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"observability:setup-hooks",
			"logger not initialised",
		)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	shutdown, err := platformobservability.Setup(ctx, platformobservability.Config{
		Enabled:    true,
		Registerer: registry,
	}, state.logger.Slog())
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	state.metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return nil
}

func openDatabaseStep(ctx context.Context, state *appState) error {
	db, err := platformstorage.Open(ctx, state.config.Database.Path)
	if err != nil {
		return err
	}
	state.db = db
	state.logger.InfoTag("存储", "数据库已就绪 %s", state.config.Database.Path)
	return nil
}

func loadSecretStep(_ context.Context, state *appState) error {
	secret, err := resolveSecret(state.config.Auth)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindAuth, "auth:load-secret", "failed to load token secret", err)
	}
	state.secret = secret
	return nil
}

// resolveSecret returns the configured secret, else the one persisted in
// SecretFile, generating and saving it on first run.
func resolveSecret(cfg platformconfig.AuthConfig) (string, error) {
	if secret := strings.TrimSpace(cfg.Secret); secret != "" {
		return secret, nil
	}
	if cfg.SecretFile == "" {
		return "", errors.New("auth secret or secret_file required")
	}

	data, err := os.ReadFile(cfg.SecretFile)
	if err == nil {
		if secret := strings.TrimSpace(string(data)); secret != "" {
			return secret, nil
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}

	secret, err := utils.RandomString(64, 64)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.SecretFile), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(cfg.SecretFile, []byte(secret), 0o600); err != nil {
		return "", err
	}
	return secret, nil
}

func initCredentialStoreStep(_ context.Context, state *appState) error {
	storeCfg := credentialStoreConfig(state.config.Auth.Store)
	credentialStore, err := authstore.New(storeCfg, authstore.Dependencies{SQLiteDB: state.db})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "auth:init-store", "failed to create auth store", err)
	}
	state.credentialStore = credentialStore
	state.logger.InfoTag("认证", "凭据存储 [%s] %s", storeCfg.Driver, credentialStore.Location())
	return nil
}

func credentialStoreConfig(cfg platformconfig.StoreConfig) authstore.Config {
	driver := strings.ToLower(strings.TrimSpace(cfg.Type))
	storeCfg := authstore.Config{Driver: driver}
	switch driver {
	case "", authstore.DriverFile:
		storeCfg.Driver = authstore.DriverFile
		storeCfg.File = &authstore.FileConfig{Path: cfg.File.Path}
	case "database":
		storeCfg.Driver = authstore.DriverSQLite
	case authstore.DriverRedis:
		storeCfg.Redis = &authstore.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
		}
	}
	return storeCfg
}

func initEventBusStep(_ context.Context, state *appState) error {
	bus := eventbus.NewAsyncEventBus(eventWorkers)
	bus.OnDrop(func(topic string) {
		state.logger.WarnTag("事件", "事件队列已满，丢弃 %s", topic)
	})
	bus.Start()
	state.events = bus
	return nil
}

func initSystemStep(_ context.Context, state *appState) error {
	cfg := state.config
	logger := state.logger.WithTag("系统")

	notifier := domainsystem.NewLogNotifier(nil, state.logger.WithTag("通知"))
	settings := domainsystem.NewSettings(
		platformstorage.NewSettingsRepository(state.db),
		notifier,
		domainsystem.NewMemoryScheduler(),
		logger,
	)
	notifier.Bind(settings)

	if err := eventbus.SetupEventHandlers(state.events, notifier, state.logger.WithTag("登录")); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "system:init-services", "failed to subscribe login notifier", err)
	}

	state.settings = settings
	state.notifier = notifier
	state.updates = domainsystem.NewUpdateChecker(domainsystem.UpdateCheckerConfig{
		VersionFile:    cfg.Update.VersionFile,
		LastVersionURL: cfg.Update.LastVersionURL,
		MirrorPrefix:   cfg.Update.MirrorPrefix,
		PrimaryTimeout: cfg.Update.PrimaryTimeout,
		MirrorTimeout:  cfg.Update.MirrorTimeout,
	}, logger)
	state.maintenance = domainsystem.NewMaintenance(
		domainsystem.CommandUpdater{Command: cfg.Update.Command},
		state.events,
		logger,
	)
	return nil
}

func initAuthStep(_ context.Context, state *appState) error {
	issuer, err := domainauth.NewTokenIssuer(state.secret)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindAuth, "auth:init-manager", "failed to create token issuer", err)
	}

	manager, err := domainauth.NewManager(domainauth.Options{
		Store:              state.credentialStore,
		Issuer:             issuer,
		Verifier:           domainauth.NewTOTPVerifier(state.config.Auth.TwoFactorIssuer),
		Audit:              domainauth.NewAuditLog(platformstorage.NewLoginLogRepository(state.db), 0),
		Events:             state.events,
		Logger:             state.logger.WithTag("认证"),
		CredentialLocation: state.credentialStore.Location(),
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindAuth, "auth:init-manager", "failed to create auth manager", err)
	}
	state.authManager = manager
	return nil
}

func initOpenRegistryStep(_ context.Context, state *appState) error {
	registry, err := domainopen.NewRegistry(domainopen.Options{
		Repository:    platformstorage.NewAppRepository(state.db),
		Logger:        state.logger.WithTag("开放接口"),
		EnforceExpiry: state.config.Open.EnforceExpiry,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "open:init-registry", "failed to create open registry", err)
	}
	state.openRegistry = registry
	return nil
}

func initWebsocketStep(_ context.Context, state *appState) error {
	hub := wstransport.NewHub(state.logger)
	relay, err := wstransport.NewRelay(hub, state.events)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, "transport:init-websocket", "failed to subscribe websocket relay", err)
	}
	state.hub = hub
	state.relay = relay
	state.socketRouter = wstransport.NewRouter(hub, state.logger, wstransport.RouterOptions{})
	return nil
}

// buildHTTPHandler assembles the gin engine with every panel route.
func buildHTTPHandler(ctx context.Context, state *appState) (*gin.Engine, error) {
	router, err := httptransport.Build(httptransport.Options{
		Config:         state.config,
		Logger:         state.logger,
		AuthMiddleware: httptransport.AdminAuth(state.authManager),
		OpenMiddleware: httptransport.OpenAuth(state.openRegistry),
		MetricsHandler: state.metricsHandler,
	})
	if err != nil {
		return nil, err
	}

	var socket http.Handler
	if state.socketRouter != nil {
		socket = http.HandlerFunc(state.socketRouter.Handle)
	}

	service, err := httpwebapi.NewService(httpwebapi.Dependencies{
		Auth:        state.authManager,
		Open:        state.openRegistry,
		Settings:    state.settings,
		Updates:     state.updates,
		Maintenance: state.maintenance,
		Socket:      socket,
		Logger:      state.logger,
	})
	if err != nil {
		state.logger.ErrorTag("WebAPI", "WebAPI 服务初始化失败: %v", err)
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "webapi:new-service", "failed to create webapi service", err)
	}
	if err := service.Register(ctx, router); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "webapi:register", "failed to register webapi routes", err)
	}

	router.Engine.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") || strings.HasPrefix(c.Request.URL.Path, "/open") {
			httptransport.RespondError(c, http.StatusNotFound, "api Not found")
			return
		}
		if state.config.Web.Enabled {
			c.File(filepath.Join(state.config.Web.StaticDir, "index.html"))
			return
		}
		c.Status(http.StatusNotFound)
	})

	return router.Engine, nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	handler, err := buildHTTPHandler(groupCtx, state)
	if err != nil {
		return nil, err
	}

	cfg := state.config
	logger := state.logger
	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.IP, strconv.Itoa(cfg.Server.Port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "Gin 服务已启动，访问地址 http://%s", httpServer.Addr)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "HTTP 服务关闭失败: %v", err)
			} else {
				logger.InfoTag("HTTP", "HTTP 服务已优雅关闭")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "HTTP 服务启动失败: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
	timeout time.Duration,
) error {
	<-ctx.Done()
	logger.InfoTag("引导", "收到系统信号 %v，正在进行资源清理", context.Cause(ctx))

	cancel()

	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("引导", "服务关闭过程中出现错误: %v", err)
			return err
		}
		logger.InfoTag("引导", "所有服务已成功关闭")
	case <-time.After(timeout):
		logger.ErrorTag("引导", "服务关闭超时，已强制退出")
		return errors.New("服务关闭超时")
	}
	return nil
}
