package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panel-server-go/internal/domain/auth"
	authmodel "panel-server-go/internal/domain/auth/model"
	"panel-server-go/internal/domain/auth/store"
	"panel-server-go/internal/domain/open"
	"panel-server-go/internal/domain/system"
	"panel-server-go/internal/platform/storage"
	testutil "panel-server-go/internal/platform/testing"
	httptransport "panel-server-go/internal/transport/http"
)

const desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

type stubUpdater struct{}

func (stubUpdater) Run(_ context.Context, emit func(string)) error {
	emit("done")
	return nil
}

type nopPublisher struct{}

func (nopPublisher) PublishAsync(string, ...interface{}) {}

type harness struct {
	engine *gin.Engine
	store  store.Store
	token  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testutil.SetupTestConfig(t)
	logger := testutil.SetupTestLogger(t)
	db := testutil.SetupTestDB(t)
	require.NoError(t, os.WriteFile(cfg.Update.VersionFile, []byte("export const version = '2.11.3';\n"), 0o644))

	credStore := store.NewMemory()
	issuer, err := auth.NewTokenIssuer(cfg.Auth.Secret)
	require.NoError(t, err)
	manager, err := auth.NewManager(auth.Options{
		Store:  credStore,
		Issuer: issuer,
		Audit:  auth.NewAuditLog(storage.NewLoginLogRepository(db), 0),
		Events: nopPublisher{},
		Logger: logger.WithTag("认证"),
	})
	require.NoError(t, err)

	registry, err := open.NewRegistry(open.Options{
		Repository: storage.NewAppRepository(db),
		Logger:     logger.WithTag("开放接口"),
	})
	require.NoError(t, err)

	sysLogger := logger.WithTag("系统")
	settings := system.NewSettings(storage.NewSettingsRepository(db), system.NewLogNotifier(nil, sysLogger), system.NewMemoryScheduler(), sysLogger)

	router, err := httptransport.Build(httptransport.Options{
		Config:         cfg,
		Logger:         logger,
		AuthMiddleware: httptransport.AdminAuth(manager),
		OpenMiddleware: httptransport.OpenAuth(registry),
	})
	require.NoError(t, err)

	svc, err := NewService(Dependencies{
		Auth:        manager,
		Open:        registry,
		Settings:    settings,
		Updates:     system.NewUpdateChecker(system.UpdateCheckerConfig{VersionFile: cfg.Update.VersionFile}, sysLogger),
		Maintenance: system.NewMaintenance(stubUpdater{}, nopPublisher{}, sysLogger),
		Logger:      logger,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Register(context.Background(), router))

	return &harness{engine: router.Engine, store: credStore}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (h *harness) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", desktopUA)
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	require.NoError(t, h.store.Init(context.Background(), authmodel.AdminCredential{Username: "admin", Password: "correct-horse"}))
	status, env := h.do(t, http.MethodPost, "/api/user/login", auth.Credentials{Username: "admin", Password: "correct-horse"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 200, env.Code)

	var data auth.LoginData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	h.token = data.Token
}

func TestLogin_InitializesThenRejects(t *testing.T) {
	h := newHarness(t)

	_, env := h.do(t, http.MethodPost, "/api/user/login", auth.Credentials{Username: "admin", Password: "admin"})
	assert.Equal(t, 100, env.Code)

	_, env = h.do(t, http.MethodPost, "/api/user/login", auth.Credentials{Username: "admin", Password: "admin"})
	assert.Equal(t, 400, env.Code)
	assert.Equal(t, "错误的用户名密码，请重试", env.Message)

	status, _ := h.do(t, http.MethodPost, "/api/user/login", "not an object")
	assert.Equal(t, http.StatusOK, status)
}

func TestSecuredRoutesRequireToken(t *testing.T) {
	h := newHarness(t)

	status, env := h.do(t, http.MethodGet, "/api/user", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, http.StatusUnauthorized, env.Code)

	h.login(t)
	status, env = h.do(t, http.MethodGet, "/api/user", nil)
	require.Equal(t, http.StatusOK, status)
	var info auth.UserInfo
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, "admin", info.Username)
	assert.NotContains(t, string(env.Data), "correct-horse")

	status, _ = h.do(t, http.MethodPost, "/api/user/logout", nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = h.do(t, http.MethodGet, "/api/user", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestUserRoutes(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	_, env := h.do(t, http.MethodPut, "/api/user", auth.Credentials{Username: "root", Password: "admin"})
	assert.Equal(t, 400, env.Code)

	_, env = h.do(t, http.MethodGet, "/api/user/two-factor/init", nil)
	require.Equal(t, 200, env.Code)
	var enrollment auth.Enrollment
	require.NoError(t, json.Unmarshal(env.Data, &enrollment))
	assert.NotEmpty(t, enrollment.Secret)

	_, env = h.do(t, http.MethodPut, "/api/user/two-factor/active", map[string]string{"code": "000000x"})
	require.Equal(t, 200, env.Code)
	assert.Equal(t, "false", string(env.Data))

	_, env = h.do(t, http.MethodGet, "/api/user/login-log", nil)
	require.Equal(t, 200, env.Code)
	var logs []authmodel.LoginLogEntry
	require.NoError(t, json.Unmarshal(env.Data, &logs))
	assert.Len(t, logs, 1)

	_, env = h.do(t, http.MethodPut, "/api/user/notification", authmodel.NotificationInfo{})
	assert.Equal(t, 400, env.Code)
	_, env = h.do(t, http.MethodPut, "/api/user/notification", authmodel.NotificationInfo{Type: "bark"})
	assert.Equal(t, 200, env.Code)
	_, env = h.do(t, http.MethodGet, "/api/user/notification", nil)
	assert.Contains(t, string(env.Data), "bark")
}

func TestTwoFactorLoginWithoutChallenge(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Init(context.Background(), authmodel.AdminCredential{Username: "admin", Password: "correct-horse"}))

	_, env := h.do(t, http.MethodPut, "/api/user/two-factor/login", map[string]string{
		"username": "admin", "password": "correct-horse", "code": "123456",
	})
	assert.Equal(t, 450, env.Code)
}

func TestSystemRoutes(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	_, env := h.do(t, http.MethodPut, "/api/system/log/remove", map[string]int{"frequency": 5})
	require.Equal(t, 200, env.Code)
	var job system.CronJob
	require.NoError(t, json.Unmarshal(env.Data, &job))
	assert.Equal(t, "5 23 */5 * *", job.Schedule)

	_, env = h.do(t, http.MethodGet, "/api/system/log/remove", nil)
	assert.JSONEq(t, `{"frequency":5}`, string(env.Data))

	_, env = h.do(t, http.MethodGet, "/api/system/update/check", nil)
	require.Equal(t, 200, env.Code)
	var info system.UpdateInfo
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.False(t, info.HasNewVersion)

	_, env = h.do(t, http.MethodPut, "/api/system/update", nil)
	assert.Equal(t, 200, env.Code)
}

func TestOpenClientFlow(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	adminToken := h.token

	_, env := h.do(t, http.MethodPost, "/api/apps", map[string]any{"name": "ci", "scopes": []string{"system"}})
	require.Equal(t, 200, env.Code)
	var client struct {
		ID           uint   `json:"id"`
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &client))
	require.Len(t, client.ClientSecret, 24)

	h.token = ""
	_, env = h.do(t, http.MethodGet, "/open/auth/token?client_id="+client.ClientID+"&client_secret=wrong", nil)
	assert.Equal(t, 400, env.Code)

	_, env = h.do(t, http.MethodGet, "/open/auth/token?client_id="+client.ClientID+"&client_secret="+client.ClientSecret, nil)
	require.Equal(t, 200, env.Code)
	var grant open.Grant
	require.NoError(t, json.Unmarshal(env.Data, &grant))
	assert.Equal(t, "Bearer", grant.TokenType)

	status, _ := h.do(t, http.MethodGet, "/open/system/info", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	h.token = grant.Token
	status, _ = h.do(t, http.MethodGet, "/open/system/info", nil)
	assert.Equal(t, http.StatusOK, status)

	// open tokens are not admin sessions
	status, _ = h.do(t, http.MethodGet, "/api/apps", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	h.token = adminToken
	_, env = h.do(t, http.MethodGet, "/api/apps", nil)
	require.Equal(t, 200, env.Code)
	assert.NotContains(t, string(env.Data), grant.Token)

	_, env = h.do(t, http.MethodPut, "/api/apps", map[string]any{"id": client.ID, "name": "ci-2", "client_secret": "hijack"})
	require.Equal(t, 200, env.Code)
	assert.Contains(t, string(env.Data), client.ClientSecret)

	_, env = h.do(t, http.MethodPut, "/api/apps/"+jsonNumber(client.ID)+"/reset-secret", nil)
	require.Equal(t, 200, env.Code)

	h.token = grant.Token
	status, _ = h.do(t, http.MethodGet, "/open/system/info", nil)
	assert.Equal(t, http.StatusUnauthorized, status, "reset revokes issued tokens")

	h.token = adminToken
	_, env = h.do(t, http.MethodDelete, "/api/apps", []uint{client.ID})
	require.Equal(t, 200, env.Code)
	_, env = h.do(t, http.MethodGet, "/api/apps/"+jsonNumber(client.ID), nil)
	assert.Equal(t, 404, env.Code)
}

func jsonNumber(id uint) string {
	data, _ := json.Marshal(id)
	return string(data)
}
