package auth

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panel-server-go/internal/domain/auth/model"
	"panel-server-go/internal/domain/auth/store"
	"panel-server-go/internal/domain/eventbus"
	"panel-server-go/internal/platform/errors"
	"panel-server-go/internal/platform/storage"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.LoginEventData
}

func (p *recordingPublisher) PublishAsync(topic string, args ...interface{}) {
	if topic != eventbus.EventAuthLogin || len(args) != 1 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, args[0].(eventbus.LoginEventData))
}

func (p *recordingPublisher) snapshot() []eventbus.LoginEventData {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]eventbus.LoginEventData(nil), p.events...)
}

type fixture struct {
	manager  *Manager
	store    store.Store
	audit    *AuditLog
	events   *recordingPublisher
	verifier *TOTPVerifier
	now      time.Time
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, store.NewMemory())
}

func newFixtureWithStore(t *testing.T, st store.Store) *fixture {
	t.Helper()
	db, err := storage.OpenInMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close(db) })

	issuer, err := NewTokenIssuer("test-secret")
	require.NoError(t, err)

	f := &fixture{
		store:    st,
		audit:    NewAuditLog(storage.NewLoginLogRepository(db), 0),
		events:   &recordingPublisher{},
		verifier: NewTOTPVerifier("panel"),
		now:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.verifier.now = func() time.Time { return f.now }

	f.manager, err = NewManager(Options{
		Store:              f.store,
		Issuer:             issuer,
		Verifier:           f.verifier,
		Audit:              f.audit,
		Events:             f.events,
		Logger:             nopLogger{},
		CredentialLocation: "auth.json",
		Clock:              func() time.Time { return f.now },
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) seed(t *testing.T, cred model.AdminCredential) {
	t.Helper()
	require.NoError(t, f.store.Init(context.Background(), cred))
}

func (f *fixture) read(t *testing.T) model.AdminCredential {
	t.Helper()
	cred, err := f.store.Read(context.Background())
	require.NoError(t, err)
	return cred
}

var (
	desktop = RequestContext{IP: "10.0.0.2", Address: "内网IP", Platform: "desktop"}
	mobile  = RequestContext{IP: "10.0.0.3", Address: "内网IP", Platform: "mobile"}
)

func TestNewManager_RequiresDependencies(t *testing.T) {
	_, err := NewManager(Options{})
	assert.Error(t, err)
}

func TestLogin_FreshStoreInitializesAdmin(t *testing.T) {
	f := newFixture(t)

	res, err := f.manager.Login(context.Background(), Credentials{Username: "admin", Password: "admin"}, desktop, true)
	require.NoError(t, err)
	assert.Equal(t, CodeReinitialized, res.Code)
	assert.Contains(t, res.Message, "auth.json")

	cred := f.read(t)
	assert.Equal(t, "admin", cred.Username)
	assert.GreaterOrEqual(t, len(cred.Password), 16)
	assert.LessOrEqual(t, len(cred.Password), 22)
	assert.NotEqual(t, "admin", cred.Password)
}

func TestLogin_FreshFileStoreWritesAdminDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "auth.json")
	st, err := store.NewFile(path)
	require.NoError(t, err)
	f := newFixtureWithStore(t, st)

	res, err := f.manager.Login(context.Background(), Credentials{Username: "admin", Password: "admin"}, desktop, true)
	require.NoError(t, err)
	assert.Equal(t, CodeReinitialized, res.Code)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "admin", doc.Username)
	assert.GreaterOrEqual(t, len(doc.Password), 16)
	assert.LessOrEqual(t, len(doc.Password), 22)
	assert.NotEqual(t, "admin", doc.Password)

	res, err = f.manager.Login(context.Background(), Credentials{Username: "admin", Password: doc.Password}, desktop, true)
	require.NoError(t, err)
	assert.Equal(t, CodeOK, res.Code)
}

func TestLogin_FactoryDefaultAndIncompleteReinitialize(t *testing.T) {
	for name, cred := range map[string]model.AdminCredential{
		"factory default":  {Username: "admin", Password: "admin"},
		"missing password": {Username: "admin"},
		"missing username": {Password: "whatever"},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, cred)

			res, err := f.manager.Login(context.Background(), Credentials{Username: "admin", Password: "admin"}, desktop, true)
			require.NoError(t, err)
			assert.Equal(t, CodeReinitialized, res.Code)

			stored := f.read(t)
			assert.Equal(t, "admin", stored.Username)
			assert.NotEqual(t, "admin", stored.Password)
		})
	}
}

func TestLogin_SuccessIssuesPlatformToken(t *testing.T) {
	f := newFixture(t)
	f.seed(t, model.AdminCredential{
		Username:      "admin",
		Password:      "correct-horse",
		Retries:       2,
		LastAttemptAt: 1000,
		LastIP:        "1.1.1.1",
		Platform:      "mobile",
	})
	ctx := context.Background()

	res, err := f.manager.Login(ctx, Credentials{Username: "admin", Password: "correct-horse"}, desktop, true)
	require.NoError(t, err)
	require.Equal(t, CodeOK, res.Code)

	data, ok := res.Data.(LoginData)
	require.True(t, ok)
	assert.NotEmpty(t, data.Token)
	// previous login details are echoed back
	assert.Equal(t, "1.1.1.1", data.LastIP)
	assert.Equal(t, 2, data.Retries)
	assert.Equal(t, "mobile", data.Platform)
	assert.EqualValues(t, 1000, data.LastLogon)

	cred := f.read(t)
	assert.Equal(t, 0, cred.Retries)
	assert.Equal(t, data.Token, cred.Token)
	assert.Equal(t, data.Token, cred.Tokens["desktop"])
	assert.Equal(t, "10.0.0.2", cred.LastIP)
	assert.Equal(t, "desktop", cred.Platform)
	assert.Equal(t, f.now.UnixMilli(), cred.LastAttemptAt)
	assert.False(t, cred.IsTwoFactorChecking)

	require.NoError(t, f.manager.Authorize(ctx, data.Token, "desktop"))

	logs, err := f.manager.LoginLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.LoginSuccess, logs[0].Status)

	events := f.events.snapshot()
	require.Len(t, events, 1)
	assert.True(t, events[0].Success)
}

func TestLogin_FailureCountsAndLocksOut(t *testing.T) {
	f := newFixture(t)
	f.seed(t, model.AdminCredential{Username: "admin", Password: "correct-horse"})
	ctx := context.Background()
	wrong := Credentials{Username: "admin", Password: "nope"}

	for i := 0; i < 3; i++ {
		res, err := f.manager.Login(ctx, wrong, desktop, true)
		require.NoError(t, err)
		assert.Equal(t, CodeRejected, res.Code, "attempt %d", i+1)
		if i < 2 {
			f.advance(time.Second)
		}
	}
	assert.Equal(t, 3, f.read(t).Retries)

	f.advance(time.Second)
	res, err := f.manager.Login(ctx, Credentials{Username: "admin", Password: "correct-horse"}, desktop, true)
	require.NoError(t, err)
	assert.Equal(t, CodeLockedOut, res.Code)
	assert.EqualValues(t, 26, res.Data)
	assert.Equal(t, "失败次数过多，请26秒后重试", res.Message)

	// a locked out attempt is not counted
	assert.Equal(t, 3, f.read(t).Retries)

	f.advance(26 * time.Second)
	res, err = f.manager.Login(ctx, Credentials{Username: "admin", Password: "correct-horse"}, desktop, true)
	require.NoError(t, err)
	assert.Equal(t, CodeOK, res.Code)
	assert.Equal(t, 0, f.read(t).Retries)

	logs, err := f.manager.LoginLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 4)
	assert.Equal(t, model.LoginSuccess, logs[0].Status)
	assert.Equal(t, model.LoginFail, logs[3].Status)

	var failures int
	for _, e := range f.events.snapshot() {
		if !e.Success {
			failures++
		}
	}
	assert.Equal(t, 3, failures)
}

func TestLogout_IsolatesPlatforms(t *testing.T) {
	f := newFixture(t)
	f.seed(t, model.AdminCredential{Username: "admin", Password: "correct-horse"})
	ctx := context.Background()
	creds := Credentials{Username: "admin", Password: "correct-horse"}

	res, err := f.manager.Login(ctx, creds, desktop, true)
	require.NoError(t, err)
	desktopToken := res.Data.(LoginData).Token

	f.advance(time.Second)
	res, err = f.manager.Login(ctx, creds, mobile, true)
	require.NoError(t, err)
	mobileToken := res.Data.(LoginData).Token
	require.NotEqual(t, desktopToken, mobileToken)

	require.NoError(t, f.manager.Logout(ctx, "desktop"))

	cred := f.read(t)
	assert.Empty(t, cred.Tokens["desktop"])
	assert.Equal(t, mobileToken, cred.Tokens["mobile"])
	assert.Equal(t, mobileToken, cred.Token, "current token belongs to another platform")

	assert.ErrorIs(t, f.manager.Authorize(ctx, desktopToken, "desktop"), ErrUnauthorized)
	assert.NoError(t, f.manager.Authorize(ctx, mobileToken, "mobile"))

	require.NoError(t, f.manager.Logout(ctx, "mobile"))
	cred = f.read(t)
	assert.Empty(t, cred.Token)
	assert.ErrorIs(t, f.manager.Authorize(ctx, mobileToken, "mobile"), ErrUnauthorized)
}

func TestAuthorize_RejectsForeignTokens(t *testing.T) {
	f := newFixture(t)
	f.seed(t, model.AdminCredential{Username: "admin", Password: "correct-horse"})
	ctx := context.Background()

	assert.ErrorIs(t, f.manager.Authorize(ctx, "", "desktop"), ErrUnauthorized)
	assert.ErrorIs(t, f.manager.Authorize(ctx, "garbage", "desktop"), ErrUnauthorized)

	other, err := NewTokenIssuer("another-secret")
	require.NoError(t, err)
	issued, err := other.Issue("desktop", false)
	require.NoError(t, err)
	assert.ErrorIs(t, f.manager.Authorize(ctx, issued.Token, "desktop"), ErrUnauthorized)
}

func TestTwoFactor_FullFlow(t *testing.T) {
	f := newFixture(t)
	f.seed(t, model.AdminCredential{Username: "admin", Password: "correct-horse"})
	ctx := context.Background()
	creds := Credentials{Username: "admin", Password: "correct-horse"}

	enrollment, err := f.manager.InitTwoFactor(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)
	assert.Contains(t, enrollment.URL, "otpauth://totp/")

	ok, err := f.manager.ActivateTwoFactor(ctx, "000000")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, f.read(t).TwoFactorActivated)

	code, err := totp.GenerateCode(enrollment.Secret, f.now)
	require.NoError(t, err)
	ok, err = f.manager.ActivateTwoFactor(ctx, code)
	require.NoError(t, err)
	require.True(t, ok)

	// second factor not armed yet
	res, err := f.manager.TwoFactorLogin(ctx, creds, code, desktop)
	require.NoError(t, err)
	assert.Equal(t, CodeSecondFactorStateMismatch, res.Code)

	res, err = f.manager.Login(ctx, creds, desktop, true)
	require.NoError(t, err)
	assert.Equal(t, CodeSecondFactorRequired, res.Code)
	assert.True(t, f.read(t).IsTwoFactorChecking)

	retriesBefore := f.read(t).Retries
	res, err = f.manager.TwoFactorLogin(ctx, creds, "000000", mobile)
	require.NoError(t, err)
	assert.Equal(t, CodeSecondFactorInvalid, res.Code)
	cred := f.read(t)
	assert.Equal(t, retriesBefore, cred.Retries, "wrong code is not a password failure")
	assert.Equal(t, "10.0.0.3", cred.LastIP)
	assert.Equal(t, "mobile", cred.Platform)
	assert.True(t, cred.IsTwoFactorChecking)

	f.advance(30 * time.Second)
	code, err = totp.GenerateCode(enrollment.Secret, f.now)
	require.NoError(t, err)
	res, err = f.manager.TwoFactorLogin(ctx, creds, code, desktop)
	require.NoError(t, err)
	require.Equal(t, CodeOK, res.Code)
	cred = f.read(t)
	assert.False(t, cred.IsTwoFactorChecking)
	assert.Equal(t, res.Data.(LoginData).Token, cred.Tokens["desktop"])

	ok, err = f.manager.DeactivateTwoFactor(ctx, "")
	require.NoError(t, err)
	assert.True(t, ok)
	cred = f.read(t)
	assert.False(t, cred.TwoFactorActivated)
	assert.Empty(t, cred.TwoFactorSecret)

	res, err = f.manager.Login(ctx, creds, desktop, true)
	require.NoError(t, err)
	assert.Equal(t, CodeOK, res.Code)
}

func TestTwoFactorLogin_UninitializedStore(t *testing.T) {
	f := newFixture(t)
	res, err := f.manager.TwoFactorLogin(context.Background(), Credentials{}, "123456", desktop)
	require.NoError(t, err)
	assert.Equal(t, CodeSecondFactorStateMismatch, res.Code)
}

func TestDeactivateTwoFactor_CodeRequiredPolicy(t *testing.T) {
	f := newFixture(t)
	f.manager.deactivation = CodeRequiredDeactivation{Verifier: f.verifier}
	ctx := context.Background()

	secret := "JBSWY3DPEHPK3PXP"
	f.seed(t, model.AdminCredential{Username: "admin", Password: "correct-horse", TwoFactorSecret: secret, TwoFactorActivated: true})

	ok, err := f.manager.DeactivateTwoFactor(ctx, "000000")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, f.read(t).TwoFactorActivated)

	code, err := totp.GenerateCode(secret, f.now)
	require.NoError(t, err)
	ok, err = f.manager.DeactivateTwoFactor(ctx, code)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, f.read(t).TwoFactorActivated)
}

func TestUpdateCredentials(t *testing.T) {
	f := newFixture(t)
	f.seed(t, model.AdminCredential{Username: "admin", Password: "correct-horse"})
	ctx := context.Background()

	res, err := f.manager.UpdateCredentials(ctx, Credentials{Username: "root", Password: "admin"})
	require.NoError(t, err)
	assert.Equal(t, CodeRejected, res.Code)
	assert.Equal(t, "correct-horse", f.read(t).Password)

	res, err = f.manager.UpdateCredentials(ctx, Credentials{Username: "root", Password: "battery-staple"})
	require.NoError(t, err)
	assert.Equal(t, CodeOK, res.Code)

	info, err := f.manager.UserInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "root", info.Username)

	res, err = f.manager.Login(ctx, Credentials{Username: "root", Password: "battery-staple"}, desktop, true)
	require.NoError(t, err)
	assert.Equal(t, CodeOK, res.Code)
}

type failingStore struct {
	store.Store
	err error
}

func (s failingStore) Write(context.Context, model.Patch) (model.AdminCredential, error) {
	return model.AdminCredential{}, s.err
}

func (s failingStore) Init(context.Context, model.AdminCredential) error { return s.err }

func TestLogin_PersistenceFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.seed(t, model.AdminCredential{Username: "admin", Password: "correct-horse"})
	diskFull := stderrors.New("disk full")
	f.manager.store = failingStore{Store: f.store, err: diskFull}
	ctx := context.Background()

	_, err := f.manager.Login(ctx, Credentials{Username: "admin", Password: "nope"}, desktop, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, diskFull)
	assert.True(t, errors.IsKind(err, errors.KindStorage))

	_, err = f.manager.Login(ctx, Credentials{Username: "admin", Password: "correct-horse"}, desktop, true)
	assert.ErrorIs(t, err, diskFull)

	// nothing is audited when the credential write failed
	logs, err := f.manager.LoginLogs(ctx)
	require.NoError(t, err)
	assert.Empty(t, logs)

	f.manager.store = failingStore{Store: store.NewMemory(), err: diskFull}
	_, err = f.manager.Login(ctx, Credentials{}, desktop, true)
	assert.ErrorIs(t, err, diskFull)
}
