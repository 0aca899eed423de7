package auth

import (
	"context"
	"crypto/subtle"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"panel-server-go/internal/domain/auth/model"
	"panel-server-go/internal/domain/eventbus"
	"panel-server-go/internal/platform/errors"
	"panel-server-go/internal/platform/observability"
	"panel-server-go/internal/utils"
)

// Logger re-exports the logging interface used across the domain.
type Logger = model.Logger

// Result codes returned by the login flows.
const (
	CodeReinitialized             = 100
	CodeOK                        = 200
	CodeRejected                  = 400
	CodeLockedOut                 = 410
	CodeSecondFactorRequired      = 420
	CodeSecondFactorInvalid       = 430
	CodeSecondFactorStateMismatch = 450
)

const (
	defaultUsername           = "admin"
	forbiddenPassword         = "admin"
	generatedPasswordMin      = 16
	generatedPasswordMax      = 22
	defaultCredentialLocation = "auth.json"
)

// ErrUnauthorized is returned by Authorize for any token that does not grant access.
var ErrUnauthorized = stderrors.New("unauthorized")

// CredentialStore owns the persisted admin credential.
type CredentialStore interface {
	Read(ctx context.Context) (model.AdminCredential, error)
	Write(ctx context.Context, patch model.Patch) (model.AdminCredential, error)
	Init(ctx context.Context, cred model.AdminCredential) error
}

// EventPublisher queues domain events.
type EventPublisher interface {
	PublishAsync(topic string, args ...interface{})
}

// Credentials is a username/password pair submitted by the caller.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RequestContext describes where an attempt came from.
type RequestContext struct {
	IP       string
	Address  string
	Platform string
}

// Result is the structured outcome of a login flow.
type Result struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// LoginData is returned on success. The last* fields describe the previous login.
type LoginData struct {
	Token     string `json:"token"`
	LastIP    string `json:"lastip"`
	LastAddr  string `json:"lastaddr"`
	LastLogon int64  `json:"lastlogon"`
	Retries   int    `json:"retries"`
	Platform  string `json:"platform"`
}

// UserInfo is the admin profile without secrets.
type UserInfo struct {
	Username           string `json:"username"`
	LastIP             string `json:"lastip"`
	LastAddr           string `json:"lastaddr"`
	LastLogon          int64  `json:"lastlogon"`
	Retries            int    `json:"retries"`
	Platform           string `json:"platform"`
	TwoFactorActivated bool   `json:"twoFactorActivated"`
}

// Options encapsulates the dependencies required to construct a Manager.
type Options struct {
	Store    CredentialStore
	Issuer   *TokenIssuer
	Verifier *TOTPVerifier
	Audit    *AuditLog
	Events   EventPublisher
	Logger   Logger
	// Deactivation guards turning the second factor off. Defaults to PermissiveDeactivation.
	Deactivation SecondFactorPolicy
	// CredentialLocation names where a generated password can be read, for the operator message.
	CredentialLocation string
	Clock              func() time.Time
}

// Manager is the admin login state machine. All flows that touch the
// credential record run under one mutex.
type Manager struct {
	store        CredentialStore
	issuer       *TokenIssuer
	verifier     *TOTPVerifier
	audit        *AuditLog
	events       EventPublisher
	logger       Logger
	deactivation SecondFactorPolicy
	location     string
	now          func() time.Time

	mu sync.Mutex
}

// NewManager wires a Manager using the supplied options.
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, stderrors.New("auth manager requires a credential store")
	}
	if opts.Issuer == nil {
		return nil, stderrors.New("auth manager requires a token issuer")
	}
	if opts.Audit == nil {
		return nil, stderrors.New("auth manager requires an audit log")
	}
	if opts.Logger == nil {
		return nil, stderrors.New("auth manager requires a logger")
	}
	if opts.Verifier == nil {
		opts.Verifier = NewTOTPVerifier("")
	}
	if opts.Deactivation == nil {
		opts.Deactivation = PermissiveDeactivation{}
	}
	if opts.CredentialLocation == "" {
		opts.CredentialLocation = defaultCredentialLocation
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Manager{
		store:        opts.Store,
		issuer:       opts.Issuer,
		verifier:     opts.Verifier,
		audit:        opts.Audit,
		events:       opts.Events,
		logger:       opts.Logger,
		deactivation: opts.Deactivation,
		location:     opts.CredentialLocation,
		now:          opts.Clock,
	}, nil
}

// Login runs one password attempt. With enforceSecondFactor set and the
// second factor active, a correct password only arms the second-factor step.
func (m *Manager) Login(ctx context.Context, creds Credentials, req RequestContext, enforceSecondFactor bool) (Result, error) {
	ctx, end := observability.StartSpan(ctx, "auth", "login", slog.String("platform", req.Platform))
	m.mu.Lock()
	res, err := m.login(ctx, creds, req, enforceSecondFactor)
	m.mu.Unlock()
	end(err, slog.Int("code", res.Code))
	if err == nil {
		observability.ObserveLogin(res.Code)
	}
	return res, err
}

func (m *Manager) login(ctx context.Context, creds Credentials, req RequestContext, enforceSecondFactor bool) (Result, error) {
	cred, err := m.store.Read(ctx)
	if stderrors.Is(err, model.ErrNotInitialized) {
		return m.initialize(ctx)
	}
	if err != nil {
		return Result{}, storageError("auth.login", err)
	}
	if cred.IsFactoryDefault() || !cred.Complete() {
		m.logger.Warn("凭据为默认值或不完整，重新初始化")
		return m.initialize(ctx)
	}

	now := m.now().UnixMilli()
	if lock := EvaluateLockout(cred.Retries, cred.LastAttemptAt, now); lock.Blocked {
		return Result{
			Code:    CodeLockedOut,
			Message: fmt.Sprintf("失败次数过多，请%d秒后重试", lock.SecondsRemaining),
			Data:    lock.SecondsRemaining,
		}, nil
	}

	if !credentialsMatch(creds, cred) {
		return m.recordFailure(ctx, cred, req, now)
	}

	if cred.TwoFactorActivated && enforceSecondFactor {
		if _, err := m.store.Write(ctx, model.Patch{IsTwoFactorChecking: model.Bool(true)}); err != nil {
			return Result{}, storageError("auth.login", err)
		}
		return Result{Code: CodeSecondFactorRequired, Message: "请输入两步验证token"}, nil
	}

	return m.recordSuccess(ctx, cred, req, now)
}

func (m *Manager) recordFailure(ctx context.Context, cred model.AdminCredential, req RequestContext, now int64) (Result, error) {
	_, err := m.store.Write(ctx, model.Patch{
		Retries:       model.Int(cred.Retries + 1),
		LastAttemptAt: model.Int64(now),
		LastIP:        model.String(req.IP),
		LastAddress:   model.String(req.Address),
		Platform:      model.String(req.Platform),
	})
	if err != nil {
		return Result{}, storageError("auth.login", err)
	}
	if err := m.recordAttempt(ctx, req, now, model.LoginFail); err != nil {
		return Result{}, err
	}
	m.logger.Warn("登录失败 ip=%s platform=%s retries=%d", req.IP, req.Platform, cred.Retries+1)
	return Result{Code: CodeRejected, Message: "错误的用户名密码，请重试"}, nil
}

func (m *Manager) recordSuccess(ctx context.Context, cred model.AdminCredential, req RequestContext, now int64) (Result, error) {
	issued, err := m.issuer.Issue(req.Platform, cred.TwoFactorActivated)
	if err != nil {
		return Result{}, errors.Wrap(errors.KindAuth, "auth.login", "failed to issue token", err)
	}

	_, err = m.store.Write(ctx, model.Patch{
		Token:               model.String(issued.Token),
		Tokens:              map[string]string{req.Platform: issued.Token},
		LastAttemptAt:       model.Int64(now),
		Retries:             model.Int(0),
		LastIP:              model.String(req.IP),
		LastAddress:         model.String(req.Address),
		Platform:            model.String(req.Platform),
		IsTwoFactorChecking: model.Bool(false),
	})
	if err != nil {
		return Result{}, storageError("auth.login", err)
	}
	if err := m.recordAttempt(ctx, req, now, model.LoginSuccess); err != nil {
		return Result{}, err
	}
	m.logger.Info("登录成功 ip=%s platform=%s 有效期%d天", req.IP, req.Platform, issued.ExpiresInDays)

	return Result{
		Code: CodeOK,
		Data: LoginData{
			Token:     issued.Token,
			LastIP:    cred.LastIP,
			LastAddr:  cred.LastAddress,
			LastLogon: cred.LastAttemptAt,
			Retries:   cred.Retries,
			Platform:  cred.Platform,
		},
	}, nil
}

func (m *Manager) recordAttempt(ctx context.Context, req RequestContext, now int64, status model.LoginStatus) error {
	err := m.audit.Append(ctx, model.LoginLogEntry{
		Timestamp: now,
		IP:        req.IP,
		Address:   req.Address,
		Platform:  req.Platform,
		Status:    status,
	})
	if err != nil {
		return storageError("auth.audit", err)
	}
	if m.events != nil {
		m.events.PublishAsync(eventbus.EventAuthLogin, eventbus.LoginEventData{
			Timestamp: now,
			IP:        req.IP,
			Address:   req.Address,
			Platform:  req.Platform,
			Success:   status == model.LoginSuccess,
		})
	}
	return nil
}

func (m *Manager) initialize(ctx context.Context) (Result, error) {
	password, err := utils.RandomString(generatedPasswordMin, generatedPasswordMax)
	if err != nil {
		return Result{}, errors.Wrap(errors.KindAuth, "auth.initialize", "failed to generate password", err)
	}
	if err := m.store.Init(ctx, model.AdminCredential{Username: defaultUsername, Password: password}); err != nil {
		return Result{}, storageError("auth.initialize", err)
	}
	m.logger.Warn("已生成新的管理员密码，请前往 %s 查看", m.location)
	return Result{
		Code:    CodeReinitialized,
		Message: fmt.Sprintf("已初始化密码，请前往%s查看并重新登录", m.location),
	}, nil
}

// TwoFactorLogin completes a login armed by Login. A wrong code records the
// caller but does not count as a failed attempt.
func (m *Manager) TwoFactorLogin(ctx context.Context, creds Credentials, code string, req RequestContext) (Result, error) {
	ctx, end := observability.StartSpan(ctx, "auth", "two_factor_login", slog.String("platform", req.Platform))
	m.mu.Lock()
	res, err := m.twoFactorLogin(ctx, creds, code, req)
	m.mu.Unlock()
	end(err, slog.Int("code", res.Code))
	if err == nil {
		observability.ObserveLogin(res.Code)
	}
	return res, err
}

func (m *Manager) twoFactorLogin(ctx context.Context, creds Credentials, code string, req RequestContext) (Result, error) {
	cred, err := m.store.Read(ctx)
	if stderrors.Is(err, model.ErrNotInitialized) {
		return Result{Code: CodeSecondFactorStateMismatch, Message: "未知错误"}, nil
	}
	if err != nil {
		return Result{}, storageError("auth.two_factor_login", err)
	}
	if !cred.IsTwoFactorChecking {
		return Result{Code: CodeSecondFactorStateMismatch, Message: "未知错误"}, nil
	}

	if !m.verifier.Verify(code, cred.TwoFactorSecret) {
		_, err := m.store.Write(ctx, model.Patch{
			LastIP:      model.String(req.IP),
			LastAddress: model.String(req.Address),
			Platform:    model.String(req.Platform),
		})
		if err != nil {
			return Result{}, storageError("auth.two_factor_login", err)
		}
		m.logger.Warn("两步验证失败 ip=%s platform=%s", req.IP, req.Platform)
		return Result{Code: CodeSecondFactorInvalid, Message: "验证失败"}, nil
	}

	return m.login(ctx, creds, req, false)
}

// Logout drops the token of platform. The current token is cleared only when
// it is that platform's token.
func (m *Manager) Logout(ctx context.Context, platform string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.store.Read(ctx)
	if stderrors.Is(err, model.ErrNotInitialized) {
		return nil
	}
	if err != nil {
		return storageError("auth.logout", err)
	}

	patch := model.Patch{Tokens: map[string]string{platform: ""}}
	if stored := cred.Tokens[platform]; stored != "" && cred.Token == stored {
		patch.Token = model.String("")
	}
	if _, err := m.store.Write(ctx, patch); err != nil {
		return storageError("auth.logout", err)
	}
	m.logger.Info("已退出登录 platform=%s", platform)
	return nil
}

// Authorize accepts a validly signed token that is either the stored token of
// platform or the current token.
func (m *Manager) Authorize(ctx context.Context, token, platform string) error {
	if token == "" {
		return ErrUnauthorized
	}
	if err := m.issuer.Verify(token); err != nil {
		return ErrUnauthorized
	}

	cred, err := m.store.Read(ctx)
	if stderrors.Is(err, model.ErrNotInitialized) {
		return ErrUnauthorized
	}
	if err != nil {
		return storageError("auth.authorize", err)
	}
	if constantTimeEqual(token, cred.Tokens[platform]) || constantTimeEqual(token, cred.Token) {
		return nil
	}
	return ErrUnauthorized
}

// InitTwoFactor stores a fresh pending secret. Any previous activation is
// cleared because the old secret is gone.
func (m *Manager) InitTwoFactor(ctx context.Context) (Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.store.Read(ctx)
	if err != nil {
		return Enrollment{}, storageError("auth.two_factor_init", err)
	}
	enrollment, err := m.verifier.GenerateSecret(cred.Username)
	if err != nil {
		return Enrollment{}, errors.Wrap(errors.KindAuth, "auth.two_factor_init", "failed to generate secret", err)
	}
	_, err = m.store.Write(ctx, model.Patch{
		TwoFactorSecret:    model.String(enrollment.Secret),
		TwoFactorActivated: model.Bool(false),
	})
	if err != nil {
		return Enrollment{}, storageError("auth.two_factor_init", err)
	}
	return enrollment, nil
}

// ActivateTwoFactor turns the second factor on if code matches the pending secret.
func (m *Manager) ActivateTwoFactor(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.store.Read(ctx)
	if err != nil {
		return false, storageError("auth.two_factor_activate", err)
	}
	if !m.verifier.Verify(code, cred.TwoFactorSecret) {
		return false, nil
	}
	if _, err := m.store.Write(ctx, model.Patch{TwoFactorActivated: model.Bool(true)}); err != nil {
		return false, storageError("auth.two_factor_activate", err)
	}
	m.logger.Info("两步验证已启用")
	return true, nil
}

// DeactivateTwoFactor clears the secret and activation when the policy allows it.
func (m *Manager) DeactivateTwoFactor(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.store.Read(ctx)
	if err != nil {
		return false, storageError("auth.two_factor_deactivate", err)
	}
	if !m.deactivation.AllowDeactivation(cred, code) {
		return false, nil
	}
	_, err = m.store.Write(ctx, model.Patch{
		TwoFactorActivated:  model.Bool(false),
		TwoFactorSecret:     model.String(""),
		IsTwoFactorChecking: model.Bool(false),
	})
	if err != nil {
		return false, storageError("auth.two_factor_deactivate", err)
	}
	m.logger.Info("两步验证已关闭")
	return true, nil
}

// UpdateCredentials replaces username and password. "admin" is never accepted
// as a password.
func (m *Manager) UpdateCredentials(ctx context.Context, creds Credentials) (Result, error) {
	if creds.Password == forbiddenPassword {
		return Result{Code: CodeRejected, Message: "密码不能设置为admin"}, nil
	}
	if creds.Username == "" || creds.Password == "" {
		return Result{Code: CodeRejected, Message: "用户名和密码不能为空"}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.store.Write(ctx, model.Patch{
		Username: model.String(creds.Username),
		Password: model.String(creds.Password),
	})
	if err != nil {
		return Result{}, storageError("auth.update_credentials", err)
	}
	m.logger.Info("管理员凭据已更新")
	return Result{Code: CodeOK, Message: "更新成功"}, nil
}

// UserInfo returns the admin profile.
func (m *Manager) UserInfo(ctx context.Context) (UserInfo, error) {
	cred, err := m.store.Read(ctx)
	if err != nil {
		return UserInfo{}, storageError("auth.user_info", err)
	}
	return UserInfo{
		Username:           cred.Username,
		LastIP:             cred.LastIP,
		LastAddr:           cred.LastAddress,
		LastLogon:          cred.LastAttemptAt,
		Retries:            cred.Retries,
		Platform:           cred.Platform,
		TwoFactorActivated: cred.TwoFactorActivated,
	}, nil
}

// LoginLogs returns the audit log, newest first.
func (m *Manager) LoginLogs(ctx context.Context) ([]model.LoginLogEntry, error) {
	entries, err := m.audit.List(ctx)
	if err != nil {
		return nil, storageError("auth.login_logs", err)
	}
	return entries, nil
}

func credentialsMatch(given Credentials, stored model.AdminCredential) bool {
	userOK := constantTimeEqual(given.Username, stored.Username)
	passOK := constantTimeEqual(given.Password, stored.Password)
	return userOK && passOK
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func storageError(op string, err error) error {
	return errors.Wrap(errors.KindStorage, op, "credential persistence failed", err)
}
