package open

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"panel-server-go/internal/domain/open/model"
	"panel-server-go/internal/platform/errors"
	"panel-server-go/internal/platform/observability"
	"panel-server-go/internal/utils"
)

const (
	clientIDLength     = 12
	clientSecretLength = 24
	// TokenLifetime is how long an issued bearer token is valid.
	TokenLifetime = 30 * 24 * time.Hour
	// TokenType is reported alongside every grant.
	TokenType = "Bearer"
)

// Repository persists open clients.
type Repository interface {
	Create(ctx context.Context, client *model.Client) error
	Update(ctx context.Context, client model.Client) (model.Client, error)
	Delete(ctx context.Context, ids []uint) error
	Get(ctx context.Context, id uint) (model.Client, error)
	FindByToken(ctx context.Context, token string) (model.Client, error)
	List(ctx context.Context, search string) ([]model.Client, error)
	// AppendToken appends token to the client matching the credentials or
	// returns model.ErrInvalidClient without touching anything.
	AppendToken(ctx context.Context, clientID, clientSecret string, token model.Token) error
}

// Logger provides the minimal logging contract required by the registry.
type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
}

// Grant is the result of a successful token request.
type Grant struct {
	Token      string `json:"token"`
	TokenType  string `json:"token_type"`
	Expiration int64  `json:"expiration"`
}

// Options configures a Registry.
type Options struct {
	Repository Repository
	Logger     Logger
	// EnforceExpiry makes ValidateToken reject tokens past their expiration.
	EnforceExpiry bool
	Clock         func() time.Time
}

// Registry manages open clients and the bearer tokens they obtain.
type Registry struct {
	repo          Repository
	logger        Logger
	enforceExpiry bool
	now           func() time.Time
}

// NewRegistry builds a Registry from opts.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.Repository == nil {
		return nil, stderrors.New("open registry requires a repository")
	}
	if opts.Logger == nil {
		return nil, stderrors.New("open registry requires a logger")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Registry{
		repo:          opts.Repository,
		logger:        opts.Logger,
		enforceExpiry: opts.EnforceExpiry,
		now:           opts.Clock,
	}, nil
}

// Register creates a client with freshly generated credentials.
func (r *Registry) Register(ctx context.Context, d model.Descriptor) (model.Client, error) {
	if strings.TrimSpace(d.Name) == "" {
		return model.Client{}, errors.New(errors.KindDomain, "open.register", "应用名称不能为空")
	}
	clientID, err := utils.RandomString(clientIDLength, clientIDLength)
	if err != nil {
		return model.Client{}, errors.Wrap(errors.KindDomain, "open.register", "failed to generate client id", err)
	}
	secret, err := utils.RandomString(clientSecretLength, clientSecretLength)
	if err != nil {
		return model.Client{}, errors.Wrap(errors.KindDomain, "open.register", "failed to generate client secret", err)
	}

	client := model.Client{
		Name:         d.Name,
		Scopes:       d.Scopes,
		Command:      d.Command,
		Schedule:     d.Schedule,
		ClientID:     clientID,
		ClientSecret: secret,
	}
	if err := r.repo.Create(ctx, &client); err != nil {
		return model.Client{}, err
	}
	r.logger.Info("已创建开放应用 id=%d name=%s", client.ID, client.Name)
	return client.Redacted(), nil
}

// Update replaces the editable fields of client id. Credentials and tokens
// are never taken from the caller.
func (r *Registry) Update(ctx context.Context, id uint, d model.Descriptor) (model.Client, error) {
	current, err := r.repo.Get(ctx, id)
	if err != nil {
		return model.Client{}, err
	}
	current.Name = d.Name
	current.Scopes = d.Scopes
	current.Command = d.Command
	current.Schedule = d.Schedule

	updated, err := r.repo.Update(ctx, current)
	if err != nil {
		return model.Client{}, err
	}
	return updated.Redacted(), nil
}

// Remove deletes the clients with the given ids. Unknown ids are ignored.
func (r *Registry) Remove(ctx context.Context, ids []uint) error {
	if err := r.repo.Delete(ctx, ids); err != nil {
		return err
	}
	r.logger.Info("已删除开放应用 ids=%v", ids)
	return nil
}

// Get returns client id including its issued tokens.
func (r *Registry) Get(ctx context.Context, id uint) (model.Client, error) {
	return r.repo.Get(ctx, id)
}

// List returns all clients matching search, without their tokens.
func (r *Registry) List(ctx context.Context, search string) ([]model.Client, error) {
	clients, err := r.repo.List(ctx, search)
	if err != nil {
		return nil, err
	}
	for i := range clients {
		clients[i] = clients[i].Redacted()
	}
	return clients, nil
}

// ResetSecret issues a new secret for client id and revokes every token.
func (r *Registry) ResetSecret(ctx context.Context, id uint) (model.Client, error) {
	current, err := r.repo.Get(ctx, id)
	if err != nil {
		return model.Client{}, err
	}
	secret, err := utils.RandomString(clientSecretLength, clientSecretLength)
	if err != nil {
		return model.Client{}, errors.Wrap(errors.KindDomain, "open.reset_secret", "failed to generate client secret", err)
	}
	current.ClientSecret = secret
	current.Tokens = []model.Token{}

	updated, err := r.repo.Update(ctx, current)
	if err != nil {
		return model.Client{}, err
	}
	r.logger.Info("已重置开放应用密钥 id=%d", id)
	return updated, nil
}

// IssueToken grants a new bearer token to the client holding the credentials.
// Earlier tokens stay valid.
func (r *Registry) IssueToken(ctx context.Context, clientID, clientSecret string) (Grant, error) {
	ctx, end := observability.StartSpan(ctx, "open", "issue_token", slog.String("client_id", clientID))
	grant, err := r.issueToken(ctx, clientID, clientSecret)
	end(err, slog.Bool("granted", err == nil))
	observability.ObserveOpenToken(err == nil)
	return grant, err
}

func (r *Registry) issueToken(ctx context.Context, clientID, clientSecret string) (Grant, error) {
	if clientID == "" || clientSecret == "" {
		return Grant{}, model.ErrInvalidClient
	}
	token := model.Token{
		Value:      uuid.NewString(),
		Expiration: r.now().Add(TokenLifetime).Unix(),
	}
	if err := r.repo.AppendToken(ctx, clientID, clientSecret, token); err != nil {
		if stderrors.Is(err, model.ErrInvalidClient) {
			r.logger.Warn("开放接口凭据校验失败 client_id=%s", clientID)
		}
		return Grant{}, err
	}
	return Grant{Token: token.Value, TokenType: TokenType, Expiration: token.Expiration}, nil
}

// ValidateToken returns the client that was issued token. Expiration is only
// checked when the registry enforces it.
func (r *Registry) ValidateToken(ctx context.Context, token string) (model.Client, error) {
	if token == "" {
		return model.Client{}, model.ErrNotFound
	}
	client, err := r.repo.FindByToken(ctx, token)
	if err != nil {
		return model.Client{}, err
	}
	if r.enforceExpiry {
		issued, ok := client.HasToken(token)
		if !ok || issued.Expiration <= r.now().Unix() {
			return model.Client{}, model.ErrNotFound
		}
	}
	return client, nil
}
