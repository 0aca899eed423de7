package storage

import (
	"context"
	stderrors "errors"
	"net/url"

	"github.com/bytedance/sonic"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"panel-server-go/internal/domain/open/model"
	"panel-server-go/internal/platform/errors"
)

// AppRepository persists open clients in the apps table.
type AppRepository struct {
	db *gorm.DB
}

// NewAppRepository 创建开放应用仓库实例
func NewAppRepository(db *gorm.DB) *AppRepository {
	return &AppRepository{db: db}
}

// Create 新建应用并回填 ID 与时间戳
func (r *AppRepository) Create(ctx context.Context, client *model.Client) error {
	row, err := r.toModel(*client)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "app.create", "failed to create app", err)
	}
	*client, err = r.fromModel(row)
	return err
}

// Update 覆盖保存应用的全部字段
func (r *AppRepository) Update(ctx context.Context, client model.Client) (model.Client, error) {
	row, err := r.toModel(client)
	if err != nil {
		return model.Client{}, err
	}
	res := r.db.WithContext(ctx).Model(&App{ID: row.ID}).Select("*").Omit("id", "created_at").Updates(row)
	if res.Error != nil {
		return model.Client{}, errors.Wrap(errors.KindStorage, "app.update", "failed to update app", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.Client{}, model.ErrNotFound
	}
	return r.Get(ctx, client.ID)
}

// Delete 按 ID 批量删除
func (r *AppRepository) Delete(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&App{}).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "app.delete", "failed to delete apps", err)
	}
	return nil
}

// Get 根据 ID 获取应用
func (r *AppRepository) Get(ctx context.Context, id uint) (model.Client, error) {
	var row App
	if err := r.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return model.Client{}, r.notFound(err, "app.get")
	}
	return r.fromModel(&row)
}

// FindByCredentials 根据 client_id 与 client_secret 精确匹配
func (r *AppRepository) FindByCredentials(ctx context.Context, clientID, clientSecret string) (model.Client, error) {
	var row App
	err := r.db.WithContext(ctx).
		Where("client_id = ? AND client_secret = ?", clientID, clientSecret).
		First(&row).Error
	if err != nil {
		return model.Client{}, r.notFound(err, "app.find_by_credentials")
	}
	return r.fromModel(&row)
}

// FindByToken returns the client whose tokens array holds an entry with value token.
func (r *AppRepository) FindByToken(ctx context.Context, token string) (model.Client, error) {
	var row App
	err := r.db.WithContext(ctx).
		Where("EXISTS (SELECT 1 FROM json_each(apps.tokens) WHERE json_extract(json_each.value, '$.value') = ?)", token).
		First(&row).Error
	if err != nil {
		return model.Client{}, r.notFound(err, "app.find_by_token")
	}
	return r.fromModel(&row)
}

// List 返回全部应用，search 非空时按 name/command/schedule 模糊匹配
func (r *AppRepository) List(ctx context.Context, search string) ([]model.Client, error) {
	query := r.db.WithContext(ctx).Order("id ASC")
	if search != "" {
		plain := "%" + search + "%"
		encoded := "%" + url.QueryEscape(search) + "%"
		query = query.Where(
			"name LIKE ? OR name LIKE ? OR command LIKE ? OR command LIKE ? OR schedule LIKE ? OR schedule LIKE ?",
			plain, encoded, plain, encoded, plain, encoded,
		)
	}

	var rows []App
	if err := query.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "app.list", "failed to list apps", err)
	}
	clients := make([]model.Client, 0, len(rows))
	for i := range rows {
		c, err := r.fromModel(&rows[i])
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, nil
}

// AppendToken adds token to the client matching the credentials inside one
// transaction. Without row locks two concurrent appends can still both read
// the same list, so the later commit wins.
func (r *AppRepository) AppendToken(ctx context.Context, clientID, clientSecret string, token model.Token) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row App
		err := tx.Where("client_id = ? AND client_secret = ?", clientID, clientSecret).First(&row).Error
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return model.ErrInvalidClient
		}
		if err != nil {
			return errors.Wrap(errors.KindStorage, "app.append_token", "failed to load app", err)
		}

		var tokens []model.Token
		if len(row.Tokens) > 0 {
			if err := sonic.Unmarshal(row.Tokens, &tokens); err != nil {
				return errors.Wrap(errors.KindStorage, "app.append_token", "failed to decode tokens", err)
			}
		}
		tokens = append(tokens, token)
		encoded, err := sonic.Marshal(tokens)
		if err != nil {
			return errors.Wrap(errors.KindStorage, "app.append_token", "failed to encode tokens", err)
		}
		if err := tx.Model(&row).Update("tokens", datatypes.JSON(encoded)).Error; err != nil {
			return errors.Wrap(errors.KindStorage, "app.append_token", "failed to save tokens", err)
		}
		return nil
	})
}

func (r *AppRepository) notFound(err error, op string) error {
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return model.ErrNotFound
	}
	return errors.Wrap(errors.KindStorage, op, "failed to query app", err)
}

func (r *AppRepository) toModel(c model.Client) (*App, error) {
	scopes := c.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	tokens := c.Tokens
	if tokens == nil {
		tokens = []model.Token{}
	}
	scopesJSON, err := sonic.Marshal(scopes)
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "app.encode", "failed to encode scopes", err)
	}
	tokensJSON, err := sonic.Marshal(tokens)
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "app.encode", "failed to encode tokens", err)
	}
	return &App{
		ID:           c.ID,
		Name:         c.Name,
		Scopes:       scopesJSON,
		Command:      c.Command,
		Schedule:     c.Schedule,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Tokens:       tokensJSON,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}, nil
}

func (r *AppRepository) fromModel(row *App) (model.Client, error) {
	c := model.Client{
		ID:           row.ID,
		Name:         row.Name,
		Command:      row.Command,
		Schedule:     row.Schedule,
		ClientID:     row.ClientID,
		ClientSecret: row.ClientSecret,
		Scopes:       []string{},
		Tokens:       []model.Token{},
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if len(row.Scopes) > 0 {
		if err := sonic.Unmarshal(row.Scopes, &c.Scopes); err != nil {
			return model.Client{}, errors.Wrap(errors.KindStorage, "app.decode", "failed to decode scopes", err)
		}
	}
	if len(row.Tokens) > 0 {
		if err := sonic.Unmarshal(row.Tokens, &c.Tokens); err != nil {
			return model.Client{}, errors.Wrap(errors.KindStorage, "app.decode", "failed to decode tokens", err)
		}
	}
	return c, nil
}
