package storage

import (
	"context"
	stderrors "errors"

	"github.com/bytedance/sonic"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"panel-server-go/internal/domain/auth/model"
	"panel-server-go/internal/platform/errors"
)

// LoginLogRepository stores login audit entries as loginLog rows of the auths table.
type LoginLogRepository struct {
	db *gorm.DB
}

// NewLoginLogRepository 创建登录日志仓库实例
func NewLoginLogRepository(db *gorm.DB) *LoginLogRepository {
	return &LoginLogRepository{db: db}
}

// Insert 写入一条登录日志
func (r *LoginLogRepository) Insert(ctx context.Context, entry model.LoginLogEntry) (model.LoginLogEntry, error) {
	info, err := sonic.Marshal(loginLogInfo{
		Timestamp: entry.Timestamp,
		IP:        entry.IP,
		Address:   entry.Address,
		Platform:  entry.Platform,
		Status:    entry.Status,
	})
	if err != nil {
		return model.LoginLogEntry{}, errors.Wrap(errors.KindStorage, "login_log.insert", "failed to encode login log", err)
	}
	record := &AuthRecord{Type: AuthTypeLoginLog, Info: info}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return model.LoginLogEntry{}, errors.Wrap(errors.KindStorage, "login_log.insert", "failed to insert login log", err)
	}
	entry.ID = record.ID
	return entry, nil
}

// Count 返回登录日志条数
func (r *LoginLogRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&AuthRecord{}).Where("type = ?", AuthTypeLoginLog).Count(&total).Error; err != nil {
		return 0, errors.Wrap(errors.KindStorage, "login_log.count", "failed to count login logs", err)
	}
	return total, nil
}

// DeleteOldest removes the n entries with the smallest timestamp, ties broken by id.
func (r *LoginLogRepository) DeleteOldest(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&AuthRecord{}).
		Where("type = ?", AuthTypeLoginLog).
		Order("json_extract(info, '$.timestamp') ASC, id ASC").
		Limit(n).
		Pluck("id", &ids).Error
	if err != nil {
		return errors.Wrap(errors.KindStorage, "login_log.delete_oldest", "failed to find oldest login logs", err)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&AuthRecord{}).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "login_log.delete_oldest", "failed to delete oldest login logs", err)
	}
	return nil
}

// List 按时间倒序返回登录日志
func (r *LoginLogRepository) List(ctx context.Context) ([]model.LoginLogEntry, error) {
	var records []AuthRecord
	err := r.db.WithContext(ctx).
		Where("type = ?", AuthTypeLoginLog).
		Order("json_extract(info, '$.timestamp') DESC, id DESC").
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "login_log.list", "failed to list login logs", err)
	}

	entries := make([]model.LoginLogEntry, 0, len(records))
	for _, rec := range records {
		var info loginLogInfo
		if err := sonic.Unmarshal(rec.Info, &info); err != nil {
			return nil, errors.Wrap(errors.KindStorage, "login_log.list", "failed to decode login log", err)
		}
		entries = append(entries, model.LoginLogEntry{
			ID:        rec.ID,
			Timestamp: info.Timestamp,
			IP:        info.IP,
			Address:   info.Address,
			Platform:  info.Platform,
			Status:    info.Status,
		})
	}
	return entries, nil
}

type loginLogInfo struct {
	Timestamp int64             `json:"timestamp"`
	IP        string            `json:"ip"`
	Address   string            `json:"address"`
	Platform  string            `json:"platform"`
	Status    model.LoginStatus `json:"status"`
}

// SettingsRepository stores single-row settings keyed by their auths.type.
type SettingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository 创建设置仓库实例
func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Load decodes the setting of kind into out. It reports false when no row exists.
func (r *SettingsRepository) Load(ctx context.Context, kind string, out any) (bool, error) {
	var record AuthRecord
	err := r.db.WithContext(ctx).Where("type = ?", kind).Order("id ASC").First(&record).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(errors.KindStorage, "settings.load", "failed to load "+kind, err)
	}
	if err := sonic.Unmarshal(record.Info, out); err != nil {
		return false, errors.Wrap(errors.KindStorage, "settings.load", "failed to decode "+kind, err)
	}
	return true, nil
}

// Save replaces the setting of kind and returns the row id.
func (r *SettingsRepository) Save(ctx context.Context, kind string, value any) (uint, error) {
	info, err := sonic.Marshal(value)
	if err != nil {
		return 0, errors.Wrap(errors.KindStorage, "settings.save", "failed to encode "+kind, err)
	}

	var id uint
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record AuthRecord
		err := tx.Where("type = ?", kind).Order("id ASC").First(&record).Error
		switch {
		case stderrors.Is(err, gorm.ErrRecordNotFound):
			record = AuthRecord{Type: kind, Info: info}
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := tx.Model(&record).Update("info", datatypes.JSON(info)).Error; err != nil {
				return err
			}
		}
		id = record.ID
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(errors.KindStorage, "settings.save", "failed to save "+kind, err)
	}
	return id, nil
}
