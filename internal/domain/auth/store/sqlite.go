package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"panel-server-go/internal/domain/auth/model"
	"panel-server-go/internal/platform/storage"
)

const credentialRowID = 1

type sqliteStore struct {
	db *gorm.DB
}

// NewSQLite builds a store keeping the credential document in the admin_credentials table.
func NewSQLite(db *gorm.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Read(ctx context.Context) (model.AdminCredential, error) {
	return s.fetch(s.db.WithContext(ctx))
}

func (s *sqliteStore) fetch(tx *gorm.DB) (model.AdminCredential, error) {
	var row storage.AdminCredentialRow
	err := tx.First(&row, credentialRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.AdminCredential{}, model.ErrNotInitialized
	}
	if err != nil {
		return model.AdminCredential{}, err
	}
	return model.UnmarshalDocument(row.Document)
}

func (s *sqliteStore) Write(ctx context.Context, patch model.Patch) (model.AdminCredential, error) {
	var next model.AdminCredential
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.fetch(tx)
		if err != nil && !errors.Is(err, model.ErrNotInitialized) {
			return err
		}
		next = patch.Apply(current)
		return s.save(tx, next)
	})
	if err != nil {
		return model.AdminCredential{}, err
	}
	return next, nil
}

func (s *sqliteStore) Init(ctx context.Context, cred model.AdminCredential) error {
	return s.save(s.db.WithContext(ctx), cred)
}

func (s *sqliteStore) save(tx *gorm.DB, cred model.AdminCredential) error {
	doc, err := model.MarshalDocument(cred)
	if err != nil {
		return err
	}
	return tx.Save(&storage.AdminCredentialRow{ID: credentialRowID, Document: doc}).Error
}

func (s *sqliteStore) Location() string { return "admin_credentials" }

func (s *sqliteStore) Close(context.Context) error {
	return nil
}
