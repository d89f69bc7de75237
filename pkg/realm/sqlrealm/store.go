// Package sqlrealm stores principals in SQLite or PostgreSQL through GORM
// and serves them as a password realm.
package sqlrealm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/saslgate/internal/logger"
	"github.com/marmos91/saslgate/pkg/realm"
)

// Store is a SQL-backed realm.
type Store struct {
	db     *gorm.DB
	config *Config
}

var (
	_ realm.Realm      = (*Store)(nil)
	_ realm.Authorizer = (*Store)(nil)
)

// Open connects to the configured database and migrates the schema.
func Open(config *Config) (*Store, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch config.Type {
	case DatabaseTypeSQLite:
		if config.SQLite.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(config.SQLite.Path), 0o700); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		// WAL allows concurrent readers; busy_timeout waits on a locked database.
		dialector = sqlite.Open(config.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	case DatabaseTypePostgres:
		dialector = postgres.Open(config.Postgres.DSN())
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if config.Type == DatabaseTypePostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying database: %w", err)
		}
		sqlDB.SetMaxOpenConns(config.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	}

	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}

	logger.Info("sql realm opened", logger.KeyTarget, config.target())
	return &Store{db: db, config: config}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Name() string { return "sql" }

// CreatePrincipal stores a new enabled principal with a bcrypt hash of
// password.
func (s *Store) CreatePrincipal(ctx context.Context, name string, password []byte) (*Principal, error) {
	hash, err := realm.HashPassword(password)
	if err != nil {
		return nil, err
	}
	p := &Principal{ID: uuid.NewString(), Name: name, PasswordHash: hash, Enabled: true}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePrincipal, name)
		}
		return nil, err
	}
	return p, nil
}

// GetPrincipal returns the principal with its delegations.
func (s *Store) GetPrincipal(ctx context.Context, name string) (*Principal, error) {
	var p Principal
	err := s.db.WithContext(ctx).Preload("Delegations").Where("name = ?", name).First(&p).Error
	if err != nil {
		return nil, convertNotFoundError(err, ErrPrincipalNotFound)
	}
	return &p, nil
}

// ListPrincipals returns all principals ordered by name.
func (s *Store) ListPrincipals(ctx context.Context) ([]*Principal, error) {
	var out []*Principal
	if err := s.db.WithContext(ctx).Preload("Delegations").Order("name").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// SetPassword replaces the stored hash.
func (s *Store) SetPassword(ctx context.Context, name string, password []byte) error {
	hash, err := realm.HashPassword(password)
	if err != nil {
		return err
	}
	return s.updateField(ctx, name, "password_hash", hash)
}

// SetEnabled enables or disables a principal. Disabled principals are
// unknown to the realm.
func (s *Store) SetEnabled(ctx context.Context, name string, enabled bool) error {
	return s.updateField(ctx, name, "enabled", enabled)
}

func (s *Store) updateField(ctx context.Context, name, column string, value any) error {
	res := s.db.WithContext(ctx).Model(&Principal{}).Where("name = ?", name).Update(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

// Grant lets name act as actAs.
func (s *Store) Grant(ctx context.Context, name, actAs string) error {
	p, err := s.GetPrincipal(ctx, name)
	if err != nil {
		return err
	}
	if slices.ContainsFunc(p.Delegations, func(d Delegation) bool { return d.ActAs == actAs }) {
		return nil
	}
	return s.db.WithContext(ctx).Create(&Delegation{PrincipalID: p.ID, ActAs: actAs}).Error
}

// DeletePrincipal removes a principal and its delegations.
func (s *Store) DeletePrincipal(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p Principal
		if err := tx.Where("name = ?", name).First(&p).Error; err != nil {
			return convertNotFoundError(err, ErrPrincipalNotFound)
		}
		if err := tx.Where("principal_id = ?", p.ID).Delete(&Delegation{}).Error; err != nil {
			return err
		}
		return tx.Delete(&p).Error
	})
}

// VerifyPassword checks password and records the login time on success.
func (s *Store) VerifyPassword(ctx context.Context, principal string, password []byte) (bool, error) {
	var p Principal
	err := s.db.WithContext(ctx).Where("name = ?", principal).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !p.Enabled) {
		return false, fmt.Errorf("%w: %s", realm.ErrNotFound, principal)
	}
	if err != nil {
		return false, fmt.Errorf("sql realm lookup: %w", err)
	}
	if !realm.VerifyPassword(password, []byte(p.PasswordHash)) {
		return false, nil
	}
	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&p).Update("last_login", &now).Error; err != nil {
		logger.WarnCtx(ctx, "failed to record login", logger.Principal(principal), logger.Err(err))
	}
	return true, nil
}

func (s *Store) Authorize(ctx context.Context, authn, authz string) (bool, error) {
	p, err := s.GetPrincipal(ctx, authn)
	if errors.Is(err, ErrPrincipalNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !p.Enabled {
		return false, nil
	}
	return slices.ContainsFunc(p.Delegations, func(d Delegation) bool {
		return d.ActAs == authz || d.ActAs == "*"
	}), nil
}

// isUniqueConstraintError checks if the error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "duplicate key value violates unique constraint")
}

// convertNotFoundError converts gorm.ErrRecordNotFound to the appropriate domain error.
func convertNotFoundError(err error, notFoundErr error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundErr
	}
	return err
}
