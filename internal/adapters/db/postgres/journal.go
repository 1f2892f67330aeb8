// Package postgres keeps the send journal in PostgreSQL through GORM.
package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"sim-sms-bridge/internal/domain"
	"sim-sms-bridge/internal/ports"
)

// Journal implements ports.SendJournal.
type Journal struct {
	db *gorm.DB
}

// Open connects to PostgreSQL and returns a Journal.
func Open(dsn string) (*Journal, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Journal{db: db}, nil
}

// NewJournal wraps an existing connection.
func NewJournal(db *gorm.DB) *Journal {
	return &Journal{db: db}
}

// Migrate creates or updates the journal table.
func (j *Journal) Migrate(ctx context.Context) error {
	return j.db.WithContext(ctx).AutoMigrate(&SendModel{})
}

func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (j *Journal) Begin(ctx context.Context, r domain.SendRecord) error {
	if err := j.db.WithContext(ctx).Create(fromDomain(r)).Error; err != nil {
		return fmt.Errorf("insert send %s: %w", r.Token, err)
	}
	return nil
}

// Settle records the outcome. Only pending rows are updated, so a late
// duplicate cannot overwrite the first outcome.
func (j *Journal) Settle(ctx context.Context, o domain.SendOutcome) error {
	res := j.db.WithContext(ctx).
		Model(&SendModel{}).
		Where("token = ? AND status = ?", o.Token, string(domain.StatusPending)).
		Updates(settleUpdates(o))
	if res.Error != nil {
		return fmt.Errorf("settle send %s: %w", o.Token, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]domain.SendRecord, error) {
	var models []SendModel
	err := j.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("query recent sends: %w", err)
	}
	return toDomainMany(models), nil
}

var _ ports.SendJournal = (*Journal)(nil)
