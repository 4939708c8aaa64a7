package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/apperrors"
	"github.com/cleancoindev/zaidan-dealer-client/internal/service"
)

// PostgresSettlementStore keeps the settlement journal in the settlement_records table.
// The quote id primary key enforces one record per quote.
type PostgresSettlementStore struct {
	db        *gorm.DB
	retention time.Duration
}

var _ service.SettlementStore = (*PostgresSettlementStore)(nil)

func NewPostgresSettlementStore(ctx context.Context, db *gorm.DB, retention time.Duration) (*PostgresSettlementStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&model.SettlementRecord{}); err != nil {
		return nil, err
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &PostgresSettlementStore{db: db, retention: retention}, nil
}

func (s *PostgresSettlementStore) Acquire(ctx context.Context, quoteID, taker string) error {
	rec := model.SettlementRecord{
		QuoteID:     quoteID,
		Taker:       taker,
		State:       model.SettlementPending,
		SubmittedAt: time.Now().UTC(),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return apperrors.New(apperrors.ErrInternal, "settlement journal unavailable", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	existing, err := s.Get(ctx, quoteID)
	if err != nil {
		existing = &model.SettlementRecord{QuoteID: quoteID, State: model.SettlementPending}
	}
	return service.DuplicateSubmission(existing)
}

func (s *PostgresSettlementStore) Save(ctx context.Context, rec *model.SettlementRecord) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "quote_id"}},
		UpdateAll: true,
	}).Create(rec).Error
	if err != nil {
		return apperrors.New(apperrors.ErrInternal, "settlement journal unavailable", err)
	}
	return nil
}

func (s *PostgresSettlementStore) Release(ctx context.Context, quoteID string) error {
	err := s.db.WithContext(ctx).
		Where("quote_id = ? AND state = ?", quoteID, model.SettlementPending).
		Delete(&model.SettlementRecord{}).Error
	if err != nil {
		return apperrors.New(apperrors.ErrInternal, "settlement journal unavailable", err)
	}
	return nil
}

func (s *PostgresSettlementStore) Get(ctx context.Context, quoteID string) (*model.SettlementRecord, error) {
	var rec model.SettlementRecord
	err := s.db.WithContext(ctx).First(&rec, "quote_id = ?", quoteID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "no settlement for quote %s", quoteID)
	}
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "settlement journal unavailable", err)
	}
	return &rec, nil
}

// Cleanup deletes records older than retention.
func (s *PostgresSettlementStore) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.retention)
	res := s.db.WithContext(ctx).Where("submitted_at < ?", cutoff).Delete(&model.SettlementRecord{})
	return res.RowsAffected, res.Error
}
