package service

import (
	"context"
	"sync"
	"time"

	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/apperrors"
)

// SettlementStore journals submissions so a quote is settled at most once.
type SettlementStore interface {
	// Acquire claims quoteID for a submission. It fails with DUPLICATE_SUBMISSION when the
	// quote already has a record or another submission holds the claim.
	Acquire(ctx context.Context, quoteID, taker string) error
	// Save stores the outcome of a submission and ends the claim.
	Save(ctx context.Context, rec *model.SettlementRecord) error
	// Release drops a pending claim after a transport failure so the same payload can be
	// submitted again.
	Release(ctx context.Context, quoteID string) error
	Get(ctx context.Context, quoteID string) (*model.SettlementRecord, error)
}

type memoryRecord struct {
	rec     model.SettlementRecord
	expires time.Time
}

// MemorySettlementStore keeps records in process for retention.
type MemorySettlementStore struct {
	mu        sync.Mutex
	records   map[string]*memoryRecord
	retention time.Duration
}

func NewMemorySettlementStore(retention time.Duration) *MemorySettlementStore {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &MemorySettlementStore{
		records:   make(map[string]*memoryRecord),
		retention: retention,
	}
}

func (s *MemorySettlementStore) Acquire(_ context.Context, quoteID, taker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if r, ok := s.records[quoteID]; ok && now.Before(r.expires) {
		return DuplicateSubmission(&r.rec)
	}
	s.records[quoteID] = &memoryRecord{
		rec: model.SettlementRecord{
			QuoteID:     quoteID,
			Taker:       taker,
			State:       model.SettlementPending,
			SubmittedAt: now,
		},
		expires: now.Add(s.retention),
	}
	return nil
}

func (s *MemorySettlementStore) Save(_ context.Context, rec *model.SettlementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.QuoteID] = &memoryRecord{rec: *rec, expires: time.Now().Add(s.retention)}
	return nil
}

func (s *MemorySettlementStore) Release(_ context.Context, quoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[quoteID]; ok && r.rec.State == model.SettlementPending {
		delete(s.records, quoteID)
	}
	return nil
}

func (s *MemorySettlementStore) Get(_ context.Context, quoteID string) (*model.SettlementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[quoteID]
	if !ok || !time.Now().Before(r.expires) {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "no settlement for quote %s", quoteID)
	}
	rec := r.rec
	return &rec, nil
}

// Cleanup drops records past retention and returns how many were removed.
func (s *MemorySettlementStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	n := 0
	for id, r := range s.records {
		if !now.Before(r.expires) {
			delete(s.records, id)
			n++
		}
	}
	return n
}

// DuplicateSubmission is the error a store returns when rec already claims its quote.
func DuplicateSubmission(rec *model.SettlementRecord) error {
	if rec.State == model.SettlementPending {
		return apperrors.Newf(apperrors.ErrDuplicateSubmission, "quote %s is already being submitted", rec.QuoteID)
	}
	return apperrors.Newf(apperrors.ErrDuplicateSubmission, "quote %s was already submitted (%s)", rec.QuoteID, rec.State)
}
