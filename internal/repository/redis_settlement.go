package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/apperrors"
	"github.com/cleancoindev/zaidan-dealer-client/internal/service"
)

const defaultKeyPrefix = "zaidan:settlement:"

// releasePending deletes the key only while the record is still a pending claim.
var releasePending = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if v and string.find(v, ARGV[1], 1, true) then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisSettlementStore journals settlements as JSON values that expire after retention.
// Claims use SET NX so concurrent gateways sharing the server never submit a quote twice.
type RedisSettlementStore struct {
	client    redis.Cmdable
	prefix    string
	retention time.Duration
}

var _ service.SettlementStore = (*RedisSettlementStore)(nil)

func NewRedisSettlementStore(client redis.Cmdable, prefix string, retention time.Duration) *RedisSettlementStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &RedisSettlementStore{client: client, prefix: prefix, retention: retention}
}

func (s *RedisSettlementStore) key(quoteID string) string {
	return s.prefix + quoteID
}

func (s *RedisSettlementStore) Acquire(ctx context.Context, quoteID, taker string) error {
	payload, err := encodeRecord(&model.SettlementRecord{
		QuoteID:     quoteID,
		Taker:       taker,
		State:       model.SettlementPending,
		SubmittedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.key(quoteID), payload, s.retention).Result()
	if err != nil {
		return apperrors.New(apperrors.ErrInternal, "settlement journal unavailable", err)
	}
	if ok {
		return nil
	}
	existing, err := s.Get(ctx, quoteID)
	if err != nil {
		// expired or released between SETNX and GET
		existing = &model.SettlementRecord{QuoteID: quoteID, State: model.SettlementPending}
	}
	return service.DuplicateSubmission(existing)
}

func (s *RedisSettlementStore) Save(ctx context.Context, rec *model.SettlementRecord) error {
	payload, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(rec.QuoteID), payload, s.retention).Err(); err != nil {
		return apperrors.New(apperrors.ErrInternal, "settlement journal unavailable", err)
	}
	return nil
}

func (s *RedisSettlementStore) Release(ctx context.Context, quoteID string) error {
	marker := `"state":"` + string(model.SettlementPending) + `"`
	if err := releasePending.Run(ctx, s.client, []string{s.key(quoteID)}, marker).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return apperrors.New(apperrors.ErrInternal, "settlement journal unavailable", err)
	}
	return nil
}

func (s *RedisSettlementStore) Get(ctx context.Context, quoteID string) (*model.SettlementRecord, error) {
	raw, err := s.client.Get(ctx, s.key(quoteID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "no settlement for quote %s", quoteID)
	}
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "settlement journal unavailable", err)
	}
	return decodeRecord(raw)
}

func encodeRecord(rec *model.SettlementRecord) ([]byte, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "failed to encode settlement record", err)
	}
	return payload, nil
}

func decodeRecord(raw []byte) (*model.SettlementRecord, error) {
	var rec model.SettlementRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "corrupt settlement record", err)
	}
	return &rec, nil
}
