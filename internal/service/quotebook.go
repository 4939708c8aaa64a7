package service

import (
	"sync"
	"time"

	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/apperrors"
)

// QuoteBook holds received quotes until they expire so a later request can trade one
// by id.
type QuoteBook struct {
	mu     sync.RWMutex
	quotes map[string]*model.Quote
}

func NewQuoteBook() *QuoteBook {
	return &QuoteBook{quotes: make(map[string]*model.Quote)}
}

func (b *QuoteBook) Put(q *model.Quote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[q.ID] = q
}

// Get returns a live quote. An expired quote is evicted and reported as QUOTE_EXPIRED.
func (b *QuoteBook) Get(id string) (*model.Quote, error) {
	b.mu.RLock()
	q, ok := b.quotes[id]
	b.mu.RUnlock()
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "unknown quote %s", id)
	}
	if q.Expired(time.Now()) {
		b.Remove(id)
		return nil, apperrors.Newf(apperrors.ErrQuoteExpired, "quote %s expired at %s", id, q.Expiration.Format(time.RFC3339))
	}
	return q, nil
}

func (b *QuoteBook) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.quotes, id)
}

// Sweep evicts quotes expired at now.
func (b *QuoteBook) Sweep(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for id, q := range b.quotes {
		if q.Expired(now) {
			delete(b.quotes, id)
			n++
		}
	}
	return n
}

func (b *QuoteBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.quotes)
}
