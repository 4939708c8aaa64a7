package manager

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/logger"
)

// NonceSource is the node call used to (re)sync nonces.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NonceManager hands out transaction nonces for locally signed transactions
// (allowance approvals) without a round trip per transaction.
type NonceManager struct {
	source NonceSource

	txNonces map[common.Address]uint64
	txMu     sync.Mutex
}

func NewNonceManager(source NonceSource) *NonceManager {
	return &NonceManager{
		source:   source,
		txNonces: make(map[common.Address]uint64),
	}
}

// GetNextTxNonce returns the next expected nonce for a transaction.
// If it's the first time, it fetches from chain.
func (m *NonceManager) GetNextTxNonce(ctx context.Context, addr common.Address) (uint64, error) {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	if nonce, ok := m.txNonces[addr]; ok {
		return nonce, nil
	}

	// pending includes transactions still in the mempool
	fetched, err := m.source.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pending nonce: %w", err)
	}

	m.txNonces[addr] = fetched
	return fetched, nil
}

// IncrementTxNonce advances the local nonce after a transaction was broadcast.
func (m *NonceManager) IncrementTxNonce(addr common.Address) {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	if _, ok := m.txNonces[addr]; ok {
		m.txNonces[addr]++
	}
}

// ResetTxNonce forces a re-sync from the chain.
// Call this if you get "Nonce too low" or "Replacement transaction underpriced".
func (m *NonceManager) ResetTxNonce(ctx context.Context, addr common.Address) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	fetched, err := m.source.PendingNonceAt(ctx, addr)
	if err != nil {
		delete(m.txNonces, addr)
		return err
	}
	m.txNonces[addr] = fetched
	logger.Info("Reset TX nonce", "address", addr.Hex(), "nonce", fetched)
	return nil
}
