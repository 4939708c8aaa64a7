package manager

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	nonce uint64
	err   error
	calls int
}

func (s *stubSource) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	s.calls++
	return s.nonce, s.err
}

func TestNonceManagerCachesAndIncrements(t *testing.T) {
	src := &stubSource{nonce: 7}
	m := NewNonceManager(src)
	addr := common.HexToAddress("0x5409ed021d9299bf6814279a6a1411a7e866a631")
	ctx := context.Background()

	n, err := m.GetNextTxNonce(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), n)

	m.IncrementTxNonce(addr)
	n, err = m.GetNextTxNonce(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), n)
	assert.Equal(t, 1, src.calls)
}

func TestNonceManagerReset(t *testing.T) {
	src := &stubSource{nonce: 3}
	m := NewNonceManager(src)
	addr := common.HexToAddress("0x5409ed021d9299bf6814279a6a1411a7e866a631")
	ctx := context.Background()

	_, err := m.GetNextTxNonce(ctx, addr)
	require.NoError(t, err)
	m.IncrementTxNonce(addr)
	m.IncrementTxNonce(addr)

	src.nonce = 4
	require.NoError(t, m.ResetTxNonce(ctx, addr))
	n, err := m.GetNextTxNonce(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)
}

func TestNonceManagerSourceError(t *testing.T) {
	src := &stubSource{err: errors.New("node down")}
	m := NewNonceManager(src)
	addr := common.HexToAddress("0x5409ed021d9299bf6814279a6a1411a7e866a631")

	_, err := m.GetNextTxNonce(context.Background(), addr)
	assert.Error(t, err)

	// increment without a cached value is a no-op
	m.IncrementTxNonce(addr)
	assert.Error(t, m.ResetTxNonce(context.Background(), addr))
}
