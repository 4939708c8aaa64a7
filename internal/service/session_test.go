package service

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleancoindev/zaidan-dealer-client/internal/chain/chaintest"
	"github.com/cleancoindev/zaidan-dealer-client/internal/config"
	"github.com/cleancoindev/zaidan-dealer-client/internal/dealer/dealertest"
	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/apperrors"
)

func TestNewSessionSnapshot(t *testing.T) {
	env := newEnv(t, 3, TraderOptions{})

	nc, err := env.session.Context()
	require.NoError(t, err)
	assert.Equal(t, int64(50), nc.ChainID.Int64())
	assert.Equal(t, env.wallet.Address(), nc.Taker)
	assert.Equal(t, model.ProviderWallet, nc.Provider)
	assert.Equal(t, []string{"WETH/DAI", "ZRX/WETH"}, nc.Pairs)
	assert.Equal(t, dealertest.DAI, nc.Assets["DAI"])
	assert.Equal(t, common.HexToAddress("0x1dc4c1cefef38a777b15aa20260a54e584b16c48"), nc.Contracts.ERC20Proxy)

	env.backend.SetGasPrice(big.NewInt(7))
	refreshed, err := env.session.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), refreshed.GasPrice.Int64())
	// the earlier snapshot is untouched
	assert.NotEqual(t, int64(7), nc.GasPrice.Int64())
}

func TestNewSessionFailures(t *testing.T) {
	ctx := context.Background()

	_, err := NewSession(ctx, SessionOptions{})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotInitialized))

	t.Run("unauthorized", func(t *testing.T) {
		backend := chaintest.New(50)
		d := dealertest.New(backend, 3)
		defer d.Close()
		d.Unauthorized = true

		_, err := NewSession(ctx, SessionOptions{
			Dealer:   newDealerClient(t, d),
			Backend:  backend,
			Provider: newWallet(t, backend),
			Chain:    config.ChainConfig{ProtocolVersion: 3},
		})
		assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))
		assert.True(t, strings.Contains(err.Error(), "blacklisted"))
	})

	t.Run("chain mismatch", func(t *testing.T) {
		backend := chaintest.New(50)
		d := dealertest.New(backend, 3)
		defer d.Close()

		_, err := NewSession(ctx, SessionOptions{
			Dealer:   newDealerClient(t, d),
			Backend:  backend,
			Provider: newWallet(t, backend),
			Chain:    config.ChainConfig{ChainID: 1, ProtocolVersion: 3},
		})
		assert.True(t, apperrors.Is(err, apperrors.ErrUnsupportedNetwork))
	})

	t.Run("unknown chain", func(t *testing.T) {
		backend := chaintest.New(1337)
		d := dealertest.New(backend, 3)
		defer d.Close()

		_, err := NewSession(ctx, SessionOptions{
			Dealer:   newDealerClient(t, d),
			Backend:  backend,
			Provider: newWallet(t, backend),
			Chain:    config.ChainConfig{ProtocolVersion: 3},
		})
		assert.True(t, apperrors.Is(err, apperrors.ErrUnsupportedNetwork))

		s, err := NewSession(ctx, SessionOptions{
			Dealer:   newDealerClient(t, d),
			Backend:  backend,
			Provider: newWallet(t, backend),
			Chain: config.ChainConfig{
				ProtocolVersion:   3,
				ExchangeAddress:   "0x48bacb9266a570d521063ef5dd96e61686dbe788",
				ERC20ProxyAddress: "0x1dc4c1cefef38a777b15aa20260a54e584b16c48",
			},
		})
		require.NoError(t, err)
		nc, err := s.Context()
		require.NoError(t, err)
		assert.Equal(t, int64(1337), nc.ChainID.Int64())
	})
}

func TestSessionClose(t *testing.T) {
	env := newEnv(t, 3, TraderOptions{})
	closed := 0
	env.session.closers = []func() error{
		func() error { closed++; return nil },
		func() error { closed++; return errors.New("boom") },
	}

	err := env.session.Close()
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 2, closed)

	_, err = env.session.Context()
	assert.True(t, apperrors.Is(err, apperrors.ErrNotInitialized))
	_, err = env.session.Markets(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.ErrNotInitialized))
}

func TestAwaitRejectsMalformedIDs(t *testing.T) {
	backend := chaintest.New(50)
	w := NewConfirmationWaiter(backend, time.Millisecond)

	for _, id := range []string{"", "0x1234", strings.Repeat("a", 66), "0x" + strings.Repeat("g", 64), "0x" + strings.Repeat("a", 65)} {
		_, err := w.Await(context.Background(), id)
		assert.True(t, apperrors.Is(err, apperrors.ErrInvalidTransactionID), "id %q", id)
	}
	assert.Zero(t, backend.ReceiptHits)
}

func TestAwaitPollsUntilMined(t *testing.T) {
	backend := chaintest.New(50)
	w := NewConfirmationWaiter(backend, time.Millisecond)
	hash := common.HexToHash("0x" + strings.Repeat("ab", 32))
	backend.Mine(hash, types.ReceiptStatusSuccessful, 3)
	backend.ReceiptErrs = []error{errors.New("connection reset")}

	conf, err := w.Await(context.Background(), hash.Hex())
	require.NoError(t, err)
	assert.Equal(t, model.TxSuccess, conf.Status)
	assert.Equal(t, uint64(100), conf.BlockNumber)
	// one transient error and three pending lookups before the receipt shows up
	assert.Equal(t, 5, backend.ReceiptHits)
}

func TestAwaitReportsRevert(t *testing.T) {
	backend := chaintest.New(50)
	w := NewConfirmationWaiter(backend, time.Millisecond)
	hash := common.HexToHash("0x" + strings.Repeat("cd", 32))
	backend.Mine(hash, types.ReceiptStatusFailed, 0)

	conf, err := w.Await(context.Background(), hash.Hex())
	require.NoError(t, err)
	assert.Equal(t, model.TxReverted, conf.Status)
}

func TestAwaitEndsWithContext(t *testing.T) {
	backend := chaintest.New(50)
	w := NewConfirmationWaiter(backend, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := w.Await(ctx, "0x"+strings.Repeat("ef", 32))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Positive(t, backend.ReceiptHits)
}

func TestQuoteBook(t *testing.T) {
	book := NewQuoteBook()
	live := &model.Quote{ID: "live", Expiration: time.Now().Add(time.Minute)}
	stale := &model.Quote{ID: "stale", Expiration: time.Now().Add(-time.Second)}
	book.Put(live)
	book.Put(stale)

	got, err := book.Get("live")
	require.NoError(t, err)
	assert.Same(t, live, got)

	_, err = book.Get("stale")
	assert.True(t, apperrors.Is(err, apperrors.ErrQuoteExpired))
	_, err = book.Get("stale")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	book.Put(stale)
	assert.Equal(t, 1, book.Sweep(time.Now()))
	assert.Equal(t, 1, book.Len())
}

func TestMemorySettlementStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySettlementStore(time.Hour)

	require.NoError(t, store.Acquire(ctx, "q1", "0xabc"))
	err := store.Acquire(ctx, "q1", "0xabc")
	assert.True(t, apperrors.Is(err, apperrors.ErrDuplicateSubmission))

	require.NoError(t, store.Release(ctx, "q1"))
	require.NoError(t, store.Acquire(ctx, "q1", "0xabc"))

	require.NoError(t, store.Save(ctx, &model.SettlementRecord{QuoteID: "q1", State: model.SettlementSettled, TxID: "0x01"}))
	// settled records survive Release
	require.NoError(t, store.Release(ctx, "q1"))
	rec, err := store.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, model.SettlementSettled, rec.State)

	_, err = store.Get(ctx, "missing")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	short := NewMemorySettlementStore(time.Nanosecond)
	require.NoError(t, short.Acquire(ctx, "q2", "0xabc"))
	time.Sleep(time.Millisecond)
	assert.NoError(t, short.Acquire(ctx, "q2", "0xabc"))
	time.Sleep(time.Millisecond)
	assert.Equal(t, 1, short.Cleanup())
}
