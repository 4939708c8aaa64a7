package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/cleancoindev/zaidan-dealer-client/internal/chain"
	"github.com/cleancoindev/zaidan-dealer-client/internal/config"
	"github.com/cleancoindev/zaidan-dealer-client/internal/dealer"
	"github.com/cleancoindev/zaidan-dealer-client/internal/market"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/logger"
	"github.com/cleancoindev/zaidan-dealer-client/internal/repository"
	"github.com/cleancoindev/zaidan-dealer-client/internal/service"
	"github.com/cleancoindev/zaidan-dealer-client/internal/signer"
)

// App holds one trading session and everything built on top of it.
type App struct {
	Config    *config.Config
	Session   *service.Session
	Trader    *service.Trader
	Quotes    *service.QuoteBook
	Refresher *market.Refresher
}

// New dials the node, selects the signing provider and settlement journal, and
// bootstraps a session against the dealer. The refresher is built but not started.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	rc, eth, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, err
	}
	var closers []func() error
	closers = append(closers, func() error { rc.Close(); return nil })
	fail := func(err error) (*App, error) {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}

	provider, err := newProvider(ctx, cfg, rc, eth)
	if err != nil {
		return fail(err)
	}

	client, err := dealer.NewClient(cfg.Dealer)
	if err != nil {
		return fail(err)
	}

	book := service.NewQuoteBook()
	jobs := []func(context.Context, time.Time){
		func(_ context.Context, now time.Time) {
			if n := book.Sweep(now); n > 0 {
				logger.Debug("expired quotes swept", "count", n)
			}
		},
	}

	store, cleanup, closeStore, err := newSettlementStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	if closeStore != nil {
		closers = append(closers, closeStore)
	}
	if cleanup != nil {
		jobs = append(jobs, cleanup)
	}

	session, err := service.NewSession(ctx, service.SessionOptions{
		Dealer:   client,
		Backend:  eth,
		Provider: provider,
		Chain:    cfg.Chain,
		Closers:  closers,
	})
	if err != nil {
		return fail(err)
	}

	verifier := chain.NewEIP1271Verifier(eth, cfg.Chain.EIP1271CacheTTL, cfg.Chain.RPCTimeout, cfg.Chain.EIP1271Retries)
	trader := service.NewTrader(session, service.TraderOptions{
		Store:        store,
		Verifier:     verifier,
		PollInterval: cfg.Chain.PollInterval,
		AutoApprove:  cfg.Settlement.AutoApprove,
	})

	refresher := market.NewRefresher(session, cfg.Chain.RefreshInterval)
	for _, job := range jobs {
		refresher.AddJob(job)
	}

	return &App{
		Config:    cfg,
		Session:   session,
		Trader:    trader,
		Quotes:    book,
		Refresher: refresher,
	}, nil
}

// Close stops the refresher and releases the session's connections.
func (a *App) Close() error {
	a.Refresher.Stop()
	return a.Session.Close()
}

func newProvider(ctx context.Context, cfg *config.Config, rc *rpc.Client, eth *ethclient.Client) (signer.Provider, error) {
	switch cfg.Wallet.Provider {
	case "node":
		return signer.NewNodeSigner(rc, common.HexToAddress(cfg.Wallet.Address)), nil
	default:
		chainID, err := eth.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read chain id: %w", err)
		}
		return signer.NewWalletSigner(cfg.Wallet.PrivateKey, chainID, eth, cfg.Chain.GasLimit)
	}
}

// newSettlementStore returns the configured journal, an optional periodic cleanup job
// and an optional closer for the connection it owns.
func newSettlementStore(ctx context.Context, cfg *config.Config) (service.SettlementStore, func(context.Context, time.Time), func() error, error) {
	switch cfg.Settlement.Store {
	case "redis":
		rdb, err := repository.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("settlement journal on redis", "addr", cfg.Redis.Addr)
		// keys expire on their own
		return repository.NewRedisSettlementStore(rdb, cfg.Redis.KeyPrefix, cfg.Settlement.Retention), nil, rdb.Close, nil

	case "postgres":
		db, err := repository.NewDB(cfg.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, nil, err
		}
		store, err := repository.NewPostgresSettlementStore(ctx, db, cfg.Settlement.Retention)
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, nil, fmt.Errorf("failed to migrate settlement journal: %w", err)
		}
		logger.Info("settlement journal on postgres")
		cleanup := func(ctx context.Context, _ time.Time) {
			n, err := store.Cleanup(ctx)
			if err != nil {
				logger.Warn("settlement journal cleanup failed", "error", err)
				return
			}
			if n > 0 {
				logger.Debug("settlement records pruned", "count", n)
			}
		}
		return store, cleanup, sqlDB.Close, nil

	default:
		store := service.NewMemorySettlementStore(cfg.Settlement.Retention)
		cleanup := func(_ context.Context, _ time.Time) {
			if n := store.Cleanup(); n > 0 {
				logger.Debug("settlement records pruned", "count", n)
			}
		}
		return store, cleanup, nil, nil
	}
}
