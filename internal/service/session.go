package service

import (
	"context"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/cleancoindev/zaidan-dealer-client/internal/chain"
	"github.com/cleancoindev/zaidan-dealer-client/internal/config"
	"github.com/cleancoindev/zaidan-dealer-client/internal/dealer"
	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/apperrors"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/logger"
	"github.com/cleancoindev/zaidan-dealer-client/internal/signer"
)

// DealerAPI is the subset of the dealer REST surface a session drives.
type DealerAPI interface {
	Authorized(ctx context.Context, taker common.Address) (*dealer.AuthorizedResponse, error)
	Quote(ctx context.Context, p dealer.QuoteParams) (*dealer.QuoteResponse, error)
	Swap(ctx context.Context, p dealer.SwapParams) (*dealer.QuoteResponse, error)
	SubmitOrder(ctx context.Context, body model.OrderRequest) (string, error)
	Markets(ctx context.Context) ([]string, error)
	Assets(ctx context.Context) (map[string]common.Address, error)
}

var _ DealerAPI = (*dealer.Client)(nil)

type SessionOptions struct {
	Dealer   DealerAPI
	Backend  chain.Backend
	Provider signer.Provider
	Chain    config.ChainConfig
	// Closers run on Close, in order. Typically the rpc client.
	Closers []func() error
}

// Session owns the dealer, chain and signing provider for one taker address and
// publishes the current NetworkContext snapshot.
type Session struct {
	dealer   DealerAPI
	backend  chain.Backend
	provider signer.Provider
	chainCfg config.ChainConfig
	closers  []func() error

	nc atomic.Pointer[model.NetworkContext]
}

// NewSession bootstraps a session: it checks the taker is authorized, then reads chain id,
// gas price, markets and assets concurrently and resolves contract deployments.
func NewSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	if opts.Dealer == nil || opts.Backend == nil || opts.Provider == nil {
		return nil, apperrors.New(apperrors.ErrNotInitialized, "session requires a dealer, a chain backend and a signing provider", nil)
	}
	s := &Session{
		dealer:   opts.Dealer,
		backend:  opts.Backend,
		provider: opts.Provider,
		chainCfg: opts.Chain,
		closers:  opts.Closers,
	}

	auth, err := s.dealer.Authorized(ctx, s.provider.Address())
	if err != nil {
		return nil, err
	}
	if !auth.Authorized {
		msg := "dealer refused taker " + s.provider.Address().Hex()
		if auth.Reason != "" {
			msg += ": " + auth.Reason
		}
		return nil, apperrors.New(apperrors.ErrUnauthorized, msg, nil)
	}

	nc, err := s.load(ctx, nil)
	if err != nil {
		return nil, err
	}
	s.nc.Store(nc)
	logger.Info("session initialized",
		"chain_id", nc.ChainID.String(),
		"taker", nc.Taker.Hex(),
		"provider", nc.Provider,
		"protocol_version", nc.ProtocolVersion,
		"pairs", len(nc.Pairs))
	return s, nil
}

// load reads the network state. When prev is set, chain id and contracts are carried over.
func (s *Session) load(ctx context.Context, prev *model.NetworkContext) (*model.NetworkContext, error) {
	var (
		chainID  *big.Int
		gasPrice *big.Int
		pairs    []string
		assets   map[string]common.Address
	)

	g, gctx := errgroup.WithContext(ctx)
	if prev == nil {
		g.Go(func() error {
			id, err := s.backend.ChainID(gctx)
			if err != nil {
				return apperrors.New(apperrors.ErrUpstream, "failed to read chain id", err)
			}
			chainID = id
			return nil
		})
	} else {
		chainID = prev.ChainID
	}
	g.Go(func() error {
		price, err := s.backend.SuggestGasPrice(gctx)
		if err != nil {
			return apperrors.New(apperrors.ErrUpstream, "failed to read gas price", err)
		}
		gasPrice = price
		return nil
	})
	g.Go(func() error {
		var err error
		pairs, err = s.dealer.Markets(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		assets, err = s.dealer.Assets(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var contracts model.Contracts
	if prev != nil {
		contracts = prev.Contracts
	} else {
		var err error
		contracts, err = s.resolveContracts(chainID)
		if err != nil {
			return nil, err
		}
	}

	return &model.NetworkContext{
		ChainID:         chainID,
		Taker:           s.provider.Address(),
		Provider:        s.provider.Kind(),
		GasPrice:        gasPrice,
		ProtocolVersion: s.chainCfg.ProtocolVersion,
		Contracts:       contracts,
		Pairs:           pairs,
		Assets:          assets,
		APIVersion:      dealer.APIVersion,
		CreatedAt:       time.Now(),
	}, nil
}

func (s *Session) resolveContracts(chainID *big.Int) (model.Contracts, error) {
	if s.chainCfg.ChainID != 0 && s.chainCfg.ChainID != chainID.Int64() {
		return model.Contracts{}, apperrors.Newf(apperrors.ErrUnsupportedNetwork,
			"node is on chain %s, configured for chain %d", chainID, s.chainCfg.ChainID)
	}
	if s.chainCfg.ExchangeAddress != "" {
		return model.Contracts{
			Exchange:   common.HexToAddress(s.chainCfg.ExchangeAddress),
			ERC20Proxy: common.HexToAddress(s.chainCfg.ERC20ProxyAddress),
		}, nil
	}
	contracts, ok := chain.LookupContracts(chainID.Int64(), s.chainCfg.ProtocolVersion)
	if !ok {
		return model.Contracts{}, apperrors.Newf(apperrors.ErrUnsupportedNetwork,
			"no v%d deployment known for chain %s", s.chainCfg.ProtocolVersion, chainID)
	}
	return contracts, nil
}

// Context returns the current snapshot. Callers keep using the value they got even if
// the session refreshes meanwhile.
func (s *Session) Context() (*model.NetworkContext, error) {
	if s == nil {
		return nil, apperrors.New(apperrors.ErrNotInitialized, "session is not initialized", nil)
	}
	nc := s.nc.Load()
	if nc == nil {
		return nil, apperrors.New(apperrors.ErrNotInitialized, "session is not initialized", nil)
	}
	return nc, nil
}

// Refresh re-reads gas price, markets and assets and swaps in a new snapshot.
func (s *Session) Refresh(ctx context.Context) (*model.NetworkContext, error) {
	prev, err := s.Context()
	if err != nil {
		return nil, err
	}
	nc, err := s.load(ctx, prev)
	if err != nil {
		return nil, err
	}
	s.nc.Store(nc)
	logger.Debug("session refreshed", "gas_price", nc.GasPrice.String(), "pairs", len(nc.Pairs))
	return nc, nil
}

// Markets is a plain list call against the dealer.
func (s *Session) Markets(ctx context.Context) ([]string, error) {
	if _, err := s.Context(); err != nil {
		return nil, err
	}
	return s.dealer.Markets(ctx)
}

func (s *Session) Assets(ctx context.Context) (map[string]common.Address, error) {
	if _, err := s.Context(); err != nil {
		return nil, err
	}
	return s.dealer.Assets(ctx)
}

func (s *Session) Provider() signer.Provider {
	return s.provider
}

func (s *Session) Backend() chain.Backend {
	return s.backend
}

func (s *Session) Close() error {
	var err error
	for _, c := range s.closers {
		err = multierr.Append(err, c())
	}
	s.nc.Store(nil)
	return err
}
