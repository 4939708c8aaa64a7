package service

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cleancoindev/zaidan-dealer-client/internal/chain"
	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/apperrors"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/logger"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/metrics"
	"github.com/cleancoindev/zaidan-dealer-client/internal/signer"
)

// FillBuilder turns a quote's maker order into a taker-signed meta-transaction that the
// dealer executes and pays gas for.
type FillBuilder struct {
	session  *Session
	verifier *chain.EIP1271Verifier
}

// NewFillBuilder wires the builder. verifier may be nil when the taker is never a
// contract wallet.
func NewFillBuilder(session *Session, verifier *chain.EIP1271Verifier) *FillBuilder {
	return &FillBuilder{session: session, verifier: verifier}
}

// BuildAndSign encodes a full fill of the quote's order, salts it freshly and has the
// session's provider sign it. Nothing is kept on failure; retry from a new quote.
func (b *FillBuilder) BuildAndSign(ctx context.Context, quote *model.Quote) (*model.SignedFillTransaction, error) {
	nc, err := b.session.Context()
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, apperrors.NewInvalidInput("quote is required")
	}
	if err := checkLive(quote, time.Now()); err != nil {
		return nil, err
	}
	if err := checkOrderMarket(nc, &quote.Order); err != nil {
		return nil, err
	}

	start := time.Now()
	tx, err := b.build(nc, quote)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrSigningFailed, "failed to build fill transaction for quote "+quote.ID, err)
	}
	hash, err := signer.TransactionHash(tx)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrSigningFailed, "failed to hash fill transaction", err)
	}

	sig, err := b.session.provider.SignFillTransaction(ctx, tx, hash)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrSigningFailed, "provider did not sign quote "+quote.ID, err)
	}
	if err := b.verify(ctx, nc.Taker, hash, sig); err != nil {
		return nil, err
	}
	metrics.StageLatency.WithLabelValues("sign").Observe(time.Since(start).Seconds())

	logger.Info("fill transaction signed",
		"quote_id", quote.ID,
		"pair", quote.Pair,
		"hash", hash.Hex(),
		"provider", b.session.provider.Kind())
	return &model.SignedFillTransaction{
		FillTransaction: *tx,
		Hash:            hash,
		Signature:       sig,
	}, nil
}

func (b *FillBuilder) build(nc *model.NetworkContext, quote *model.Quote) (*model.FillTransaction, error) {
	order := &quote.Order
	if order.ExchangeAddress != (common.Address{}) && order.ExchangeAddress != nc.Contracts.Exchange {
		return nil, apperrors.Newf(apperrors.ErrSigningFailed,
			"order targets exchange %s, session uses %s", order.ExchangeAddress.Hex(), nc.Contracts.Exchange.Hex())
	}
	if order.ChainID != 0 && big.NewInt(order.ChainID).Cmp(nc.ChainID) != 0 {
		return nil, apperrors.Newf(apperrors.ErrSigningFailed, "order is for chain %d, session is on %s", order.ChainID, nc.ChainID)
	}

	data, _, err := chain.EncodeFillOrKillOrder(nc.ProtocolVersion, order)
	if err != nil {
		return nil, err
	}
	salt, err := newSalt()
	if err != nil {
		return nil, err
	}

	tx := &model.FillTransaction{
		ProtocolVersion:   nc.ProtocolVersion,
		ChainID:           nc.ChainID,
		VerifyingContract: nc.Contracts.Exchange,
		Salt:              salt,
		SignerAddress:     nc.Taker,
		Data:              data,
	}
	if nc.ProtocolVersion >= 3 {
		tx.ExpirationTimeSeconds = big.NewInt(quote.Expiration.Unix())
		tx.GasPrice = new(big.Int).Set(nc.GasPrice)
	}
	return tx, nil
}

// verify checks the signature recovers to the taker, or asks the taker contract when the
// taker is a contract wallet.
func (b *FillBuilder) verify(ctx context.Context, taker common.Address, hash common.Hash, sig []byte) error {
	isContract, err := chain.IsContract(ctx, b.session.backend, taker)
	if err != nil {
		return apperrors.New(apperrors.ErrSigningFailed, "failed to inspect taker account", err)
	}
	if !isContract {
		if err := signer.VerifySignature(hash, sig, taker); err != nil {
			return apperrors.New(apperrors.ErrSigningFailed, "signature does not recover to the taker", err)
		}
		return nil
	}
	if b.verifier == nil {
		return apperrors.New(apperrors.ErrSigningFailed, "taker is a contract wallet and no EIP-1271 verifier is configured", nil)
	}
	ok, err := b.verifier.Verify(ctx, taker, hash, sig)
	if err != nil {
		return apperrors.New(apperrors.ErrSigningFailed, "contract wallet signature check failed", err)
	}
	if !ok {
		return apperrors.New(apperrors.ErrSigningFailed, "contract wallet rejected the signature", nil)
	}
	return nil
}

// checkOrderMarket requires both order assets to be known and to form a served pair in
// either orientation.
func checkOrderMarket(nc *model.NetworkContext, order *model.MakerOrder) error {
	makerToken, err := chain.DecodeERC20AssetData(order.MakerAssetData)
	if err != nil {
		return apperrors.New(apperrors.ErrUnsupportedMarket, "maker asset data is not an ERC20 asset", err)
	}
	takerToken, err := chain.DecodeERC20AssetData(order.TakerAssetData)
	if err != nil {
		return apperrors.New(apperrors.ErrUnsupportedMarket, "taker asset data is not an ERC20 asset", err)
	}
	makerTicker, ok := nc.TickerFor(makerToken)
	if !ok {
		return apperrors.Newf(apperrors.ErrUnsupportedMarket, "maker asset %s is not served by the dealer", makerToken.Hex())
	}
	takerTicker, ok := nc.TickerFor(takerToken)
	if !ok {
		return apperrors.Newf(apperrors.ErrUnsupportedMarket, "taker asset %s is not served by the dealer", takerToken.Hex())
	}
	if !nc.SupportsPair(model.Pair(makerTicker, takerTicker)) && !nc.SupportsPair(model.Pair(takerTicker, makerTicker)) {
		return apperrors.Newf(apperrors.ErrUnsupportedMarket, "order trades %s against %s, which is not a served pair", makerTicker, takerTicker)
	}
	return nil
}

// newSalt returns 256 random bits. A salt is never reused across fill transactions.
func newSalt() (*big.Int, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(buf[:]), nil
}
