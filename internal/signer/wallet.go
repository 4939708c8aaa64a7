package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/cleancoindev/zaidan-dealer-client/internal/chain"
	"github.com/cleancoindev/zaidan-dealer-client/internal/manager"
	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
)

// WalletSigner holds the taker key in process. Fill transactions are signed as EIP-712
// and approvals are signed locally and broadcast through the backend.
type WalletSigner struct {
	key      *ecdsa.PrivateKey
	address  common.Address
	chainID  *big.Int
	backend  chain.Backend
	nonces   *manager.NonceManager
	gasLimit uint64

	// serializes nonce allocation and broadcast
	sendMu sync.Mutex
}

var _ Provider = (*WalletSigner)(nil)

func NewWalletSigner(privateKeyHex string, chainID *big.Int, backend chain.Backend, gasLimit uint64) (*WalletSigner, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if privateKeyHex == "" {
		return nil, fmt.Errorf("private key is required")
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if chainID == nil {
		return nil, fmt.Errorf("chain id is required")
	}

	return &WalletSigner{
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		chainID:  new(big.Int).Set(chainID),
		backend:  backend,
		nonces:   manager.NewNonceManager(backend),
		gasLimit: gasLimit,
	}, nil
}

func (w *WalletSigner) Kind() model.ProviderKind {
	return model.ProviderWallet
}

func (w *WalletSigner) Address() common.Address {
	return w.address
}

func (w *WalletSigner) SignFillTransaction(_ context.Context, _ *model.FillTransaction, hash common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(hash.Bytes(), w.key)
	if err != nil {
		return nil, err
	}
	return encodeSignature(sig, SignatureEIP712)
}

func (w *WalletSigner) SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	nonce, err := w.nonces.GetNextTxNonce(ctx, w.address)
	if err != nil {
		return common.Hash{}, err
	}
	gasPrice, err := w.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}
	gas, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{From: w.address, To: &to, Data: data})
	if err != nil || gas == 0 {
		gas = w.gasLimit
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(w.chainID), w.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		_ = w.nonces.ResetTxNonce(ctx, w.address)
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	w.nonces.IncrementTxNonce(w.address)
	return signed.Hash(), nil
}
