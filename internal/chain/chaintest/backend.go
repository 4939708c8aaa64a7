// Package chaintest provides an in-memory chain.Backend for tests.
package chaintest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/cleancoindev/zaidan-dealer-client/internal/chain"
)

type allowanceKey struct {
	token, owner, spender common.Address
}

// Backend records allowances, contract code and receipts. Approvals sent through
// SendTransaction update allowances and mine immediately.
type Backend struct {
	mu sync.Mutex

	chainID  *big.Int
	gasPrice *big.Int

	allowances map[allowanceKey]*big.Int
	code       map[common.Address][]byte
	receipts   map[common.Hash]*types.Receipt
	// polls left before a registered receipt becomes visible
	pending map[common.Hash]int
	nonces  map[common.Address]uint64

	// CallErr, when set, fails every CallContract.
	CallErr error
	// ReceiptErrs are returned, in order, by TransactionReceipt before normal lookups resume.
	ReceiptErrs []error
	// RevertSends mines every sent transaction as reverted without applying it.
	RevertSends bool

	Sent        []*types.Transaction
	ReceiptHits int
}

var _ chain.Backend = (*Backend)(nil)

func New(chainID int64) *Backend {
	return &Backend{
		chainID:    big.NewInt(chainID),
		gasPrice:   big.NewInt(1_000_000_000),
		allowances: make(map[allowanceKey]*big.Int),
		code:       make(map[common.Address][]byte),
		receipts:   make(map[common.Hash]*types.Receipt),
		pending:    make(map[common.Hash]int),
		nonces:     make(map[common.Address]uint64),
	}
}

func (b *Backend) SetGasPrice(p *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gasPrice = new(big.Int).Set(p)
}

func (b *Backend) SetAllowance(token, owner, spender common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allowances[allowanceKey{token, owner, spender}] = new(big.Int).Set(amount)
}

func (b *Backend) AllowanceOf(token, owner, spender common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := b.allowances[allowanceKey{token, owner, spender}]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

func (b *Backend) SetCode(addr common.Address, code []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.code[addr] = code
}

// Mine registers a receipt for hash that becomes visible after pendingPolls lookups.
func (b *Backend) Mine(hash common.Hash, status uint64, pendingPolls int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receipts[hash] = &types.Receipt{
		TxHash:      hash,
		Status:      status,
		BlockNumber: big.NewInt(100),
		GasUsed:     21000,
	}
	b.pending[hash] = pendingPolls
}

func (b *Backend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.chainID), nil
}

func (b *Backend) SuggestGasPrice(context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.gasPrice), nil
}

func (b *Backend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if b.CallErr != nil {
		return nil, b.CallErr
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errors.New("chaintest: malformed call")
	}
	erc20 := chain.ERC20ABI()
	method, err := erc20.MethodById(msg.Data[:4])
	if err != nil {
		return b.callWallet(*msg.To, msg.Data)
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "allowance":
		a := b.AllowanceOf(*msg.To, args[0].(common.Address), args[1].(common.Address))
		return method.Outputs.Pack(a)
	case "decimals":
		return method.Outputs.Pack(uint8(18))
	case "balanceOf":
		return method.Outputs.Pack(big.NewInt(0))
	}
	return nil, fmt.Errorf("chaintest: unsupported call %s", method.Name)
}

// callWallet answers isValidSignature for contracts registered with SetCode: the wallet
// accepts any signature whose first byte is non-zero.
func (b *Backend) callWallet(to common.Address, data []byte) ([]byte, error) {
	b.mu.Lock()
	_, isContract := b.code[to]
	b.mu.Unlock()
	if !isContract {
		return nil, errors.New("execution reverted")
	}
	out := make([]byte, 32)
	// selector, hash, offset and length words precede the signature bytes
	if len(data) > 4+32*3 && data[4+32*3] != 0 {
		copy(out, chain.EIP1271MagicValue)
	}
	return out, nil
}

func (b *Backend) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.code[account], nil
}

func (b *Backend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

func (b *Backend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 60000, nil
}

// SendTransaction applies ERC20 approvals and mines the transaction, reverted when RevertSends is set.
func (b *Backend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	from, err := types.Sender(types.LatestSignerForChainID(b.chainID), tx)
	if err != nil {
		return fmt.Errorf("chaintest: bad signature: %w", err)
	}

	b.mu.Lock()
	b.Sent = append(b.Sent, tx)
	b.nonces[from] = tx.Nonce() + 1
	revert := b.RevertSends
	b.mu.Unlock()

	if revert {
		b.Mine(tx.Hash(), types.ReceiptStatusFailed, 0)
		return nil
	}
	b.applyApproval(from, tx.To(), tx.Data())
	b.Mine(tx.Hash(), types.ReceiptStatusSuccessful, 0)
	return nil
}

// ApplyCall lets RPC-level fakes route eth_sendTransaction through the same approval logic.
func (b *Backend) ApplyCall(from common.Address, to *common.Address, data []byte, hash common.Hash) {
	b.applyApproval(from, to, data)
	b.Mine(hash, types.ReceiptStatusSuccessful, 0)
}

func (b *Backend) applyApproval(from common.Address, to *common.Address, data []byte) {
	if to == nil || len(data) < 4 {
		return
	}
	erc20 := chain.ERC20ABI()
	approve := erc20.Methods["approve"]
	if !bytes.Equal(data[:4], approve.ID) {
		return
	}
	args, err := approve.Inputs.Unpack(data[4:])
	if err != nil {
		return
	}
	b.SetAllowance(*to, from, args[0].(common.Address), args[1].(*big.Int))
}

func (b *Backend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ReceiptHits++
	if len(b.ReceiptErrs) > 0 {
		err := b.ReceiptErrs[0]
		b.ReceiptErrs = b.ReceiptErrs[1:]
		return nil, err
	}
	r, ok := b.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	if b.pending[hash] > 0 {
		b.pending[hash]--
		return nil, ethereum.NotFound
	}
	return r, nil
}
