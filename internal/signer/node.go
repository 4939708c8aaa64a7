package signer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
)

// jsonrpc "method not found"
const errCodeMethodNotFound = -32601

// NodeSigner delegates signing and broadcasting to an RPC node holding the taker's
// unlocked account. It asks for an EIP-712 signature first and falls back to eth_sign
// when the node does not implement typed-data signing.
type NodeSigner struct {
	client  *rpc.Client
	address common.Address
}

var _ Provider = (*NodeSigner)(nil)

func NewNodeSigner(client *rpc.Client, address common.Address) *NodeSigner {
	return &NodeSigner{client: client, address: address}
}

func (n *NodeSigner) Kind() model.ProviderKind {
	return model.ProviderNode
}

func (n *NodeSigner) Address() common.Address {
	return n.address
}

func (n *NodeSigner) SignFillTransaction(ctx context.Context, tx *model.FillTransaction, hash common.Hash) ([]byte, error) {
	typedData, err := TypedData(tx)
	if err != nil {
		return nil, err
	}

	var sig hexutil.Bytes
	err = n.client.CallContext(ctx, &sig, "eth_signTypedData_v4", n.address, typedData)
	if err == nil {
		return encodeSignature(sig, SignatureEIP712)
	}
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) || rpcErr.ErrorCode() != errCodeMethodNotFound {
		return nil, fmt.Errorf("eth_signTypedData_v4: %w", err)
	}

	if err := n.client.CallContext(ctx, &sig, "eth_sign", n.address, hexutil.Bytes(hash.Bytes())); err != nil {
		return nil, fmt.Errorf("eth_sign: %w", err)
	}
	return encodeSignature(sig, SignatureEthSign)
}

type sendTxArgs struct {
	From common.Address `json:"from"`
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

func (n *NodeSigner) SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	var hash common.Hash
	err := n.client.CallContext(ctx, &hash, "eth_sendTransaction", sendTxArgs{
		From: n.address,
		To:   to,
		Data: data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendTransaction: %w", err)
	}
	return hash, nil
}
