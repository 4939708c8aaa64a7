package signer

import (
	"context"
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleancoindev/zaidan-dealer-client/internal/chain"
	"github.com/cleancoindev/zaidan-dealer-client/internal/chain/chaintest"
)

// legacyEth is a node exposing only eth_sign and eth_sendTransaction.
type legacyEth struct {
	key     *ecdsa.PrivateKey
	backend *chaintest.Backend
	sent    int
}

func (e *legacyEth) Sign(_ common.Address, data hexutil.Bytes) (hexutil.Bytes, error) {
	sig, err := crypto.Sign(accounts.TextHash(data), e.key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

type sendArgs struct {
	From common.Address `json:"from"`
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

func (e *legacyEth) SendTransaction(args sendArgs) (common.Hash, error) {
	e.sent++
	hash := crypto.Keccak256Hash(args.Data, []byte{byte(e.sent)})
	e.backend.ApplyCall(args.From, &args.To, args.Data, hash)
	return hash, nil
}

// typedEth additionally supports eth_signTypedData_v4.
type typedEth struct {
	*legacyEth
}

func (e *typedEth) SignTypedData_v4(_ common.Address, td apitypes.TypedData) (hexutil.Bytes, error) {
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(hash, e.key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

func dialNode(t *testing.T, service any) *rpc.Client {
	t.Helper()
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", service))
	client := rpc.DialInProc(server)
	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})
	return client
}

func TestNodeSignerTypedData(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	client := dialNode(t, &typedEth{&legacyEth{key: key, backend: chaintest.New(50)}})
	n := NewNodeSigner(client, addr)

	for _, version := range []int{2, 3} {
		tx := testTx(version, addr)
		hash, err := TransactionHash(tx)
		require.NoError(t, err)

		sig, err := n.SignFillTransaction(context.Background(), tx, hash)
		require.NoError(t, err)
		assert.Equal(t, byte(SignatureEIP712), sig[65])
		assert.NoError(t, VerifySignature(hash, sig, addr), "protocol v%d", version)
	}
}

func TestNodeSignerFallsBackToEthSign(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	client := dialNode(t, &legacyEth{key: key, backend: chaintest.New(50)})
	n := NewNodeSigner(client, addr)

	tx := testTx(3, addr)
	hash, err := TransactionHash(tx)
	require.NoError(t, err)

	sig, err := n.SignFillTransaction(context.Background(), tx, hash)
	require.NoError(t, err)
	assert.Len(t, sig, SignatureLength)
	assert.Equal(t, byte(SignatureEthSign), sig[65])
	assert.NoError(t, VerifySignature(hash, sig, addr))
}

func TestNodeSignerSendTransaction(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)
	backend := chaintest.New(50)

	client := dialNode(t, &legacyEth{key: key, backend: backend})
	n := NewNodeSigner(client, addr)

	token := common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	spender := common.HexToAddress("0x1dc4c1cefef38a777b15aa20260a54e584b16c48")
	data, err := chain.PackApprove(spender, chain.MaxAllowance)
	require.NoError(t, err)

	hash, err := n.SendTransaction(context.Background(), token, data)
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, hash)
	assert.True(t, chain.SufficientAllowance(backend.AllowanceOf(token, addr, spender)))
}
