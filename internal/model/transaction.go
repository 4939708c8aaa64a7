package model

import (
	"math/big"
	"regexp"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// FillTransaction is the taker's meta-transaction authorizing the exchange to run Data
// on its behalf. It only lives for the duration of signing.
type FillTransaction struct {
	ProtocolVersion   int
	ChainID           *big.Int
	VerifyingContract common.Address
	Salt              *big.Int
	SignerAddress     common.Address
	Data              []byte

	// v3 only.
	ExpirationTimeSeconds *big.Int
	GasPrice              *big.Int
}

type SignedFillTransaction struct {
	FillTransaction
	Hash      common.Hash
	Signature hexutil.Bytes
}

// OrderRequest is the dealer's POST order body.
type OrderRequest struct {
	Salt    string        `json:"salt"`
	Data    hexutil.Bytes `json:"data"`
	Hash    common.Hash   `json:"hash"`
	Sig     hexutil.Bytes `json:"sig"`
	QuoteID string        `json:"quoteId"`
	Address string        `json:"address"`
}

func NewOrderRequest(tx *SignedFillTransaction, quoteID string) OrderRequest {
	return OrderRequest{
		Salt:    tx.Salt.String(),
		Data:    tx.Data,
		Hash:    tx.Hash,
		Sig:     tx.Signature,
		QuoteID: quoteID,
		Address: tx.SignerAddress.Hex(),
	}
}

type SettlementState string

const (
	SettlementPending  SettlementState = "pending"
	SettlementSettled  SettlementState = "settled"
	SettlementRejected SettlementState = "rejected"
)

// SettlementRecord links an off-chain quote to the on-chain transaction the dealer broadcast.
type SettlementRecord struct {
	QuoteID     string          `json:"quoteId" gorm:"primaryKey;size:128"`
	TxID        string          `json:"txId,omitempty" gorm:"size:66;index"`
	Taker       string          `json:"taker" gorm:"size:42"`
	State       SettlementState `json:"state" gorm:"size:16"`
	Reason      string          `json:"reason,omitempty"`
	SubmittedAt time.Time       `json:"submittedAt"`
}

func (SettlementRecord) TableName() string {
	return "settlement_records"
}

type TxStatus string

const (
	TxSuccess  TxStatus = "Success"
	TxReverted TxStatus = "Reverted"
)

// Confirmation is the terminal outcome of a settlement transaction.
type Confirmation struct {
	TxID        string   `json:"txId"`
	Status      TxStatus `json:"status"`
	BlockNumber uint64   `json:"blockNumber"`
	GasUsed     uint64   `json:"gasUsed"`
}

var txIDPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ValidTxID reports whether id is a 0x-prefixed 32-byte hex string.
func ValidTxID(id string) bool {
	return txIDPattern.MatchString(id)
}
