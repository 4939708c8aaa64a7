package signer

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureType is the trailing byte of a 0x signature.
type SignatureType byte

const (
	SignatureEIP712  SignatureType = 0x02
	SignatureEthSign SignatureType = 0x03
)

// SignatureLength is v ‖ r ‖ s ‖ type.
const SignatureLength = 66

// encodeSignature converts a go-ethereum [R ‖ S ‖ V] signature into the 0x layout.
func encodeSignature(rsv []byte, sigType SignatureType) ([]byte, error) {
	if len(rsv) != crypto.SignatureLength {
		return nil, fmt.Errorf("invalid signature length %d", len(rsv))
	}
	v := rsv[64]
	if v < 27 {
		v += 27
	}
	out := make([]byte, 0, SignatureLength)
	out = append(out, v)
	out = append(out, rsv[:64]...)
	return append(out, byte(sigType)), nil
}

// RecoverSigner returns the address that produced sig over hash. EthSign signatures
// are recovered from the personal-message digest of hash.
func RecoverSigner(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}

	digest := hash.Bytes()
	switch SignatureType(sig[65]) {
	case SignatureEIP712:
	case SignatureEthSign:
		digest = accounts.TextHash(hash.Bytes())
	default:
		return common.Address{}, fmt.Errorf("unsupported signature type 0x%02x", sig[65])
	}

	rsv := make([]byte, crypto.SignatureLength)
	copy(rsv, sig[1:65])
	// Normalize V to 0/1 for recovery.
	rsv[64] = sig[0]
	if rsv[64] >= 27 {
		rsv[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, rsv)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature recovery failed: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySignature checks that sig over hash was produced by signer.
func VerifySignature(hash common.Hash, sig []byte, signer common.Address) error {
	recovered, err := RecoverSigner(hash, sig)
	if err != nil {
		return err
	}
	if recovered != signer {
		return fmt.Errorf("signature mismatch: recovered %s, expected %s", recovered.Hex(), signer.Hex())
	}
	return nil
}
