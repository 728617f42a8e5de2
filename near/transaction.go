package near

import (
	"crypto/sha256"
	"math/big"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/mr-tron/base58"
	"github.com/near/borsh-go"

	"nearfs.io/upload/keys"
	"nearfs.io/upload/model"
)

const (
	keyTypeED25519 = 0

	actionFunctionCall borsh.Enum = 2
)

// PublicKey is the Borsh form of an ed25519 access key.
type PublicKey struct {
	KeyType uint8
	Data    [ed25519.PublicKeySize]byte
}

// Signature is the Borsh form of an ed25519 signature.
type Signature struct {
	KeyType uint8
	Data    [ed25519.SignatureSize]byte
}

// FunctionCall is the only action the uploader sends.
type FunctionCall struct {
	MethodName string
	Args       []byte
	Gas        uint64
	Deposit    big.Int // u128
}

// DeployContract is listed so that FunctionCall keeps its variant index.
type DeployContract struct {
	Code []byte
}

// Action is the NEAR action enum, truncated after FunctionCall.
type Action struct {
	Enum           borsh.Enum `borsh_enum:"true"`
	CreateAccount  struct{}
	DeployContract DeployContract
	FunctionCall   FunctionCall
}

// NewFunctionCall wraps fc as an Action.
func NewFunctionCall(fc FunctionCall) Action {
	return Action{Enum: actionFunctionCall, FunctionCall: fc}
}

// Transaction is an unsigned NEAR transaction.
type Transaction struct {
	SignerID   string
	PublicKey  PublicKey
	Nonce      uint64
	ReceiverID string
	BlockHash  [32]byte
	Actions    []Action
}

// SignedTransaction is what broadcast_tx_commit accepts.
type SignedTransaction struct {
	Transaction Transaction
	Signature   Signature
}

// ED25519Key converts a public key to its Borsh form.
func ED25519Key(pub ed25519.PublicKey) (PublicKey, error) {
	if len(pub) != ed25519.PublicKeySize {
		return PublicKey{}, model.NewError(model.KindConfiguration, "transaction: public key must be %d bytes", ed25519.PublicKeySize)
	}
	pk := PublicKey{KeyType: keyTypeED25519}
	copy(pk.Data[:], pub)
	return pk, nil
}

// Encode returns the Borsh serialization of tx.
func (tx *Transaction) Encode() ([]byte, error) {
	if tx.PublicKey.KeyType != keyTypeED25519 {
		return nil, model.NewError(model.KindConfiguration, "transaction: unsupported key type %d", tx.PublicKey.KeyType)
	}
	b, err := borsh.Serialize(*tx)
	if err != nil {
		return nil, model.WrapError(model.KindConfiguration, err, "transaction: encode")
	}
	return b, nil
}

// Signed is a signed transaction ready to broadcast.
type Signed struct {
	Encoded []byte
	// Hash is the base58 transaction hash, sha256 of the unsigned encoding.
	Hash string
}

// Sign encodes tx and signs sha256 of the encoding with kp.
func (tx *Transaction) Sign(kp keys.KeyPair) (Signed, error) {
	enc, err := tx.Encode()
	if err != nil {
		return Signed{}, err
	}
	digest := sha256.Sum256(enc)
	stx := SignedTransaction{Transaction: *tx, Signature: Signature{KeyType: keyTypeED25519}}
	copy(stx.Signature.Data[:], kp.SignSHA256(enc))

	b, err := borsh.Serialize(stx)
	if err != nil {
		return Signed{}, model.WrapError(model.KindConfiguration, err, "transaction: encode signed")
	}
	return Signed{Encoded: b, Hash: base58.Encode(digest[:])}, nil
}
