package keys

import (
	"strings"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/mr-tron/base58"

	"nearfs.io/upload/model"
)

// KeyTypeED25519 is the only key type NEAR uses for function-call access keys.
const KeyTypeED25519 = "ed25519"

// KeyPair is an ed25519 signing key.
type KeyPair struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// FromSeed returns the key pair for a 32-byte seed.
func FromSeed(seed []byte) (KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return KeyPair{}, model.NewError(model.KindConfiguration, "ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return KeyPair{Private: priv, Public: priv.Public().(ed25519.PublicKey)}, nil
}

// ParsePrivateKey parses "ed25519:<base58>" into a key pair. The prefix is
// optional. When the encoded key carries its public half it must match the seed.
func ParsePrivateKey(s string) (KeyPair, error) {
	raw, err := decode(s)
	if err != nil {
		return KeyPair{}, err
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return FromSeed(raw)
	case ed25519.PrivateKeySize:
		kp, err := FromSeed(raw[:ed25519.SeedSize])
		if err != nil {
			return KeyPair{}, err
		}
		if string(kp.Public) != string(raw[ed25519.SeedSize:]) {
			return KeyPair{}, model.NewError(model.KindConfiguration, "private key: public half does not match seed")
		}
		return kp, nil
	default:
		return KeyPair{}, model.NewError(model.KindConfiguration, "private key must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
}

// ParsePublicKey parses "ed25519:<base58>".
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	raw, err := decode(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, model.NewError(model.KindConfiguration, "public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// PublicKeyString encodes pub in NEAR text form.
func PublicKeyString(pub ed25519.PublicKey) string {
	return KeyTypeED25519 + ":" + base58.Encode(pub)
}

// String returns the private key in NEAR text form.
func (kp KeyPair) String() string {
	return KeyTypeED25519 + ":" + base58.Encode(kp.Private)
}

// PublicKeyString returns the public key in NEAR text form.
func (kp KeyPair) PublicKeyString() string { return PublicKeyString(kp.Public) }

func decode(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, model.NewError(model.KindConfiguration, "empty key")
	}
	if typ, rest, ok := strings.Cut(s, ":"); ok {
		if typ != KeyTypeED25519 {
			return nil, model.NewError(model.KindConfiguration, "unsupported key type %q", typ)
		}
		s = rest
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, model.WrapError(model.KindConfiguration, err, "key is not valid base58")
	}
	return raw, nil
}

// CheckAccountID validates a NEAR account id: 2 to 64 characters of
// lowercase letters, digits and the separators "-", "_" and ".", with no
// separator at either end or next to another separator.
func CheckAccountID(id string) error {
	if len(id) < 2 || len(id) > 64 {
		return model.NewError(model.KindConfiguration, "account id %q must be 2 to 64 characters", id)
	}
	prevSep := true
	for _, char := range id {
		switch {
		case (char >= 'a' && char <= 'z') || (char >= '0' && char <= '9'):
			prevSep = false
		case char == '-' || char == '_' || char == '.':
			if prevSep {
				return model.NewError(model.KindConfiguration, "account id %q has a misplaced %q", id, char)
			}
			prevSep = true
		default:
			return model.NewError(model.KindConfiguration, "invalid character %q in account id %q", char, id)
		}
	}
	if prevSep {
		return model.NewError(model.KindConfiguration, "account id %q ends with a separator", id)
	}
	return nil
}
