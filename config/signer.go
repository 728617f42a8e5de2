package config

import (
	"errors"
	"fmt"

	"nearfs.io/upload/keys"
	"nearfs.io/upload/model"
)

// Explicit holds values given directly by the caller, e.g. flags.
type Explicit struct {
	SignerAccount string
	PrivateKey    string
}

// ReadCredentials loads a credentials file for account on network.
type ReadCredentials func(network, account string) (keys.Credentials, error)

// Signer is a resolved signing identity.
type Signer struct {
	Account string
	Key     keys.KeyPair
	// Source names where the key came from, for logs. It never holds key material.
	Source string
}

// ResolveSigner applies the credential chain for an upload to account.
//
// The signer account is the first of: explicit, NEAR_SIGNER_ACCOUNT, account.
// The key is the first of: explicit, NEAR_SIGNER_KEY, NEAR_PRIVATE_KEY, the
// signer's credentials file on network. When none yields a key the result is
// a KindConfiguration error naming every place that was tried.
func ResolveSigner(account string, network Network, explicit Explicit, env Env, read ReadCredentials) (Signer, error) {
	signer := firstNonEmpty(explicit.SignerAccount, env.get("NEAR_SIGNER_ACCOUNT"), account)
	if signer == "" {
		return Signer{}, model.NewError(model.KindConfiguration, "no signer account: pass an account or set NEAR_SIGNER_ACCOUNT")
	}
	if err := keys.CheckAccountID(signer); err != nil {
		return Signer{}, err
	}

	candidates := []struct{ source, value string }{
		{"explicit", explicit.PrivateKey},
		{"env:NEAR_SIGNER_KEY", env.get("NEAR_SIGNER_KEY")},
		{"env:NEAR_PRIVATE_KEY", env.get("NEAR_PRIVATE_KEY")},
	}
	for _, c := range candidates {
		if c.value == "" {
			continue
		}
		kp, err := keys.ParsePrivateKey(c.value)
		if err != nil {
			return Signer{}, model.WrapError(model.KindConfiguration, err, "signing key from %s", c.source)
		}
		return Signer{Account: signer, Key: kp, Source: c.source}, nil
	}

	if read != nil {
		creds, err := read(network.Name, signer)
		switch {
		case err == nil:
			kp, err := creds.Key()
			if err != nil {
				return Signer{}, model.WrapError(model.KindConfiguration, err, "credentials file for %s", signer)
			}
			return Signer{Account: signer, Key: kp, Source: fmt.Sprintf("file:%s/%s", network.Name, signer)}, nil
		case !errors.Is(err, keys.ErrNoCredentials):
			return Signer{}, err
		}
	}
	return Signer{}, model.NewError(model.KindConfiguration,
		"no signing key for %s on %s: set NEAR_SIGNER_KEY or NEAR_PRIVATE_KEY, or add ~/.near-credentials/%s/%s.json",
		signer, network.Name, network.Name, signer)
}

// FileCredentials adapts a keys.CredentialStore to ReadCredentials.
func FileCredentials(cs *keys.CredentialStore) ReadCredentials {
	return func(network, account string) (keys.Credentials, error) {
		return cs.Load(network, account)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
