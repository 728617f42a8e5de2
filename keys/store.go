package keys

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"nearfs.io/upload/model"
)

// Credentials is one near-cli credentials file.
type Credentials struct {
	AccountID  string `json:"account_id"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
	// SecretKey is the older field name for PrivateKey.
	SecretKey string `json:"secret_key,omitempty"`
}

// Key returns the parsed key pair, checking it against PublicKey when set.
func (c Credentials) Key() (KeyPair, error) {
	priv := c.PrivateKey
	if priv == "" {
		priv = c.SecretKey
	}
	kp, err := ParsePrivateKey(priv)
	if err != nil {
		return KeyPair{}, err
	}
	if c.PublicKey != "" {
		pub, err := ParsePublicKey(c.PublicKey)
		if err != nil {
			return KeyPair{}, err
		}
		if string(pub) != string(kp.Public) {
			return KeyPair{}, model.NewError(model.KindConfiguration, "credentials for %s: public_key does not match private key", c.AccountID)
		}
	}
	return kp, nil
}

// CredentialStore reads credentials laid out as <Directory>/<network>/<account>.json.
type CredentialStore struct {
	Directory string
}

func DefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".near-credentials"), nil
}

// OpenCredentialStore returns a store over directory, or over
// DefaultDirectory when directory is empty.
func OpenCredentialStore(directory string) (*CredentialStore, error) {
	if directory == "" {
		var err error
		directory, err = DefaultDirectory()
		if err != nil {
			return nil, model.WrapError(model.KindConfiguration, err, "locate credentials directory")
		}
	}
	return &CredentialStore{Directory: directory}, nil
}

func (cs *CredentialStore) path(network, account string) string {
	return filepath.Join(cs.Directory, network, account+".json")
}

// ErrNoCredentials is wrapped by Load when the credentials file is absent.
var ErrNoCredentials = errors.New("keys: no credentials file")

// Load reads the credentials of account on network.
func (cs *CredentialStore) Load(network, account string) (Credentials, error) {
	if err := CheckAccountID(account); err != nil {
		return Credentials{}, err
	}
	if network == "" || strings.ContainsAny(network, `/\`) || network == "." || network == ".." {
		return Credentials{}, model.NewError(model.KindConfiguration, "invalid network %q", network)
	}
	p := cs.path(network, account)
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return Credentials{}, model.WrapError(model.KindConfiguration, ErrNoCredentials, "%s", p)
		}
		return Credentials{}, model.WrapError(model.KindConfiguration, err, "read credentials")
	}
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return Credentials{}, model.WrapError(model.KindConfiguration, err, "parse %s", p)
	}
	if c.AccountID == "" {
		c.AccountID = account
	}
	if c.AccountID != account {
		return Credentials{}, model.NewError(model.KindConfiguration, "%s holds credentials for %s", p, c.AccountID)
	}
	return c, nil
}

// List returns the accounts with credentials on network, sorted.
func (cs *CredentialStore) List(network string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(cs.Directory, network))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var accounts []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		accounts = append(accounts, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(accounts)
	return accounts, nil
}
