// Package config resolves where an upload goes and who signs it.
//
// Resolution is pure: environment lookups and credential file reads are
// passed in, so every rule can be tested without touching the process.
package config

import (
	"os"
	"strings"

	"nearfs.io/upload/model"
)

// Network is a NEAR network and its default endpoints.
type Network struct {
	Name       string
	RPCURL     string
	GatewayURL string
}

const (
	Mainnet = "mainnet"
	Testnet = "testnet"
)

var networks = map[string]Network{
	Mainnet: {Name: Mainnet, RPCURL: "https://rpc.mainnet.near.org", GatewayURL: "https://ipfs.web4.near.page"},
	Testnet: {Name: Testnet, RPCURL: "https://rpc.testnet.near.org", GatewayURL: "https://ipfs.web4.testnet.page"},
}

// LookupNetwork returns the named network.
func LookupNetwork(name string) (Network, error) {
	n, ok := networks[name]
	if !ok {
		return Network{}, model.NewError(model.KindConfiguration, "unsupported network %q (want %s or %s)", name, Mainnet, Testnet)
	}
	return n, nil
}

// Env looks up an environment variable.
type Env func(key string) (string, bool)

// OSEnv reads the process environment.
func OSEnv() Env { return os.LookupEnv }

// MapEnv serves lookups from m.
func MapEnv(m map[string]string) Env {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func (e Env) get(key string) string {
	if e == nil {
		return ""
	}
	v, _ := e(key)
	return strings.TrimSpace(v)
}

// SelectNetwork picks the network in priority order: the explicit name,
// NEAR_ENV, NODE_ENV ("production" is mainnet, "development" is testnet),
// then the account suffix (".near" is mainnet, anything else testnet).
//
// NODE_ENV values other than those and the network names themselves are
// ignored, since NODE_ENV is commonly set for unrelated tooling.
func SelectNetwork(explicit, account string, env Env) (Network, error) {
	if explicit != "" {
		return LookupNetwork(explicit)
	}
	if v := env.get("NEAR_ENV"); v != "" {
		return LookupNetwork(v)
	}
	switch env.get("NODE_ENV") {
	case "production", Mainnet:
		return networks[Mainnet], nil
	case "development", Testnet:
		return networks[Testnet], nil
	}
	if strings.HasSuffix(account, ".near") {
		return networks[Mainnet], nil
	}
	return networks[Testnet], nil
}
