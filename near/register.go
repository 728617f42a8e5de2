package near

import (
	"net/http"
	"time"

	"github.com/spf13/pflag"

	"nearfs.io/upload/cidutil"
	"nearfs.io/upload/config"
	"nearfs.io/upload/keys"
	"nearfs.io/upload/model"
	"nearfs.io/upload/storage"
	"nearfs.io/upload/storage/registry"
)

var (
	flagSigner   string
	flagReceiver string
	flagGas      uint64
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "near",
		Description: "NEARFS: gateway existence checks, fs_store transactions",
		Usage:       registry.UsageCLI,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flagSigner, "signer", "", "Signer account (default: NEAR_SIGNER_ACCOUNT or the upload account)")
			fs.StringVar(&flagReceiver, "receiver", "", "Account the fs_store calls go to (default: the signer)")
			fs.Uint64Var(&flagGas, "gas", DefaultGas, "Gas attached to each fs_store call")
		},
		Open: func(req registry.Request) (storage.Backend, func() error, error) {
			if req.HashName != "" && req.HashName != cidutil.DefaultHash {
				return nil, nil, model.NewError(model.KindConfiguration, "backend near supports %s only, not %s", cidutil.DefaultHash, req.HashName)
			}
			b, err := Open(Config{
				Account:        req.Account,
				Network:        req.Network,
				RPCURL:         req.RPCURL,
				Gateways:       req.Gateways,
				Timeout:        req.Timeout,
				CredentialsDir: req.CredentialsDir,
				Signer:         config.Explicit{SignerAccount: flagSigner},
				Ledger:         LedgerOptions{Receiver: flagReceiver, Gas: flagGas},
				Env:            req.Lookup,
			})
			if err != nil {
				return nil, nil, err
			}
			return b, nil, nil
		},
	})
}

// Config describes a NEARFS backend before credentials are resolved.
type Config struct {
	// Account is the account the upload is for; it signs unless Signer says otherwise.
	Account string
	// Network overrides network selection ("mainnet" or "testnet").
	Network string
	// RPCURL and Gateways override the network's endpoints.
	RPCURL   string
	Gateways []string
	// Timeout bounds each gateway request.
	Timeout        time.Duration
	CredentialsDir string
	Signer         config.Explicit
	Ledger         LedgerOptions
	// Env is the environment lookup. Nil means the process environment.
	Env    config.Env
	Client *http.Client
}

// Open resolves the network and signer and assembles a Backend.
func Open(cfg Config) (*Backend, error) {
	env := cfg.Env
	if env == nil {
		env = config.OSEnv()
	}
	network, err := config.SelectNetwork(cfg.Network, cfg.Account, env)
	if err != nil {
		return nil, err
	}
	cs, err := keys.OpenCredentialStore(cfg.CredentialsDir)
	if err != nil {
		return nil, err
	}
	signer, err := config.ResolveSigner(cfg.Account, network, cfg.Signer, env, config.FileCredentials(cs))
	if err != nil {
		return nil, err
	}

	rpcURL := cfg.RPCURL
	if rpcURL == "" {
		rpcURL = network.RPCURL
	}
	ledger, err := NewLedger(NewRPC(rpcURL, cfg.Client), signer, cfg.Ledger)
	if err != nil {
		return nil, err
	}

	gateways := cfg.Gateways
	if len(gateways) == 0 {
		gateways = []string{network.GatewayURL}
	}
	checkers := make([]storage.Checker, 0, len(gateways))
	for _, g := range gateways {
		checkers = append(checkers, NewGateway(g, cfg.Client, cfg.Timeout))
	}
	var checker storage.Checker = checkers[0]
	if len(checkers) > 1 {
		checker = storage.MultiChecker{Checkers: checkers}
	}

	log.Infow("nearfs backend", "network", network.Name, "signer", signer.Account, "key", signer.Source, "rpc", rpcURL, "gateways", gateways)
	return &Backend{Checker: checker, Ledger: ledger}, nil
}
