// Package nearfs uploads files to NEARFS, the IPFS-compatible store that
// keeps blocks in NEAR transaction arguments.
//
// UploadFiles is the whole pipeline in one call. The subpackages expose each
// stage: chunk and importer build the UnixFS DAG, upload moves it to a
// storage backend, near implements the NEARFS backend.
package nearfs

import (
	"context"
	"net/http"
	"time"

	"github.com/ipfs/go-cid"

	"nearfs.io/upload/config"
	"nearfs.io/upload/importer"
	"nearfs.io/upload/model"
	"nearfs.io/upload/near"
	"nearfs.io/upload/storage"
	"nearfs.io/upload/upload"
)

// Config describes an upload.
type Config struct {
	// Account is the NEAR account the upload is for. It signs unless
	// Signer.SignerAccount or NEAR_SIGNER_ACCOUNT names another.
	Account string
	// Network is "mainnet" or "testnet". Empty selects from the environment
	// and the account suffix.
	Network  string
	RPCURL   string
	Gateways []string
	// GatewayTimeout bounds each existence check.
	GatewayTimeout time.Duration
	Signer         config.Explicit
	CredentialsDir string
	// Env is the environment lookup. Nil means the process environment.
	Env        config.Env
	HTTPClient *http.Client

	Upload upload.Options

	// Backend replaces the NEAR backend, e.g. with a local store.
	Backend storage.Backend
}

// UploadFiles builds the DAG for files, uploads whatever the backend does not
// already have, and returns the root CID.
//
// Names are validated before any credentials are read or requests are made.
func UploadFiles(ctx context.Context, files []model.File, cfg Config) (cid.Cid, error) {
	opts := cfg.Upload
	if opts.Import.Builder.HashName() == "" {
		opts.Import.Builder = upload.DefaultBuilder()
	}
	imp, err := importer.Import(files, opts.Import)
	if err != nil {
		return cid.Undef, err
	}

	backend := cfg.Backend
	if backend == nil {
		nb, err := near.Open(near.Config{
			Account:        cfg.Account,
			Network:        cfg.Network,
			RPCURL:         cfg.RPCURL,
			Gateways:       cfg.Gateways,
			Timeout:        cfg.GatewayTimeout,
			CredentialsDir: cfg.CredentialsDir,
			Signer:         cfg.Signer,
			Env:            cfg.Env,
			Client:         cfg.HTTPClient,
		})
		if err != nil {
			return cid.Undef, err
		}
		backend = nb
	}

	res, err := upload.Blocks(ctx, backend, imp.Root, imp.Blocks, opts)
	if err != nil {
		return cid.Undef, err
	}
	return res.Root, nil
}
