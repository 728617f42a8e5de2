package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"nearfs.io/upload/chunk"
	"nearfs.io/upload/cidutil"
	"nearfs.io/upload/config"
	"nearfs.io/upload/importer"
	"nearfs.io/upload/model"
	"nearfs.io/upload/near"
	"nearfs.io/upload/storage"
	"nearfs.io/upload/storage/localfs"
	"nearfs.io/upload/storage/registry"
	"nearfs.io/upload/upload"
)

func addImportFlags(fs *pflag.FlagSet) {
	fs.Int(config.KeyBlockSize, chunk.DefaultSize, "Maximum block size in bytes")
	fs.String(config.KeyHash, cidutil.DefaultHash, "Multihash function for CIDs")
}

func addNetworkFlags(fs *pflag.FlagSet) {
	fs.String(config.KeyBackend, "near", "Storage backend (see 'nearfs backends')")
	fs.String(config.KeyNetwork, "", "NEAR network: mainnet or testnet (default from NEAR_ENV, NODE_ENV, or the account)")
	fs.StringSlice(config.KeyGateway, nil, "IPFS gateway used for existence checks (repeatable)")
	fs.String(config.KeyRPCURL, "", "NEAR RPC endpoint (default: the network's)")
	fs.Duration(config.KeyTimeout, near.DefaultGatewayTimeout, "Timeout of one existence check")
	fs.String(config.KeyCredentials, "", "NEAR credentials directory (default ~/.near-credentials)")
	fs.Int(config.KeyConcurrency, upload.DefaultConcurrency, "Existence checks in flight")
	fs.Int(config.KeyRetries, upload.DefaultRetryCount, "Retries of a failed check or submission")
	fs.Int(config.KeyBatchBlocks, upload.DefaultMaxBatchBlocks, "Maximum blocks per transaction")
	fs.Int(config.KeyBatchBytes, upload.DefaultMaxBatchBytes, "Maximum block bytes per transaction")
	fs.String("mirror-dir", "", "Also write every submitted block to this local directory")
	registry.RegisterFlags(fs, registry.UsageCLI)
}

func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Settings{}, err
	}
	return config.LoadSettings(cmd.Flags(), path)
}

func importOptions(s config.Settings, noWrap bool) (importer.Options, error) {
	b, err := cidutil.NewBuilder(s.Hash)
	if err != nil {
		return importer.Options{}, err
	}
	return importer.Options{MaxBlockSize: s.BlockSize, Builder: b, NoWrap: noWrap}, nil
}

func uploadOptions(cmd *cobra.Command, s config.Settings, imp importer.Options, errOut io.Writer) upload.Options {
	opts := upload.Options{
		Import:         imp,
		Concurrency:    s.Concurrency,
		MaxBatchBlocks: s.BatchBlocks,
		MaxBatchBytes:  s.BatchBytes,
		RetryCount:     s.Retries,
		Logger:         log.Desugar().Sugar(),
	}
	if s.Retries == 0 {
		opts.RetryCount = -1
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		opts.OnProgress = func(done, total int) {
			_, _ = fmt.Fprintf(errOut, "submitted %d/%d blocks\n", done, total)
		}
	}
	return opts
}

// openBackend opens the configured backend for account, wrapped so that
// submissions also go to --mirror-dir when it is set.
func openBackend(cmd *cobra.Command, s config.Settings, account, hashName string) (storage.Backend, func() error, error) {
	b, closeFn, err := registry.Open(s.Backend, registry.UsageCLI, registry.Request{
		Account:        account,
		Network:        s.Network,
		HashName:       hashName,
		RPCURL:         s.RPCURL,
		Gateways:       s.Gateways,
		Timeout:        s.Timeout,
		CredentialsDir: s.CredentialsDir,
		Lookup:         os.LookupEnv,
	})
	if err != nil {
		return nil, nil, err
	}
	mirrorDir, _ := cmd.Flags().GetString("mirror-dir")
	if mirrorDir == "" {
		return b, closeFn, nil
	}
	mirror, err := localfs.New(mirrorDir)
	if err != nil {
		if closeFn != nil {
			_ = closeFn()
		}
		return nil, nil, err
	}
	log.Infow("mirroring blocks", "dir", mirrorDir)
	return storage.Join(b, storage.Replicating{
		Submitters: []storage.NamedSubmitter{
			{Name: s.Backend, Submitter: b},
			{Name: "mirror", Submitter: mirror},
		},
		OnMirrorError: func(name string, blocks []model.Block, err error) {
			log.Warnw("mirror write failed", "mirror", name, "blocks", len(blocks), "err", err)
		},
	}), closeFn, nil
}
