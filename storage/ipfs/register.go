package ipfs

import (
	"os"

	"github.com/spf13/pflag"

	"nearfs.io/upload/storage"
	"nearfs.io/upload/storage/registry"
)

var (
	flagBin  string
	flagPath string
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "ipfs",
		Description: "Local Kubo repository via the ipfs CLI",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flagBin, "ipfs-bin", "ipfs", "Path to the ipfs binary (for --backend=ipfs)")
			fs.StringVar(&flagPath, "ipfs-path", "", "IPFS_PATH of the repository (for --backend=ipfs)")
		},
		Open: func(registry.Request) (storage.Backend, func() error, error) {
			opts := Options{Bin: flagBin}
			if flagPath != "" {
				opts.Env = append(os.Environ(), "IPFS_PATH="+flagPath)
			}
			return New(opts), nil, nil
		},
	})
}
