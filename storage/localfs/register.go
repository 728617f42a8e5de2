package localfs

import (
	"github.com/spf13/pflag"

	"nearfs.io/upload/model"
	"nearfs.io/upload/storage"
	"nearfs.io/upload/storage/registry"
)

var (
	flagLocalDir string
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "localfs",
		Description: "Local filesystem block store (directory)",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flagLocalDir, "localfs-dir", "", "Block directory (for --backend=localfs)")
		},
		Open: func(registry.Request) (storage.Backend, func() error, error) {
			if flagLocalDir == "" {
				return nil, nil, model.NewError(model.KindConfiguration, "missing --localfs-dir")
			}
			s, err := New(flagLocalDir)
			if err != nil {
				return nil, nil, err
			}
			return s, nil, nil
		},
	})
}
