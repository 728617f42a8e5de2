package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"nearfs.io/upload/model"
)

// EnvPrefix prefixes environment overrides of tool settings, e.g. NEARFS_RETRIES.
const EnvPrefix = "NEARFS"

// Setting keys. They double as flag names.
const (
	KeyBackend     = "backend"
	KeyNetwork     = "network"
	KeyGateway     = "gateway"
	KeyRPCURL      = "rpc-url"
	KeyBlockSize   = "block-size"
	KeyHash        = "hash"
	KeyConcurrency = "concurrency"
	KeyRetries     = "retries"
	KeyBatchBlocks = "batch-blocks"
	KeyBatchBytes  = "batch-bytes"
	KeyTimeout     = "timeout"
	KeyCredentials = "credentials-dir"
)

// Settings are the tool's tunables after merging flags, NEARFS_* variables,
// the config file, and defaults, in that order of precedence.
type Settings struct {
	Backend        string
	Network        string
	Gateways       []string
	RPCURL         string
	BlockSize      int
	Hash           string
	Concurrency    int
	Retries        int
	BatchBlocks    int
	BatchBytes     int
	Timeout        time.Duration
	CredentialsDir string
	// ConfigFile is the file that was read, if any.
	ConfigFile string
}

// DefaultConfigFile returns $HOME/.config/nearfs/config.yaml.
func DefaultConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "nearfs", "config.yaml")
}

// LoadSettings merges fs with NEARFS_* variables and the config file at
// path. Flags registered on fs supply the defaults. An empty path means
// DefaultConfigFile, which may be absent; an explicit path must exist.
func LoadSettings(fs *pflag.FlagSet, path string) (Settings, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return Settings{}, model.WrapError(model.KindConfiguration, err, "bind flags")
	}

	optional := path == ""
	if optional {
		path = DefaultConfigFile()
	}
	var s Settings
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		err := v.ReadInConfig()
		switch {
		case err == nil:
			s.ConfigFile = path
		case optional && errors.Is(err, os.ErrNotExist):
			// No config file; flags, environment and defaults apply.
		default:
			return Settings{}, model.WrapError(model.KindConfiguration, err, "read config %s", path)
		}
	}

	s.Backend = v.GetString(KeyBackend)
	s.Network = v.GetString(KeyNetwork)
	s.Gateways = v.GetStringSlice(KeyGateway)
	s.RPCURL = v.GetString(KeyRPCURL)
	s.BlockSize = v.GetInt(KeyBlockSize)
	s.Hash = v.GetString(KeyHash)
	s.Concurrency = v.GetInt(KeyConcurrency)
	s.Retries = v.GetInt(KeyRetries)
	s.BatchBlocks = v.GetInt(KeyBatchBlocks)
	s.BatchBytes = v.GetInt(KeyBatchBytes)
	s.Timeout = v.GetDuration(KeyTimeout)
	s.CredentialsDir = v.GetString(KeyCredentials)
	return s, s.validate()
}

func (s Settings) validate() error {
	if s.BlockSize < 0 || s.Concurrency < 0 || s.Retries < 0 || s.BatchBlocks < 0 || s.BatchBytes < 0 || s.Timeout < 0 {
		return model.NewError(model.KindConfiguration, "numeric settings must not be negative")
	}
	return nil
}
