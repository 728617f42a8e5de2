package upload

import (
	"time"

	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/zap"

	"nearfs.io/upload/cidutil"
	"nearfs.io/upload/importer"
	"nearfs.io/upload/model"
)

var log = logging.Logger("nearfs/upload")

const (
	DefaultConcurrency    = 8
	DefaultMaxBatchBlocks = 10
	DefaultMaxBatchBytes  = 1 << 20
	DefaultRetryCount     = 3
	DefaultRetryDelay     = 500 * time.Millisecond
)

// Options controls an upload. Zero values select the defaults.
type Options struct {
	// Import is passed to the importer by Run. Its Builder is also the
	// hash every block must use.
	Import importer.Options

	// Concurrency bounds existence checks in flight.
	Concurrency int
	// MaxBatchBlocks and MaxBatchBytes bound one submission.
	MaxBatchBlocks int
	MaxBatchBytes  int
	// RetryCount is the number of retries after a failed attempt, for checks
	// and submissions alike. Negative disables retries.
	RetryCount int
	// RetryDelay is the first backoff interval.
	RetryDelay time.Duration

	Logger *zap.SugaredLogger
	// OnProgress is called after every submitted batch with the number of
	// blocks submitted so far and the number that needed submitting.
	OnProgress func(done, total int)
}

// DefaultBuilder returns the sha2-256 CID builder NEARFS uses.
func DefaultBuilder() cidutil.Builder { return cidutil.MustBuilder(cidutil.DefaultHash) }

func (o Options) withDefaults() (Options, error) {
	if o.Concurrency == 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.MaxBatchBlocks == 0 {
		o.MaxBatchBlocks = DefaultMaxBatchBlocks
	}
	if o.MaxBatchBytes == 0 {
		o.MaxBatchBytes = DefaultMaxBatchBytes
	}
	switch {
	case o.RetryCount == 0:
		o.RetryCount = DefaultRetryCount
	case o.RetryCount < 0:
		o.RetryCount = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.Logger == nil {
		o.Logger = log.Desugar().Sugar()
	}
	if o.Import.Builder.HashName() == "" {
		o.Import.Builder = DefaultBuilder()
	}
	if o.Concurrency < 0 || o.MaxBatchBlocks < 0 || o.MaxBatchBytes < 0 {
		return o, model.NewError(model.KindConfiguration,
			"upload: concurrency and batch limits must be positive (got %d, %d, %d)", o.Concurrency, o.MaxBatchBlocks, o.MaxBatchBytes)
	}
	return o, nil
}
