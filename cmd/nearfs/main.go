// Command nearfs uploads files to NEARFS and computes their IPFS CIDs.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"

	"nearfs.io/upload/cidutil"
	"nearfs.io/upload/model"

	_ "nearfs.io/upload/near"
	_ "nearfs.io/upload/storage/grpcstore"
	_ "nearfs.io/upload/storage/ipfs"
)

var log = logging.Logger("nearfs/cli")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// usageError marks a command line the user has to fix.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error { return usageError{fmt.Sprintf(format, args...)} }

// run executes one command line and returns the exit status: 0 on success,
// 1 when the command failed, 2 when the command line was wrong.
func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	var started bool
	root := newRootCmd(out, errOut)
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		started = true
		return setupLogging(cmd)
	}
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ue usageError
	if errors.As(err, &ue) || !started {
		fmt.Fprintf(errOut, "nearfs: %v\n", err)
		fmt.Fprintln(errOut, "Run 'nearfs --help' for usage.")
		return 2
	}
	report(errOut, err)
	return 1
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "nearfs",
		Short: "Upload files to NEARFS",
		Long: `nearfs turns files into IPFS blocks (CIDv1, raw leaves, 256 KiB chunks)
and stores the ones NEARFS does not already have as fs_store transactions
signed by a NEAR account.

Credentials come from --signer, NEAR_SIGNER_ACCOUNT, NEAR_SIGNER_KEY,
NEAR_PRIVATE_KEY, or ~/.near-credentials/<network>/<account>.json.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().String("config", "", "Config file (default $HOME/.config/nearfs/config.yaml)")
	root.PersistentFlags().BoolP("verbose", "v", false, "Log progress to stderr")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err.Error()} })

	root.AddCommand(
		newUploadCmd(out, errOut),
		newUploadCARCmd(out, errOut),
		newCIDCmd(out),
		newBackendsCmd(out),
	)
	return root
}

func setupLogging(cmd *cobra.Command) error {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return err
	}
	level := "warn"
	if verbose {
		level = "info"
	}
	for _, name := range []string{"nearfs/cli", "nearfs/upload", "nearfs/near"} {
		if err := logging.SetLogLevel(name, level); err != nil {
			return err
		}
	}
	return nil
}

// report prints err and, for failed uploads, every block that still needs
// to be stored.
func report(w io.Writer, err error) {
	fmt.Fprintf(w, "nearfs: %v\n", err)
	var e *model.Error
	if !errors.As(err, &e) || len(e.CIDs) == 0 {
		return
	}
	label := "block"
	if e.Kind == model.KindUploadFailed {
		label = "not stored"
	}
	for _, id := range e.CIDs {
		fmt.Fprintf(w, "  %s: %s\n", label, cidutil.String(id))
	}
}
