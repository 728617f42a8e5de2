package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"

	"nearfs.io/upload/cidutil"
	"nearfs.io/upload/importer"
	"nearfs.io/upload/keys"
	"nearfs.io/upload/model"
	"nearfs.io/upload/storage/bundle"
	"nearfs.io/upload/storage/registry"
	"nearfs.io/upload/upload"
)

func newUploadCmd(out, errOut io.Writer) *cobra.Command {
	var (
		noWrap  bool
		carPath string
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "upload <account_id> <file>...",
		Short: "Upload files and directories, print the root CID",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				return usagef("upload needs an account and at least one file")
			}
			account := args[0]
			if err := keys.CheckAccountID(account); err != nil {
				return usagef("%v", err)
			}
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			files, err := collectFiles(args[1:])
			if err != nil {
				return err
			}
			iopts, err := importOptions(s, noWrap)
			if err != nil {
				return err
			}
			imp, err := importer.Import(files, iopts)
			if err != nil {
				return err
			}
			log.Infow("imported", "files", len(files), "blocks", len(imp.Blocks), "root", cidutil.String(imp.Root))
			if carPath != "" {
				if err := writeCAR(carPath, imp.Root, imp.Blocks); err != nil {
					return err
				}
			}
			if dryRun {
				_, _ = fmt.Fprintln(out, cidutil.String(imp.Root))
				return nil
			}

			backend, closeFn, err := openBackend(cmd, s, account, iopts.Builder.HashName())
			if err != nil {
				return err
			}
			if closeFn != nil {
				defer closeFn()
			}
			res, err := upload.Blocks(cmd.Context(), backend, imp.Root, imp.Blocks, uploadOptions(cmd, s, iopts, errOut))
			if err != nil {
				return err
			}
			log.Infow("uploaded", "root", cidutil.String(res.Root), "existing", res.Existing, "submitted", res.Submitted, "transactions", len(res.Receipts))
			_, _ = fmt.Fprintln(out, cidutil.String(res.Root))
			return nil
		},
	}
	fs := cmd.Flags()
	addImportFlags(fs)
	addNetworkFlags(fs)
	fs.BoolVar(&noWrap, "no-wrap", false, "Use a single file's CID as the root instead of wrapping it in a directory")
	fs.StringVar(&carPath, "car", "", "Also write all blocks to this CAR file")
	fs.BoolVar(&dryRun, "dry-run", false, "Build the DAG and print the root CID without contacting the backend")
	return cmd
}

func newUploadCARCmd(out, errOut io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload-car <account_id> <file.car>",
		Short: "Upload the blocks of a single-root CAR file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return usagef("upload-car needs an account and one CAR file")
			}
			if err := keys.CheckAccountID(args[0]); err != nil {
				return usagef("%v", err)
			}
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return model.WrapError(model.KindConfiguration, err, "open CAR").WithName(args[1])
			}
			defer f.Close()
			archive, err := bundle.ReadCAR(f)
			if err != nil {
				return err
			}
			root, err := archive.Root()
			if err != nil {
				return err
			}
			iopts, err := importOptions(s, false)
			if err != nil {
				return err
			}

			backend, closeFn, err := openBackend(cmd, s, args[0], iopts.Builder.HashName())
			if err != nil {
				return err
			}
			if closeFn != nil {
				defer closeFn()
			}
			res, err := upload.Blocks(cmd.Context(), backend, root, archive.Blocks, uploadOptions(cmd, s, iopts, errOut))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out, cidutil.String(res.Root))
			return nil
		},
	}
	fs := cmd.Flags()
	fs.String("hash", cidutil.DefaultHash, "Multihash function the CAR's blocks must use")
	addNetworkFlags(fs)
	return cmd
}

func newCIDCmd(out io.Writer) *cobra.Command {
	var (
		noWrap  bool
		carPath string
		entries bool
	)
	cmd := &cobra.Command{
		Use:   "cid <file>...",
		Short: "Compute the root CID offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usagef("cid needs at least one file")
			}
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			files, err := collectFiles(args)
			if err != nil {
				return err
			}
			iopts, err := importOptions(s, noWrap)
			if err != nil {
				return err
			}
			imp, err := importer.Import(files, iopts)
			if err != nil {
				return err
			}
			if carPath != "" {
				if err := writeCAR(carPath, imp.Root, imp.Blocks); err != nil {
					return err
				}
			}
			if entries {
				for _, e := range imp.Entries {
					_, _ = fmt.Fprintf(out, "%s\t%s\n", cidutil.String(e.CID), e.Name)
				}
			}
			_, _ = fmt.Fprintln(out, cidutil.String(imp.Root))
			return nil
		},
	}
	fs := cmd.Flags()
	addImportFlags(fs)
	fs.BoolVar(&noWrap, "no-wrap", false, "Use a single file's CID as the root instead of wrapping it in a directory")
	fs.StringVar(&carPath, "car", "", "Also write all blocks to this CAR file")
	fs.BoolVar(&entries, "entries", false, "Print the CID of every file and directory before the root")
	return cmd
}

func newBackendsCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the storage backends built into this binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, b := range registry.List(registry.UsageCLI) {
				if b.Description == "" {
					_, _ = fmt.Fprintln(out, b.Name)
					continue
				}
				_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
			}
			return nil
		},
	}
}

func writeCAR(path string, root cid.Cid, blocks []model.Block) error {
	f, err := os.Create(path)
	if err != nil {
		return model.WrapError(model.KindConfiguration, err, "create CAR").WithName(path)
	}
	if err := bundle.WriteCAR(f, root, blocks); err != nil {
		_ = f.Close()
		return model.WrapError(model.KindConfiguration, err, "write CAR").WithName(path)
	}
	if err := f.Close(); err != nil {
		return model.WrapError(model.KindConfiguration, err, "write CAR").WithName(path)
	}
	log.Infow("wrote CAR", "path", path, "blocks", len(blocks))
	return nil
}
