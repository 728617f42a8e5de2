// Command nearfs-blockd serves a block store over gRPC so that uploads from
// other machines can use it with --backend=grpc.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"nearfs.io/upload/storage/grpcstore"
	"nearfs.io/upload/storage/registry"

	_ "nearfs.io/upload/storage/ipfs"
	_ "nearfs.io/upload/storage/localfs"
)

var log = logging.Logger("nearfs/blockd")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs := pflag.NewFlagSet("nearfs-blockd", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "localfs", "Block store backend name")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	registry.RegisterFlags(fs, registry.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range registry.List(registry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	store, closeFn, err := registry.Open(*backend, registry.UsageDaemon, registry.Request{Lookup: os.LookupEnv})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer lis.Close()

	s := grpc.NewServer()
	grpcstore.RegisterBlockStoreServer(s, &grpcstore.Server{Backend: store})
	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	log.Infow("listening", "addr", lis.Addr().String(), "backend", *backend)
	fmt.Fprintf(errOut, "nearfs-blockd listening on %s (backend=%s)\n", lis.Addr().String(), *backend)
	if err := s.Serve(lis); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}
