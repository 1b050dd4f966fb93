package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/sockrpc/fakedaemon"
	"github.com/luma/sockrpc/storage"
)

var (
	// Where the fake daemon listens, defaults to the configured socket
	listenAddr string

	// File the fake daemon's store is restored from and saved to
	statePath string

	reuseport bool
	trace     bool
)

func init() {
	flags := FakeDaemonCmd.Flags()

	flags.StringVar(&listenAddr, "listen", "", "Address to listen on, a unix socket path or tcp://host:port")
	flags.StringVar(&statePath, "state", "", "JSON file to restore the store from on start and save it to on exit")
	flags.BoolVar(&reuseport, "reuseport", false, "Set SO_REUSEPORT on tcp listeners")
	flags.BoolVar(&trace, "trace", false, "Log every frame, only useful in local debugging")
}

var FakeDaemonCmd = &cobra.Command{
	Use:   "fake-daemon",
	Short: "Run a daemon that speaks the protocol, for local development",
	Long: `Run a daemon that speaks the protocol, for local development

It answers ping, version, get and set, and pushes an update event to every
client whenever a key is set.

Usage
	sockrpc fake-daemon --listen /tmp/daemon.sock
	sockrpc fake-daemon --listen tcp://127.0.0.1:7363 --reuseport

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, log, err := setup(ctx)
		if err != nil {
			return err
		}
		defer log.Sync()

		if listenAddr == "" {
			listenAddr = conf.SocketPath
		}

		if listenAddr == "" {
			return errors.New("No address to listen on, set --listen or SOCKRPC_SOCKET_PATH")
		}

		store := storage.NewInmemoryStore()
		if err := restoreState(store, statePath); err != nil {
			return err
		}

		server := fakedaemon.New(fakedaemon.Options{
			Address:   listenAddr,
			Reuseport: reuseport,
			Trace:     trace,
			Store:     store,
			Log:       log.Named("fakedaemon"),
		})

		if err := server.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()
		signalStop()
		log.Info("Shutting down")

		err = multierr.Append(err, server.Close())
		err = multierr.Append(err, saveState(store, statePath))
		err = multierr.Append(err, store.Close())

		if err != nil {
			log.Error("Failed to shut down cleanly", zap.Error(err))
		}

		return err
	},
}

func restoreState(store storage.Store, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}

	return store.Restore(data)
}

func saveState(store storage.Store, path string) error {
	if path == "" {
		return nil
	}

	data, err := store.Backup()
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
