package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/sockrpc/client"
	"github.com/luma/sockrpc/cmd/gen"
	"github.com/luma/sockrpc/internal/env"
)

var (
	// Path to an optional TOML config file
	configPath string

	// Overrides SOCKRPC_SOCKET_PATH
	socketPath string

	// Overrides SOCKRPC_LOG_LEVEL
	logLevel string
)

var RootCmd = &cobra.Command{
	Use:   "sockrpc",
	Short: "Talk to a local daemon over its JSON socket protocol",
	Long: `Talk to a local daemon over its newline delimited JSON socket protocol.

Configuration is read from the file given with --config, then .env.local,
then SOCKRPC_* environment variables, then flags.`,
	SilenceUsage: true,
}

func init() {
	flags := RootCmd.PersistentFlags()

	flags.StringVarP(&configPath, "config", "c", "", "TOML configuration file")
	flags.StringVar(&socketPath, "socket", "", "Address of the daemon socket, a unix socket path or tcp://host:port")
	flags.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	RootCmd.AddCommand(CallCmd)
	RootCmd.AddCommand(ListenCmd)
	RootCmd.AddCommand(ProxyCmd)
	RootCmd.AddCommand(FakeDaemonCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration, applies flag overrides and builds the
// logger. The logger also replaces zap's global logger.
func setup(ctx context.Context) (*env.Config, *zap.Logger, error) {
	conf, err := env.LoadConfig(ctx, configPath)
	if err != nil {
		return nil, nil, err
	}

	if socketPath != "" {
		conf.SocketPath = socketPath
	}

	if logLevel != "" {
		conf.LogLevel = logLevel
	}

	log, err := env.MakeLogger(conf.LogLevel, conf.LogEncoding)
	if err != nil {
		return nil, nil, err
	}

	zap.ReplaceGlobals(log)

	return conf, log, nil
}

func newClient(conf *env.Config, log *zap.Logger, metrics client.Metrics) *client.Client {
	return client.New(client.Options{
		Address:        conf.SocketPath,
		ReconnectDelay: conf.ReconnectDelay,
		Log:            log.Named("client"),
		Metrics:        metrics,
	})
}
