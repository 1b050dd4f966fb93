package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/sockrpc/client"
)

var (
	// Overrides SOCKRPC_HTTP_ADDR
	httpAddr string

	// How long a single proxied call may take
	proxyCallTimeout time.Duration
)

func init() {
	flags := ProxyCmd.Flags()

	flags.StringVar(&httpAddr, "http-addr", "", "The address to listen to HTTP requests on")
	flags.DurationVar(&proxyCallTimeout, "call-timeout", 30*time.Second, "How long to wait for the daemon to answer a proxied call")
}

var ProxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Expose the daemon over HTTP",
	Long: `Expose the daemon over HTTP

Routes
	GET  /ping             liveness of the proxy itself
	GET  /status           connection state
	GET  /metrics          event and connection counters
	POST /call/:command    send the request body as the payload, ?expect=<type> or ?v1=true

Usage
	sockrpc proxy --http-addr 127.0.0.1:7362

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, log, err := setup(ctx)
		if err != nil {
			return err
		}
		defer log.Sync()

		if err := conf.RequireSocketPath(); err != nil {
			return err
		}

		if httpAddr != "" {
			conf.HTTPAddr = httpAddr
		}

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		counters := client.NewCounters()
		c := newClient(conf, log, counters)

		// Connecting happens in the background, /status shows when it's done
		go func() {
			if err := c.Connect(ctx); err != nil && ctx.Err() == nil {
				log.Error("Failed to connect to daemon", zap.Error(err))
			}
		}()

		router := NewRouter(RouterOptions{
			Client:      c,
			Counters:    counters,
			CallTimeout: proxyCallTimeout,
			DebugHTTP:   conf.DebugHTTP,
			Log:         log.Named("http"),
		})

		s := &http.Server{
			Addr:    conf.HTTPAddr,
			Handler: router,
		}

		// Initializing the server in a goroutine so that
		// it won't block the graceful shutdown handling below
		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
				signalStop()
			}
		}()

		log.Info("Listening",
			zap.String("httpAddr", conf.HTTPAddr),
			zap.String("socket", conf.SocketPath))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		if err := c.Disconnect(); err != nil {
			log.Error("Failed to disconnect from daemon", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
