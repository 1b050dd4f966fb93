package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/sockrpc/client"
	"github.com/luma/sockrpc/protocol"
)

var ListenCmd = &cobra.Command{
	Use:   "listen <event>...",
	Short: "Print events pushed by the daemon until interrupted",
	Long: `Print events pushed by the daemon until interrupted

Each event is printed as the raw frame, one per line. The client reconnects
whenever the daemon goes away.

Usage
	sockrpc listen IncomingMessage update

`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer signalStop()

		conf, log, err := setup(ctx)
		if err != nil {
			return err
		}
		defer log.Sync()

		if err := conf.RequireSocketPath(); err != nil {
			return err
		}

		c := newClient(conf, log, nil)

		out := cmd.OutOrStdout()
		printer := client.HandlerFunc(func(ctx context.Context, msg *protocol.Message) error {
			_, err := fmt.Fprintf(out, "%s\n", msg.Raw)
			return err
		})

		for _, event := range args {
			c.AddEventHandler(event, printer)
		}

		c.AddEventHandler(protocol.ConnectedEvent, client.HandlerFunc(func(ctx context.Context, msg *protocol.Message) error {
			log.Info("Connected, listening for events", zap.Strings("events", args))
			return nil
		}))

		c.AddEventHandler(protocol.DisconnectedEvent, client.HandlerFunc(func(ctx context.Context, msg *protocol.Message) error {
			log.Warn("Disconnected, waiting to reconnect", zap.Duration("delay", conf.ReconnectDelay))
			return nil
		}))

		if err := c.Connect(ctx); err != nil && ctx.Err() == nil {
			return err
		}

		<-ctx.Done()
		signalStop()

		return c.Disconnect()
	},
}
