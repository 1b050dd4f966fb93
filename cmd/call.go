package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/luma/sockrpc/client"
)

var (
	expectType  string
	callV1      bool
	callTimeout time.Duration
)

var errPayloadNotObject = errors.New("The payload must be a JSON object")

func init() {
	flags := CallCmd.Flags()

	flags.StringVar(&expectType, "expect", "", "Fail unless the response has this type")
	flags.BoolVar(&callV1, "v1", false, "Send a version 1 request, expecting a response of the same type")
	flags.DurationVar(&callTimeout, "timeout", 10*time.Second, "How long to wait for the connection and the response")
}

var CallCmd = &cobra.Command{
	Use:   "call <command> [json-payload]",
	Short: "Send one request to the daemon and print the response data",
	Long: `Send one request to the daemon and print the response data

Usage
	sockrpc call ping --v1
	sockrpc call send_message '{"chat": "abc", "body": "hi"}' --expect message_sent

`,
	Args: cobra.RangeArgs(1, 2),
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

		var payload json.RawMessage
		if len(args) == 2 {
			if !gjson.Valid(args[1]) || !gjson.Parse(args[1]).IsObject() {
				return errPayloadNotObject
			}
			payload = json.RawMessage(args[1])
		}

		ctx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		c := newClient(conf, log, nil)
		defer c.Disconnect()

		if err := c.Connect(ctx); err != nil {
			return fmt.Errorf("Failed to connect to %s: %w", conf.SocketPath, err)
		}

		var data json.RawMessage
		if callV1 {
			data, err = c.CallV1(ctx, args[0], payload)
		} else {
			data, err = c.Call(ctx, args[0], expectType, payload)
		}

		if err != nil {
			log.Debug("Request failed",
				zap.String("command", args[0]),
				zap.Stringer("kind", client.KindOf(err)),
				zap.Error(err))
			return err
		}

		return printJSON(cmd, data)
	},
}

func printJSON(cmd *cobra.Command, data json.RawMessage) error {
	if len(data) == 0 {
		return nil
	}

	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return err
	}

	out.WriteByte('\n')
	_, err := cmd.OutOrStdout().Write(out.Bytes())

	return err
}
