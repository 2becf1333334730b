package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/core-tools/hsu-procmaster/pkg/control"
	"github.com/spf13/cobra"
)

var (
	messageHex  string
	messageFile string
)

var sendCmd = &cobra.Command{
	Use:   "send RECIPIENT [TOKENS...]",
	Short: "Send a message to one process",
	Long:  "Send text tokens to a process, or a byte payload with --hex or --file.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, isBytes, err := bytesPayload()
		if err != nil {
			return err
		}

		recipient, tokens := args[0], args[1:]
		return withGateway(cmd, func(ctx context.Context, gateway control.Contract) error {
			if isBytes {
				return gateway.SendBytes(ctx, sender, recipient, data)
			}
			return gateway.SendText(ctx, sender, recipient, tokens)
		})
	},
}

var broadcastCmd = &cobra.Command{
	Use:   "broadcast [TOKENS...]",
	Short: "Send a message to all processes",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, isBytes, err := bytesPayload()
		if err != nil {
			return err
		}

		return withGateway(cmd, func(ctx context.Context, gateway control.Contract) error {
			if isBytes {
				return gateway.BroadcastBytes(ctx, sender, data)
			}
			return gateway.BroadcastText(ctx, sender, args)
		})
	},
}

func bytesPayload() ([]byte, bool, error) {
	switch {
	case messageHex != "" && messageFile != "":
		return nil, false, fmt.Errorf("--hex and --file are mutually exclusive")
	case messageHex != "":
		data, err := hex.DecodeString(messageHex)
		if err != nil {
			return nil, false, fmt.Errorf("invalid --hex payload: %w", err)
		}
		return data, true, nil
	case messageFile != "":
		data, err := os.ReadFile(messageFile)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read payload: %w", err)
		}
		return data, true, nil
	default:
		return nil, false, nil
	}
}

func init() {
	rootCmd.AddCommand(sendCmd, broadcastCmd)
	for _, cmd := range []*cobra.Command{sendCmd, broadcastCmd} {
		cmd.Flags().StringVar(&messageHex, "hex", "", "byte payload as hex")
		cmd.Flags().StringVar(&messageFile, "file", "", "byte payload read from a file")
	}
}
