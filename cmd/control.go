// Package cmd holds the subcommands of the camrelay binary.
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	camnats "github.com/smazurov/camrelay/internal/nats"
)

// CreateControlCmd creates the control command.
func CreateControlCmd() *cobra.Command {
	var natsURL string
	var prefix string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "control <device> <payload>",
		Short: "Send a control command to a device",
		Long: `Publishes payload on the control subject of device and waits for the running service to accept it. ` +
			`Cameras take START, STOP or SNAPSHOT; base stations take JSON such as {"mode":"armed"} or {"siren":"on"}.`,
		Example: `  camrelay control front_door START
  camrelay control home '{"siren":{"duration":30,"volume":8}}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := camnats.NewControlClient(natsURL, camnats.Subjects{Prefix: prefix}, timeout)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Send(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&natsURL, "url", "nats://127.0.0.1:4222", "NATS server URL")
	cmd.Flags().StringVar(&prefix, "prefix", camnats.DefaultPrefix, "Subject prefix of the service")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "How long to wait for the service")
	return cmd
}
