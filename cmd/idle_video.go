package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/smazurov/camrelay/internal/ffmpeg"
	"github.com/smazurov/camrelay/internal/idle"
	"github.com/smazurov/camrelay/internal/logging"
)

// CreateIdleVideoCmd creates the idle-video command.
func CreateIdleVideoCmd() *cobra.Command {
	var output string
	var resolution string
	var seconds int
	var ffmpegBin string

	cmd := &cobra.Command{
		Use:   "idle-video <image>",
		Short: "Render an image into a looping idle video",
		Long:  `Renders image into the mpegts clip a camera loops while idle, the same way the service does at runtime.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.Initialize(logging.Config{Level: "info", Format: "text"})

			res, err := ffmpeg.ParseResolution(resolution)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			gen := idle.New(idle.Config{
				Builder: ffmpeg.NewBuilder(ffmpegBin, "", false),
				Seconds: seconds,
			})
			if err := gen.Render(ctx, args[0], res, output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s, %ds)\n", output, res, seconds)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "idle.ts", "Output file")
	cmd.Flags().StringVarP(&resolution, "resolution", "r", "1280x720", "Video resolution")
	cmd.Flags().IntVar(&seconds, "seconds", 10, "Clip length in seconds")
	cmd.Flags().StringVar(&ffmpegBin, "ffmpeg", "ffmpeg", "ffmpeg binary")
	return cmd
}
