package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/parley/pkg/audio/textcodec"
	"github.com/MrWong99/parley/pkg/audio/wav"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.wav>",
		Short: "Print the format of a WAV container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			info, err := wav.ReadInfo(c)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "format:      %d\n", info.Format)
			fmt.Fprintf(w, "channels:    %d\n", info.Channels)
			fmt.Fprintf(w, "sample rate: %d Hz\n", info.SampleRate)
			fmt.Fprintf(w, "bits:        %d\n", info.BitsPerSample)
			fmt.Fprintf(w, "data:        %d bytes at offset %d\n", info.DataSize, info.DataOffset)
			if frameBytes := info.Channels * info.BitsPerSample / 8; frameBytes > 0 && info.SampleRate > 0 {
				frames := info.DataSize / frameBytes
				d := time.Duration(frames) * time.Second / time.Duration(info.SampleRate)
				fmt.Fprintf(w, "duration:    %s (%d frames)\n", d.Round(time.Millisecond), frames)
			}
			return nil
		},
	}
}

func newB64Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "b64",
		Short: "Convert WAV files to and from the base64 text form used by JSON speech backends",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "encode <in.wav> <out.txt>",
			Short: "Encode a WAV container as base64 text",
			Args:  cobra.ExactArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				c, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				if _, err := wav.ReadInfo(c); err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				return os.WriteFile(args[1], []byte(textcodec.ToText(c)), 0o644)
			},
		},
		&cobra.Command{
			Use:   "decode <in.txt> <out.wav>",
			Short: "Decode base64 text back into a WAV container",
			Args:  cobra.ExactArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				payload, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				c, err := textcodec.FromText(strings.TrimSpace(string(payload)))
				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				return os.WriteFile(args[1], c, 0o644)
			},
		},
	)
	return cmd
}
