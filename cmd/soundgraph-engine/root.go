package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rxtd-audio/soundgraph/internal/confio"
	"github.com/rxtd-audio/soundgraph/internal/logging"
)

// rootCommand builds the soundgraph-engine CLI, grounded on the
// teacher's cmd/root.go + cmd/file/file.go: a persistent --debug flag
// bound through viper, signal-driven graceful shutdown via a cancelable
// context, and SilenceUsage/SilenceErrors so a run failure doesn't dump
// a usage page on top of the real error.
func rootCommand() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:   "soundgraph-engine",
		Short: "Offline driver for the soundgraph real-time analysis engine",
	}
	root.PersistentFlags().BoolVarP(&debug, "debug", "d", viper.GetBool("debug"), "enable debug logging")
	if err := viper.BindPFlag("debug", root.PersistentFlags().Lookup("debug")); err != nil {
		fmt.Fprintf(os.Stderr, "error binding flags: %v\n", err)
		os.Exit(1)
	}

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		logging.Init()
		if viper.GetBool("debug") {
			logging.SetLevel(logging.LevelTrace)
		}
		return nil
	}

	root.AddCommand(runCommand(), validateCommand())
	return root
}

func runCommand() *cobra.Command {
	opts := runOptions{tickTimeout: 200 * time.Millisecond}

	cmd := &cobra.Command{
		Use:   "run [input.wav|input.flac]",
		Short: "Decode an audio file and drive the engine over it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.inputPath = args[0]

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
			go func() {
				<-sigChan
				fmt.Println("\nreceived interrupt, shutting down...")
				cancel()
			}()

			logger := logging.ForService("cmd")
			err := runEngine(ctx, opts, logger)
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "soundgraph.yaml", "path to the processing-group configuration")
	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", "", "directory to write finished images into (empty skips image output)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "address to serve /metrics on, e.g. :9090 (empty disables the exporter)")
	cmd.Flags().DurationVar(&opts.tickTimeout, "tick-timeout", opts.tickTimeout, "per-tick kill deadline handed to every handler (spec.md §5)")

	return cmd
}

func validateCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Parse a configuration file and report errors without running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := confio.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("ok: %d processing group(s)\n", len(tree.GroupOrder))
			for _, name := range tree.GroupOrder {
				group := tree.Groups[name]
				fmt.Printf("  %s: %d channel(s), %d handler(s)\n", name, len(group.Channels), len(group.HandlerOrder))
			}
			return nil
		},
	}
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.Flags().StringVarP(&configPath, "config", "c", "soundgraph.yaml", "path to the processing-group configuration")
	return cmd
}
