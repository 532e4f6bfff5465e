// Command indexserver runs the index: the global catalog, the job
// scheduler, and the reorganization pass.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamware/stcache/internal/config"
	"github.com/dreamware/stcache/internal/index"
	"github.com/dreamware/stcache/internal/telemetry"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "indexserver",
		Short:         "stcache index server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var reorgPeriod time.Duration
	run := &cobra.Command{
		Use:   "run",
		Short: "Start the index server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(reorgPeriod)
		},
	}
	run.Flags().DurationVar(&reorgPeriod, "reorg-period", 0, "period between reorganization passes (0 disables)")

	root.AddCommand(run)
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runIndex(reorgPeriod time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := telemetry.NewLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	srv := index.New(index.Options{
		Host:          cfg.IndexServer.Host,
		FrontendPort:  cfg.IndexServer.PortFrontend,
		NodePort:      cfg.IndexServer.PortNode,
		ReorgStrategy: cfg.Cache.ReorgStrategy,
		Logger:        log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if reorgPeriod > 0 {
		go srv.RunReorgLoop(ctx, reorgPeriod)
	}

	log.Infow("starting index server",
		"frontend_port", cfg.IndexServer.PortFrontend,
		"node_port", cfg.IndexServer.PortNode,
		"reorg_strategy", cfg.Cache.ReorgStrategy)

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	log.Infow("index server stopped")
	return nil
}
