// Command nodeserver runs one cache-serving node: the payload store,
// the worker pool, and the delivery listener.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dreamware/stcache/internal/config"
	"github.com/dreamware/stcache/internal/node"
	"github.com/dreamware/stcache/internal/operator"
	"github.com/dreamware/stcache/internal/strategy"
	"github.com/dreamware/stcache/internal/telemetry"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "nodeserver",
		Short:         "stcache node server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var metricsAddr string
	run := &cobra.Command{
		Use:   "run",
		Short: "Start the node server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(metricsAddr)
		},
	}
	run.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to expose Prometheus metrics on (empty disables)")

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

func runNode(metricsAddr string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := telemetry.NewLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	strat, err := strategy.ByName(cfg.Cache.Strategy, strategy.Config{
		SimpleThreshold:           cfg.Cache.SimpleThresh,
		TwoStepStackedThreshold:   cfg.Cache.TwoStepStack,
		TwoStepImmediateThreshold: cfg.Cache.TwoStepImm,
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Warnw("metrics listener failed", "err", err)
			}
		}()
	}

	srv := node.New(node.Options{
		Host:          cfg.NodeServer.Host,
		Port:          cfg.NodeServer.Port,
		IndexNodeAddr: fmt.Sprintf("%s:%d", cfg.IndexServer.Host, cfg.IndexServer.PortNode),
		Workers:       cfg.NodeServer.Threads,
		Capacities:    cfg.Cache.NodeCapacities(),
		Strategy:      strat,
		// The stub evaluator stands in until an embedding wires a real
		// operator-graph engine; see internal/operator.
		Evaluator: &operator.Stub{},
		Logger:    log,
		Metrics:   metrics,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("starting node server",
		"port", cfg.NodeServer.Port,
		"threads", cfg.NodeServer.Threads,
		"strategy", cfg.Cache.Strategy)

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	log.Infow("node server stopped")
	return nil
}
