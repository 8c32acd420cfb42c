package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/saas-log-collector/internal/checkpoint"
	"github.com/withObsrvr/saas-log-collector/internal/collector"
	"github.com/withObsrvr/saas-log-collector/internal/config"
	"github.com/withObsrvr/saas-log-collector/internal/logging"
	"github.com/withObsrvr/saas-log-collector/internal/metrics"
	"github.com/withObsrvr/saas-log-collector/internal/scheduler"
)

// firstRunDelay is how long the scheduler waits before the first cycle.
const firstRunDelay = time.Second

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown handler
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		slog.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "saas-log-collector",
		Short: "Collect JFrog SaaS platform logs into local files",
		Long: `saas-log-collector downloads the log files a JFrog SaaS instance ships into
its log repository, decompresses them below a local target directory and records
its progress as marker objects in an audit repository, so that concurrent or
restarted collectors never mark a file done twice.`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newRunCmd(),
		newOnceCmd(),
		newGenerateCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)
	return root
}

func newRunCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Collect logs on a fixed interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return collect(cmd.Context(), path, false)
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "path to the YAML configuration file")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func newOnceCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single collection cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return collect(cmd.Context(), path, true)
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "path to the YAML configuration file")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func newGenerateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sample configuration written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "generate", "g", "", "where to write the sample configuration")
	_ = cmd.MarkFlagRequired("generate")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "saas-log-collector %s (%s)\n", collector.Version, collector.GitSHA)
		},
	}
}

// collect loads the configuration, sets up logging and metrics and runs
// either one cycle or the interval scheduler.
func collect(ctx context.Context, path string, once bool) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := "info"
	if cfg.Log.DebugMode {
		level = "debug"
	}
	closer, err := logging.Setup(logging.Config{
		Format: cfg.Log.Format,
		Level:  level,
		File:   cfg.Log.File,
		UTC:    cfg.Log.PrintWithUTC,
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer closer.Close()

	log := logging.Component("main")
	log.Info("saas log collector starting",
		"version", collector.Version,
		"git_sha", collector.GitSHA,
		"jpd_url", cfg.Connection.JPDURL,
		"solutions", cfg.Log.SolutionsEnabled,
		"interval", cfg.Interval(),
	)

	if cfg.Metrics.Enabled {
		metrics.Init(cfg.Metrics.Namespace)
		go func() {
			log.Info("metrics server listening", "address", cfg.Metrics.Address)
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	c, err := collector.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create collector: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn("error closing collector", "error", err)
		}
	}()

	if once {
		cp := c.RunCycle(ctx)
		if cp.Outcome != checkpoint.OutcomeCompleted {
			return fmt.Errorf("cycle %s: %s", cp.Outcome, cp.Reason)
		}
		return nil
	}

	scheduler.New(cfg.Interval(), firstRunDelay).Run(ctx, func(ctx context.Context) {
		c.RunCycle(ctx)
	})
	log.Info("shutdown complete")
	return nil
}
