package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/logger"
	"github.com/spigell/job-aggregator/internal/scheduler"
	"github.com/spigell/job-aggregator/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run saved searches on schedule",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	serveCmd.Flags().Bool("no-scheduler", false, "do not run saved searches")

	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("no-scheduler", serveCmd.Flags().Lookup("no-scheduler"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the job-aggregator", zap.String("version", version))

	d, err := buildDeps(ctx, config, logger)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}
	defer d.Close()

	if config.Scheduler != nil && len(config.Scheduler.Searches) > 0 && !viper.GetBool("no-scheduler") {
		sched, err := scheduler.New(*config.Scheduler, d.aggregator, d.orchestrator, d.configs, logger)
		if err != nil {
			logger.Fatal("configuring the scheduler", zap.Error(err))
		}
		if err := sched.Start(ctx); err != nil {
			logger.Fatal("starting the scheduler", zap.Error(err))
		}
		defer func() {
			select {
			case <-sched.Stop().Done():
			case <-time.After(30 * time.Second):
				logger.Warn("saved searches did not finish in time")
			}
		}()
	}

	opts := config.Server
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = config.Sources.Timeout
	}

	srv := server.New(d.aggregator, d.orchestrator, d.configs, opts, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("http server failed", zap.Error(err))
		return
	}
	logger.Info("exiting", zap.String("reason", "shutdown requested"))
}
