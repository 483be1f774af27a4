/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jjudge-oj/accounts/config"
	"github.com/jjudge-oj/accounts/internal/logging"
	"github.com/jjudge-oj/accounts/internal/metrics"
	"github.com/jjudge-oj/accounts/internal/mq"
	"github.com/jjudge-oj/accounts/internal/notify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Sends welcome emails queued by the API server",
	Long: `Consumes the welcome email channel and delivers each message over SMTP.
Requires MQ_BACKEND to be set. Usage:

	accounts worker
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		logger, err := logging.New(cfg.Env)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer logger.Sync()

		if cfg.MQ.Backend == config.MQBackendNone {
			return errors.New("MQ_BACKEND is required to run the worker")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		defer broker.Close()

		templates, err := notify.OpenTemplates(ctx, cfg.Storage, logger)
		if err != nil {
			return err
		}
		sender, err := notify.NewSender(cfg.SMTP, logger)
		if err != nil {
			return err
		}

		m := metrics.New()
		if workerMetricsAddr != "" {
			metricsServer := &http.Server{Addr: workerMetricsAddr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Warn("metrics listener stopped", zap.Error(err))
				}
			}()
			defer metricsServer.Close()
		}

		worker := notify.NewWorker(broker, cfg.MQ.WelcomeChannel, templates, sender, logger, m)
		if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		logger.Info("worker stopped", zap.String("channel", cfg.MQ.WelcomeChannel))
		return nil
	},
}

var workerMetricsAddr string

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().StringVar(&workerMetricsAddr, "metrics-addr", ":9090", "address to serve /metrics on, empty to disable")
}
