package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/realtime-ai/focusstream/pkg/classifier"
	"github.com/realtime-ai/focusstream/pkg/config"
	"github.com/realtime-ai/focusstream/pkg/eeg"
	"github.com/realtime-ai/focusstream/pkg/hub"
	"github.com/realtime-ai/focusstream/pkg/logging"
	"github.com/realtime-ai/focusstream/pkg/pipeline"
	"github.com/realtime-ai/focusstream/pkg/server"
	"github.com/realtime-ai/focusstream/pkg/trace"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Stream live focus state to WebSocket clients",
	Long: `Load the recording and classifier, then advance the pipeline once per chunk
and broadcast each tick's state to every connected WebSocket client until
interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8765)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, err := serve(ctx, cfg)
	return err
}

// serveSummary describes a finished serve run.
type serveSummary struct {
	Stats    hub.Stats
	Verdicts int
	Focused  int
}

// serve runs the broadcast loop and HTTP server until ctx is cancelled.
func serve(ctx context.Context, c *config.Config) (serveSummary, error) {
	logger := logging.For("cli")
	var summary serveSummary

	if err := trace.Initialize(ctx, c.TraceConfig()); err != nil {
		return summary, fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := trace.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("tracing shutdown")
		}
	}()

	var (
		p   *pipeline.Pipeline
		rec *eeg.Recording
	)
	err := trace.WithSpan(ctx, "focusd.startup", func(context.Context) error {
		var err error
		p, rec, err = buildPipeline(c)
		return err
	})
	if err != nil {
		return summary, err
	}

	// Observer runs on the Run goroutine, which is this one
	opts := []hub.Option{hub.WithSnapshotObserver(func(s *pipeline.Snapshot) {
		if !s.NewVerdict {
			return
		}
		summary.Verdicts++
		if s.Verdict.Label == classifier.Focused {
			summary.Focused++
		}
	})}
	if c.Broadcast.SendTimeout > 0 {
		opts = append(opts, hub.WithSendTimeout(c.Broadcast.SendTimeout))
	}
	h := hub.New(p, c.TickInterval(), opts...)

	srv := server.New(c.ServerConfig(), h)
	if err := srv.Start(ctx); err != nil {
		return summary, fmt.Errorf("starting server: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"addr":       c.Server.Addr,
		"data":       rec.Path,
		"duration_s": rec.Duration(),
		"tick":       c.TickInterval(),
	}).Info("focusd serving")

	h.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return summary, fmt.Errorf("stopping server: %w", err)
	}

	summary.Stats = h.Stats()
	logger.WithFields(logrus.Fields{
		"ticks":    summary.Stats.Ticks,
		"verdicts": summary.Verdicts,
		"focused":  summary.Focused,
	}).Info("focusd stopped")
	return summary, nil
}
