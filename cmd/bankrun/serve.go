package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/solana-token-lab/bankrun/internal/bank"
	"github.com/solana-token-lab/bankrun/internal/config"
	"github.com/solana-token-lab/bankrun/internal/logstream"
	"github.com/solana-token-lab/bankrun/internal/observability"
	"github.com/solana-token-lab/bankrun/internal/recorder"
	"github.com/solana-token-lab/bankrun/internal/scenario"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a long-lived bank session with metrics and a log stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, newLogger("serve"))
		},
	}
	cmd.Flags().String("metrics-addr", ":9090", "Prometheus metrics and status HTTP address")
	cmd.Flags().String("logstream-addr", ":8900", "logsSubscribe WebSocket address")
	cmd.Flags().Duration("slot-interval", 400*time.Millisecond, "slot production interval (0 disables)")
	cmd.Flags().Duration("scenario-interval", 30*time.Second, "interval between scenario runs")
	cmd.Flags().Uint64("value", scenario.DefaultValue, "value stored in the puppet account")
	cmd.Flags().Bool("load-fixtures", false, "preload genesis accounts from PostgreSQL")
	return cmd
}

// server tracks the state reported by /status.
type server struct {
	cfg     *config.Config
	sess    *scenario.Session
	logger  *log.Logger
	started time.Time

	mu       sync.Mutex
	runs     int
	failures int
	last     *scenario.Result
	lastErr  string
}

func serve(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	if cfg.Backend != config.BackendBank {
		return errors.New("serve only supports the bank backend")
	}
	payer, err := loadWallet(cfg)
	if err != nil {
		return err
	}
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	hub := logstream.NewHub(logstream.Options{Logger: newLogger("logstream")})
	rec := recorder.New(recorder.Options{Stores: st.receipts, Logger: newLogger("recorder")})

	sess, err := scenario.StartSession(ctx, scenario.SessionOptions{
		Fixtures: st.fixtures,
		Sinks:    []bank.ReceiptSink{rec, hub},
		Payer:    payer,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	s := &server{cfg: cfg, sess: sess, logger: logger, started: time.Now()}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", s.handleStatus)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listen(ctx, &http.Server{Addr: cfg.MetricsAddr, Handler: mux}, logger)
	})
	g.Go(func() error {
		defer hub.Close()
		return listen(ctx, &http.Server{Addr: cfg.LogStreamAddr, Handler: hub}, logger)
	})
	if cfg.SlotInterval > 0 {
		g.Go(func() error {
			s.produceSlots(ctx)
			return nil
		})
	}
	g.Go(func() error {
		s.runScenarios(ctx)
		return nil
	})

	logger.Printf("Serving metrics on %s and log stream on %s", cfg.MetricsAddr, cfg.LogStreamAddr)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Println("Shutdown complete")
	return nil
}

// listen serves srv until ctx is cancelled.
func listen(ctx context.Context, srv *http.Server, logger *log.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown %s: %v", srv.Addr, err)
		}
		return ctx.Err()
	}
}

func (s *server) produceSlots(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SlotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sess.Bank.AdvanceSlot()
		}
	}
}

func (s *server) runScenarios(ctx context.Context) {
	interval := s.cfg.ScenarioInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *server) runOnce(ctx context.Context) {
	res, err := scenario.Run(ctx, s.sess.Provider, scenario.Options{
		Value:     s.cfg.Value,
		Versioned: s.cfg.Versioned,
		ViaMaster: s.cfg.ViaMaster,
		Logger:    s.logger,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	if err != nil {
		s.failures++
		s.lastErr = err.Error()
		s.logger.Printf("Scenario failed: %v", err)
		return
	}
	s.last = res
	s.lastErr = ""
	s.logger.Printf("Scenario completed in %v", res.Duration)
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	Slot       uint64 `json:"slot"`
	Payer      string `json:"payer"`
	Runs       int    `json:"runs"`
	Failures   int    `json:"failures"`
	LastPuppet string `json:"last_puppet,omitempty"`
	LastValue  uint64 `json:"last_value,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	slot, _ := s.sess.Bank.GetSlot(r.Context())

	s.mu.Lock()
	resp := StatusResponse{
		Status:    "ok",
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Slot:      slot,
		Payer:     s.sess.Payer.PublicKey().String(),
		Runs:      s.runs,
		Failures:  s.failures,
		LastError: s.lastErr,
	}
	if s.last != nil {
		resp.LastPuppet = s.last.Puppet.String()
		resp.LastValue = s.last.Value
	}
	s.mu.Unlock()
	if resp.LastError != "" {
		resp.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
