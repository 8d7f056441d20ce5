package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/chatlog-go/internal/api"
	"github.com/spf13/cobra"
)

var (
	serveAddr string
	serveWipe bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the conversation store over HTTP",
	Long: `Start the JSON HTTP API.

Every /conversations request must carry the authenticated user id in the
X-User-ID header. Prometheus metrics are served on /metrics and operation
statistics on /stats.

Examples:
  chatlog serve
  chatlog serve --addr :9000
  CHATLOG_BACKEND=postgres POSTGRES_URL=postgres://... chatlog serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from CHATLOG_LISTEN_ADDR)")
	serveCmd.Flags().BoolVar(&serveWipe, "wipe", false, "wipe all conversations on startup (testing only)")
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := cfg.ListenAddr
	if serveAddr != "" {
		addr = serveAddr
	}

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(chatStore, logger),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting chatlog server", "addr", addr, "backend", cfg.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-quit:
	}

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
