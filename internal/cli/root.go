// Package cli provides the command-line interface for chatlog.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/chatlog-go/internal/client"
	"github.com/raphaelgruber/chatlog-go/internal/config"
	"github.com/raphaelgruber/chatlog-go/internal/metrics"
	"github.com/raphaelgruber/chatlog-go/internal/models"
	"github.com/raphaelgruber/chatlog-go/internal/store"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	userID    int64
	serverURL string

	// Global config, logger and store
	cfg         config.Config
	logger      *slog.Logger
	closeLogger func() error
	chatStore   *store.Store
	svc         conversationService
)

// conversationService is what the conversation commands run against: the
// local store, or a chatlog server when --server is set.
type conversationService interface {
	Create(ctx context.Context, userID int64) (uuid.UUID, error)
	ListByUser(ctx context.Context, userID int64) ([]models.ConversationSummary, error)
	Get(ctx context.Context, userID int64, id uuid.UUID) (*models.Conversation, error)
	AppendMessage(ctx context.Context, in store.AppendInput) (*models.Conversation, error)
	Rename(ctx context.Context, userID int64, id uuid.UUID, title string) (*models.Conversation, error)
	Close(ctx context.Context) error
}

// storeMetrics collects operation statistics for the process lifetime.
var storeMetrics = metrics.NewCollector()

// connectTimeout bounds backend setup in PersistentPreRunE.
const connectTimeout = 30 * time.Second

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "chatlog",
	Short: "Per-user conversation log store",
	Long: `Chatlog stores per-user chat conversations as ordered message logs.

A message can be resubmitted at an earlier point of a conversation: everything
after that point is discarded and the new exchange is appended in one atomic
step. Use 'chatlog serve' to expose the store over HTTP, or the other commands
to inspect and edit conversations directly.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip backend connection for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}
		logger, closeLogger = config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		slog.SetDefault(logger)

		if serverURL != "" && cmd != serveCmd {
			svc = client.New(serverURL)
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		repo, err := openRepository(ctx, cfg, logger, cmd == serveCmd && serveWipe)
		if err != nil {
			return err
		}

		chatStore, err = store.New(store.Options{
			Repository: repo,
			Logger:     logger,
			Metrics:    storeMetrics,
		})
		if err != nil {
			_ = repo.Close(ctx)
			return err
		}
		svc = chatStore
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if svc != nil {
			if err := svc.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
			}
		}
		if closeLogger != nil {
			_ = closeLogger()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "chatlog server URL; commands go over HTTP instead of opening the backend")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(appendCmd)
}

// addUserFlag registers the required --user flag on commands that act on
// one user's conversations.
func addUserFlag(cmd *cobra.Command) {
	cmd.Flags().Int64VarP(&userID, "user", "u", 0, "user id owning the conversations")
	_ = cmd.MarkFlagRequired("user")
}
