// Command croppulse is a terminal client for the CropPulse triage workflow.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/spf13/cobra"

	"github.com/Lllllllleong/croppulse/internal/auth"
	"github.com/Lllllllleong/croppulse/internal/gcp"
	"github.com/Lllllllleong/croppulse/internal/inference"
)

var (
	projectID    string
	inferenceURL string
	userID       string
	email        string
	displayName  string
	verbose      bool
	timeout      time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "croppulse",
	Short: "CropPulse crop disease triage from the terminal",
	Long: `croppulse classifies a plant photo, asks the follow-up questions for the
predicted disease, saves the answers and prints the recommended treatments.

Identity is taken from --user-id/--email/--name; Firestore access uses the
application default credentials of the configured project.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectID, "project", gcp.GetEnv("PROJECT_ID", ""), "GCP project holding the Firestore data (or set PROJECT_ID)")
	rootCmd.PersistentFlags().StringVar(&inferenceURL, "inference-url", gcp.GetEnv("INFERENCE_URL", inference.DefaultBaseURL), "Disease classifier base URL (or set INFERENCE_URL)")
	rootCmd.PersistentFlags().StringVar(&userID, "user-id", gcp.GetEnv("CROPPULSE_USER_ID", ""), "User id records are saved under")
	rootCmd.PersistentFlags().StringVar(&email, "email", "", "User email")
	rootCmd.PersistentFlags().StringVar(&displayName, "name", "", "User display name")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	rootCmd.AddCommand(diagnoseCmd, treatmentsCmd, historyCmd, fertilizerCmd, reportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// commandContext is canceled by SIGINT/SIGTERM or after --timeout.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func session() (auth.Session, error) {
	s := auth.Session{UserID: userID, Email: email, DisplayName: displayName}
	if !s.Valid() {
		return s, fmt.Errorf("--user-id is required: %w", auth.ErrUnauthenticated)
	}
	return s, nil
}

func firestoreClient(ctx context.Context) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("--project is required (or set PROJECT_ID)")
	}
	return gcp.NewFirestoreClient(ctx, projectID)
}
