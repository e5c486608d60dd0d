package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"

	"github.com/Lllllllleong/croppulse/internal/gcp"
	"github.com/Lllllllleong/croppulse/internal/services"
)

var (
	communityInstance *services.CommunityFunction
	once              sync.Once
	initErr           error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleCommunity", handleCommunity)
}

// main runs the function locally; Cloud Functions uses the registration in init.
func main() {
	if err := funcframework.Start(gcp.GetEnv("PORT", "8080")); err != nil {
		slog.Error("Functions framework exited.", "error", err)
		os.Exit(1)
	}
}

// initialize creates the clients once and reports whether the function can serve.
func initialize(w http.ResponseWriter) bool {
	once.Do(func() {
		communityInstance, initErr = services.NewCommunity(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return false
	}
	return true
}

// handleCommunity serves posts, comments, reactions and the live feed.
func handleCommunity(w http.ResponseWriter, r *http.Request) {
	if !initialize(w) {
		return
	}
	communityInstance.ServeHTTP(w, r)
}
