package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/omnivault/omnivault/internal/api"
	"github.com/omnivault/omnivault/internal/authenticator"
	"github.com/omnivault/omnivault/internal/config"
	"github.com/omnivault/omnivault/internal/custody"
	"github.com/omnivault/omnivault/internal/store"
	"github.com/omnivault/omnivault/internal/tracker"
	"github.com/omnivault/omnivault/internal/transfer"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on bad env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"network", cfg.Network,
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"indexer_url", cfg.IndexerURL(),
	)

	// 2. Signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the wallet store.
	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing store", "error", closeErr)
		}
	}()

	// 4. Platform authenticator. Interactive sessions get a terminal
	// presence prompt; headless ones approve ceremonies unattended.
	auth := authenticator.NewPlatformAuthenticator(terminalPrompt())
	auth.SetCeremonyTimeout(cfg.CeremonyTimeout)

	// 5. Custody coordinator, with legacy plaintext storage when configured.
	var legacy custody.LegacyStore
	if cfg.LegacyPhrasePath != "" {
		legacy = custody.NewFileLegacyStore(cfg.LegacyPhrasePath)
	}
	coordinator := custody.NewCoordinator(st, auth, legacy)

	state, err := coordinator.State(ctx)
	if err != nil {
		return err
	}
	slog.Info("custody state", "state", state)

	// 6. Transfer orchestrator and CCTX tracker.
	orchestrator := transfer.NewOrchestrator(transfer.NewGatewayFactory(0), cfg.GatewayAddress, nil)
	trk := tracker.New(tracker.NewClient(cfg.IndexerURL()), cfg.PollInterval)

	// 7. Serve the local API.
	handler := api.NewHandler(coordinator, orchestrator, trk, cfg.TrackTimeout, cfg.UnlockTimeout)
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewServeMux(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// terminalPrompt returns a presence prompt that asks for confirmation on
// stdin, or nil (approve-all) when stdin is not a terminal.
func terminalPrompt() authenticator.PresencePrompt {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}

	reader := bufio.NewReader(os.Stdin)
	return func(ctx context.Context, reason string) error {
		fmt.Fprintf(os.Stderr, "%s - press Enter to approve, type n to deny: ", reason)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read approval: %w", err)
		}
		if line != "\n" && line != "\r\n" {
			return fmt.Errorf("denied at terminal")
		}
		return nil
	}
}
