//go:build tsnet

package cmd

import (
	"context"
	"log/slog"
	"net/http"

	"tailscale.com/tsnet"

	"github.com/rincondev/warelay/internal/config"
)

// initTailscale serves the same mux on a tailnet listener. Returns a
// cleanup function, or nil when Tailscale is not configured.
func initTailscale(ctx context.Context, cfg *config.Config, handler http.Handler) func() {
	if cfg.Tailscale.Hostname == "" {
		return nil
	}

	srv := &tsnet.Server{
		Hostname:  cfg.Tailscale.Hostname,
		Dir:       cfg.Tailscale.StateDir,
		AuthKey:   cfg.Tailscale.AuthKey,
		Ephemeral: cfg.Tailscale.Ephemeral,
	}

	ln, err := srv.Listen("tcp", ":80")
	if err != nil {
		slog.Error("tailscale listen failed", "error", err)
		srv.Close()
		return nil
	}

	httpSrv := &http.Server{Handler: handler}
	go func() {
		slog.Info("tailscale listener started", "hostname", cfg.Tailscale.Hostname)
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("tailscale serve error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		httpSrv.Close()
	}()

	return func() {
		httpSrv.Close()
		srv.Close()
	}
}
