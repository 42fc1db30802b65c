package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/brand-discovery/internal/model"
	"github.com/sells-group/brand-discovery/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the discovery API server and reconciliation cron",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		r := buildRouter(env)

		// Reconciliation sweep for extract jobs whose webhooks never landed.
		c := cron.New()
		if _, err := c.AddFunc(cfg.Reconciler.Schedule, func() {
			if err := env.Reconciler.Tick(ctx); err != nil {
				zap.L().Error("reconciler tick failed", zap.Error(err))
			}
		}); err != nil {
			return eris.Wrap(err, "schedule reconciler")
		}
		c.Start()
		defer c.Stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func buildRouter(env *appEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/brand-discovery", handleDiscover(env))
	r.Get("/brand-discovery/status", handleStatus(env))
	r.Post("/webhook/firecrawl", env.Webhook.ServeHTTP)
	r.Post("/upload-brand-content", handleUpload(env))
	r.Post("/cleanup-r2", handleCleanup(env))

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func handleDiscover(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Domain string `json:"domain"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeDiscoveryError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Domain == "" {
			writeDiscoveryError(w, http.StatusBadRequest, "domain is required")
			return
		}

		res, err := env.Orchestrator.Discover(r.Context(), req.Domain)
		switch {
		case errors.Is(err, pipeline.ErrInvalidDomain):
			writeDiscoveryError(w, http.StatusBadRequest, "invalid domain")
		case errors.Is(err, pipeline.ErrDiscoveryInFlight):
			writeDiscoveryError(w, http.StatusConflict, "discovery already in progress for this domain")
		case err != nil:
			zap.L().Error("discovery failed", zap.String("domain", req.Domain), zap.Error(err))
			writeDiscoveryError(w, http.StatusInternalServerError, "discovery failed")
		default:
			writeJSON(w, http.StatusAccepted, res)
		}
	}
}

func writeDiscoveryError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func handleStatus(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		domain := r.URL.Query().Get("domain")
		if domain == "" {
			writeError(w, http.StatusBadRequest, "domain query parameter is required")
			return
		}

		res, err := env.Orchestrator.Status(r.Context(), domain)
		if errors.Is(err, pipeline.ErrInvalidDomain) {
			writeError(w, http.StatusBadRequest, "invalid domain")
			return
		}
		if err != nil {
			zap.L().Error("status lookup failed", zap.String("domain", domain), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "status lookup failed")
			return
		}
		if res == nil {
			writeError(w, http.StatusNotFound, "no brand found for domain")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleUpload(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			BrandID string              `json:"brandId"`
			Domain  string              `json:"domain"`
			Content []model.ScrapedPage `json:"content"`
			Options struct {
				Overwrite bool `json:"overwrite"`
			} `json:"options"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Domain == "" || len(req.Content) == 0 {
			writeError(w, http.StatusBadRequest, "domain and content are required")
			return
		}

		result, err := env.Uploader.UploadPages(r.Context(), req.Domain, req.Content, req.Options.Overwrite)
		if err != nil && result == nil {
			zap.L().Error("upload failed",
				zap.String("domain", req.Domain),
				zap.String("brandId", req.BrandID),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "upload failed")
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// handleCleanup deletes every brands/{domain}/ prefix whose domain is not in
// the keep list. An explicitly empty keep list clears the whole prefix.
func handleCleanup(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			BrandsToKeep *[]string `json:"brandsToKeep"`
			DryRun       bool      `json:"dryRun"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.BrandsToKeep == nil {
			writeError(w, http.StatusBadRequest, "brandsToKeep is required")
			return
		}

		keep := make(map[string]bool, len(*req.BrandsToKeep))
		for _, d := range *req.BrandsToKeep {
			keep[d] = true
		}

		keys, err := env.Bucket.List(r.Context(), "brands/")
		if err != nil {
			zap.L().Error("cleanup list failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "cleanup failed")
			return
		}

		var stale []string
		for _, k := range keys {
			if !keep[cleanupDomainOf(k)] {
				stale = append(stale, k)
			}
		}

		if req.DryRun {
			writeJSON(w, http.StatusOK, map[string]any{"matched": len(stale), "kept": len(keys) - len(stale), "dryRun": true})
			return
		}

		deleted, err := env.Bucket.Delete(r.Context(), stale)
		if err != nil {
			zap.L().Error("cleanup delete failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "cleanup failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted, "kept": len(keys) - len(stale)})
	}
}

// cleanupDomainOf extracts the domain segment from a brands/{domain}/... key.
func cleanupDomainOf(key string) string {
	rest := strings.TrimPrefix(key, "brands/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i]
	}
	return rest
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
