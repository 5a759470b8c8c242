package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scorer/internal/enrich"
	"github.com/sells-group/lead-scorer/internal/input"
	"github.com/sells-group/lead-scorer/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the batch scoring HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildRouter(env, cfg.Server.APIKey),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildRouter assembles the chi router. An empty apiKey disables the
// X-Api-Key gate.
func buildRouter(env *scoringEnv, apiKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Api-Key"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(requireAPIKey(apiKey))

		r.Post("/score-batch", handleScoreBatch(env))
		r.Get("/score/{domain}", handleScoreDomain(env))
		r.Get("/batch-status/{jobID}", handleBatchStatus(env))
		r.Get("/batch-results/{jobID}", handleBatchResults(env))
		r.Get("/progress/{jobID}", handleProgress(env))
		r.Post("/webhook-test", handleWebhookTest(env))
	})

	return r
}

// requireAPIKey rejects /api requests whose X-Api-Key header does not match.
func requireAPIKey(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey != "" && r.Header.Get("X-Api-Key") != apiKey {
				writeError(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type scoreBatchRequest struct {
	Domains    []string `json:"domains"`
	WebhookURL string   `json:"webhook_url"`
	UseCache   *bool    `json:"use_cache"`
}

func handleScoreBatch(env *scoringEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scoreBatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		domains := make([]string, 0, len(req.Domains))
		for _, d := range req.Domains {
			if strings.TrimSpace(d) != "" {
				domains = append(domains, d)
			}
		}
		if len(domains) == 0 {
			writeError(w, http.StatusBadRequest, "domains is required")
			return
		}
		if len(domains) > input.MaxDomains {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("too many domains: %d (max %d)", len(domains), input.MaxDomains))
			return
		}

		useCache := env.CacheDefault
		if req.UseCache != nil {
			useCache = *req.UseCache
		}

		job, err := env.Store.CreateJob(r.Context(), len(domains), req.WebhookURL)
		if err != nil {
			zap.L().Error("create job failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to create job")
			return
		}

		// The job outlives the request; detach it from the request context.
		go func() {
			_, err := env.Orchestrator.Process(context.Background(), enrich.ProcessOptions{
				JobID:      job.ID,
				Domains:    domains,
				WebhookURL: req.WebhookURL,
				UseCache:   useCache,
			})
			if err != nil {
				zap.L().Error("batch job failed", zap.String("job_id", job.ID), zap.Error(err))
			}
			env.Orchestrator.CleanupProgress(job.ID, 10*time.Minute)
		}()

		writeJSON(w, http.StatusAccepted, map[string]any{
			"job_id":        job.ID,
			"status":        string(model.JobStatusProcessing),
			"total_domains": len(domains),
			"message":       "Batch scoring started. Poll /api/batch-status/{job_id} for progress.",
		})
	}
}

func handleScoreDomain(env *scoringEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		domain := chi.URLParam(r, "domain")
		useCache := env.CacheDefault
		if q := r.URL.Query().Get("use_cache"); q != "" {
			useCache = q != "false"
		}

		result, err := env.Orchestrator.ScoreDomain(r.Context(), domain, useCache)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleBatchStatus(env *scoringEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := env.Store.GetJob(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			zap.L().Error("get job failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load job")
			return
		}
		if job == nil {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"job_id":              job.ID,
			"status":              job.Status,
			"total_domains":       job.Total,
			"processed_domains":   job.Processed,
			"successful_domains":  job.Successful,
			"failed_domains":      job.Failed,
			"progress_percentage": round2(job.ProgressPercentage()),
			"error":               job.Error,
			"created_at":          job.CreatedAt,
			"completed_at":        job.CompletedAt,
		})
	}
}

func handleBatchResults(env *scoringEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := env.Store.GetJob(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			zap.L().Error("get job failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load job")
			return
		}
		if job == nil {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		if !job.Status.Terminal() {
			writeError(w, http.StatusBadRequest, "job is still processing")
			return
		}
		if job.Status == model.JobStatusFailed {
			writeJSON(w, http.StatusOK, map[string]any{
				"job_id": job.ID,
				"status": job.Status,
				"error":  job.Error,
			})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"job_id":  job.ID,
			"status":  job.Status,
			"results": job.Results,
		})
	}
}

func handleProgress(env *scoringEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")

		if snap, ok := env.Orchestrator.Progress(jobID); ok {
			writeJSON(w, http.StatusOK, snap)
			return
		}

		// Tracker sessions are cleaned up after completion; fall back to the
		// persisted job so finished jobs still answer.
		job, err := env.Store.GetJob(r.Context(), jobID)
		if err != nil {
			zap.L().Error("get job failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load job")
			return
		}
		if job == nil {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"job_id":     job.ID,
			"total":      job.Total,
			"percentage": round2(job.ProgressPercentage()),
			"completed":  job.Status.Terminal(),
			"success":    job.Status == model.JobStatusCompleted,
		})
	}
}

type webhookTestRequest struct {
	URL string `json:"url"`
}

func handleWebhookTest(env *scoringEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req webhookTestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}

		if err := env.Notifier.SendTest(r.Context(), req.URL); err != nil {
			writeError(w, http.StatusBadGateway, fmt.Sprintf("webhook delivery failed: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "sent",
			"url":    req.URL,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
