package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brandscope/intel-cli/internal/job"
	"github.com/brandscope/intel-cli/internal/model"
	"github.com/brandscope/intel-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the collection API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Route("/api/jobs", func(r chi.Router) {
			r.Post("/", handleSubmit(env))
			r.Get("/", handleList(env))
			r.Get("/{jobID}", handleStatus(env))
			r.Get("/{jobID}/result", handleResult(env))
			r.Delete("/{jobID}", handleCancel(env))
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

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

func handleSubmit(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.CollectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		j, err := env.Manager.StartJob(r.Context(), req)
		if err != nil {
			writeError(w, http.StatusBadRequest, eris.ToString(err, false))
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]any{
			"job_id":                     j.ID,
			"status":                     string(j.Status),
			"estimated_duration_seconds": int(env.Manager.EstimatedDuration(len(j.RequestedSources)).Seconds()),
		})
	}
}

func handleStatus(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")
		j, err := env.Manager.GetStatus(r.Context(), jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "job not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "status lookup failed")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"job_id":            j.ID,
			"status":            string(j.Status),
			"progress":          j.Progress,
			"current_step":      j.CurrentStep,
			"completed_sources": j.CompletedSources,
			"remaining_sources": j.RemainingSources,
		})
	}
}

func handleResult(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")
		data, err := env.Manager.GetResult(r.Context(), jobID)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				writeError(w, http.StatusNotFound, "job not found")
			case errors.Is(err, job.ErrNotReady):
				writeError(w, http.StatusConflict, "result not ready")
			default:
				writeError(w, http.StatusInternalServerError, "result lookup failed")
			}
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"brand_data":      data.BrandData,
			"competitor_data": data.CompetitorData,
		})
	}
}

func handleCancel(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")
		if !env.Manager.CancelJob(r.Context(), jobID) {
			writeError(w, http.StatusNotFound, "job not found or already terminal")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "cancelled": true})
	}
}

func handleList(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := env.Manager.ListActive(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
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

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
