package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/appraisal-precheck/internal/model"
	"github.com/sells-group/appraisal-precheck/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pre-screening API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
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
			Handler: newRouter(ctx, env),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// newRouter wires the API routes. baseCtx outlives individual requests and
// carries the async run work.
func newRouter(baseCtx context.Context, env *engineEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Idempotency-Key"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/api/appraisals/{appraisalID}/run", func(w http.ResponseWriter, req *http.Request) {
		appraisalID := chi.URLParam(req, "appraisalID")

		key := req.Header.Get("Idempotency-Key")
		if _, err := uuid.Parse(key); err != nil {
			writeError(w, http.StatusBadRequest, "Idempotency-Key header must be a UUID")
			return
		}

		var inputs model.EvidenceInputs
		if err := json.NewDecoder(req.Body).Decode(&inputs); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if inputs.AppraisalID == "" {
			inputs.AppraisalID = appraisalID
		}
		if inputs.AppraisalID != appraisalID {
			writeError(w, http.StatusBadRequest, "appraisal_id does not match URL")
			return
		}

		run, created, err := env.Engine.Register(req.Context(), appraisalID, key)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if created {
			go func() {
				if _, runErr := env.Engine.Run(baseCtx, run.ID, &inputs); runErr != nil {
					zap.L().Error("async run failed",
						zap.String("run_id", run.ID),
						zap.Error(runErr),
					)
				}
			}()
		}

		writeJSON(w, http.StatusAccepted, map[string]any{
			"run_id":       run.ID,
			"appraisal_id": run.AppraisalID,
			"status":       run.Status,
			"created":      created,
		})
	})

	r.Get("/api/runs/{runID}", func(w http.ResponseWriter, req *http.Request) {
		run, err := env.Store.GetRun(req.Context(), chi.URLParam(req, "runID"))
		if err != nil {
			if errors.Is(err, store.ErrRunNotFound) {
				writeError(w, http.StatusNotFound, "run not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	r.Get("/api/appraisals/{appraisalID}/runs", func(w http.ResponseWriter, req *http.Request) {
		runs, err := env.Store.ListRuns(req.Context(), chi.URLParam(req, "appraisalID"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
	})

	r.Get("/api/appraisals/{appraisalID}/ledger", func(w http.ResponseWriter, req *http.Request) {
		appraisalID := chi.URLParam(req, "appraisalID")
		events, err := env.Store.ListEvents(req.Context(), appraisalID, req.URL.Query().Get("run"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if req.URL.Query().Get("download") != "" {
			w.Header().Set("Content-Disposition",
				fmt.Sprintf("attachment; filename=%q", appraisalID+"-ledger.json"))
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": events})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
