package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wasatch-geo/blocktrends/internal/model"
	"github.com/wasatch-geo/blocktrends/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the rendered map and dataset API locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ds, err := store.ReadDatasetCSV(ctx, cfg.Paths.EnrichedOutput())
		if err != nil {
			return eris.Wrap(err, "serve: load enriched dataset (run build first)")
		}

		handler := newServeRouter(ds, cfg.Paths.MapOutput(), cfg.Journal.Path)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: handler,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.Int("block_groups", len(ds.Records)),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "serve: listen")
		}
		return nil
	},
}

func newServeRouter(ds *model.Dataset, mapPath, journalPath string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		if _, err := os.Stat(mapPath); err != nil {
			http.Error(w, "map not built yet", http.StatusNotFound)
			return
		}
		http.ServeFile(w, r, mapPath)
	})

	r.Get("/api/blockgroups", func(w http.ResponseWriter, r *http.Request) {
		records := ds.Records
		if county := r.URL.Query().Get("county"); county != "" {
			filtered := make([]model.BlockGroupRecord, 0, len(records))
			for _, rec := range records {
				if rec.CountyFIPS == county {
					filtered = append(filtered, rec)
				}
			}
			records = filtered
		}
		writeJSON(w, http.StatusOK, records)
	})

	r.Get("/api/blockgroups/{geoid}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "geoid")
		for i := range ds.Records {
			if string(ds.Records[i].GEOID) == id {
				writeJSON(w, http.StatusOK, ds.Records[i])
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "block group not found"})
	})

	r.Get("/api/summary", func(w http.ResponseWriter, r *http.Request) {
		tierCounts := map[string]int{}
		for i := range ds.Records {
			tierCounts[ds.Records[i].TierLabel]++
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"block_groups":      len(ds.Records),
			"state_avg_pct_new": ds.StateAvgPctNew,
			"tier_counts":       tierCounts,
		})
	})

	r.Get("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		journal, err := store.OpenJournal(journalPath)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		defer journal.Close()
		runs, err := journal.List(r.Context(), 20)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
