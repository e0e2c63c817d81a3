// Command sahaf is the second-hand book listing tracker service.
//
// It exposes a JSON API for managing tracked books, runs the periodic
// check cycle against Turkish second-hand bookshop sites, and records
// matched listings and notifications in SQLite.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hazyhaar/sahaf/dbopen"
	"github.com/hazyhaar/sahaf/shield"
	"github.com/hazyhaar/sahaf/tracker"
	_ "modernc.org/sqlite"
)

func main() {
	port := env("PORT", "8000")
	dbPath := env("DB_PATH", "data/sahaf.db")
	sitesFile := env("SITES_FILE", "")
	logLevel := env("LOG_LEVEL", "info")

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Database.
	db, err := dbopen.Open(dbPath, dbopen.WithMkdirAll(), dbopen.WithSchema(shield.Schema))
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := tracker.ApplySchema(db); err != nil {
		logger.Error("apply schema", "error", err)
		os.Exit(1)
	}

	// Tracker service.
	cfg := &tracker.Config{}
	cfg.Scrape.SitesFile = sitesFile
	cfg.Scrape.DelayMin = envDuration("SCRAPE_DELAY_MIN", cfg.Scrape.DelayMin)
	cfg.Scrape.DelayMax = envDuration("SCRAPE_DELAY_MAX", cfg.Scrape.DelayMax)
	cfg.Scrape.Fetch.Timeout = envDuration("FETCH_TIMEOUT", cfg.Scrape.Fetch.Timeout)
	svc, err := tracker.New(db, cfg, logger)
	if err != nil {
		logger.Error("init tracker", "error", err)
		os.Exit(1)
	}
	defer svc.Close()
	svc.Start(ctx)

	// Router.
	r := chi.NewRouter()
	stack, rl := shield.DefaultAPIStack(db)
	for _, mw := range stack {
		r.Use(mw)
	}
	done := make(chan struct{})
	defer close(done)
	rl.StartReloader(done)

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"status":            "ok",
			"timestamp":         time.Now().UTC().Format(time.RFC3339),
			"scheduler_running": true,
		}
		if last := svc.LastCheckTime(r.Context()); last != nil {
			resp["last_check"] = last.UTC().Format(time.RFC3339)
		}
		writeJSON(w, 200, resp)
	})

	// Books.
	r.Get("/api/books", func(w http.ResponseWriter, r *http.Request) {
		books, err := svc.ListBooks(r.Context())
		if err != nil {
			writeError(w, 500, err)
			return
		}
		if books == nil {
			books = []*tracker.Book{}
		}
		writeJSON(w, 200, books)
	})

	r.Post("/api/books", func(w http.ResponseWriter, r *http.Request) {
		b := tracker.Book{EnableDiscovery: true}
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			writeError(w, 400, err)
			return
		}
		if err := svc.CreateBook(r.Context(), &b); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 201, b)
	})

	r.Get("/api/books/{bookID}", func(w http.ResponseWriter, r *http.Request) {
		b, err := svc.GetBook(r.Context(), chi.URLParam(r, "bookID"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, b)
	})

	r.Put("/api/books/{bookID}", func(w http.ResponseWriter, r *http.Request) {
		b := tracker.Book{EnableDiscovery: true}
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			writeError(w, 400, err)
			return
		}
		b.ID = chi.URLParam(r, "bookID")
		if err := svc.UpdateBook(r.Context(), &b); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, b)
	})

	r.Delete("/api/books/{bookID}", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteBook(r.Context(), chi.URLParam(r, "bookID")); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, map[string]string{"status": "deleted"})
	})

	r.Post("/api/books/{bookID}/check", func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.CheckBook(r.Context(), chi.URLParam(r, "bookID"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, res)
	})

	r.Post("/api/books/{bookID}/add-site", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		b, err := svc.AddCustomSite(r.Context(), chi.URLParam(r, "bookID"), req.URL)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, b)
	})

	r.Delete("/api/books/{bookID}/remove-site", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		b, err := svc.RemoveCustomSite(r.Context(), chi.URLParam(r, "bookID"), req.URL)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, b)
	})

	// Listings.
	r.Get("/api/listings/{bookID}", func(w http.ResponseWriter, r *http.Request) {
		listings, err := svc.Listings(r.Context(), chi.URLParam(r, "bookID"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if listings == nil {
			listings = []*tracker.Listing{}
		}
		writeJSON(w, 200, listings)
	})

	// Notifications.
	r.Get("/api/notifications", func(w http.ResponseWriter, r *http.Request) {
		notifs, err := svc.Notifications(r.Context())
		if err != nil {
			writeError(w, 500, err)
			return
		}
		if notifs == nil {
			notifs = []*tracker.Notification{}
		}
		writeJSON(w, 200, notifs)
	})

	r.Put("/api/notifications/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.MarkNotificationRead(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	// Settings.
	r.Get("/api/settings", func(w http.ResponseWriter, r *http.Request) {
		s, err := svc.Settings(r.Context())
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, s)
	})

	r.Put("/api/settings", func(w http.ResponseWriter, r *http.Request) {
		s := tracker.DefaultSettings()
		if err := json.NewDecoder(r.Body).Decode(s); err != nil {
			writeError(w, 400, err)
			return
		}
		if err := svc.UpdateSettings(r.Context(), s); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, s)
	})

	// Debug: run one search without persisting.
	r.Get("/api/debug/scrape-test", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		cands, err := svc.ScrapeTest(r.Context(), q.Get("site"), q.Get("title"), q.Get("author"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if cands == nil {
			cands = []tracker.Candidate{}
		}
		writeJSON(w, 200, map[string]any{"count": len(cands), "candidates": cands})
	})

	// HTTP server.
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// --- Helpers ---

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		slog.Warn("invalid duration, using default", "key", key, "value", v)
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// writeServiceError maps tracker sentinel errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tracker.ErrNotFound):
		writeError(w, 404, err)
	case errors.Is(err, tracker.ErrInvalidInput):
		writeError(w, 400, err)
	case errors.Is(err, tracker.ErrCheckInProgress):
		writeError(w, 409, err)
	default:
		writeError(w, 500, err)
	}
}
