// Entry point for the trendradar HTTP service: chi router, optional Basic
// Auth, SQLite storage, optional MCP over stdio.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/trendradar/dbopen"
	"github.com/hazyhaar/trendradar/idgen"
	"github.com/hazyhaar/trendradar/kit"
	"github.com/hazyhaar/trendradar/trend"
)

const maxIngestBytes = 8 << 20

type fileConfig struct {
	Port               string `yaml:"port"`
	DBPath             string `yaml:"db_path"`
	RulesPath          string `yaml:"rules_path"`
	RankThreshold      int    `yaml:"rank_threshold"`
	DisableNewSection  bool   `yaml:"disable_new_section"`
	DisableNewTracking bool   `yaml:"disable_new_tracking"`
	RetentionDays      int    `yaml:"retention_days"`
	RolloverSpec       string `yaml:"rollover_spec"`
}

// loadConfig reads the optional YAML config, then applies env overrides.
func loadConfig() (*fileConfig, error) {
	cfg := &fileConfig{
		Port:      "8086",
		DBPath:    "db/trendradar.db",
		RulesPath: "config/rules.yaml",
	}
	if path := os.Getenv("CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.Port = env("PORT", cfg.Port)
	cfg.DBPath = env("DB_PATH", cfg.DBPath)
	cfg.RulesPath = env("RULES_PATH", cfg.RulesPath)
	if v := os.Getenv("RANK_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("RANK_THRESHOLD: %w", err)
		}
		cfg.RankThreshold = n
	}
	if v := os.Getenv("RETENTION_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("RETENTION_DAYS: %w", err)
		}
		cfg.RetentionDays = n
	}
	return cfg, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	// Logging.
	var lvl slog.Level
	switch env("LOG_LEVEL", "info") {
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

	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	svc, err := trend.New(db, &trend.Config{
		RulesPath:          cfg.RulesPath,
		RankThreshold:      cfg.RankThreshold,
		DisableNewSection:  cfg.DisableNewSection,
		DisableNewTracking: cfg.DisableNewTracking,
		RetentionDays:      cfg.RetentionDays,
		RolloverSpec:       cfg.RolloverSpec,
	}, logger)
	if err != nil {
		slog.Error("trend service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	svc.Start(ctx)

	// Optional MCP over stdio.
	if env("MCP_TRANSPORT", "") == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "trendradar",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("mcp stdio", "error", err)
			}
		}()
	}

	// Optional Basic Auth on the API: AUTH_USER/AUTH_PASSWORD. The password
	// is bcrypt-hashed at startup so the comparison is constant-time.
	var authGuard func(http.Handler) http.Handler
	if pass := os.Getenv("AUTH_PASSWORD"); pass != "" {
		user := env("AUTH_USER", "admin")
		hash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
		if err != nil {
			slog.Error("auth setup", "error", err)
			os.Exit(1)
		}
		authGuard = basicAuth(user, hash)
	}

	r := chi.NewRouter()
	r.Use(requestID(idgen.NanoID(12)))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		if authGuard != nil {
			r.Use(authGuard)
		}

		// --- Sources ---
		r.Get("/sources", func(w http.ResponseWriter, r *http.Request) {
			sources, err := svc.ListSources(r.Context())
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, sources)
		})

		r.Post("/sources", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			if err := svc.UpsertSource(r.Context(), req.ID, req.Name); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, map[string]string{"id": req.ID, "name": req.Name})
		})

		// --- Ingestion ---
		r.Post("/ingest/snapshot", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Day          string              `json:"day"`
				Observations []trend.Observation `json:"observations"`
			}
			if err := json.NewDecoder(io.LimitReader(r.Body, maxIngestBytes)).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			n, err := svc.IngestSnapshot(r.Context(), req.Day, req.Observations)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, map[string]any{"status": "ok", "stored": n})
		})

		r.Post("/ingest/feed", func(w http.ResponseWriter, r *http.Request) {
			sourceID := r.URL.Query().Get("source_id")
			day := r.URL.Query().Get("day")
			data, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBytes))
			if err != nil {
				writeError(w, 400, err)
				return
			}
			n, err := svc.IngestFeed(r.Context(), day, sourceID, data)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, map[string]any{"status": "ok", "stored": n})
		})

		r.Post("/failures", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Day      string `json:"day"`
				SourceID string `json:"source_id"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			if err := svc.RecordFetchFailure(r.Context(), req.Day, req.SourceID); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, map[string]string{"status": "ok"})
		})

		// --- Queries ---
		r.Get("/news/latest", func(w http.ResponseWriter, r *http.Request) {
			entries, err := svc.LatestNews(r.Context(), queryInt(r, "limit", 50))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, entries)
		})

		r.Get("/news/by-date", func(w http.ResponseWriter, r *http.Request) {
			entries, err := svc.NewsByDate(r.Context(),
				r.URL.Query().Get("day"), queryList(r, "source_id"), queryInt(r, "limit", 0))
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, entries)
		})

		r.Get("/topics/trending", func(w http.ResponseWriter, r *http.Request) {
			stats, err := svc.TrendingTopics(r.Context(),
				r.URL.Query().Get("day"), queryInt(r, "limit", 10))
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, stats)
		})

		r.Get("/stats/keywords", func(w http.ResponseWriter, r *http.Request) {
			stats, err := svc.KeywordStats(r.Context(), r.URL.Query().Get("day"))
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, stats)
		})

		r.Get("/report", func(w http.ResponseWriter, r *http.Request) {
			report, err := svc.BuildReport(r.Context(),
				r.URL.Query().Get("day"), reportMode(r))
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, 200, report)
		})

		r.Get("/report/html", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			err := svc.RenderHTML(r.Context(), w, r.URL.Query().Get("day"), reportMode(r))
			if err != nil {
				slog.Error("render html", "error", err)
			}
		})

		// --- Export ---
		r.Get("/export/news.csv", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
			w.Header().Set("Content-Disposition", `attachment; filename="news.csv"`)
			err := svc.ExportCSV(r.Context(), w,
				r.URL.Query().Get("from"), r.URL.Query().Get("to"),
				queryList(r, "source_id"), queryInt(r, "limit", 0))
			if err != nil {
				slog.Error("export csv", "error", err)
			}
		})

		r.Get("/export/news.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			err := svc.ExportJSON(r.Context(), w,
				r.URL.Query().Get("from"), r.URL.Query().Get("to"),
				queryList(r, "source_id"), queryInt(r, "limit", 0))
			if err != nil {
				slog.Error("export json", "error", err)
			}
		})

		// --- Admin ---
		r.Get("/system/status", func(w http.ResponseWriter, r *http.Request) {
			status, err := svc.SystemStatus(r.Context())
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, status)
		})

		r.Post("/rules/reload", func(w http.ResponseWriter, r *http.Request) {
			if err := svc.ReloadRules(); err != nil {
				writeError(w, 500, err)
				return
			}
			writeJSON(w, 200, map[string]string{"status": "ok"})
		})
	})

	// HTTP server.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port)
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

// --- Middleware ---

// requestID tags every request with an X-Request-ID, honouring one sent
// by an upstream proxy.
func requestID(gen idgen.Generator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = gen()
			}
			w.Header().Set("X-Request-ID", id)
			ctx := kit.WithRequestID(r.Context(), id)
			ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func basicAuth(user string, passwordHash []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok || u != user ||
				bcrypt.CompareHashAndPassword(passwordHash, []byte(p)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="trendradar"`)
				writeJSON(w, 401, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// --- Helpers ---

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
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

func statusFor(err error) int {
	switch {
	case errors.Is(err, trend.ErrInvalidInput), errors.Is(err, trend.ErrUnknownMode):
		return 400
	default:
		return 500
	}
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// queryList collects repeated and comma-separated query values.
func queryList(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.URL.Query()[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func reportMode(r *http.Request) trend.ReportMode {
	if m := r.URL.Query().Get("mode"); m != "" {
		return trend.ReportMode(m)
	}
	return trend.ModeDaily
}
