package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CCU-Computing/490-project-mycalendar/internal/aggregator"
	"github.com/CCU-Computing/490-project-mycalendar/internal/api"
	"github.com/CCU-Computing/490-project-mycalendar/internal/auth"
	"github.com/CCU-Computing/490-project-mycalendar/internal/config"
	"github.com/CCU-Computing/490-project-mycalendar/internal/moodle"
	persistence "github.com/CCU-Computing/490-project-mycalendar/internal/persistence/postgres"
	"github.com/CCU-Computing/490-project-mycalendar/internal/planner"
	httptransport "github.com/CCU-Computing/490-project-mycalendar/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool, cfg.ReminderTopic)
	plannerSvc := planner.NewService(repo)

	client := moodle.NewClient(cfg.MoodleBaseURL, cfg.MoodleTimeout)
	aggSvc := aggregator.NewService(client, cfg.AggregatorFanOut)

	sessions := aggregator.NewStore(cfg.SessionTTL)
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sessions.Sweep()
			}
		}
	}()

	authCfg := auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, TTL: cfg.SessionTTL}
	handler := api.NewHandler(aggSvc, sessions, plannerSvc, authCfg)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Simple CORS middleware for local dev
	cors := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "http://localhost:5173")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	// Basic request logger
	logger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	skipper := func(r *http.Request) bool {
		if r.URL.Path == "/healthz" || strings.HasPrefix(r.URL.Path, "/metrics") {
			return true
		}
		return r.URL.Path == "/v1/session" && r.Method == http.MethodPost
	}
	authMiddleware := auth.NewMiddleware(authCfg, skipper)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, authMiddleware.Wrap(logger(cors(mux))))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("mycalendar api listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
