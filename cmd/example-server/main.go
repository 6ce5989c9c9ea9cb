package main

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Backend de análise falso para rodar o gateway localmente.
// FAIL_RATE (0..1) faz uma fração das chamadas responder 503, para ver o breaker abrir.
func main() {
	log, _ := zap.NewDevelopment()
	defer func() { _ = log.Sync() }()

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	failRate, _ := strconv.ParseFloat(os.Getenv("FAIL_RATE"), 64)
	latency, _ := time.ParseDuration(os.Getenv("LATENCY"))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	for path, kind := range map[string]string{
		"/scan":     "token",
		"/validate": "trust",
		"/analyze":  "analysis",
		"/process":  "bias",
	} {
		mux.Handle("POST "+path, analyzeHandler(log, kind, failRate, latency))
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("example backend listening", zap.String("addr", addr), zap.Float64("failRate", failRate), zap.Duration("latency", latency))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", zap.Error(err))
	}
}

func analyzeHandler(log *zap.Logger, kind string, failRate float64, latency time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid JSON body"})
			return
		}

		if latency > 0 {
			select {
			case <-time.After(latency):
			case <-r.Context().Done():
				return
			}
		}
		if failRate > 0 && rand.Float64() < failRate {
			log.Info("simulated failure", zap.String("path", r.URL.Path))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "simulated failure"})
			return
		}

		fields := make([]string, 0, len(body))
		for k := range body {
			fields = append(fields, k)
		}
		log.Info("analyzed", zap.String("path", r.URL.Path), zap.Strings("fields", fields))
		writeJSON(w, http.StatusOK, map[string]any{
			"analysis_id": uuid.NewString(),
			"kind":        kind,
			"score":       rand.Float64(),
			"received":    fields,
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
