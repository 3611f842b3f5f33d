// Package api exposes the dashboard's JSON interface over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/powerdash/internal/acquire"
	"github.com/lox/powerdash/internal/geocode"
)

var validate = validator.New()

type Server struct {
	svc      *acquire.Service
	geocoder *geocode.Client
	port     string
}

func NewServer(svc *acquire.Service, geocoder *geocode.Client, port string) *Server {
	return &Server{svc: svc, geocoder: geocoder, port: port}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/historical", s.handleHistorical)
	mux.HandleFunc("/api/summary", s.handleSummary)
	mux.HandleFunc("/api/windrose", s.handleWindRose)
	mux.HandleFunc("/api/predict", s.handlePredict)
	mux.HandleFunc("/api/geocode", s.handleGeocode)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
