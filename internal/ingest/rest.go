package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"tripscore/internal/catalog"
	"tripscore/internal/config"
	"tripscore/internal/model"
)

type RESTServer struct {
	cfg     *config.Manager
	catalog *catalog.Catalog
	out     chan<- model.Submission
	logger  *slog.Logger
}

func NewRESTServer(cfg *config.Manager, cat *catalog.Catalog, out chan<- model.Submission, logger *slog.Logger) *RESTServer {
	return &RESTServer{cfg: cfg, catalog: cat, out: out, logger: logger}
}

func StartREST(ctx context.Context, cfg *config.Manager, cat *catalog.Catalog, out chan<- model.Submission, logger *slog.Logger) *http.Server {
	current := cfg.Get().Ingest.REST
	if !current.Enabled {
		if logger != nil {
			logger.Info("rest ingest disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("rest ingest enabled", "addr", current.Addr)
	}
	server := NewRESTServer(cfg, cat, out, logger)
	httpServer := &http.Server{Addr: current.Addr, Handler: server.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("rest ingest server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *RESTServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/trips", s.handleTrips)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

func (s *RESTServer) handleTrips(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.Get().Ingest.REST.MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	trips, err := DecodeTrips(body, s.catalog)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("rest decode error", "err", err)
		}
		writeError(w, StatusFor(err), err)
		return
	}

	accepted := make([]string, 0, len(trips))
	dropped := 0
	for _, trip := range trips {
		if SendNonBlocking(r.Context(), s.out, submission(trip, "rest"), s.logger) {
			accepted = append(accepted, trip.ID)
			continue
		}
		dropped++
	}
	status := http.StatusAccepted
	if len(accepted) == 0 && dropped > 0 {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"accepted": len(accepted),
		"dropped":  dropped,
		"trip_ids": accepted,
	})
}

// StatusFor maps decode failures onto HTTP status codes.
func StatusFor(err error) int {
	var unknown *catalog.UnknownSignClassError
	switch {
	case errors.As(err, &unknown):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidPayload):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
