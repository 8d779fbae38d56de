// Package api exposes scored reports, vehicle summaries, the sign catalog and
// synchronous scoring over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tripscore/internal/catalog"
	"tripscore/internal/config"
	"tripscore/internal/engine"
	"tripscore/internal/ingest"
	"tripscore/internal/metrics"
	"tripscore/internal/model"
	"tripscore/internal/pipeline"
	"tripscore/internal/reports"
	"tripscore/internal/storage"
)

// Deps are the collaborators the API reads from. Storage and Pipeline may be
// nil; missing in-memory stores are replaced with empty ones.
type Deps struct {
	Config   *config.Manager
	Engine   *engine.Engine
	Pipeline *pipeline.Pipeline
	Reports  *reports.Store
	Vehicles *metrics.Store
	Storage  storage.Store
	Logger   *slog.Logger
	Version  string
}

type Server struct {
	Deps
}

type statusResponse struct {
	Status         string        `json:"status"`
	Time           string        `json:"time"`
	Version        string        `json:"version"`
	ConfigPath     string        `json:"config_path"`
	Ingest         ingestStatus  `json:"ingest"`
	API            apiStatus     `json:"api"`
	Storage        storageStatus `json:"storage"`
	Reports        int           `json:"reports"`
	Vehicles       int           `json:"vehicles"`
	CatalogClasses int           `json:"catalog_classes"`
}

type ingestStatus struct {
	REST  bool `json:"rest"`
	Kafka bool `json:"kafka"`
	Spool bool `json:"spool"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

type storageStatus struct {
	Enabled bool   `json:"enabled"`
	Driver  string `json:"driver,omitempty"`
}

func Start(ctx context.Context, deps Deps) *http.Server {
	if deps.Config == nil {
		return nil
	}
	logger := deps.Logger
	current := deps.Config.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	httpServer := &http.Server{Addr: current.Addr, Handler: NewRouter(deps), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func NewRouter(deps Deps) http.Handler {
	if deps.Reports == nil {
		deps.Reports = reports.NewStore(0)
	}
	if deps.Vehicles == nil {
		deps.Vehicles = metrics.NewStore(0)
	}
	s := &Server{Deps: deps}
	apiCfg := deps.Config.Get().API
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsMiddleware(apiCfg))

	r.Get("/status", s.handleStatus)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/reports", func(r chi.Router) {
		r.Get("/", s.handleReports)
		r.Get("/{id}", s.handleReport)
	})
	r.Route("/vehicles", func(r chi.Router) {
		r.Get("/", s.handleVehicles)
		r.Get("/{id}", s.handleVehicle)
		r.Get("/{id}/reports", s.handleVehicleReports)
	})
	r.Route("/catalog", func(r chi.Router) {
		r.Get("/", s.handleCatalog)
		r.Get("/speed-limits", s.handleSpeedLimits)
		r.Get("/{classID}", s.handleCatalogEntry)
	})
	r.With(scoreLimiter(apiCfg)).Post("/score", s.handleScore)
	r.Get("/config/scoring", s.handleGetScoring)
	r.Post("/config/scoring", s.handleSetScoring)
	r.Post("/admin/clear", s.handleClear)
	return r
}

func (s *Server) catalog() *catalog.Catalog {
	if s.Engine != nil {
		return s.Engine.Catalog()
	}
	return catalog.Default()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.Config.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.Version,
		ConfigPath: s.Config.Path(),
		Ingest: ingestStatus{
			REST:  cfg.Ingest.REST.Enabled,
			Kafka: cfg.Ingest.Kafka.Enabled,
			Spool: cfg.Ingest.Spool.Enabled,
		},
		API:            apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
		Storage:        storageStatus{Enabled: s.Storage != nil},
		CatalogClasses: s.catalog().Len(),
	}
	if s.Storage != nil {
		resp.Storage.Driver = cfg.Storage.Driver
	}
	resp.Reports = s.Reports.Len()
	resp.Vehicles = len(s.Vehicles.GetAll())
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit")
	vehicleID := strings.TrimSpace(r.URL.Query().Get("vehicle_id"))
	var list []model.Report
	switch {
	case r.URL.Query().Get("source") == "storage":
		if s.Storage == nil {
			writeError(w, http.StatusNotFound, errors.New("storage disabled"))
			return
		}
		stored, err := s.Storage.ListReports(r.Context(), vehicleID, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		list = stored
	case r.URL.Query().Get("since") != "":
		ts, err := time.Parse(time.RFC3339, r.URL.Query().Get("since"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		list = s.Reports.Since(ts)
	case vehicleID != "":
		list = s.Reports.ByVehicle(vehicleID, limit)
	default:
		list = s.Reports.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reports": list,
		"count":   len(list),
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if rep, ok := s.Reports.Get(id); ok {
		writeJSON(w, http.StatusOK, rep)
		return
	}
	if s.Storage != nil {
		rep, err := s.Storage.GetReport(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, rep)
			return
		}
		if !errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	writeError(w, http.StatusNotFound, errors.New("report not found"))
}

func (s *Server) handleVehicles(w http.ResponseWriter, r *http.Request) {
	all := s.Vehicles.GetAll()
	writeJSON(w, http.StatusOK, map[string]any{
		"vehicles": all,
		"count":    len(all),
	})
}

func (s *Server) handleVehicle(w http.ResponseWriter, r *http.Request) {
	sum, ok := s.Vehicles.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("vehicle not found"))
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleVehicleReports(w http.ResponseWriter, r *http.Request) {
	list := s.Reports.ByVehicle(chi.URLParam(r, "id"), queryInt(r, "limit"))
	writeJSON(w, http.StatusOK, map[string]any{
		"reports": list,
		"count":   len(list),
	})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	entries := s.catalog().All()
	if cat := strings.TrimSpace(r.URL.Query().Get("category")); cat != "" {
		filtered := make([]catalog.Entry, 0, len(entries))
		for _, e := range entries {
			if string(e.Category) == cat {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"classes": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleSpeedLimits(w http.ResponseWriter, r *http.Request) {
	entries := s.catalog().SpeedLimits()
	writeJSON(w, http.StatusOK, map[string]any{
		"classes": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleCatalogEntry(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "classID")
	var (
		entry catalog.Entry
		err   error
	)
	if id, convErr := strconv.Atoi(raw); convErr == nil {
		entry, err = s.catalog().Lookup(id)
	} else {
		entry, err = s.catalog().Resolve(raw)
	}
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	if s.Pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("scoring unavailable"))
		return
	}
	limit := s.Config.Get().Ingest.REST.MaxBodyBytes
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	trip, err := ingest.DecodeTrip(body, s.catalog())
	if err != nil {
		writeError(w, ingest.StatusFor(err), err)
		return
	}
	sub := model.Submission{Trip: trip, Source: "api", ReceivedAt: time.Now().UTC()}
	rep, err := s.Pipeline.Process(r.Context(), sub)
	if err != nil {
		writeError(w, scoreStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// scoreStatus maps scoring failures onto HTTP status codes.
func scoreStatus(err error) int {
	switch pipeline.Outcome(err) {
	case "malformed", "unknown_sign":
		return http.StatusUnprocessableEntity
	case "duplicate":
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) handleGetScoring(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"scoring": s.Config.Get().Scoring,
	})
}

func (s *Server) handleSetScoring(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	current := s.Config.Get()
	next := *current
	scoring := current.Scoring.Clone()
	if err := json.Unmarshal(body, &scoring); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := config.ValidateScoring(scoring); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	next.Scoring = scoring
	if err := s.Config.Update(&next); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if s.Engine != nil {
		s.Engine.UpdateConfig(scoring)
	}
	if s.Logger != nil {
		s.Logger.Info("scoring config updated", "weights_sum", scoring.Weights.Sum())
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		Target string `json:"target"`
	}
	_ = json.Unmarshal(body, &req)
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		s.Reports.Clear()
		s.Vehicles.Clear()
	case "reports":
		s.Reports.Clear()
	case "vehicles":
		s.Vehicles.Clear()
	default:
		writeError(w, http.StatusBadRequest, errors.New("unknown clear target"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func queryInt(r *http.Request, key string) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
