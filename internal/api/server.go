// Package api is the thin HTTP surface over the broker core: search,
// metadata-by-ID, tile redirects, and the operational ingest trigger.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/paulmach/orb"

	"SceneBroker/internal/broker"
	"SceneBroker/internal/domain"
	"SceneBroker/internal/tiles"
	"SceneBroker/internal/usecase"
)

// IngestTrigger runs one full Phase 1 + Phase 2 cycle. Invoked by operators,
// not end users.
type IngestTrigger interface {
	RunOnce(ctx context.Context) error
}

// Server routes HTTP requests into the broker service and tile resolver.
type Server struct {
	broker *broker.Service
	tiles  *tiles.Resolver
	ingest IngestTrigger
	logger *slog.Logger
	router *mux.Router
}

// NewServer builds the router. The ingest trigger may be nil, which disables
// the operational endpoint.
func NewServer(brokerSvc *broker.Service, resolver *tiles.Resolver, ingest IngestTrigger, logger *slog.Logger) *Server {
	s := &Server{
		broker: brokerSvc,
		tiles:  resolver,
		ingest: ingest,
		logger: logger,
		router: mux.NewRouter(),
	}

	s.router.HandleFunc("/api/{source}/search", s.handleSearch).Methods(http.MethodGet)
	s.router.HandleFunc("/api/{source}/scenes/{id}", s.handleScene).Methods(http.MethodGet)
	s.router.HandleFunc("/tiles/{source}/{id}/{z:[0-9]+}/{x:[0-9]+}/{y:[0-9]+}.jpg", s.handleTile).Methods(http.MethodGet)
	s.router.HandleFunc("/ops/ingest", s.handleIngest).Methods(http.MethodPost)

	return s
}

// Handler exposes the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	filter, err := searchFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	multi, err := s.broker.Search(r.Context(), filter)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, multi.ToFeatureCollection())
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	result, err := s.broker.MetadataByID(r.Context(), vars["source"], vars["id"])
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "scene not found")
			return
		}
		s.serverError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result.ToFeature())
}

func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	// The route pattern admits digits only, so Atoi cannot fail here.
	z, _ := strconv.Atoi(vars["z"])
	x, _ := strconv.Atoi(vars["x"])
	y, _ := strconv.Atoi(vars["y"])

	target, err := s.tiles.Resolve(r.Context(), vars["source"], vars["id"], z, x, y)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "scene not found")
			return
		}
		s.serverError(w, r, err)
		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.ingest == nil {
		s.writeError(w, http.StatusNotFound, "ingest trigger disabled")
		return
	}

	if err := s.ingest.RunOnce(r.Context()); err != nil {
		if errors.Is(err, usecase.ErrPassInFlight) {
			s.writeError(w, http.StatusConflict, "ingest already running")
			return
		}
		s.serverError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// searchFilter parses the spatial/temporal query parameters. Unset parameters
// stay nil so the store skips them.
func searchFilter(r *http.Request) (domain.SearchFilter, error) {
	filter := domain.SearchFilter{SourceType: mux.Vars(r)["source"]}
	query := r.URL.Query()

	if raw := query.Get("bbox"); raw != "" {
		parts := strings.Split(raw, ",")
		if len(parts) != 4 {
			return filter, errors.New("bbox must be minLon,minLat,maxLon,maxLat")
		}
		vals := make([]float64, 4)
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return filter, errors.New("bbox must be numeric")
			}
			vals[i] = v
		}
		bound := orb.Bound{
			Min: orb.Point{vals[0], vals[1]},
			Max: orb.Point{vals[2], vals[3]},
		}
		filter.BBox = &bound
	}

	if raw := query.Get("start"); raw != "" {
		t, err := parseTimeParam(raw)
		if err != nil {
			return filter, errors.New("start must be RFC 3339 or YYYY-MM-DD")
		}
		filter.Start = &t
	}

	if raw := query.Get("end"); raw != "" {
		t, err := parseTimeParam(raw)
		if err != nil {
			return filter, errors.New("end must be RFC 3339 or YYYY-MM-DD")
		}
		filter.End = &t
	}

	if raw := query.Get("maxCloud"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			return filter, errors.New("maxCloud must be a fraction in [0,1]")
		}
		filter.MaxCloudCover = &v
	}

	if raw := query.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return filter, errors.New("limit must be a positive integer")
		}
		filter.Limit = v
	}

	return filter, nil
}

func parseTimeParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && s.logger != nil {
		s.logger.Warn("write response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// serverError hides internals from the client but never drops the cause.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	if s.logger != nil {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	s.writeError(w, http.StatusInternalServerError, "internal error")
}
