package statsapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/arnasbieliauskas/ntduomenys/ingest"
	"github.com/arnasbieliauskas/ntduomenys/listings"
)

// Server binds the listings store and the ingestion runner to HTTP routes.
type Server struct {
	store  *listings.Store
	runner *ingest.Runner
	logger *slog.Logger
}

func NewServer(store *listings.Store, runner *ingest.Runner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, runner: runner, logger: logger}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/listings", s.handleQuery)
		r.Get("/listings/history", s.handleHistory)
		r.Post("/listings/trend", s.handleTrend)
		r.Get("/cities/comparison", s.handleCityComparison)
		r.Get("/facets/{field}", s.handleFacet)
		r.Get("/bounds/{field}", s.handleBounds)
		r.Post("/favorites", s.handleFavorite)
		r.Route("/ingest", func(r chi.Router) {
			r.Post("/trigger", s.handleIngestTrigger)
			r.Post("/cancel", s.handleIngestCancel)
			r.Get("/status", s.handleIngestStatus)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := filterFromQuery(q)
	sort := listings.ParseSort(q.Get("sort"))
	pageSize := intParam(q.Get("page_size"), 50)
	page := intParam(q.Get("page"), 1)
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	res, err := s.store.Query(r.Context(), filter, sort, pageSize, offset)
	if err != nil {
		s.fail(w, r, "query listings", err)
		return
	}
	if res.Listings == nil {
		res.Listings = []listings.Listing{}
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := listings.Identity{
		ExternalID:   q.Get("external_id"),
		SearchObject: q.Get("search_object"),
	}
	hist, err := s.store.History(r.Context(), id)
	if err != nil {
		s.fail(w, r, "query history", err)
		return
	}
	if hist == nil {
		hist = []listings.Listing{}
	}
	s.writeJSON(w, http.StatusOK, hist)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identities []listings.Identity `json:"identities"`
		Metric     string              `json:"metric"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	points, err := s.store.Trend(r.Context(), req.Identities, listings.Metric(req.Metric))
	if err != nil {
		s.fail(w, r, "query trend", err)
		return
	}
	if points == nil {
		points = []listings.TrendPoint{}
	}
	s.writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleCityComparison(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	points, err := s.store.CityComparison(r.Context(), q["city"], listings.CityFilter{
		SearchObject: q.Get("search_object"),
		Rooms:        q.Get("rooms"),
		HouseState:   q.Get("house_state"),
		DateFrom:     q.Get("date_from"),
		DateTo:       q.Get("date_to"),
	})
	if err != nil {
		s.fail(w, r, "query city comparison", err)
		return
	}
	if points == nil {
		points = []listings.CityPoint{}
	}
	s.writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleFacet(w http.ResponseWriter, r *http.Request) {
	field := listings.FacetField(chi.URLParam(r, "field"))
	values, err := s.store.DistinctValues(r.Context(), field, scopeFromQuery(r.URL.Query()))
	if err != nil {
		if strings.Contains(err.Error(), "unknown facet field") {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		s.fail(w, r, "facet lookup", err)
		return
	}
	if values == nil {
		values = []string{}
	}
	s.writeJSON(w, http.StatusOK, values)
}

func (s *Server) handleBounds(w http.ResponseWriter, r *http.Request) {
	field := listings.BoundsField(chi.URLParam(r, "field"))
	min, max, err := s.store.NumericBounds(r.Context(), field, scopeFromQuery(r.URL.Query()))
	if err != nil {
		if strings.Contains(err.Error(), "unknown bounds field") {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		s.fail(w, r, "bounds lookup", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]*float64{"min": min, "max": max})
}

func (s *Server) handleFavorite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExternalID   string `json:"external_id"`
		SearchObject string `json:"search_object"`
		Selected     bool   `json:"selected"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	id := listings.Identity{ExternalID: req.ExternalID, SearchObject: req.SearchObject}
	if err := s.store.SetFavorite(r.Context(), id, req.Selected); err != nil {
		s.fail(w, r, "set favorite", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"selected": req.Selected})
}

func (s *Server) handleIngestTrigger(w http.ResponseWriter, r *http.Request) {
	accepted := s.runner.Trigger()
	s.writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": accepted})
}

func (s *Server) handleIngestCancel(w http.ResponseWriter, r *http.Request) {
	s.runner.Cancel()
	s.writeJSON(w, http.StatusOK, s.runner.Status())
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.runner.Status())
}

// fail logs a per-operation failure and degrades it to an explicit error
// response, never a crash.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.Error(op+" failed", "path", r.URL.Path, "err", err)
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": op + " failed"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "err", err)
	}
}

func filterFromQuery(q map[string][]string) listings.Filter {
	get := func(k string) string {
		if v, ok := q[k]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}
	return listings.Filter{
		SearchObject:      get("search_object"),
		SearchCity:        get("search_city"),
		MicroDistrict:     get("micro_district"),
		Address:           get("address"),
		Rooms:             get("rooms"),
		HouseState:        get("house_state"),
		DateFrom:          get("date_from"),
		DateTo:            get("date_to"),
		PriceMin:          floatParam(get("price_min")),
		PriceMax:          floatParam(get("price_max")),
		PricePerSquareMin: floatParam(get("price_per_square_min")),
		PricePerSquareMax: floatParam(get("price_per_square_max")),
		AreaSquareMin:     floatParam(get("area_square_min")),
		AreaSquareMax:     floatParam(get("area_square_max")),
		AreaLotMin:        floatParam(get("area_lot_min")),
		AreaLotMax:        floatParam(get("area_lot_max")),
		OnlyFavorites:     boolParam(get("only_favorites")),
		OnlyNew:           boolParam(get("only_new")),
		OnlyPriceDrops:    boolParam(get("only_price_drops")),
		OnlyPriceIncrease: boolParam(get("only_price_increase")),
	}
}

func scopeFromQuery(q map[string][]string) listings.FacetScope {
	get := func(k string) string {
		if v, ok := q[k]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}
	return listings.FacetScope{
		SearchObject:  get("search_object"),
		SearchCity:    get("search_city"),
		Rooms:         get("rooms"),
		MicroDistrict: get("micro_district"),
		HouseState:    get("house_state"),
	}
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func floatParam(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func boolParam(s string) bool {
	v, err := strconv.ParseBool(s)
	return err == nil && v
}
