package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/systemshift/graphdex/internal/logging"
	"github.com/systemshift/graphdex/internal/server/extension"
	"github.com/systemshift/graphdex/internal/server/graph"
	"github.com/systemshift/graphdex/internal/server/indexing"
	"github.com/systemshift/graphdex/internal/server/indexspec"
)

// Server holds the HTTP server dependencies
type Server struct {
	store    *graph.Store
	ext      *extension.Extension
	registry *prometheus.Registry
	logger   logging.Logger
}

// New creates a new API server. A nil registry leaves /metrics unrouted.
func New(store *graph.Store, ext *extension.Extension, registry *prometheus.Registry, logger logging.Logger) *Server {
	return &Server{store: store, ext: ext, registry: registry, logger: logger}
}

// Router returns the API routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.HealthCheck)
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/nodes", s.CreateNode)
		r.Get("/nodes/{id}", s.GetNode)
		r.Patch("/nodes/{id}", s.UpdateNode)
		r.Delete("/nodes/{id}", s.DeleteNode)
		r.Post("/nodes/{id}/index", s.IndexNode)

		r.Get("/index/settings", s.GetIndexSettings)
		r.Put("/index/settings", s.UpdateIndexSettings)
		r.Post("/index/labels/{label}", s.ReindexLabel)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// storeError maps store errors to HTTP status codes.
func storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, graph.ErrNodeNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, graph.ErrEmptyName):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func nodeID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid node id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HealthCheck handles GET /health
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	index := "ok"
	if err := s.ext.Ping(r.Context()); err != nil {
		if errors.Is(err, extension.ErrDisabled) {
			index = "disabled"
		} else {
			index = "unreachable"
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"index":  index,
	})
}

// CreateNodeRequest is the request body for creating a node
type CreateNodeRequest struct {
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// CreateNode handles POST /api/nodes
func (s *Server) CreateNode(w http.ResponseWriter, r *http.Request) {
	var req CreateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	var node *graph.Node
	err := s.store.Update(ctx, func(tx *graph.Tx) error {
		n, err := tx.CreateNode(ctx, req.Labels...)
		if err != nil {
			return err
		}
		for _, k := range sortedKeys(req.Properties) {
			if err := tx.SetProperty(ctx, n.ID(), k, req.Properties[k]); err != nil {
				return err
			}
		}
		node = n
		return nil
	})
	if err != nil {
		storeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, node)
}

// GetNode handles GET /api/nodes/{id}
func (s *Server) GetNode(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeID(w, r)
	if !ok {
		return
	}
	node, err := s.store.GetNode(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// UpdateNodeRequest is the request body for changing a node. Removals are
// applied before additions.
type UpdateNodeRequest struct {
	AddLabels        []string       `json:"add_labels,omitempty"`
	RemoveLabels     []string       `json:"remove_labels,omitempty"`
	SetProperties    map[string]any `json:"set_properties,omitempty"`
	RemoveProperties []string       `json:"remove_properties,omitempty"`
}

// UpdateNode handles PATCH /api/nodes/{id}
func (s *Server) UpdateNode(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeID(w, r)
	if !ok {
		return
	}
	var req UpdateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	var node *graph.Node
	err := s.store.Update(ctx, func(tx *graph.Tx) error {
		for _, l := range req.RemoveLabels {
			if err := tx.RemoveLabel(ctx, id, l); err != nil {
				return err
			}
		}
		for _, k := range req.RemoveProperties {
			if err := tx.RemoveProperty(ctx, id, k); err != nil {
				return err
			}
		}
		for _, l := range req.AddLabels {
			if err := tx.AddLabel(ctx, id, l); err != nil {
				return err
			}
		}
		for _, k := range sortedKeys(req.SetProperties) {
			if err := tx.SetProperty(ctx, id, k, req.SetProperties[k]); err != nil {
				return err
			}
		}
		n, err := tx.Node(ctx, id)
		node = n
		return err
	})
	if err != nil {
		storeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, node)
}

// DeleteNode handles DELETE /api/nodes/{id}
func (s *Server) DeleteNode(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := s.store.Update(ctx, func(tx *graph.Tx) error {
		return tx.DeleteNode(ctx, id)
	}); err != nil {
		storeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": true,
		"id":      id,
	})
}

// indexError maps indexing errors to HTTP status codes.
func indexError(w http.ResponseWriter, err error) {
	var bulkErr *indexing.BulkError
	switch {
	case errors.Is(err, extension.ErrDisabled):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, indexing.ErrIndexUnavailable), errors.As(err, &bulkErr):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// IndexNode handles POST /api/nodes/{id}/index
// Indexes the node now and reports whether the index accepted it.
func (s *Server) IndexNode(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeID(w, r)
	if !ok {
		return
	}
	if !s.ext.Enabled() {
		indexError(w, extension.ErrDisabled)
		return
	}
	node, err := s.store.GetNode(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}
	if err := s.ext.IndexNode(r.Context(), node); err != nil {
		s.logger.WithError(err).WithField("node", id).Warning("indexing node failed")
		indexError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"indexed": true,
		"id":      id,
	})
}

// ReindexLabel handles POST /api/index/labels/{label}
// Indexes every node carrying the label, one request per node.
func (s *Server) ReindexLabel(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	if !s.ext.Enabled() {
		indexError(w, extension.ErrDisabled)
		return
	}
	if !s.ext.Settings().HasLabel(label) {
		http.Error(w, "label "+label+" is not indexed", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	ids, err := s.store.NodeIDs(ctx, label)
	if err != nil {
		storeError(w, err)
		return
	}
	indexed := 0
	for _, id := range ids {
		node, err := s.store.GetNode(ctx, id)
		if errors.Is(err, graph.ErrNodeNotFound) {
			continue
		}
		if err != nil {
			storeError(w, err)
			return
		}
		if err := s.ext.IndexNode(ctx, node); err != nil {
			indexError(w, err)
			return
		}
		indexed++
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"label":   label,
		"indexed": indexed,
	})
}

// IndexSettings is the view of the live index settings.
type IndexSettings struct {
	Enabled            bool     `json:"enabled"`
	IndexSpec          string   `json:"index_spec"`
	IndexedLabels      []string `json:"indexed_labels"`
	IncludeIDField     bool     `json:"include_id_field"`
	IncludeLabelsField bool     `json:"include_labels_field"`
}

func (s *Server) indexSettings() IndexSettings {
	settings := s.ext.Settings()
	labels := settings.IndexedLabels()
	if labels == nil {
		labels = []string{}
	}
	return IndexSettings{
		Enabled:            s.ext.Enabled(),
		IndexSpec:          indexspec.Format(settings.Spec()),
		IndexedLabels:      labels,
		IncludeIDField:     settings.IncludeIDField(),
		IncludeLabelsField: settings.IncludeLabelsField(),
	}
}

// GetIndexSettings handles GET /api/index/settings
func (s *Server) GetIndexSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.indexSettings())
}

// UpdateIndexSettingsRequest toggles document fields. Omitted fields keep
// their value.
type UpdateIndexSettingsRequest struct {
	IncludeIDField     *bool `json:"include_id_field,omitempty"`
	IncludeLabelsField *bool `json:"include_labels_field,omitempty"`
}

// UpdateIndexSettings handles PUT /api/index/settings
func (s *Server) UpdateIndexSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateIndexSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	settings := s.ext.Settings()
	if req.IncludeIDField != nil {
		settings.SetIncludeIDField(*req.IncludeIDField)
	}
	if req.IncludeLabelsField != nil {
		settings.SetIncludeLabelsField(*req.IncludeLabelsField)
	}
	s.logger.Infof("index settings updated: include_id_field=%t include_labels_field=%t",
		settings.IncludeIDField(), settings.IncludeLabelsField())

	writeJSON(w, http.StatusOK, s.indexSettings())
}
