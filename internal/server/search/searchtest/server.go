// Package searchtest provides an in-memory stand-in for an Elasticsearch
// cluster, enough for the _bulk, document GET, ping and node info calls.
package searchtest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
)

// BulkItem is one decoded action from a _bulk request.
type BulkItem struct {
	Action string
	Index  string
	ID     string
	Type   string
	Source map[string]any
}

// Server is an httptest server holding documents in memory.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	docs       map[string]map[string]map[string]any
	bulks      [][]BulkItem
	failStatus int
	nodes      []string
}

func New() *Server {
	s := &Server{docs: make(map[string]map[string]map[string]any)}

	r := chi.NewRouter()
	r.Use(productHeader)
	r.Get("/", s.handleRoot)
	r.Head("/", s.handleRoot)
	r.Post("/_bulk", s.handleBulk)
	r.Get("/_nodes/http", s.handleNodes)
	r.Get("/{index}/_doc/{id}", s.handleGetDocument)

	s.Server = httptest.NewServer(r)
	return s
}

// FailWith makes every request answer with status until called with 0.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
}

// SetNodes sets the publish addresses reported by /_nodes/http. By default
// the server reports only itself.
func (s *Server) SetNodes(addrs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = addrs
}

// Document returns a copy of a stored document.
func (s *Server) Document(index, id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[index][id]
	if !ok {
		return nil, false
	}
	cp := make(map[string]any, len(doc))
	for k, v := range doc {
		cp[k] = v
	}
	return cp, true
}

// Count returns the number of documents in index.
func (s *Server) Count(index string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs[index])
}

// Bulks returns every _bulk request received so far.
func (s *Server) Bulks() [][]BulkItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]BulkItem(nil), s.bulks...)
}

func (s *Server) failing(w http.ResponseWriter) bool {
	s.mu.Lock()
	status := s.failStatus
	s.mu.Unlock()
	if status == 0 {
		return false
	}
	writeJSON(w, status, map[string]any{
		"error":  map[string]string{"type": "test_failure", "reason": "induced failure"},
		"status": status,
	})
	return true
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if s.failing(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "searchtest",
		"version": map[string]string{"number": "8.17.0", "build_flavor": "default"},
		"tagline": "You Know, for Search",
	})
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	if s.failing(w) {
		return
	}
	s.mu.Lock()
	addrs := s.nodes
	if len(addrs) == 0 {
		addrs = []string{s.Listener.Addr().String()}
	}
	nodes := make(map[string]any, len(addrs))
	for i, addr := range addrs {
		nodes[fmt.Sprintf("node-%d", i)] = map[string]any{
			"http": map[string]string{"publish_address": addr},
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	if s.failing(w) {
		return
	}
	index, id := chi.URLParam(r, "index"), chi.URLParam(r, "id")
	doc, ok := s.Document(index, id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"_index": index, "_id": id, "found": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"_index":  index,
		"_id":     id,
		"found":   true,
		"_source": doc,
	})
}

type actionMeta struct {
	Index string `json:"_index"`
	ID    string `json:"_id"`
	Type  string `json:"_type"`
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	if s.failing(w) {
		return
	}
	items, err := decodeBulk(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  map[string]string{"type": "parse_exception", "reason": err.Error()},
			"status": http.StatusBadRequest,
		})
		return
	}

	s.mu.Lock()
	s.bulks = append(s.bulks, items)
	results := make([]map[string]any, 0, len(items))
	hasErrors := false
	for _, it := range items {
		status, errBody := s.apply(it)
		res := map[string]any{"_index": it.Index, "_id": it.ID, "status": status}
		if errBody != nil {
			res["error"] = errBody
			hasErrors = true
		}
		results = append(results, map[string]any{it.Action: res})
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"took": 1, "errors": hasErrors, "items": results})
}

// apply must be called with s.mu held.
func (s *Server) apply(it BulkItem) (int, map[string]string) {
	index := s.docs[it.Index]
	switch it.Action {
	case "index":
		if index == nil {
			index = make(map[string]map[string]any)
			s.docs[it.Index] = index
		}
		_, existed := index[it.ID]
		index[it.ID] = it.Source
		if existed {
			return http.StatusOK, nil
		}
		return http.StatusCreated, nil
	case "update":
		doc, ok := index[it.ID]
		if !ok {
			return http.StatusNotFound, map[string]string{
				"type":   "document_missing_exception",
				"reason": fmt.Sprintf("[%s]: document missing", it.ID),
			}
		}
		for k, v := range it.Source {
			doc[k] = v
		}
		return http.StatusOK, nil
	case "delete":
		if _, ok := index[it.ID]; !ok {
			return http.StatusNotFound, nil
		}
		delete(index, it.ID)
		return http.StatusOK, nil
	}
	return http.StatusBadRequest, map[string]string{
		"type":   "illegal_argument_exception",
		"reason": "unknown action " + it.Action,
	}
}

func decodeBulk(body io.Reader) ([]BulkItem, error) {
	var items []BulkItem
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64<<10), 16<<20)

	next := func() ([]byte, bool) {
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) > 0 {
				return line, true
			}
		}
		return nil, false
	}

	for {
		line, ok := next()
		if !ok {
			break
		}
		var action map[string]actionMeta
		if err := json.Unmarshal(line, &action); err != nil {
			return nil, fmt.Errorf("action line: %w", err)
		}
		if len(action) != 1 {
			return nil, fmt.Errorf("action line must hold exactly one action")
		}
		var it BulkItem
		for name, meta := range action {
			it = BulkItem{Action: name, Index: meta.Index, ID: meta.ID, Type: meta.Type}
		}

		switch it.Action {
		case "index":
			src, ok := next()
			if !ok {
				return nil, fmt.Errorf("index %s/%s: missing source", it.Index, it.ID)
			}
			if err := json.Unmarshal(src, &it.Source); err != nil {
				return nil, fmt.Errorf("index %s/%s: %w", it.Index, it.ID, err)
			}
		case "update":
			src, ok := next()
			if !ok {
				return nil, fmt.Errorf("update %s/%s: missing body", it.Index, it.ID)
			}
			var partial struct {
				Doc map[string]any `json:"doc"`
			}
			if err := json.Unmarshal(src, &partial); err != nil {
				return nil, fmt.Errorf("update %s/%s: %w", it.Index, it.ID, err)
			}
			it.Source = partial.Doc
		}
		items = append(items, it)
	}
	return items, sc.Err()
}

// productHeader marks every response as coming from Elasticsearch, which the
// official client checks before accepting an answer.
func productHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
