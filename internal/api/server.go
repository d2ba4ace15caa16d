// Package api serves the dashboard's JSON API over the node store.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"meshmap/internal/hardware"
	"meshmap/internal/logs"
	"meshmap/internal/store"
)

type Server struct {
	db  *store.Store
	hub *EventHub
}

func NewServer(db *store.Store, hub *EventHub) *Server {
	return &Server{db: db, hub: hub}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		logs.L().WithFields(logrus.Fields{
			"status":   lrw.statusCode,
			"method":   r.Method,
			"path":     r.RequestURI,
			"duration": time.Since(start).String(),
		}).Debug("http request")
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/nodes", s.listNodes)
	mux.HandleFunc("GET /api/nodes/positioned", s.listPositionedNodes)
	mux.HandleFunc("GET /api/nodes/{id}/neighbors", s.listNodeNeighbors)
	mux.HandleFunc("POST /api/nodes/{id}/triangulate", s.triangulateNode)
	mux.HandleFunc("GET /api/connections", s.listConnections)
	mux.HandleFunc("GET /api/packets", s.listPackets)
	mux.HandleFunc("GET /api/packets/node/{id}", s.listNodePackets)
	mux.HandleFunc("GET /api/search/node/{id}", s.showNode)
	mux.HandleFunc("GET /api/search", s.searchNodes)
	mux.HandleFunc("GET /api/stats", s.showStats)
	mux.HandleFunc("GET /api/events", s.streamEvents)
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// cleanNodeID strips the "!" prefix some clients include in node ids.
func cleanNodeID(id string) string {
	return strings.TrimPrefix(id, "!")
}

func (s *Server) listNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.db.ListNodes()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve nodes: %v", err))
		return
	}
	s.writeJSON(w, nodes)
}

func (s *Server) listPositionedNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.db.ListNodesWithPosition()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve nodes: %v", err))
		return
	}
	s.writeJSON(w, nodes)
}

func (s *Server) listConnections(w http.ResponseWriter, r *http.Request) {
	q := store.ConnectionQuery{
		FromNode: cleanNodeID(r.URL.Query().Get("from")),
		ToNode:   cleanNodeID(r.URL.Query().Get("to")),
	}
	if ids := r.URL.Query().Get("node_ids"); ids != "" {
		for _, id := range strings.Split(ids, ",") {
			if id = cleanNodeID(strings.TrimSpace(id)); id != "" {
				q.NodeIDs = append(q.NodeIDs, id)
			}
		}
	}
	if wh := r.URL.Query().Get("window_hours"); wh != "" {
		hours, err := strconv.Atoi(wh)
		if err != nil || hours < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'window_hours' parameter")
			return
		}
		q.WindowHours = hours
	}

	conns, err := s.db.Connections(q)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve connections: %v", err))
		return
	}
	s.writeJSON(w, conns)
}

func (s *Server) listPackets(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	packets, err := s.db.RecentPackets(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve packets: %v", err))
		return
	}
	s.writeJSON(w, packets)
}

func (s *Server) listNodePackets(w http.ResponseWriter, r *http.Request) {
	nodeID := cleanNodeID(r.PathValue("id"))
	packets, err := s.db.PacketsByNode(nodeID, 24*time.Hour)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve packets: %v", err))
		return
	}
	s.writeJSON(w, packets)
}

// nodeDetail is a node together with its resolved hardware identity.
type nodeDetail struct {
	*store.Node
	Hardware *hardware.Info `json:"hardware,omitempty"`
}

func (s *Server) showNode(w http.ResponseWriter, r *http.Request) {
	nodeID := cleanNodeID(r.PathValue("id"))
	node, err := s.db.GetNode(nodeID)
	if err == store.ErrNodeNotFound {
		s.writeJSONError(w, http.StatusNotFound, "Node not found")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve node: %v", err))
		return
	}

	detail := nodeDetail{Node: node}
	if node.HardwareModel != nil {
		info := hardware.Lookup(*node.HardwareModel)
		detail.Hardware = &info
	}
	s.writeJSON(w, detail)
}

func (s *Server) searchNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.db.SearchNodes(r.URL.Query().Get("q"))
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Search failed: %v", err))
		return
	}
	s.writeJSON(w, nodes)
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.Stats()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve stats: %v", err))
		return
	}
	s.writeJSON(w, stats)
}

func (s *Server) listNodeNeighbors(w http.ResponseWriter, r *http.Request) {
	nodeID := cleanNodeID(r.PathValue("id"))
	neighbors, err := s.db.NodeNeighbors(nodeID)
	if err == store.ErrNodeNotFound {
		s.writeJSONError(w, http.StatusNotFound, "Node not found")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to resolve neighbors: %v", err))
		return
	}
	s.writeJSON(w, neighbors)
}

func (s *Server) triangulateNode(w http.ResponseWriter, r *http.Request) {
	nodeID := cleanNodeID(r.PathValue("id"))
	result, err := s.db.TriangulateNode(nodeID)
	if err == store.ErrNodeNotFound {
		s.writeJSONError(w, http.StatusNotFound, "Node not found")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Triangulation failed: %v", err))
		return
	}
	if result == nil {
		s.writeJSON(w, map[string]string{"status": "no_estimate"})
		return
	}
	s.writeJSON(w, result)
}
