package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"safesight/internal/takeaway"
)

// maxBodyBytes bounds request bodies; video transcripts are the largest input
const maxBodyBytes = 4 << 20

// HealthResponse is the /health body
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ErrorResponse is the body of every non-2xx API response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles the /health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Warn("Health check failed", "error", err)
		checks["cache_store"] = "error"
		s.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unhealthy",
			Checks: checks,
		})
		return
	}

	checks["cache_store"] = "ok"
	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Checks: checks,
	})
}

// handleListingTakeaway handles POST /api/takeaways/listings/{listingID}
func (s *Server) handleListingTakeaway(w http.ResponseWriter, r *http.Request) {
	var in takeaway.ListingInput
	if !s.decode(w, r, &in) {
		return
	}
	in.ListingID = chi.URLParam(r, "listingID")
	s.respondJSON(w, http.StatusOK, s.takeaways.FindOrGenerate(r.Context(), in.Request()))
}

// handleLocationTakeaway handles POST /api/takeaways/locations
func (s *Server) handleLocationTakeaway(w http.ResponseWriter, r *http.Request) {
	var in takeaway.LocationInput
	if !s.decode(w, r, &in) {
		return
	}
	s.respondJSON(w, http.StatusOK, s.takeaways.FindOrGenerate(r.Context(), in.Request()))
}

// handleVideoTakeaway handles POST /api/takeaways/videos/{videoID}
func (s *Server) handleVideoTakeaway(w http.ResponseWriter, r *http.Request) {
	var in takeaway.VideoInput
	if !s.decode(w, r, &in) {
		return
	}
	in.VideoID = chi.URLParam(r, "videoID")
	s.respondJSON(w, http.StatusOK, s.takeaways.FindOrGenerate(r.Context(), in.Request()))
}

// decode reads a JSON body into v, writing a 400 and returning false on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		msg := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		s.respondError(w, http.StatusBadRequest, msg)
		return false
	}
	return true
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to encode JSON response", "error", err)
	}
}

// respondError writes an ErrorResponse
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
