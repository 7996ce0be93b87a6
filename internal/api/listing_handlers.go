package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-scraper/internal/listing"
	"github.com/JakeFAU/listing-scraper/internal/metrics"
)

const createdMessage = "Listing created successfully"

type createdResponse struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// listListings handles GET /api/listings. Malformed filter values are ignored.
func (s *Server) listListings(w http.ResponseWriter, r *http.Request) {
	filter := listing.ParseFilter(r.URL.Query())
	listings, err := s.repo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list listings failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to list listings")
		return
	}
	metrics.ObserveQuery()
	writeJSON(w, http.StatusOK, listings)
}

// getListing handles GET /api/listings/{id}.
func (s *Server) getListing(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid listing id")
		return
	}
	l, err := s.repo.Get(r.Context(), id)
	switch {
	case errors.Is(err, listing.ErrNotFound):
		writeError(w, http.StatusNotFound, "listing not found")
		return
	case err != nil:
		s.logger.Error("get listing failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.Int64("listing_id", id),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to load listing")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// addListing handles POST /api/add_listing. It responds 201 with the new id,
// 400 with field errors when validation fails, or 500 if the store fails.
func (s *Server) addListing(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBodySize))
	if err != nil {
		metrics.ObserveIngest("invalid")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := listing.DecodeIngest(body)
	if err != nil {
		metrics.ObserveIngest("invalid")
		var fieldErrs listing.FieldErrors
		if errors.As(err, &fieldErrs) {
			writeJSON(w, http.StatusBadRequest, fieldErrs)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	id, err := s.repo.Create(r.Context(), req)
	if err != nil {
		metrics.ObserveIngest("error")
		s.logger.Error("create listing failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("title", req.Title),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to create listing")
		return
	}
	metrics.ObserveIngest("created")
	s.logger.Info("listing created",
		zap.String("request_id", RequestID(r.Context())),
		zap.Int64("listing_id", id),
		zap.String("host", req.Host.Name),
	)
	writeJSON(w, http.StatusCreated, createdResponse{ID: id, Message: createdMessage})
}
