/**
 * @description
 * This file contains the HTTP handlers for the distribution-service's API
 * endpoints. Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP response.
 * They act as the bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/worklane/distribution-service/internal/app"
	"github.com/worklane/distribution-service/internal/domain"
	"github.com/worklane/distribution-service/internal/store"
)

// DistributionHandlers holds the application service that handlers will use.
type DistributionHandlers struct {
	service *app.Service
}

// NewDistributionHandlers creates a new instance of DistributionHandlers.
func NewDistributionHandlers(service *app.Service) *DistributionHandlers {
	return &DistributionHandlers{service: service}
}

// GetDistributionHandler returns a single distribution by ID.
func (h *DistributionHandlers) GetDistributionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseDistributionID(w, r)
	if !ok {
		return
	}

	dist, err := h.service.GetDistribution(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrDistributionNotFound) {
			h.writeError(w, http.StatusNotFound, "Distribution not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_distribution msg=\"lookup failed\" distribution_id=%s err=%v", id, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, dist)
}

// ListDistributionsHandler returns a filtered, paginated page of distributions.
func (h *DistributionHandlers) ListDistributionsHandler(w http.ResponseWriter, r *http.Request) {
	opts := domain.ListOptions{
		RecipientType: strings.TrimSpace(strings.ToLower(r.URL.Query().Get("recipient_type"))),
		Status:        strings.TrimSpace(strings.ToLower(r.URL.Query().Get("status"))),
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("recipient_id")); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid recipient_id filter")
			return
		}
		opts.RecipientID = &parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("job_id")); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid job_id filter")
			return
		}
		opts.JobID = &parsed
	}
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			h.writeError(w, http.StatusBadRequest, "Invalid page parameter")
			return
		}
		opts.Page = page
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			h.writeError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		opts.Limit = limit
	}

	page, err := h.service.ListDistributions(r.Context(), opts)
	if err != nil {
		if errors.Is(err, app.ErrInvalidRecipient) || errors.Is(err, store.ErrInvalidState) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=list_distributions msg=\"listing failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, page)
}

// ClaimDistributionHandler reserves a pending distribution for payout.
func (h *DistributionHandlers) ClaimDistributionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseDistributionID(w, r)
	if !ok {
		return
	}

	var req domain.ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	// Rate limit per recipient, keyed off the current record.
	current, err := h.service.GetDistribution(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrDistributionNotFound) {
			h.writeError(w, http.StatusNotFound, "Distribution not found")
			return
		}
		log.Printf("level=error component=api endpoint=claim msg=\"lookup failed\" distribution_id=%s err=%v", id, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if allowed, retryAfter := h.service.ConsumeClaimRateLimit(r.Context(), current.RecipientID); !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		recordClaimOutcome("rate_limited")
		h.writeError(w, http.StatusTooManyRequests, "Too many claim attempts; slow down")
		return
	}

	dist, err := h.service.ClaimDistribution(r.Context(), id, req.IdempotencyKey)
	if err != nil {
		h.writeClaimError(w, id, err)
		return
	}

	// A replayed duplicate submission returns the already-claimed record
	// without bumping the version.
	if dist.Version > current.Version {
		recordClaimOutcome("claimed")
	} else {
		recordClaimOutcome("replayed")
	}

	log.Printf("level=info component=api endpoint=claim outcome=success distribution_id=%s status=%s", dist.ID, dist.Status)
	h.writeJSON(w, http.StatusOK, dist)
}

func (h *DistributionHandlers) writeClaimError(w http.ResponseWriter, id uuid.UUID, err error) {
	log.Printf("level=warn component=api endpoint=claim outcome=failed distribution_id=%s err=%v", id, err)
	switch {
	case errors.Is(err, store.ErrDistributionNotFound):
		recordClaimOutcome("rejected")
		h.writeError(w, http.StatusNotFound, "Distribution not found")
	case errors.Is(err, app.ErrInvalidIdempotencyKey):
		recordClaimOutcome("rejected")
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrAlreadyClaimed), errors.Is(err, app.ErrIdempotencyKeyInUse), errors.Is(err, store.ErrVersionConflict):
		recordClaimOutcome("conflict")
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInvalidState):
		recordClaimOutcome("rejected")
		h.writeError(w, http.StatusUnprocessableEntity, "Distribution is no longer claimable")
	default:
		recordClaimOutcome("rejected")
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// SoftDeleteDistributionHandler marks a distribution deleted (internal only).
func (h *DistributionHandlers) SoftDeleteDistributionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseDistributionID(w, r)
	if !ok {
		return
	}

	if err := h.service.SoftDeleteDistribution(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrDistributionNotFound) {
			h.writeError(w, http.StatusNotFound, "Distribution not found")
			return
		}
		log.Printf("level=error component=api endpoint=delete_distribution msg=\"soft delete failed\" distribution_id=%s err=%v", id, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DistributionHandlers) parseDistributionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "distributionID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid distribution ID format")
		return uuid.Nil, false
	}
	return id, true
}

// writeJSON is a helper for writing JSON responses.
func (h *DistributionHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *DistributionHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
