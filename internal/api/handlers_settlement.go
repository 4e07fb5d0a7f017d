/**
 * @description
 * Internal (server-to-server) HTTP handlers: the settlement webhook used by
 * the chain watcher or operators, and the payout-trigger endpoint that creates
 * new pending distributions. Both sit behind the internal API key middleware.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/worklane/distribution-service/internal/app"
	"github.com/worklane/distribution-service/internal/domain"
	"github.com/worklane/distribution-service/internal/store"
)

// settlementWebhookRequest is the webhook body; the distribution ID comes from
// the URL so the body only carries the chain-side facts.
type settlementWebhookRequest struct {
	TransactionHash string `json:"transaction_hash"`
	Network         string `json:"network"`
	AmountCents     int64  `json:"amount_cents"`
}

// ReportSettlementHandler applies a blockchain settlement report to a claimed
// distribution.
func (h *DistributionHandlers) ReportSettlementHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseDistributionID(w, r)
	if !ok {
		return
	}

	var req settlementWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	report := domain.SettlementReport{
		DistributionID:  id,
		TransactionHash: req.TransactionHash,
		Network:         req.Network,
		AmountCents:     req.AmountCents,
	}

	dist, err := h.service.ReportSettlement(r.Context(), report)
	if err != nil {
		h.writeSettlementError(w, report, dist, err)
		return
	}

	recordSettlementOutcome("paid")
	h.writeJSON(w, http.StatusOK, dist)
}

// writeSettlementError maps reconciliation failures to HTTP statuses. Mismatch
// failures include the terminal record so the caller sees the recorded reason.
func (h *DistributionHandlers) writeSettlementError(w http.ResponseWriter, report domain.SettlementReport, dist *domain.PaymentDistribution, err error) {
	log.Printf("level=warn component=api endpoint=settlement outcome=failed distribution_id=%s tx_hash=%s err=%v", report.DistributionID, report.TransactionHash, err)
	switch {
	case errors.Is(err, store.ErrDistributionNotFound):
		recordSettlementOutcome("rejected")
		h.writeError(w, http.StatusNotFound, "Distribution not found")
	case errors.Is(err, app.ErrInvalidTransactionHash):
		recordSettlementOutcome("rejected")
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrAmountMismatch), errors.Is(err, app.ErrNetworkMismatch), errors.Is(err, app.ErrHashInUse):
		recordSettlementOutcome("failed")
		body := map[string]interface{}{"error": err.Error()}
		if dist != nil {
			body["distribution"] = dist
		}
		h.writeJSON(w, http.StatusUnprocessableEntity, body)
	case errors.Is(err, store.ErrInvalidState):
		recordSettlementOutcome("rejected")
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrVersionConflict):
		recordSettlementOutcome("rejected")
		h.writeError(w, http.StatusConflict, "Distribution was modified concurrently; retry")
	case errors.Is(err, app.ErrResolverUnavailable):
		recordSettlementOutcome("rejected")
		h.writeError(w, http.StatusServiceUnavailable, "Chain resolver unavailable; retry later")
	default:
		recordSettlementOutcome("rejected")
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// CreateDistributionHandler records a new pending distribution from an
// internal payout trigger.
func (h *DistributionHandlers) CreateDistributionHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateDistributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	dist, err := h.service.CreateDistribution(r.Context(), req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_distribution outcome=failed recipient_id=%s err=%v", req.RecipientID, err)
		switch {
		case errors.Is(err, app.ErrInvalidRecipient), errors.Is(err, app.ErrInvalidAmount), errors.Is(err, app.ErrInvalidCurrency):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrRecipientNotFound):
			h.writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, app.ErrResolverUnavailable):
			h.writeError(w, http.StatusServiceUnavailable, "Recipient service unavailable; retry later")
		default:
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	log.Printf("level=info component=api endpoint=create_distribution outcome=created distribution_id=%s amount_cents=%d", dist.ID, dist.AmountCents)
	h.writeJSON(w, http.StatusCreated, dist)
}
