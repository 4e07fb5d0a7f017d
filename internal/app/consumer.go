package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/worklane/distribution-service/internal/domain"
	"github.com/worklane/distribution-service/internal/store"
)

// SettlementStatusConsumer applies settlement events observed by the chain
// watcher to the ledger. Handlers return false only for retryable failures so
// the broker redelivers; malformed payloads are acknowledged and dropped.
type SettlementStatusConsumer struct {
	service *Service
}

func NewSettlementStatusConsumer(service *Service) *SettlementStatusConsumer {
	return &SettlementStatusConsumer{service: service}
}

func (c *SettlementStatusConsumer) HandleMessage(body []byte) bool {
	var event domain.SettlementStatusEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("settlement-consumer: failed to unmarshal payload: %v", err)
		return true
	}

	distributionID, err := uuid.Parse(strings.TrimSpace(event.DistributionID))
	if err != nil {
		log.Printf("settlement-consumer: invalid distribution id %q; acknowledging", event.DistributionID)
		return true
	}

	if status := strings.TrimSpace(strings.ToLower(event.Status)); status != "" && status != "confirmed" && status != "settled" {
		log.Printf("settlement-consumer: ignoring non-final settlement status %q for distribution %s", event.Status, distributionID)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	report := domain.SettlementReport{
		DistributionID:  distributionID,
		TransactionHash: strings.TrimSpace(event.TransactionHash),
		Network:         strings.TrimSpace(event.Network),
		AmountCents:     event.AmountCents,
	}

	_, err = c.service.ReportSettlement(ctx, report)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrResolverUnavailable):
		// Transient; let the broker redeliver.
		log.Printf("settlement-consumer: resolver unavailable for distribution %s; re-queuing", distributionID)
		return false
	case errors.Is(err, ErrAmountMismatch), errors.Is(err, ErrNetworkMismatch), errors.Is(err, ErrHashInUse):
		// The distribution was moved to failed with a recorded reason.
		return true
	case errors.Is(err, store.ErrDistributionNotFound), errors.Is(err, ErrInvalidTransactionHash), errors.Is(err, store.ErrInvalidState):
		log.Printf("settlement-consumer: dropping unprocessable settlement for distribution %s: %v", distributionID, err)
		return true
	default:
		log.Printf("settlement-consumer: processing error for distribution %s: %v", distributionID, err)
		return false
	}
}

// PayoutTriggeredConsumer creates pending distributions from upstream job
// completion events.
type PayoutTriggeredConsumer struct {
	service *Service
}

func NewPayoutTriggeredConsumer(service *Service) *PayoutTriggeredConsumer {
	return &PayoutTriggeredConsumer{service: service}
}

func (c *PayoutTriggeredConsumer) HandleMessage(body []byte) bool {
	var event domain.PayoutTriggeredEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("payout-consumer: failed to unmarshal payload: %v", err)
		return true
	}

	recipientID, err := uuid.Parse(strings.TrimSpace(event.RecipientID))
	if err != nil {
		log.Printf("payout-consumer: invalid recipient id %q; acknowledging", event.RecipientID)
		return true
	}

	req := domain.CreateDistributionRequest{
		RecipientType: strings.TrimSpace(strings.ToLower(event.RecipientType)),
		RecipientID:   recipientID,
		AmountCents:   event.AmountCents,
		Currency:      event.Currency,
	}
	if jobID := strings.TrimSpace(event.JobID); jobID != "" {
		parsed, err := uuid.Parse(jobID)
		if err != nil {
			log.Printf("payout-consumer: invalid job id %q; acknowledging", event.JobID)
			return true
		}
		req.JobID = &parsed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err = c.service.CreateDistribution(ctx, req)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrResolverUnavailable):
		log.Printf("payout-consumer: recipient lookup unavailable; re-queuing")
		return false
	case errors.Is(err, ErrInvalidRecipient), errors.Is(err, ErrRecipientNotFound), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidCurrency):
		log.Printf("payout-consumer: dropping invalid payout trigger for recipient %s: %v", recipientID, err)
		return true
	default:
		log.Printf("payout-consumer: processing error for recipient %s: %v", recipientID, err)
		return false
	}
}
