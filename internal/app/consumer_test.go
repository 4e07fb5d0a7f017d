package app

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/worklane/distribution-service/internal/domain"
)

type recipientResolverStub struct {
	exists bool
	err    error
}

func (s *recipientResolverStub) RecipientExists(ctx context.Context, recipientType string, recipientID uuid.UUID) (bool, error) {
	return s.exists, s.err
}

func TestSettlementConsumer_AppliesConfirmedSettlement(t *testing.T) {
	dist := claimedDistribution(4200)
	repo := newMemoryRepo(dist)
	resolver := &networkResolverStub{network: "base-mainnet"}
	service := NewService(repo, resolver, nil, nil, 0)
	consumer := NewSettlementStatusConsumer(service)

	body, _ := json.Marshal(domain.SettlementStatusEvent{
		DistributionID:  dist.ID.String(),
		TransactionHash: "0xcafe0042aa",
		Network:         "base-mainnet",
		AmountCents:     4200,
		Status:          "confirmed",
	})

	if !consumer.HandleMessage(body) {
		t.Fatal("expected confirmed settlement to be acknowledged")
	}

	current, err := repo.FindDistributionByID(context.Background(), dist.ID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if current.Status != domain.StatusPaid {
		t.Fatalf("expected paid, got %q", current.Status)
	}
}

func TestSettlementConsumer_AcksMalformedAndUnknownPayloads(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, nil, nil, nil, 0)
	consumer := NewSettlementStatusConsumer(service)

	if !consumer.HandleMessage([]byte("{not json")) {
		t.Fatal("malformed payload must be acked and dropped")
	}
	if !consumer.HandleMessage([]byte(`{"distribution_id":"not-a-uuid"}`)) {
		t.Fatal("invalid distribution id must be acked and dropped")
	}

	body, _ := json.Marshal(domain.SettlementStatusEvent{
		DistributionID:  uuid.NewString(),
		TransactionHash: "0xcafe0042aa",
		Network:         "base-mainnet",
		AmountCents:     100,
	})
	if !consumer.HandleMessage(body) {
		t.Fatal("settlement for unknown distribution must be acked and dropped")
	}
}

func TestSettlementConsumer_RequeuesOnResolverOutage(t *testing.T) {
	dist := claimedDistribution(4200)
	repo := newMemoryRepo(dist)
	resolver := &networkResolverStub{err: fmt.Errorf("dial timeout")}
	service := NewService(repo, resolver, nil, nil, 0)
	consumer := NewSettlementStatusConsumer(service)

	body, _ := json.Marshal(domain.SettlementStatusEvent{
		DistributionID:  dist.ID.String(),
		TransactionHash: "0xcafe0042aa",
		Network:         "base-mainnet",
		AmountCents:     4200,
		Status:          "confirmed",
	})

	if consumer.HandleMessage(body) {
		t.Fatal("expected nack for redelivery while the resolver is down")
	}

	current, err := repo.FindDistributionByID(context.Background(), dist.ID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if current.Status != domain.StatusClaimed {
		t.Fatalf("expected distribution to stay claimed, got %q", current.Status)
	}
}

func TestPayoutConsumer_CreatesPendingDistribution(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, nil, &recipientResolverStub{exists: true}, nil, 0)
	consumer := NewPayoutTriggeredConsumer(service)

	recipientID := uuid.New()
	jobID := uuid.New()
	body, _ := json.Marshal(domain.PayoutTriggeredEvent{
		RecipientType: "user",
		RecipientID:   recipientID.String(),
		JobID:         jobID.String(),
		AmountCents:   9900,
		Currency:      "usd",
	})

	if !consumer.HandleMessage(body) {
		t.Fatal("expected payout trigger to be acknowledged")
	}

	page, err := repo.ListDistributions(context.Background(), domain.ListOptions{RecipientID: &recipientID})
	if err != nil {
		t.Fatalf("listing failed: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected one distribution, got %d", page.Total)
	}
	created := page.Items[0]
	if created.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %q", created.Status)
	}
	if created.Currency != "USD" {
		t.Fatalf("expected normalized currency, got %q", created.Currency)
	}
	if created.JobID == nil || *created.JobID != jobID {
		t.Fatal("expected job id to be carried onto the record")
	}
}

func TestPayoutConsumer_DropsUnknownRecipient(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, nil, &recipientResolverStub{exists: false}, nil, 0)
	consumer := NewPayoutTriggeredConsumer(service)

	body, _ := json.Marshal(domain.PayoutTriggeredEvent{
		RecipientType: "user",
		RecipientID:   uuid.NewString(),
		AmountCents:   100,
		Currency:      "USD",
	})

	if !consumer.HandleMessage(body) {
		t.Fatal("unknown recipient must be acked and dropped")
	}
}

func TestPayoutConsumer_RequeuesOnRecipientServiceOutage(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, nil, &recipientResolverStub{err: fmt.Errorf("502 bad gateway")}, nil, 0)
	consumer := NewPayoutTriggeredConsumer(service)

	body, _ := json.Marshal(domain.PayoutTriggeredEvent{
		RecipientType: "user",
		RecipientID:   uuid.NewString(),
		AmountCents:   100,
		Currency:      "USD",
	})

	if consumer.HandleMessage(body) {
		t.Fatal("expected nack while the recipient service is down")
	}
}
