package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/worklane/distribution-service/internal/domain"
	"github.com/worklane/distribution-service/internal/store"
)

func TestCreateDistribution_ValidatesInput(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, nil, &recipientResolverStub{exists: true}, nil, 0)

	cases := []struct {
		name string
		req  domain.CreateDistributionRequest
		want error
	}{
		{"unknown recipient type", domain.CreateDistributionRequest{RecipientType: "robot", RecipientID: uuid.New(), AmountCents: 100, Currency: "USD"}, ErrInvalidRecipient},
		{"nil recipient id", domain.CreateDistributionRequest{RecipientType: "user", AmountCents: 100, Currency: "USD"}, ErrInvalidRecipient},
		{"zero amount", domain.CreateDistributionRequest{RecipientType: "user", RecipientID: uuid.New(), AmountCents: 0, Currency: "USD"}, ErrInvalidAmount},
		{"negative amount", domain.CreateDistributionRequest{RecipientType: "user", RecipientID: uuid.New(), AmountCents: -5, Currency: "USD"}, ErrInvalidAmount},
		{"bad currency", domain.CreateDistributionRequest{RecipientType: "user", RecipientID: uuid.New(), AmountCents: 100, Currency: "DOLLARS"}, ErrInvalidCurrency},
	}

	for _, tc := range cases {
		if _, err := service.CreateDistribution(context.Background(), tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestCreateDistribution_NormalizesCurrencyAndStartsPending(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, nil, &recipientResolverStub{exists: true}, nil, 0)

	created, err := service.CreateDistribution(context.Background(), domain.CreateDistributionRequest{
		RecipientType: domain.RecipientTypeOrganization,
		RecipientID:   uuid.New(),
		AmountCents:   2500,
		Currency:      " eur ",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.Currency != "EUR" {
		t.Fatalf("expected normalized currency EUR, got %q", created.Currency)
	}
	if created.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %q", created.Status)
	}
	if created.Version != 1 {
		t.Fatalf("expected initial version 1, got %d", created.Version)
	}
}

func TestListDistributions_RejectsUnknownFilterValues(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, nil, nil, nil, 0)

	if _, err := service.ListDistributions(context.Background(), domain.ListOptions{RecipientType: "robot"}); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
	if _, err := service.ListDistributions(context.Background(), domain.ListOptions{Status: "galactic"}); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestSoftDeleteDistribution_HidesRecordFromReads(t *testing.T) {
	dist := pendingDistribution(100)
	repo := newMemoryRepo(dist)
	service := NewService(repo, nil, nil, nil, 0)

	if err := service.SoftDeleteDistribution(context.Background(), dist.ID); err != nil {
		t.Fatalf("soft delete failed: %v", err)
	}
	if _, err := service.GetDistribution(context.Background(), dist.ID); !errors.Is(err, store.ErrDistributionNotFound) {
		t.Fatalf("expected deleted record to be invisible, got %v", err)
	}
	if err := service.SoftDeleteDistribution(context.Background(), dist.ID); !errors.Is(err, store.ErrDistributionNotFound) {
		t.Fatalf("expected second delete to report not found, got %v", err)
	}
}
