package domain

// SettlementStatusEvent is the payload consumed from the message broker when
// the chain watcher observes a settlement transaction for a distribution.
type SettlementStatusEvent struct {
	DistributionID  string `json:"distribution_id"`
	TransactionHash string `json:"transaction_hash"`
	Network         string `json:"network"`
	AmountCents     int64  `json:"amount_cents"`
	Status          string `json:"status"`
}

// PayoutTriggeredEvent is the payload consumed when an upstream job event
// creates an amount owed to a recipient.
type PayoutTriggeredEvent struct {
	RecipientType string `json:"recipient_type"`
	RecipientID   string `json:"recipient_id"`
	JobID         string `json:"job_id,omitempty"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
}
