package domain

import (
	"context"
	"time"
)

// Status is the acknowledgement reported for a delivery the pipeline
// accepted.
type Status string

const (
	StatusProcessed Status = "processed"
	StatusDuplicate Status = "duplicate"
	StatusIgnored   Status = "ignored"
	StatusSkipped   Status = "skipped"
)

// InboundRequest is one webhook delivery as received over HTTP. Body is the
// exact byte sequence the provider signed.
type InboundRequest struct {
	Body            []byte
	SignatureHeader string
	ReceivedAt      time.Time
}

// Outcome describes an accepted delivery.
type Outcome struct {
	EventID string
	Kind    string
	Status  Status
	Reason  string
	UserID  string
}

// NoOp reports whether the delivery was accepted without changing state.
func (o Outcome) NoOp() bool {
	return o.Status != StatusProcessed
}

//go:generate mockgen -source=model.go -destination=../mocks/mock_service.go -package=mocks
type Service interface {
	Handle(ctx context.Context, req InboundRequest) (*Outcome, error)
}
