package domain

import "context"

// Store is the datastore capability the reconciler depends on. Reads
// outside a transaction return (nil, nil) when a row is absent.
type Store interface {
	GetSubscription(ctx context.Context, userID string) (*SubscriptionRecord, error)
	FindUserIDsByCustomer(ctx context.Context, customerRef string) ([]string, error)
	FindProcessedEvent(ctx context.Context, eventID string) (*ProcessedEventRecord, error)
	FindUser(ctx context.Context, userID string) (*User, error)
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx groups the claim and the state write so they commit together.
type Tx interface {
	// InsertProcessedEvent returns false when the event ID already exists.
	InsertProcessedEvent(ctx context.Context, record *ProcessedEventRecord) (bool, error)
	GetSubscription(ctx context.Context, userID string) (*SubscriptionRecord, error)
	// SetSubscription inserts when record.Version is zero and otherwise
	// updates only if the stored version still equals record.Version.
	// On success record.Version holds the new version.
	SetSubscription(ctx context.Context, record *SubscriptionRecord) error
}
