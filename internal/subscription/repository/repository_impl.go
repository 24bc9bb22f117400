package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/subsync/internal/subscription/domain"
	"github.com/smallbiznis/subsync/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	db *gorm.DB
}

// Provide returns the gorm-backed store.
func Provide(conn *gorm.DB) domain.Store {
	return &repo{db: conn}
}

func (r *repo) GetSubscription(ctx context.Context, userID string) (*domain.SubscriptionRecord, error) {
	return getSubscription(r.db.WithContext(ctx), userID, false)
}

func (r *repo) FindUserIDsByCustomer(ctx context.Context, customerRef string) ([]string, error) {
	customerRef = strings.TrimSpace(customerRef)
	if customerRef == "" {
		return nil, nil
	}

	var ids []string
	err := r.db.WithContext(ctx).Raw(
		`SELECT id FROM users WHERE provider_customer_id = ?
		UNION
		SELECT user_id FROM user_subscriptions WHERE provider_customer_id = ?`,
		customerRef, customerRef,
	).Scan(&ids).Error
	if err != nil {
		return nil, fmt.Errorf("find users by customer: %w", err)
	}
	return ids, nil
}

func (r *repo) FindProcessedEvent(ctx context.Context, eventID string) (*domain.ProcessedEventRecord, error) {
	var record domain.ProcessedEventRecord
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find processed event: %w", err)
	}
	return &record, nil
}

func (r *repo) FindUser(ctx context.Context, userID string) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (r *repo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &txRepo{db: tx})
	})
	if err != nil && db.IsRetryableTxErr(err) {
		return fmt.Errorf("%w: %v", domain.ErrConcurrentUpdate, err)
	}
	return err
}

type txRepo struct {
	db *gorm.DB
}

func (t *txRepo) InsertProcessedEvent(ctx context.Context, record *domain.ProcessedEventRecord) (bool, error) {
	result := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(record)
	if result.Error != nil {
		if db.IsDuplicateKeyErr(result.Error) {
			return false, nil
		}
		return false, fmt.Errorf("insert processed event: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (t *txRepo) GetSubscription(ctx context.Context, userID string) (*domain.SubscriptionRecord, error) {
	return getSubscription(t.db.WithContext(ctx), userID, true)
}

func (t *txRepo) SetSubscription(ctx context.Context, record *domain.SubscriptionRecord) error {
	if record == nil {
		return errors.New("subscription record is required")
	}

	if record.Version == 0 {
		insert := *record
		insert.Version = 1
		if err := t.db.WithContext(ctx).Create(&insert).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrConcurrentUpdate
			}
			return fmt.Errorf("insert subscription: %w", err)
		}
		record.Version = insert.Version
		return nil
	}

	result := t.db.WithContext(ctx).Exec(
		`UPDATE user_subscriptions SET
			status = ?, plan_id = ?, billing_cycle = ?, current_period_end = ?,
			cancel_at_period_end = ?, provider_customer_id = ?, provider_subscription_id = ?,
			amount = ?, currency = ?, last_event_id = ?, last_event_at = ?,
			version = version + 1, updated_at = ?
		WHERE user_id = ? AND version = ?`,
		record.Status,
		record.PlanID,
		record.BillingCycle,
		record.CurrentPeriodEnd,
		record.CancelAtPeriodEnd,
		record.ProviderCustomerID,
		record.ProviderSubscriptionID,
		record.Amount,
		record.Currency,
		record.LastEventID,
		record.LastEventAt,
		record.UpdatedAt,
		record.UserID,
		record.Version,
	)
	if result.Error != nil {
		return fmt.Errorf("update subscription: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrConcurrentUpdate
	}
	record.Version++
	return nil
}

func getSubscription(conn *gorm.DB, userID string, forUpdate bool) (*domain.SubscriptionRecord, error) {
	query := conn.Where("user_id = ?", userID)
	// sqlite has no row locks; its writer lock already serializes.
	if forUpdate && conn.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var record domain.SubscriptionRecord
	err := query.Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &record, nil
}
