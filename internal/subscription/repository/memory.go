package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/smallbiznis/subsync/internal/subscription/domain"
)

// Memory is an in-process Store. Transactions are serialized and staged
// so a failing callback leaves no trace.
type Memory struct {
	txMu sync.Mutex

	mu     sync.RWMutex
	subs   map[string]*domain.SubscriptionRecord
	events map[string]domain.ProcessedEventRecord
	users  map[string]domain.User
}

func NewMemory() *Memory {
	return &Memory{
		subs:   map[string]*domain.SubscriptionRecord{},
		events: map[string]domain.ProcessedEventRecord{},
		users:  map[string]domain.User{},
	}
}

// ProvideMemory exposes a Memory as the Store.
func ProvideMemory() domain.Store {
	return NewMemory()
}

// PutUser seeds the read-only user table.
func (m *Memory) PutUser(user domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}

func (m *Memory) GetSubscription(ctx context.Context, userID string) (*domain.SubscriptionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subs[userID].Clone(), nil
}

func (m *Memory) FindUserIDsByCustomer(ctx context.Context, customerRef string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	customerRef = strings.TrimSpace(customerRef)
	if customerRef == "" {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]struct{}{}
	for _, user := range m.users {
		if user.ProviderCustomerID == customerRef {
			seen[user.ID] = struct{}{}
		}
	}
	for userID, sub := range m.subs {
		if sub.ProviderCustomerID == customerRef {
			seen[userID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) FindProcessedEvent(ctx context.Context, eventID string) (*domain.ProcessedEventRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.events[eventID]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (m *Memory) FindUser(ctx context.Context, userID string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (m *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memoryTx{
		store:  m,
		subs:   map[string]*domain.SubscriptionRecord{},
		events: map[string]domain.ProcessedEventRecord{},
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, record := range tx.events {
		m.events[id] = record
	}
	for userID, record := range tx.subs {
		m.subs[userID] = record
	}
	return nil
}

type memoryTx struct {
	store  *Memory
	subs   map[string]*domain.SubscriptionRecord
	events map[string]domain.ProcessedEventRecord
}

func (t *memoryTx) InsertProcessedEvent(ctx context.Context, record *domain.ProcessedEventRecord) (bool, error) {
	if _, ok := t.events[record.EventID]; ok {
		return false, nil
	}
	t.store.mu.RLock()
	_, exists := t.store.events[record.EventID]
	t.store.mu.RUnlock()
	if exists {
		return false, nil
	}
	t.events[record.EventID] = *record
	return true, nil
}

func (t *memoryTx) GetSubscription(ctx context.Context, userID string) (*domain.SubscriptionRecord, error) {
	if staged, ok := t.subs[userID]; ok {
		return staged.Clone(), nil
	}
	return t.store.GetSubscription(ctx, userID)
}

func (t *memoryTx) SetSubscription(ctx context.Context, record *domain.SubscriptionRecord) error {
	current, err := t.GetSubscription(ctx, record.UserID)
	if err != nil {
		return err
	}
	var stored int64
	if current != nil {
		stored = current.Version
	}
	if stored != record.Version {
		return domain.ErrConcurrentUpdate
	}
	record.Version++
	t.subs[record.UserID] = record.Clone()
	return nil
}
