// Package seed loads development users so customer-only events can be
// resolved without an external user service.
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/subsync/internal/config"
	"github.com/smallbiznis/subsync/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var Module = fx.Module("seed",
	fx.Invoke(Run),
)

type userWriter interface {
	PutUser(user domain.User)
}

type Params struct {
	fx.In

	Config config.Config
	Store  domain.Store
	DB     *gorm.DB `optional:"true"`
	Log    *zap.Logger
}

// Run seeds the users configured in SEED_USERS into whichever datastore
// is active.
func Run(p Params) error {
	users, err := ParseUsers(p.Config.SeedUsers)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return nil
	}

	if writer, ok := p.Store.(userWriter); ok {
		for _, user := range users {
			writer.PutUser(user)
		}
	} else if p.DB != nil {
		if err := EnsureUsers(context.Background(), p.DB, users); err != nil {
			return err
		}
	} else {
		return errors.New("seed: no writable user store")
	}

	p.Log.Named("seed").Info("users seeded", zap.Int("count", len(users)))
	return nil
}

// ParseUsers reads "id:customer[:email]" entries separated by commas.
func ParseUsers(raw string) ([]domain.User, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var users []domain.User
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("seed: invalid user entry %q", entry)
		}
		user := domain.User{
			ID:                 strings.TrimSpace(parts[0]),
			ProviderCustomerID: strings.TrimSpace(parts[1]),
		}
		if len(parts) == 3 {
			user.Email = strings.TrimSpace(parts[2])
		}
		if user.ID == "" || user.ProviderCustomerID == "" {
			return nil, fmt.Errorf("seed: invalid user entry %q", entry)
		}
		users = append(users, user)
	}
	return users, nil
}

// EnsureUsers upserts users by primary key.
func EnsureUsers(ctx context.Context, db *gorm.DB, users []domain.User) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if len(users) == 0 {
		return nil
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "provider_customer_id"}),
		}).Create(&users).Error
	})
}
