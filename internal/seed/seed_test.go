package seed

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/subsync/internal/config"
	"github.com/smallbiznis/subsync/internal/subscription/domain"
	"github.com/smallbiznis/subsync/internal/subscription/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestParseUsers(t *testing.T) {
	users, err := ParseUsers(" user_1:cus_1:a@example.com, user_2:cus_2 ,")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, domain.User{ID: "user_1", ProviderCustomerID: "cus_1", Email: "a@example.com"}, users[0])
	assert.Equal(t, domain.User{ID: "user_2", ProviderCustomerID: "cus_2"}, users[1])

	users, err = ParseUsers("")
	require.NoError(t, err)
	assert.Empty(t, users)

	_, err = ParseUsers("user_1")
	assert.Error(t, err)
	_, err = ParseUsers(":cus_1")
	assert.Error(t, err)
}

func TestRunSeedsMemoryStore(t *testing.T) {
	store := repository.NewMemory()
	err := Run(Params{
		Config: config.Config{SeedUsers: "user_1:cus_1"},
		Store:  store,
		Log:    zap.NewNop(),
	})
	require.NoError(t, err)

	ids, err := store.FindUserIDsByCustomer(context.Background(), "cus_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"user_1"}, ids)
}

func TestEnsureUsersUpserts(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:seed_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.User{}))

	ctx := context.Background()
	require.NoError(t, EnsureUsers(ctx, db, []domain.User{{ID: "user_1", ProviderCustomerID: "cus_1"}}))
	require.NoError(t, EnsureUsers(ctx, db, []domain.User{{ID: "user_1", ProviderCustomerID: "cus_9", Email: "x@example.com"}}))

	var stored []domain.User
	require.NoError(t, db.Find(&stored).Error)
	require.Len(t, stored, 1)
	assert.Equal(t, "cus_9", stored[0].ProviderCustomerID)
	assert.Equal(t, "x@example.com", stored[0].Email)
}
