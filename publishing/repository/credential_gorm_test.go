package repository

import (
	"context"
	"testing"
	"time"

	"github.com/AzielCF/az-publisher/pkg/crypto"
	"github.com/AzielCF/az-publisher/publishing/domain/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCredentialRepo(t *testing.T) *CredentialGormRepository {
	t.Helper()
	cipher, err := crypto.NewCipher("test-secret")
	require.NoError(t, err)
	repo := NewCredentialGormRepository(newTestDB(t), cipher)
	require.NoError(t, repo.Init(context.Background()))
	return repo
}

func TestCredentialSaveAndGet(t *testing.T) {
	repo := newCredentialRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveToken(ctx, "u1", platform.LinkedIn, platform.AccessToken{Value: "first", AccountID: "abc"}))
	require.NoError(t, repo.SaveToken(ctx, "u1", platform.LinkedIn, platform.AccessToken{Value: "second", AccountID: "abc"}))

	token, err := repo.GetToken(ctx, "u1", platform.LinkedIn)
	require.NoError(t, err)
	assert.Equal(t, "second", token.Value)
	assert.Equal(t, "abc", token.AccountID)

	var stored platformCredentialModel
	require.NoError(t, repo.db.Where("user_id = ?", "u1").Take(&stored).Error)
	assert.NotEqual(t, "second", stored.AccessToken)
}

func TestCredentialMissingOrExpiredIsUnauthorized(t *testing.T) {
	repo := newCredentialRepo(t)
	ctx := context.Background()

	_, err := repo.GetToken(ctx, "u1", platform.X)
	assert.Equal(t, platform.KindUnauthorized, platform.KindOf(err))

	expired := time.Now().Add(-time.Hour)
	require.NoError(t, repo.SaveToken(ctx, "u1", platform.X, platform.AccessToken{Value: "old", ExpiresAt: &expired}))
	_, err = repo.GetToken(ctx, "u1", platform.X)
	assert.Equal(t, platform.KindUnauthorized, platform.KindOf(err))

	require.NoError(t, repo.DeleteToken(ctx, "u1", platform.X))
	_, err = repo.GetToken(ctx, "u1", platform.X)
	assert.Equal(t, platform.KindUnauthorized, platform.KindOf(err))
}
