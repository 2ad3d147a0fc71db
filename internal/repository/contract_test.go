package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"tableside/internal/domain"
	"tableside/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runSessionRepositoryContract exercises behaviour every session store must share.
func runSessionRepositoryContract(t *testing.T, repo domain.SessionRepository) {
	ctx := context.Background()

	t.Run("SaveAndGetSession", func(t *testing.T) {
		s := &models.GuestSession{
			ID:        "sess-1",
			TableID:   10,
			PlaceID:   1,
			Passcode:  "ABC234",
			IssuedAt:  time.Now(),
			ExpiresAt: time.Now().Add(time.Hour),
		}
		require.NoError(t, repo.SaveSession(ctx, s))

		got, err := repo.GetSession(ctx, "sess-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(10), got.TableID)
		assert.Equal(t, "ABC234", got.Passcode)
	})

	t.Run("GetMissingSession", func(t *testing.T) {
		got, err := repo.GetSession(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ClaimIsExclusive", func(t *testing.T) {
		first := &models.TableClaim{TableID: 20, Passcode: "FIRST1", SessionID: "a", ExpiresAt: time.Now().Add(time.Hour)}
		second := &models.TableClaim{TableID: 20, Passcode: "SECND2", SessionID: "b", ExpiresAt: time.Now().Add(time.Hour)}

		ok, err := repo.ClaimTable(ctx, first)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.ClaimTable(ctx, second)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.GetTableClaim(ctx, 20)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "FIRST1", got.Passcode)
		assert.Equal(t, "a", got.SessionID)
	})

	t.Run("ConcurrentClaims", func(t *testing.T) {
		const n = 8
		var wg sync.WaitGroup
		results := make(chan bool, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := repo.ClaimTable(ctx, &models.TableClaim{TableID: 21, Passcode: "RACE22", ExpiresAt: time.Now().Add(time.Hour)})
				assert.NoError(t, err)
				results <- ok
			}()
		}
		wg.Wait()
		close(results)

		wins := 0
		for ok := range results {
			if ok {
				wins++
			}
		}
		assert.Equal(t, 1, wins)
	})

	t.Run("ExtendRequiresPasscode", func(t *testing.T) {
		claim := &models.TableClaim{TableID: 30, Passcode: "KEEP33", SessionID: "a", ExpiresAt: time.Now().Add(time.Minute)}
		ok, err := repo.ClaimTable(ctx, claim)
		require.NoError(t, err)
		require.True(t, ok)

		later := time.Now().Add(2 * time.Hour).Truncate(time.Millisecond)
		ok, err = repo.ExtendTableClaim(ctx, &models.TableClaim{TableID: 30, Passcode: "WRONG9", SessionID: "x", ExpiresAt: later})
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = repo.ExtendTableClaim(ctx, &models.TableClaim{TableID: 30, Passcode: "KEEP33", SessionID: "b", ExpiresAt: later})
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetTableClaim(ctx, 30)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "b", got.SessionID)
		assert.True(t, got.ExpiresAt.Equal(later))

		ok, err = repo.ExtendTableClaim(ctx, &models.TableClaim{TableID: 31, Passcode: "KEEP33", ExpiresAt: later})
		require.NoError(t, err)
		assert.False(t, ok, "extend must not create a claim")
	})

	t.Run("Release", func(t *testing.T) {
		ok, err := repo.ClaimTable(ctx, &models.TableClaim{TableID: 40, Passcode: "FREE44", ExpiresAt: time.Now().Add(time.Hour)})
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, repo.ReleaseTable(ctx, 40))
		got, err := repo.GetTableClaim(ctx, 40)
		require.NoError(t, err)
		assert.Nil(t, got)

		ok, err = repo.ClaimTable(ctx, &models.TableClaim{TableID: 40, Passcode: "NEXT45", ExpiresAt: time.Now().Add(time.Hour)})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("RateLimit", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			allowed, err := repo.CheckRateLimit(ctx, "join:50", 2, time.Minute)
			require.NoError(t, err)
			assert.True(t, allowed)
		}
		allowed, err := repo.CheckRateLimit(ctx, "join:50", 2, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, "join:51", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}
