package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"heirloom/cmd/identity/ids"

	"github.com/stretchr/testify/require"
)

var suiteNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newRecord(t *testing.T, userID, familyID, hash string, now time.Time) NewRecord {
	t.Helper()
	return NewRecord{
		UserID:    userID,
		TokenHash: hash,
		FamilyID:  familyID,
		ExpiresAt: now.Add(30 * 24 * time.Hour),
		CreatedAt: now,
	}
}

func uniqueUser(t *testing.T) string {
	t.Helper()
	id, err := ids.NewULID(time.Now())
	require.NoError(t, err)
	return id
}

// runStoreSuite exercises the Store contract against any backend.
func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("insert_and_find", func(t *testing.T) {
		s := open(t)
		user := uniqueUser(t)

		rec, err := s.Insert(ctx, newRecord(t, user, "fam-a-"+user, "hash-a-"+user, suiteNow))
		require.NoError(t, err)
		require.NotEmpty(t, rec.ID)
		require.False(t, rec.Revoked)

		got, err := s.FindActive(ctx, suiteNow.Add(time.Minute), "hash-a-"+user, "fam-a-"+user)
		require.NoError(t, err)
		require.Equal(t, rec.ID, got.ID)
		require.Equal(t, user, got.UserID)
		require.True(t, got.ExpiresAt.Equal(rec.ExpiresAt))
		require.True(t, got.Active(suiteNow))

		byHash, err := s.FindByHash(ctx, "hash-a-"+user)
		require.NoError(t, err)
		require.Equal(t, rec.ID, byHash.ID)
	})

	t.Run("find_active_misses", func(t *testing.T) {
		s := open(t)
		user := uniqueUser(t)

		rec, err := s.Insert(ctx, newRecord(t, user, "fam-b-"+user, "hash-b-"+user, suiteNow))
		require.NoError(t, err)

		_, err = s.FindActive(ctx, suiteNow, "hash-b-"+user, "other-family")
		require.ErrorIs(t, err, ErrNotFound)

		_, err = s.FindActive(ctx, rec.ExpiresAt.Add(time.Second), "hash-b-"+user, "fam-b-"+user)
		require.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.Revoke(ctx, suiteNow, rec.ID, ReasonLogout))
		_, err = s.FindActive(ctx, suiteNow, "hash-b-"+user, "fam-b-"+user)
		require.ErrorIs(t, err, ErrNotFound)
		require.False(t, errors.Is(err, ErrStoreUnavailable))

		_, err = s.FindByHash(ctx, "missing-"+user)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("revoke_is_idempotent", func(t *testing.T) {
		s := open(t)
		user := uniqueUser(t)

		rec, err := s.Insert(ctx, newRecord(t, user, "fam-c-"+user, "hash-c-"+user, suiteNow))
		require.NoError(t, err)

		require.NoError(t, s.Revoke(ctx, suiteNow, rec.ID, ReasonLogout))
		require.NoError(t, s.Revoke(ctx, suiteNow.Add(time.Hour), rec.ID, ReasonAdmin))
		require.NoError(t, s.Revoke(ctx, suiteNow, "no-such-record", ReasonLogout))

		got, err := s.FindByHash(ctx, "hash-c-"+user)
		require.NoError(t, err)
		require.True(t, got.Revoked)
		require.NotNil(t, got.RevokedAt)
		require.True(t, got.RevokedAt.Equal(suiteNow), "first revoke wins")
		require.Equal(t, ReasonLogout, got.RevokeReason)
	})

	t.Run("duplicate_hash", func(t *testing.T) {
		s := open(t)
		user := uniqueUser(t)

		_, err := s.Insert(ctx, newRecord(t, user, "fam-d-"+user, "hash-d-"+user, suiteNow))
		require.NoError(t, err)
		_, err = s.Insert(ctx, newRecord(t, user, "fam-d2-"+user, "hash-d-"+user, suiteNow))
		require.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("rotate_duplicate_hash_keeps_old_active", func(t *testing.T) {
		s := open(t)
		user := uniqueUser(t)
		fam := "fam-r-" + user

		old, err := s.Insert(ctx, newRecord(t, user, fam, "hash-r1-"+user, suiteNow))
		require.NoError(t, err)
		_, err = s.Insert(ctx, newRecord(t, user, fam, "hash-r2-"+user, suiteNow))
		require.NoError(t, err)

		_, err = s.Rotate(ctx, suiteNow.Add(time.Minute), old.ID, newRecord(t, user, fam, "hash-r2-"+user, suiteNow.Add(time.Minute)))
		require.ErrorIs(t, err, ErrDuplicate)
		require.False(t, errors.Is(err, ErrStoreUnavailable))

		got, err := s.FindActive(ctx, suiteNow.Add(time.Minute), "hash-r1-"+user, fam)
		require.NoError(t, err, "failed rotation must roll back the revoke")
		require.Equal(t, old.ID, got.ID)
	})

	t.Run("revoke_all_for_user_spans_families", func(t *testing.T) {
		s := open(t)
		user := uniqueUser(t)
		other := uniqueUser(t)

		for i := 0; i < 3; i++ {
			_, err := s.Insert(ctx, newRecord(t, user, fmt.Sprintf("fam-%d-%s", i, user), fmt.Sprintf("h-%d-%s", i, user), suiteNow))
			require.NoError(t, err)
		}
		_, err := s.Insert(ctx, newRecord(t, other, "fam-x-"+other, "h-x-"+other, suiteNow))
		require.NoError(t, err)

		n, err := s.RevokeAllForUser(ctx, suiteNow, user, ReasonLogout)
		require.NoError(t, err)
		require.EqualValues(t, 3, n)

		n, err = s.RevokeAllForUser(ctx, suiteNow, user, ReasonLogout)
		require.NoError(t, err)
		require.Zero(t, n)

		recs, err := s.ListByUser(ctx, user)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		for _, r := range recs {
			require.True(t, r.Revoked)
			require.Equal(t, ReasonLogout, r.RevokeReason)
		}

		_, err = s.FindActive(ctx, suiteNow, "h-x-"+other, "fam-x-"+other)
		require.NoError(t, err, "other users are untouched")
	})

	t.Run("rotate_chain", func(t *testing.T) {
		s := open(t)
		user := uniqueUser(t)
		fam := "fam-r-" + user

		cur, err := s.Insert(ctx, newRecord(t, user, fam, "r-0-"+user, suiteNow))
		require.NoError(t, err)

		const n = 5
		for i := 1; i <= n; i++ {
			at := suiteNow.Add(time.Duration(i) * time.Minute)
			cur, err = s.Rotate(ctx, at, cur.ID, newRecord(t, user, fam, fmt.Sprintf("r-%d-%s", i, user), at))
			require.NoError(t, err)
		}

		recs, err := s.ListByUser(ctx, user)
		require.NoError(t, err)
		require.Len(t, recs, n+1)

		live := 0
		for _, r := range recs {
			require.Equal(t, fam, r.FamilyID)
			if !r.Revoked {
				live++
				require.Equal(t, cur.ID, r.ID)
			} else {
				require.Equal(t, ReasonRotated, r.RevokeReason)
			}
		}
		require.Equal(t, 1, live)
	})

	t.Run("rotate_rejects_inactive_and_mismatched", func(t *testing.T) {
		s := open(t)
		user := uniqueUser(t)
		fam := "fam-m-" + user

		rec, err := s.Insert(ctx, newRecord(t, user, fam, "m-0-"+user, suiteNow))
		require.NoError(t, err)

		_, err = s.Rotate(ctx, suiteNow, rec.ID, newRecord(t, user, "another-family", "m-1-"+user, suiteNow))
		require.ErrorIs(t, err, ErrFamilyMismatch)

		// The failed rotation must not have revoked the original.
		_, err = s.FindActive(ctx, suiteNow, "m-0-"+user, fam)
		require.NoError(t, err)

		_, err = s.Rotate(ctx, rec.ExpiresAt, rec.ID, newRecord(t, user, fam, "m-2-"+user, suiteNow))
		require.ErrorIs(t, err, ErrNotActive)

		_, err = s.Rotate(ctx, suiteNow, "no-such-record", newRecord(t, user, fam, "m-3-"+user, suiteNow))
		require.ErrorIs(t, err, ErrNotActive)
	})

	t.Run("concurrent_rotate_single_winner", func(t *testing.T) {
		s := open(t)
		user := uniqueUser(t)
		fam := "fam-c-" + user

		rec, err := s.Insert(ctx, newRecord(t, user, fam, "c-0-"+user, suiteNow))
		require.NoError(t, err)

		const racers = 8
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			wins     int
			inactive int
		)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.Rotate(ctx, suiteNow, rec.ID, newRecord(t, user, fam, fmt.Sprintf("c-%d-%s", i+1, user), suiteNow))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, ErrNotActive):
					inactive++
				default:
					t.Errorf("unexpected rotate error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		require.Equal(t, 1, wins)
		require.Equal(t, racers-1, inactive)

		recs, err := s.ListByUser(ctx, user)
		require.NoError(t, err)
		require.Len(t, recs, 2)
	})

	t.Run("revoke_family", func(t *testing.T) {
		s := open(t)
		user := uniqueUser(t)

		a, err := s.Insert(ctx, newRecord(t, user, "fam-1-"+user, "f-1-"+user, suiteNow))
		require.NoError(t, err)
		_, err = s.Rotate(ctx, suiteNow, a.ID, newRecord(t, user, "fam-1-"+user, "f-2-"+user, suiteNow))
		require.NoError(t, err)
		_, err = s.Insert(ctx, newRecord(t, user, "fam-2-"+user, "f-3-"+user, suiteNow))
		require.NoError(t, err)

		n, err := s.RevokeFamily(ctx, suiteNow, "fam-1-"+user, ReasonReuseDetected)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)

		_, err = s.FindActive(ctx, suiteNow, "f-2-"+user, "fam-1-"+user)
		require.ErrorIs(t, err, ErrNotFound)
		_, err = s.FindActive(ctx, suiteNow, "f-3-"+user, "fam-2-"+user)
		require.NoError(t, err)
	})
}
