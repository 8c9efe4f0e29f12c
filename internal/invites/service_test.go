package invites_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aliuyar1234/traineeportal/internal/invites"
	"github.com/aliuyar1234/traineeportal/internal/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newService(t *testing.T) (*invites.Service, *memstore.Invites, *clock) {
	t.Helper()
	store := memstore.NewInvites()
	clk := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := invites.NewService(store, invites.Options{
		DefaultValidityDays: 7,
		StoreTimeout:        time.Second,
		ClaimTTL:            time.Minute,
	})
	svc.Now = clk.Now
	return svc, store, clk
}

func issue(t *testing.T, svc *invites.Service, email string) *invites.Invitation {
	t.Helper()
	inv, err := svc.IssueToken(context.Background(), invites.IssueParams{Email: email})
	require.NoError(t, err)
	return inv
}

func TestIssueToken_Defaults(t *testing.T) {
	svc, _, clk := newService(t)

	inv := issue(t, svc, "a@x.io")

	require.NotEqual(t, uuid.Nil, inv.ID)
	require.True(t, invites.ValidTokenFormat(inv.Token))
	require.Equal(t, "a@x.io", inv.Email)
	require.False(t, inv.IsUsed)
	require.Equal(t, clk.Now(), inv.CreatedAt)
	require.Equal(t, clk.Now().AddDate(0, 0, 7), inv.ExpiresAt)
	require.Equal(t, invites.StatusActive, inv.Status)
}

func TestIssueToken_CustomValidity(t *testing.T) {
	svc, _, clk := newService(t)

	inv, err := svc.IssueToken(context.Background(), invites.IssueParams{Email: "a@x.io", ValidityDays: 30})
	require.NoError(t, err)
	require.Equal(t, clk.Now().AddDate(0, 0, 30), inv.ExpiresAt)

	_, err = svc.IssueToken(context.Background(), invites.IssueParams{Email: "a@x.io", ValidityDays: 91})
	require.ErrorIs(t, err, invites.ErrInvalidValidity)

	_, err = svc.IssueToken(context.Background(), invites.IssueParams{Email: "a@x.io", ValidityDays: -1})
	require.ErrorIs(t, err, invites.ErrInvalidValidity)
}

func TestIssueToken_InvalidEmail(t *testing.T) {
	svc, store, _ := newService(t)

	for _, email := range []string{"", "not-an-email", "Alice <a@x.io>"} {
		_, err := svc.IssueToken(context.Background(), invites.IssueParams{Email: email})
		require.ErrorIs(t, err, invites.ErrInvalidEmail, email)
	}
	require.Zero(t, store.Len())
}

func TestIssueToken_MultipleOutstandingPerEmail(t *testing.T) {
	svc, _, _ := newService(t)

	first := issue(t, svc, "a@x.io")
	second := issue(t, svc, "a@x.io")

	require.NotEqual(t, first.Token, second.Token)
	require.True(t, svc.VerifyToken(context.Background(), first.Token))
	require.True(t, svc.VerifyToken(context.Background(), second.Token))
}

func TestIssueToken_RetriesOnCollision(t *testing.T) {
	svc, store, _ := newService(t)

	var calls atomic.Int32
	store.Hook = func(ctx context.Context, op string) error {
		if op == "insert" && calls.Add(1) < 3 {
			return invites.ErrDuplicateToken
		}
		return nil
	}

	inv, err := svc.IssueToken(context.Background(), invites.IssueParams{Email: "a@x.io"})
	require.NoError(t, err)
	require.NotNil(t, inv)
	require.EqualValues(t, 3, calls.Load())
}

func TestIssueToken_CollisionRetryExhausted(t *testing.T) {
	svc, store, _ := newService(t)
	store.Hook = func(ctx context.Context, op string) error {
		return invites.ErrDuplicateToken
	}

	_, err := svc.IssueToken(context.Background(), invites.IssueParams{Email: "a@x.io"})
	require.ErrorContains(t, err, "retry exhausted")
}

func TestIssueToken_StoreUnavailable(t *testing.T) {
	svc, store, _ := newService(t)
	store.Hook = func(ctx context.Context, op string) error {
		return errors.New("connection refused")
	}

	_, err := svc.IssueToken(context.Background(), invites.IssueParams{Email: "a@x.io"})
	require.ErrorIs(t, err, invites.ErrStoreUnavailable)
}

func TestIssueToken_StoreTimeout(t *testing.T) {
	store := memstore.NewInvites()
	svc := invites.NewService(store, invites.Options{StoreTimeout: 20 * time.Millisecond})
	store.Hook = func(ctx context.Context, op string) error {
		<-ctx.Done()
		return ctx.Err()
	}

	_, err := svc.IssueToken(context.Background(), invites.IssueParams{Email: "a@x.io"})
	require.ErrorIs(t, err, invites.ErrStoreUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestVerifyToken(t *testing.T) {
	svc, _, clk := newService(t)
	ctx := context.Background()

	inv := issue(t, svc, "a@x.io")
	require.True(t, svc.VerifyToken(ctx, inv.Token))

	require.False(t, svc.VerifyToken(ctx, ""))
	require.False(t, svc.VerifyToken(ctx, "garbage"))

	other, _, err := invites.GenerateToken()
	require.NoError(t, err)
	require.False(t, svc.VerifyToken(ctx, other), "unknown token")

	// Exactly at expiry the token is still redeemable.
	clk.Advance(7 * 24 * time.Hour)
	require.True(t, svc.VerifyToken(ctx, inv.Token))

	clk.Advance(time.Second)
	require.False(t, svc.VerifyToken(ctx, inv.Token), "expired token")
}

func TestVerifyToken_FailsClosed(t *testing.T) {
	svc, store, _ := newService(t)
	inv := issue(t, svc, "a@x.io")

	store.Hook = func(ctx context.Context, op string) error {
		return errors.New("connection reset")
	}
	require.False(t, svc.VerifyToken(context.Background(), inv.Token))
}

func TestGetTokenData(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	inv := issue(t, svc, "a@x.io")

	got, err := svc.GetTokenData(ctx, inv.Token)
	require.NoError(t, err)
	require.Equal(t, inv.ID, got.ID)
	require.Equal(t, "a@x.io", got.Email)
	require.Equal(t, inv.Token, got.Token)

	_, err = svc.GetTokenData(ctx, "tpi_nope")
	require.ErrorIs(t, err, invites.ErrNotFound)

	// Returned regardless of state.
	_, err = svc.MarkUsed(ctx, inv.Token)
	require.NoError(t, err)
	got, err = svc.GetTokenData(ctx, inv.Token)
	require.NoError(t, err)
	require.True(t, got.IsUsed)
	require.Equal(t, invites.StatusUsed, got.Status)
}

func TestMarkUsed_Idempotent(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	inv := issue(t, svc, "a@x.io")

	ok, err := svc.MarkUsed(ctx, inv.Token)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.MarkUsed(ctx, inv.Token)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := svc.GetTokenData(ctx, inv.Token)
	require.NoError(t, err)
	require.True(t, got.IsUsed)
	require.False(t, svc.VerifyToken(ctx, inv.Token))

	unknown, _, err := invites.GenerateToken()
	require.NoError(t, err)
	ok, err = svc.MarkUsed(ctx, unknown)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClaim_ExclusiveUnderConcurrency(t *testing.T) {
	svc, _, _ := newService(t)
	inv := issue(t, svc, "a@x.io")

	const workers = 32
	var (
		wg         sync.WaitGroup
		winners    atomic.Int32
		unexpected atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claim, err := svc.Claim(context.Background(), inv.Token)
			switch {
			case err == nil:
				winners.Add(1)
				_ = claim.Commit(context.Background(), uuid.New())
			case !errors.Is(err, invites.ErrTokenUnavailable):
				unexpected.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, winners.Load())
	require.Zero(t, unexpected.Load())
	require.False(t, svc.VerifyToken(context.Background(), inv.Token))
}

func TestClaim_ReleaseMakesTokenAvailableAgain(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	inv := issue(t, svc, "a@x.io")

	claim, err := svc.Claim(ctx, inv.Token)
	require.NoError(t, err)
	require.Equal(t, claim.ID(), store.ClaimHolder(invites.HashToken(inv.Token)))

	_, err = svc.Claim(ctx, inv.Token)
	require.ErrorIs(t, err, invites.ErrTokenUnavailable)

	require.NoError(t, claim.Release(ctx))
	require.Empty(t, store.ClaimHolder(invites.HashToken(inv.Token)))
	require.True(t, svc.VerifyToken(ctx, inv.Token))

	again, err := svc.Claim(ctx, inv.Token)
	require.NoError(t, err)
	require.NotEqual(t, claim.ID(), again.ID())
}

func TestClaim_ReleaseSurvivesCancelledContext(t *testing.T) {
	svc, _, _ := newService(t)
	inv := issue(t, svc, "a@x.io")

	ctx, cancel := context.WithCancel(context.Background())
	claim, err := svc.Claim(ctx, inv.Token)
	require.NoError(t, err)
	cancel()

	require.NoError(t, claim.Release(ctx))
	_, err = svc.Claim(context.Background(), inv.Token)
	require.NoError(t, err)
}

func TestClaim_LapsedLeaseCanBeTakenOver(t *testing.T) {
	svc, _, clk := newService(t)
	ctx := context.Background()
	inv := issue(t, svc, "a@x.io")

	stale, err := svc.Claim(ctx, inv.Token)
	require.NoError(t, err)

	clk.Advance(time.Minute + time.Second)

	fresh, err := svc.Claim(ctx, inv.Token)
	require.NoError(t, err)
	require.NoError(t, fresh.Commit(ctx, uuid.New()))

	require.ErrorIs(t, stale.Commit(ctx, uuid.New()), invites.ErrClaimLost)
}

func TestClaim_RejectsUsedAndExpired(t *testing.T) {
	svc, _, clk := newService(t)
	ctx := context.Background()

	used := issue(t, svc, "a@x.io")
	_, err := svc.MarkUsed(ctx, used.Token)
	require.NoError(t, err)
	_, err = svc.Claim(ctx, used.Token)
	require.ErrorIs(t, err, invites.ErrTokenUnavailable)

	expiring := issue(t, svc, "b@x.io")
	clk.Advance(8 * 24 * time.Hour)
	_, err = svc.Claim(ctx, expiring.Token)
	require.ErrorIs(t, err, invites.ErrTokenUnavailable)
}

func TestClaim_CommitRecordsConsumer(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	inv := issue(t, svc, "a@x.io")

	claim, err := svc.Claim(ctx, inv.Token)
	require.NoError(t, err)

	userID := uuid.New()
	require.NoError(t, claim.Commit(ctx, userID))

	got, err := svc.GetTokenData(ctx, inv.Token)
	require.NoError(t, err)
	require.True(t, got.IsUsed)
	require.NotNil(t, got.UsedBy)
	require.Equal(t, userID, *got.UsedBy)
	require.NotNil(t, got.UsedAt)
}

func TestListTokens_DerivedStatus(t *testing.T) {
	svc, _, clk := newService(t)
	ctx := context.Background()

	cohortID := uuid.New()
	used := issue(t, svc, "used@x.io")
	_, err := svc.MarkUsed(ctx, used.Token)
	require.NoError(t, err)

	_, err = svc.IssueToken(ctx, invites.IssueParams{Email: "short@x.io", ValidityDays: 1})
	require.NoError(t, err)

	clk.Advance(2 * 24 * time.Hour)
	_, err = svc.IssueToken(ctx, invites.IssueParams{Email: "live@x.io", CohortID: &cohortID})
	require.NoError(t, err)

	all, err := svc.ListTokens(ctx, invites.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "live@x.io", all[0].Email, "newest first")

	statuses := map[string]invites.Status{}
	for _, inv := range all {
		statuses[inv.Email] = inv.Status
		require.Empty(t, inv.Token)
	}
	require.Equal(t, invites.StatusUsed, statuses["used@x.io"])
	require.Equal(t, invites.StatusExpired, statuses["short@x.io"])
	require.Equal(t, invites.StatusActive, statuses["live@x.io"])

	expired, err := svc.ListTokens(ctx, invites.ListFilter{Status: invites.StatusExpired})
	require.NoError(t, err)
	require.Len(t, expired, 1)

	byCohort, err := svc.ListTokens(ctx, invites.ListFilter{CohortID: &cohortID})
	require.NoError(t, err)
	require.Len(t, byCohort, 1)

	_, err = svc.ListTokens(ctx, invites.ListFilter{Status: "pending"})
	require.ErrorIs(t, err, invites.ErrInvalidStatus)
}

func TestRotateToken_ReplacesSecret(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	inv := issue(t, svc, "a@x.io")

	rotated, err := svc.RotateToken(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, inv.ID, rotated.ID)
	require.Equal(t, inv.ExpiresAt, rotated.ExpiresAt)
	require.Equal(t, invites.StatusActive, rotated.Status)
	require.True(t, invites.ValidTokenFormat(rotated.Token))
	require.NotEqual(t, inv.Token, rotated.Token)

	require.False(t, svc.VerifyToken(ctx, inv.Token), "old link revoked")
	require.True(t, svc.VerifyToken(ctx, rotated.Token))

	got, err := svc.GetTokenData(ctx, rotated.Token)
	require.NoError(t, err)
	require.Equal(t, "a@x.io", got.Email)
}

func TestRotateToken_RejectsUnavailable(t *testing.T) {
	svc, _, clk := newService(t)
	ctx := context.Background()

	_, err := svc.RotateToken(ctx, uuid.New())
	require.ErrorIs(t, err, invites.ErrNotFound)

	used := issue(t, svc, "used@x.io")
	_, err = svc.MarkUsed(ctx, used.Token)
	require.NoError(t, err)
	_, err = svc.RotateToken(ctx, used.ID)
	require.ErrorIs(t, err, invites.ErrTokenUnavailable)

	leased := issue(t, svc, "leased@x.io")
	claim, err := svc.Claim(ctx, leased.Token)
	require.NoError(t, err)
	_, err = svc.RotateToken(ctx, leased.ID)
	require.ErrorIs(t, err, invites.ErrTokenUnavailable, "live lease blocks rotation")
	require.NoError(t, claim.Commit(ctx, uuid.New()))

	expiring := issue(t, svc, "late@x.io")
	clk.Advance(8 * 24 * time.Hour)
	_, err = svc.RotateToken(ctx, expiring.ID)
	require.ErrorIs(t, err, invites.ErrTokenUnavailable)
}

func TestRotateToken_LapsedLeaseIsCleared(t *testing.T) {
	svc, store, clk := newService(t)
	ctx := context.Background()
	inv := issue(t, svc, "a@x.io")

	stale, err := svc.Claim(ctx, inv.Token)
	require.NoError(t, err)
	clk.Advance(2 * time.Minute)

	rotated, err := svc.RotateToken(ctx, inv.ID)
	require.NoError(t, err)
	require.Empty(t, store.ClaimHolder(invites.HashToken(rotated.Token)))
	require.ErrorIs(t, stale.Commit(ctx, uuid.New()), invites.ErrClaimLost)
}

func TestRotateToken_StoreUnavailable(t *testing.T) {
	svc, store, _ := newService(t)
	inv := issue(t, svc, "a@x.io")
	store.Hook = func(ctx context.Context, op string) error {
		if op == "rotate" {
			return errors.New("connection refused")
		}
		return nil
	}

	_, err := svc.RotateToken(context.Background(), inv.ID)
	require.ErrorIs(t, err, invites.ErrStoreUnavailable)
}
