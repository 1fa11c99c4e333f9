package repository

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/lookupd/lookupd/internal/model"
	"github.com/lookupd/lookupd/internal/testutil"
)

func setupRepo(t *testing.T) (*Repository, context.Context) {
	t.Helper()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire lock: %v", err)
	}
	t.Cleanup(func() {
		if err := unlock(); err != nil {
			t.Errorf("release lock: %v", err)
		}
	})

	if err := testutil.ResetSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return repo, ctx
}

func TestUserLifecycle(t *testing.T) {
	repo, ctx := setupRepo(t)

	user := &model.User{
		Key:      "user-1",
		FreeUses: 2,
		JoinedAt: time.Now().UTC(),
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	if err := repo.CreateUser(ctx, user); err == nil {
		t.Error("duplicate CreateUser() returned nil error")
	}

	got, err := repo.GetUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if got.FreeUses != 2 || got.Balance != 0 {
		t.Errorf("user = %+v", got)
	}

	if err := repo.SaveCredits(ctx, "user-1", 10, 1, 1); err != nil {
		t.Fatalf("SaveCredits() error = %v", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	if err := repo.SaveQuota(ctx, "user-1", now, now, 5); err != nil {
		t.Fatalf("SaveQuota() error = %v", err)
	}

	got, err = repo.GetUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if got.Balance != 10 || got.FreeUses != 1 || got.TotalLookups != 1 {
		t.Errorf("credit columns = %+v", got)
	}
	if got.DayCount != 5 || !got.LastAcceptedAt.Equal(now) {
		t.Errorf("quota columns = %+v", got)
	}

	if _, err := repo.GetUser(ctx, "missing"); err == nil {
		t.Error("GetUser(missing) returned nil error")
	}
}

func TestTopUpIdempotency(t *testing.T) {
	repo, ctx := setupRepo(t)

	applied, err := repo.InsertTopUp(ctx, "promo-1", "user-1", 50)
	if err != nil {
		t.Fatalf("InsertTopUp() error = %v", err)
	}
	if !applied {
		t.Error("first InsertTopUp() applied = false")
	}

	applied, err = repo.InsertTopUp(ctx, "promo-1", "user-1", 50)
	if err != nil {
		t.Fatalf("replayed InsertTopUp() error = %v", err)
	}
	if applied {
		t.Error("replayed InsertTopUp() applied = true")
	}
}

func TestBulkInsertAuditIdempotency(t *testing.T) {
	repo, ctx := setupRepo(t)

	records := []*model.AuditRecord{
		{
			ID:             ulid.Make().String(),
			EventID:        "1693400000000-0",
			UserKey:        "user-1",
			Query:          "9876543210",
			Category:       model.CategoryIdentity,
			Classification: "valid",
			Endpoint:       "identity-0.0",
			CreatedAt:      time.Now().UTC(),
		},
		{
			ID:             ulid.Make().String(),
			EventID:        "1693400000001-0",
			UserKey:        "user-1",
			Query:          "BR01AB1234",
			Category:       model.CategoryVehicle,
			Classification: "valid",
			Endpoint:       "vehicle-0",
			CreatedAt:      time.Now().UTC(),
		},
	}

	if err := repo.BulkInsertAudit(ctx, records); err != nil {
		t.Fatalf("BulkInsertAudit() error = %v", err)
	}

	// Redelivery of the same stream batch must not duplicate rows.
	for i := range records {
		records[i].ID = ulid.Make().String()
	}
	if err := repo.BulkInsertAudit(ctx, records); err != nil {
		t.Fatalf("redelivered BulkInsertAudit() error = %v", err)
	}

	got, err := repo.RecentAuditRecords(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("RecentAuditRecords() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("audit rows = %d, want 2", len(got))
	}
}
