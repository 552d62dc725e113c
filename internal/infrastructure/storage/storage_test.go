package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"FRBScanner/internal/domain"
)

func openTestDB(t *testing.T, name string) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func f(v float64) *float64 { return &v }

func TestCatalogRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo, err := NewCatalogRepository(openTestDB(t, "catalog.db"), "frbs")
	if err != nil {
		t.Fatalf("NewCatalogRepository returned error: %v", err)
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema returned error: %v", err)
	}

	n, err := repo.Append(ctx, []domain.CatalogRecord{
		{Name: "FRB 20121102A", RA: 82.9946, Dec: 33.1479, DM: 557, Z: f(0.19273), EllipseA: f(0.1), EllipseB: f(0.1), Repeater: true, Telescope: "Arecibo", Refs: []string{"Chatterjee2017", "Tendulkar2017"}},
		{Name: "FRB20190523A", RA: 207.065, Dec: 72.4697, DM: 760.8, Telescope: "DSA-10", Refs: []string{"Ravi2019"}},
		{Name: "FRB20180924B", RA: 326.1052, Dec: -40.9000, DM: 361.42, Z: f(0.3214), Telescope: "ASKAP"},
	})
	if err != nil || n != 3 {
		t.Fatalf("Append = %d, %v", n, err)
	}

	snap, err := repo.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	if snap.Len() != 3 {
		t.Fatalf("expected 3 records, got %d", snap.Len())
	}
	rec, ok := snap.Lookup("FRB20121102A")
	if !ok {
		t.Fatal("normalized name not stored")
	}
	if !rec.Repeater || rec.Z == nil || *rec.Z != 0.19273 || !rec.HasEllipse() || len(rec.Refs) != 2 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if other, _ := snap.Lookup("FRB20190523A"); other.Repeater || other.Z != nil {
		t.Fatalf("unexpected record: %+v", other)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.Total != 3 || stats.WithRedshift != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.MinRedshift == nil || *stats.MinRedshift != 0.19273 || *stats.MaxRedshift != 0.3214 {
		t.Fatalf("unexpected redshift range: %+v", stats)
	}
	if len(stats.ByTelescope) != 3 {
		t.Fatalf("unexpected telescope breakdown: %+v", stats.ByTelescope)
	}
}

func TestCatalogAppendRefusesExistingNames(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo, _ := NewCatalogRepository(openTestDB(t, "catalog.db"), "")
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema returned error: %v", err)
	}
	if _, err := repo.Append(ctx, []domain.CatalogRecord{{Name: "FRB20121102A", RA: 1, Dec: 1, DM: 1}}); err != nil {
		t.Fatalf("seed append: %v", err)
	}

	_, err := repo.Append(ctx, []domain.CatalogRecord{
		{Name: "FRB20990101A", RA: 2, Dec: 2, DM: 2},
		{Name: "frb 20121102a", RA: 3, Dec: 3, DM: 3},
	})
	if !errors.Is(err, domain.ErrNameExists) {
		t.Fatalf("expected ErrNameExists, got %v", err)
	}

	snap, _ := repo.Snapshot(ctx)
	if snap.Len() != 1 {
		t.Fatalf("append must be all-or-nothing, catalog has %d rows", snap.Len())
	}
	if rec, _ := snap.Lookup("FRB20121102A"); rec.RA != 1 {
		t.Fatal("existing row was overwritten")
	}
}

func TestNewCatalogRepositoryRejectsBadTable(t *testing.T) {
	t.Parallel()

	if _, err := NewCatalogRepository(nil, "frbs; DROP TABLE x"); err == nil {
		t.Fatal("expected invalid table error")
	}
}

func newLedger(t *testing.T) *RunLedger {
	t.Helper()
	db := openTestDB(t, "state.db")
	if _, dirty, err := RunMigrations(db); err != nil || dirty {
		t.Fatalf("RunMigrations: dirty=%v err=%v", dirty, err)
	}
	return NewRunLedger(db)
}

func TestRunLedgerLock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := newLedger(t)
	now := time.Date(2025, 11, 10, 6, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return now }

	if err := ledger.Acquire(ctx, "run-1", time.Hour); err != nil {
		t.Fatalf("first Acquire returned error: %v", err)
	}
	if err := ledger.Acquire(ctx, "run-2", time.Hour); !errors.Is(err, domain.ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	// A release by a non-holder leaves the lock in place.
	if err := ledger.Release(ctx, "run-2"); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
	if err := ledger.Acquire(ctx, "run-3", time.Hour); !errors.Is(err, domain.ErrRunInProgress) {
		t.Fatalf("expected lock to survive foreign release, got %v", err)
	}

	now = now.Add(2 * time.Hour)
	if err := ledger.Acquire(ctx, "run-4", time.Hour); err != nil {
		t.Fatalf("expired lock should be taken over: %v", err)
	}
	if err := ledger.Release(ctx, "run-4"); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
	if err := ledger.Acquire(ctx, "run-5", time.Hour); err != nil {
		t.Fatalf("released lock should be free: %v", err)
	}
}

func TestRunLedgerRenewExtendsLock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := newLedger(t)
	now := time.Date(2025, 11, 10, 6, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return now }

	if err := ledger.Acquire(ctx, "run-1", time.Hour); err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	now = now.Add(50 * time.Minute)
	if err := ledger.Renew(ctx, "run-1", time.Hour); err != nil {
		t.Fatalf("Renew returned error: %v", err)
	}

	// Past the original expiry but inside the renewed one.
	now = now.Add(30 * time.Minute)
	if err := ledger.Acquire(ctx, "run-2", time.Hour); !errors.Is(err, domain.ErrRunInProgress) {
		t.Fatalf("renewed lock should hold, got %v", err)
	}

	if err := ledger.Renew(ctx, "run-2", time.Hour); !errors.Is(err, domain.ErrLockLost) {
		t.Fatalf("renew by non-holder: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if err := ledger.Acquire(ctx, "run-3", time.Hour); err != nil {
		t.Fatalf("expired lock should be taken over: %v", err)
	}
	if err := ledger.Renew(ctx, "run-1", time.Hour); !errors.Is(err, domain.ErrLockLost) {
		t.Fatalf("renew after takeover: %v", err)
	}
}

func TestRunLedgerRecordsRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := newLedger(t)
	start := time.Date(2025, 11, 10, 6, 0, 0, 0, time.UTC)

	for i, id := range []string{"older", "newer"} {
		summary := domain.RunSummary{
			RunID:     id,
			Trigger:   domain.TriggerSchedule,
			Status:    domain.RunRunning,
			StartedAt: start.Add(time.Duration(i) * time.Hour),
		}
		if err := ledger.Start(ctx, summary); err != nil {
			t.Fatalf("Start(%s) returned error: %v", id, err)
		}
	}

	final := domain.RunSummary{
		RunID:      "newer",
		Trigger:    domain.TriggerSchedule,
		Status:     domain.RunSucceeded,
		StartedAt:  start.Add(time.Hour),
		FinishedAt: start.Add(time.Hour + time.Minute),
		NewNames:   []string{"FRB20230101A"},
		Proposal:   &domain.ProposalHandle{Channel: "github", ID: "42", URL: "https://github.com/o/r/pull/42"},
	}
	if err := ledger.Finish(ctx, final); err != nil {
		t.Fatalf("Finish returned error: %v", err)
	}

	got, err := ledger.Get(ctx, "newer")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Status != domain.RunSucceeded || got.Proposal == nil || got.Proposal.ID != "42" || len(got.NewNames) != 1 {
		t.Fatalf("unexpected summary: %+v", got)
	}

	list, err := ledger.List(ctx, 10)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(list) != 2 || list[0].RunID != "newer" || list[1].RunID != "older" {
		t.Fatalf("unexpected order: %+v", list)
	}

	if _, err := ledger.Get(ctx, "missing"); !errors.Is(err, domain.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	if err := ledger.Finish(ctx, domain.RunSummary{RunID: "missing"}); !errors.Is(err, domain.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, "state.db")
	first, _, err := RunMigrations(db)
	if err != nil {
		t.Fatalf("first migration: %v", err)
	}
	second, _, err := RunMigrations(db)
	if err != nil {
		t.Fatalf("second migration: %v", err)
	}
	if first != 2 || second != 2 {
		t.Fatalf("unexpected versions: %d, %d", first, second)
	}
}
