package housekeeping

import (
	"context"
	"testing"
	"time"

	"petnet-coordinator/internal/db"
)

func TestPurgeExpiredMissionContextRemovesOnlyExpired(t *testing.T) {
	sqlDB, err := db.Open(t.TempDir() + "/housekeeping.db")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sqlDB.Close()

	if _, err := db.SetMissionContext(context.Background(), sqlDB, "m", "fresh", "v", time.Hour); err != nil {
		t.Fatalf("set fresh: %v", err)
	}
	if _, err := db.SetMissionContext(context.Background(), sqlDB, "m", "stale", "v", -time.Hour); err != nil {
		t.Fatalf("set stale: %v", err)
	}

	n, err := db.PurgeExpiredMissionContext(context.Background(), sqlDB)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row purged, got %d", n)
	}

	if _, ok, err := db.GetMissionContext(context.Background(), sqlDB, "m", "fresh"); err != nil || !ok {
		t.Fatalf("expected fresh entry to survive: ok=%v err=%v", ok, err)
	}
}
