package secrets

import (
	"context"
	"testing"

	dbpkg "petnet-coordinator/internal/db"
)

func TestVerifyAllDetectsWrongKey(t *testing.T) {
	sqlDB, err := dbpkg.Open(t.TempDir() + "/verify.db")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer sqlDB.Close()

	km := testManager(t)
	svc := NewService(sqlDB, km)
	if err := svc.Set(context.Background(), "peer_token", []byte("s3cr3t")); err != nil {
		t.Fatalf("set: %v", err)
	}

	if err := VerifyAll(context.Background(), sqlDB, km); err != nil {
		t.Fatalf("expected verify to pass: %v", err)
	}

	wrong, err := New([]byte("11111111111111111111111111111111"))
	if err != nil {
		t.Fatalf("new wrong manager: %v", err)
	}
	if err := VerifyAll(context.Background(), sqlDB, wrong); err == nil {
		t.Fatal("expected verify to fail under the wrong key")
	}
}
