package taskexec

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"petnet-coordinator/internal/config"
	"petnet-coordinator/internal/ctxstore"
	"petnet-coordinator/internal/db"
	"petnet-coordinator/internal/netdesc"
	_ "petnet-coordinator/internal/operator/builtin"
)

type fakePartyAddress struct{}

func (fakePartyAddress) HostPort(party string) (string, error) { return "10.0.0.1", nil }
func (fakePartyAddress) AgentURL(party string) (string, error) { return "agent://" + party, nil }

func TestRunReportsRunningThenSuccess(t *testing.T) {
	sqlDB, err := db.Open(t.TempDir() + "/taskexec.db")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sqlDB.Close()

	if err := db.InsertJob(context.Background(), sqlDB, &db.Job{
		JobID: "j_1", MissionName: "m", MissionVersion: 1, MainParty: "party_a",
		JobContext: `{"party_a":{},"common":{"__user_input":{}}}`, Status: db.JobRunning, UserName: "alice",
	}, `["party_a"]`); err != nil {
		t.Fatalf("insert job: %v", err)
	}
	if err := db.InsertTask(context.Background(), sqlDB, &db.Task{JobID: "j_1", Name: "only", Party: "party_a", Args: "{}"}); err != nil {
		t.Fatalf("insert task: %v", err)
	}

	var patches []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		patches = append(patches, body)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	cfg := &config.Config{SafeWorkDir: t.TempDir(), LocalAPIAddr: srv.URL, JWTToken: "tok", PortLowerBound: 1000, PortUpperBound: 2000}
	jobContext := ctxstore.NewJobContext(sqlDB, "party_a")
	missionContext := ctxstore.NewMissionContext(sqlDB)
	globalConfig := ctxstore.NewGlobalConfig(sqlDB)
	builder := netdesc.NewBuilder(config.SchemeSocket, cfg.PortLowerBound, cfg.PortUpperBound, fakePartyAddress{})

	exec := New(cfg, jobContext, missionContext, globalConfig, builder)
	if err := exec.Run(context.Background(), "j_1", "only", "party_a", "ops.builtin", "EchoOperator", map[string]any{}, "m", nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(patches) != 2 {
		t.Fatalf("expected 2 PATCH calls (RUNNING, SUCCESS), got %d: %v", len(patches), patches)
	}
	if patches[0]["task_status"] != "RUNNING" {
		t.Fatalf("expected first patch RUNNING, got %v", patches[0])
	}
	if patches[1]["task_status"] != "SUCCESS" {
		t.Fatalf("expected second patch SUCCESS, got %v", patches[1])
	}
}

func TestRunExitsSilentlyWhenRunningClaimIsStale(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error_message": "stale"})
	}))
	defer srv.Close()

	cfg := &config.Config{SafeWorkDir: t.TempDir(), LocalAPIAddr: srv.URL, JWTToken: "tok"}
	sqlDB, err := db.Open(t.TempDir() + "/taskexec2.db")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sqlDB.Close()
	jobContext := ctxstore.NewJobContext(sqlDB, "party_a")
	missionContext := ctxstore.NewMissionContext(sqlDB)
	globalConfig := ctxstore.NewGlobalConfig(sqlDB)
	builder := netdesc.NewBuilder(config.SchemeSocket, 1000, 2000, fakePartyAddress{})

	exec := New(cfg, jobContext, missionContext, globalConfig, builder)
	if err := exec.Run(context.Background(), "j_1", "only", "party_a", "ops.builtin", "EchoOperator", map[string]any{}, "m", nil); err != nil {
		t.Fatalf("expected silent exit on stale claim, got error: %v", err)
	}
}

func TestUnknownOperatorReportsFailed(t *testing.T) {
	var lastPatch map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		lastPatch = body
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	sqlDB, err := db.Open(t.TempDir() + "/taskexec3.db")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sqlDB.Close()
	if err := db.InsertJob(context.Background(), sqlDB, &db.Job{
		JobID: "j_2", MissionName: "m", MissionVersion: 1, MainParty: "party_a",
		JobContext: `{"party_a":{},"common":{"__user_input":{}}}`, Status: db.JobRunning, UserName: "alice",
	}, `["party_a"]`); err != nil {
		t.Fatalf("insert job: %v", err)
	}
	if err := db.InsertTask(context.Background(), sqlDB, &db.Task{JobID: "j_2", Name: "only", Party: "party_a", Args: "{}"}); err != nil {
		t.Fatalf("insert task: %v", err)
	}

	cfg := &config.Config{SafeWorkDir: t.TempDir(), LocalAPIAddr: srv.URL, JWTToken: "tok"}
	jobContext := ctxstore.NewJobContext(sqlDB, "party_a")
	missionContext := ctxstore.NewMissionContext(sqlDB)
	globalConfig := ctxstore.NewGlobalConfig(sqlDB)
	builder := netdesc.NewBuilder(config.SchemeSocket, 1000, 2000, fakePartyAddress{})

	exec := New(cfg, jobContext, missionContext, globalConfig, builder)
	if err := exec.Run(context.Background(), "j_2", "only", "party_a", "ops.nosuch", "NoSuchOperator", map[string]any{}, "m", nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if lastPatch["task_status"] != "FAILED" {
		t.Fatalf("expected FAILED patch, got %v", lastPatch)
	}
}
