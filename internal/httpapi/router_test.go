package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"petnet-coordinator/internal/auth"
	"petnet-coordinator/internal/db"
	"petnet-coordinator/internal/jobmgr"
	"petnet-coordinator/internal/peer"

	_ "petnet-coordinator/internal/operator/builtin"
)

const testSecret = "test-secret"

func signToken(t *testing.T, name string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"name": name,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func newTestRouter(t *testing.T) (http.Handler, *testing.T) {
	t.Helper()
	sqlDB, err := db.Open(t.TempDir() + "/httpapi.db")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.UpsertUser(context.Background(), sqlDB, &db.User{Name: "alice", Status: db.UserNormal, Role: db.RoleOperator}); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	if err := db.UpsertUser(context.Background(), sqlDB, &db.User{Name: "worker", Status: db.UserNormal, Role: db.RoleNode}); err != nil {
		t.Fatalf("upsert user: %v", err)
	}

	operators := []map[string]any{
		{"name": "only", "party": "party_a", "class": "EchoOperator", "class_path": "ops.builtin"},
	}
	doc, _ := json.Marshal(map[string]any{"operators": operators})
	if err := db.InsertMission(context.Background(), sqlDB, &db.Mission{Name: "single", Version: 1, DAG: string(doc)}); err != nil {
		t.Fatalf("insert mission: %v", err)
	}

	mgr := jobmgr.New(sqlDB, "party_a", 10, peer.NewClient(peer.PartyConfig{}, "tok"), noopSpawner{})
	verifier := auth.NewVerifier(testSecret, sqlDB)
	return NewRouter(mgr, verifier), t
}

type noopSpawner struct{}

func (noopSpawner) SpawnTask(jobID, taskName string) error { return nil }

func TestSubmitRequiresAuth(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSubmitThenGetJobDetails(t *testing.T) {
	router, _ := newTestRouter(t)
	token := signToken(t, "alice")

	body, _ := json.Marshal(map[string]any{"mission_name": "single", "main_party": "party_a"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	jobID, _ := resp["job_id"].(string)
	if jobID == "" {
		t.Fatalf("expected job_id in response: %v", resp)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+jobID, nil)
	req2.Header.Set("Authorization", "Bearer "+token)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec2.Code, rec2.Body.String())
	}
}

func TestCancelRejectsUnknownUser(t *testing.T) {
	router, _ := newTestRouter(t)
	aliceToken := signToken(t, "alice")

	body, _ := json.Marshal(map[string]any{"mission_name": "single", "main_party": "party_a"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	jobID := resp["job_id"].(string)

	bobToken := signToken(t, "bob")
	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+jobID+"/cancel", nil)
	req2.Header.Set("Authorization", "Bearer "+bobToken)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown user bob, got %d: %s", rec2.Code, rec2.Body.String())
	}
}

func TestUpdateTaskRequiresNodeRole(t *testing.T) {
	router, _ := newTestRouter(t)
	aliceToken := signToken(t, "alice")

	body, _ := json.Marshal(map[string]any{"mission_name": "single", "main_party": "party_a"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	jobID := resp["job_id"].(string)

	patchBody, _ := json.Marshal(map[string]any{"task_status": "SUCCESS"})
	req2 := httptest.NewRequest(http.MethodPatch, "/api/v1/tasks/"+jobID+"/only", bytes.NewReader(patchBody))
	req2.Header.Set("Authorization", "Bearer "+aliceToken)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for Operator hitting update_task, got %d", rec2.Code)
	}

	workerToken := signToken(t, "worker")
	req3 := httptest.NewRequest(http.MethodPatch, "/api/v1/tasks/"+jobID+"/only", bytes.NewReader(patchBody))
	req3.Header.Set("Authorization", "Bearer "+workerToken)
	rec3 := httptest.NewRecorder()
	router.ServeHTTP(rec3, req3)
	if rec3.Code != http.StatusOK {
		t.Fatalf("expected 200 for Node role update_task, got %d: %s", rec3.Code, rec3.Body.String())
	}
}
