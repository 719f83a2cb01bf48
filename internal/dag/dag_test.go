package dag

import (
	"testing"

	"petnet-coordinator/internal/db"
)

func twoPartyMission() *db.Mission {
	return &db.Mission{Name: "psi", Version: 1, DAG: `{
		"operators": [
			{"name":"psi_a","party":"party_a","class":"PSI","class_path":"ops.psi","depends":[]},
			{"name":"psi_b","party":"party_b","class":"PSI","class_path":"ops.psi","depends":["psi_a"]}
		]
	}`}
}

func TestBuildFailsWithoutTaskRow(t *testing.T) {
	if _, err := Build(twoPartyMission(), nil, "party_a"); err == nil {
		t.Fatal("expected error when mission operator lacks a task row")
	}
}

func TestLocalReadyTasksRespectsDependencies(t *testing.T) {
	tasks := []db.Task{
		{Name: "psi_a", Status: db.TaskInit},
		{Name: "psi_b", Status: db.TaskInit},
	}
	g, err := Build(twoPartyMission(), tasks, "party_a")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ready := g.LocalReadyTasks()
	if len(ready) != 1 || ready[0] != "psi_a" {
		t.Fatalf("expected only psi_a ready for party_a, got %v", ready)
	}

	g2, err := Build(twoPartyMission(), tasks, "party_b")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if ready2 := g2.LocalReadyTasks(); len(ready2) != 0 {
		t.Fatalf("expected psi_b not ready (dependency unmet), got %v", ready2)
	}
}

func TestLocalReadyAfterDependencySucceeds(t *testing.T) {
	tasks := []db.Task{
		{Name: "psi_a", Status: db.TaskSuccess},
		{Name: "psi_b", Status: db.TaskInit},
	}
	g, err := Build(twoPartyMission(), tasks, "party_b")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ready := g.LocalReadyTasks()
	if len(ready) != 1 || ready[0] != "psi_b" {
		t.Fatalf("expected psi_b ready once psi_a succeeded, got %v", ready)
	}
}

func TestJudgeJobStatusPriority(t *testing.T) {
	cases := []struct {
		name     string
		statuses []string
		want     string
	}{
		{"failed beats canceled", []string{db.TaskFailed, db.TaskCanceled}, db.JobFailed},
		{"canceled beats running", []string{db.TaskCanceled, db.TaskRunning}, db.JobCanceled},
		{"all success", []string{db.TaskSuccess, db.TaskSuccess}, db.JobSuccess},
		{"init+running still running", []string{db.TaskInit, db.TaskRunning}, db.JobRunning},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tasks := []db.Task{
				{Name: "psi_a", Status: c.statuses[0]},
				{Name: "psi_b", Status: c.statuses[1]},
			}
			g, err := Build(twoPartyMission(), tasks, "party_a")
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if got := g.JudgeJobStatus(); got != c.want {
				t.Fatalf("got %s want %s", got, c.want)
			}
		})
	}
}

func TestLocalRunningTasks(t *testing.T) {
	tasks := []db.Task{
		{Name: "psi_a", Status: db.TaskRunning},
		{Name: "psi_b", Status: db.TaskInit},
	}
	g, err := Build(twoPartyMission(), tasks, "party_a")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	running := g.LocalRunningTasks()
	if len(running) != 1 || running[0] != "psi_a" {
		t.Fatalf("expected psi_a running, got %v", running)
	}
}
