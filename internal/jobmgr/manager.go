// Package jobmgr is the Job Manager (C6): orchestrates submit, rerun,
// cancel, update_task, and query, drives the DAG forward, forks local
// worker processes for ready tasks, and broadcasts progress to peers.
package jobmgr

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"petnet-coordinator/internal/dag"
	"petnet-coordinator/internal/db"
	"petnet-coordinator/internal/idgen"
	"petnet-coordinator/internal/peer"
)

const defaultMissionName = "ecdh_psi_optimized"

// Manager implements the Job Manager operations for one party.
type Manager struct {
	sqlDB       *sql.DB
	thisParty   string
	maxJobLimit int
	peerClient  *peer.Client
	spawner     Spawner
}

func New(sqlDB *sql.DB, thisParty string, maxJobLimit int, peerClient *peer.Client, spawner Spawner) *Manager {
	return &Manager{sqlDB: sqlDB, thisParty: thisParty, maxJobLimit: maxJobLimit, peerClient: peerClient, spawner: spawner}
}

// SubmitParams is the request body shape for POST /api/v1/jobs.
type SubmitParams struct {
	MissionName    string         `json:"mission_name,omitempty"`
	MissionVersion string         `json:"mission_version,omitempty"`
	MainParty      string         `json:"main_party,omitempty"`
	MissionParams  map[string]any `json:"mission_params,omitempty"`
	JobID          string         `json:"job_id,omitempty"`
}

// Submit implements §4.6 submit(params, user_name).
func (m *Manager) Submit(ctx context.Context, params SubmitParams, userName string) (string, error) {
	running, err := db.CountRunningJobs(ctx, m.sqlDB)
	if err != nil {
		return "", err
	}
	if running >= m.maxJobLimit {
		return "", fmt.Errorf("jobmgr: MAX_JOB_LIMIT (%d) reached", m.maxJobLimit)
	}

	missionName := params.MissionName
	if missionName == "" {
		missionName = defaultMissionName
	}
	missionVersion := params.MissionVersion
	if missionVersion == "" {
		missionVersion = "latest"
	}
	mission, err := db.ResolveMission(ctx, m.sqlDB, missionName, missionVersion)
	if err != nil {
		return "", fmt.Errorf("jobmgr: resolve mission %s@%s: %w", missionName, missionVersion, err)
	}

	var missionDoc struct {
		Operators []dag.Operator `json:"operators"`
	}
	if err := json.Unmarshal([]byte(mission.DAG), &missionDoc); err != nil {
		return "", err
	}

	mainParty := params.MainParty
	if mainParty == "" {
		mainParty = m.thisParty
	}
	joinParties := distinctParties(missionDoc.Operators)

	jobID := params.JobID
	if jobID == "" {
		jobID = idgen.NewJobID()
	}

	jobContext := buildInitialJobContext(joinParties, params.MissionParams, jobID)
	jobContextJSON, err := json.Marshal(jobContext)
	if err != nil {
		return "", err
	}

	notifiedPeers := false
	if mainParty == m.thisParty {
		enriched := map[string]any{
			"mission_name":    mission.Name,
			"mission_version": fmt.Sprint(mission.Version),
			"job_id":          jobID,
			"main_party":      mainParty,
			"mission_params":  params.MissionParams,
		}
		for _, p := range joinParties {
			if p == mainParty {
				continue
			}
			if err := m.peerClient.Submit(ctx, p, enriched); err != nil {
				return "", fmt.Errorf("jobmgr: peer submit to %s: %w", p, err)
			}
			notifiedPeers = true
		}
	}

	joinPartiesJSON, err := json.Marshal(joinParties)
	if err != nil {
		return "", err
	}

	job := &db.Job{
		JobID:          jobID,
		MissionName:    mission.Name,
		MissionVersion: mission.Version,
		MainParty:      mainParty,
		JobContext:     string(jobContextJSON),
		Status:         db.JobRunning,
		UserName:       userName,
	}
	if err := db.InsertJob(ctx, m.sqlDB, job, string(joinPartiesJSON)); err != nil {
		if notifiedPeers {
			_ = db.InsertOrphanCandidate(ctx, m.sqlDB, jobID, "peers notified before local commit failed: "+err.Error())
		}
		return "", err
	}
	for _, op := range missionDoc.Operators {
		argsJSON, err := json.Marshal(op.Args)
		if err != nil {
			return "", err
		}
		if err := db.InsertTask(ctx, m.sqlDB, &db.Task{JobID: jobID, Name: op.Name, Party: op.Party, Args: string(argsJSON)}); err != nil {
			return "", err
		}
	}

	if err := m.TriggerJob(ctx, jobID); err != nil {
		return jobID, err
	}
	return jobID, nil
}

func distinctParties(operators []dag.Operator) []string {
	seen := make(map[string]bool)
	var parties []string
	for _, op := range operators {
		if !seen[op.Party] {
			seen[op.Party] = true
			parties = append(parties, op.Party)
		}
	}
	return parties
}

func buildInitialJobContext(joinParties []string, missionParams map[string]any, jobID string) map[string]any {
	doc := make(map[string]any, len(joinParties)+1)
	for _, p := range joinParties {
		doc[p] = map[string]any{}
	}
	doc["common"] = map[string]any{
		"__user_input": missionParams,
		"job_id":       jobID,
	}
	return doc
}

// Rerun implements §4.6 rerun(job_id).
func (m *Manager) Rerun(ctx context.Context, jobID string) error {
	job, joinPartiesJSON, err := db.GetJob(ctx, m.sqlDB, jobID)
	if err != nil {
		return err
	}
	if job.Status != db.JobFailed && job.Status != db.JobCanceled {
		return nil
	}

	if job.MainParty == m.thisParty {
		for _, p := range mustJoinParties(joinPartiesJSON) {
			if p == m.thisParty {
				continue
			}
			if err := m.peerClient.Rerun(ctx, p, jobID); err != nil {
				return fmt.Errorf("jobmgr: peer rerun to %s: %w", p, err)
			}
		}
	}

	if err := db.UpdateJobStatus(ctx, m.sqlDB, jobID, db.JobRunning, job.VersionID); err != nil {
		return err
	}

	tasks, err := db.ListTasksByJob(ctx, m.sqlDB, jobID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if t.Status == db.TaskFailed || t.Status == db.TaskCanceled {
			if err := db.ResetTask(ctx, m.sqlDB, jobID, t.Name, t.VersionID); err != nil && err != db.ErrStaleData {
				return err
			}
		}
	}

	return m.TriggerJob(ctx, jobID)
}

// Cancel implements §4.6 cancel(job_id).
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	job, joinPartiesJSON, err := db.GetJob(ctx, m.sqlDB, jobID)
	if err != nil {
		return err
	}

	if job.MainParty == m.thisParty {
		for _, p := range mustJoinParties(joinPartiesJSON) {
			if p == m.thisParty {
				continue
			}
			if err := m.peerClient.Cancel(ctx, p, jobID); err != nil {
				return fmt.Errorf("jobmgr: peer cancel to %s: %w", p, err)
			}
		}
	}

	if err := db.UpdateJobStatus(ctx, m.sqlDB, jobID, db.JobCanceled, job.VersionID); err != nil {
		return err
	}

	tasks, err := db.ListTasksByJob(ctx, m.sqlDB, jobID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if t.Party != m.thisParty || t.Status != db.TaskRunning {
			continue
		}
		if err := db.CancelTask(ctx, m.sqlDB, jobID, t.Name, t.VersionID); err != nil && err != db.ErrStaleData {
			return err
		}
	}

	return m.TriggerJob(ctx, jobID)
}

// TaskDetail is one row of GetJobDetails' task_details list.
type TaskDetail struct {
	Name      string     `json:"name"`
	Party     string     `json:"party"`
	Status    string     `json:"status"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Errors    string     `json:"errors,omitempty"`
}

// JobDetails is the response shape for GET /api/v1/jobs/<id>.
type JobDetails struct {
	JobID       string       `json:"job_id"`
	Progress    string       `json:"progress"`
	JobStatus   string       `json:"job_status"`
	TaskDetails []TaskDetail `json:"task_details"`
}

// GetJobDetails implements §4.6 get_job_details(job_id).
func (m *Manager) GetJobDetails(ctx context.Context, jobID string) (*JobDetails, error) {
	job, _, err := db.GetJob(ctx, m.sqlDB, jobID)
	if err != nil {
		return nil, err
	}
	tasks, err := db.ListTasksByJob(ctx, m.sqlDB, jobID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	details := make([]TaskDetail, 0, len(tasks))
	succeeded := 0
	for _, t := range tasks {
		if t.Status == db.TaskSuccess {
			succeeded++
		}
		d := TaskDetail{Name: t.Name, Party: t.Party, Status: t.Status, Errors: t.Errors}
		if t.StartTime.Valid {
			d.StartTime = &t.StartTime.Time
		}
		if t.EndTime.Valid {
			d.EndTime = &t.EndTime.Time
		}
		details = append(details, d)
	}
	sort.SliceStable(details, func(i, j int) bool {
		return sortKey(details[i], now).Before(sortKey(details[j], now))
	})

	progress := 0.0
	if len(tasks) > 0 {
		progress = float64(succeeded) / float64(len(tasks)) * 100
	}

	return &JobDetails{
		JobID:       jobID,
		Progress:    fmt.Sprintf("%.2f%%", progress),
		JobStatus:   job.Status,
		TaskDetails: details,
	}, nil
}

func sortKey(d TaskDetail, now time.Time) time.Time {
	if d.StartTime != nil {
		return *d.StartTime
	}
	return now
}

// JobsFilter narrows GetJobs.
type JobsFilter struct {
	Status string
	Hours  int
	Limit  int
}

// JobSummary is one entry of GetJobs' jobs list.
type JobSummary struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// ReapStuckTasks fails every locally-owned task that has been RUNNING
// longer than maxAge without a terminal update_task arriving, per §5's
// acknowledged gap: local worker processes are never forcibly killed by
// cancel, so a stalled worker's task otherwise blocks its Job forever.
func (m *Manager) ReapStuckTasks(ctx context.Context, maxAge time.Duration) (int, error) {
	stuck, err := db.ListStuckTasks(ctx, m.sqlDB, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	reaped := 0
	for _, t := range stuck {
		if t.Party != m.thisParty {
			continue
		}
		err := db.FailTask(ctx, m.sqlDB, t.JobID, t.Name, "reaped: exceeded max running age", t.VersionID)
		if err != nil && err != db.ErrStaleData {
			return reaped, err
		}
		if err == nil {
			reaped++
			if err := m.TriggerJob(ctx, t.JobID); err != nil {
				return reaped, err
			}
		}
	}
	return reaped, nil
}

// JobOwner returns the user_name that submitted jobID, for ownership checks
// on rerun/cancel/get_job_details.
func (m *Manager) JobOwner(ctx context.Context, jobID string) (string, error) {
	job, _, err := db.GetJob(ctx, m.sqlDB, jobID)
	if err != nil {
		return "", err
	}
	return job.UserName, nil
}

// GetJobs implements §4.6 get_jobs(user_name, status?, hours?, limit=10).
func (m *Manager) GetJobs(ctx context.Context, userName string, f JobsFilter) ([]JobSummary, error) {
	filter := db.JobFilter{Status: f.Status, Limit: f.Limit}
	if f.Hours > 0 {
		filter.Since = time.Now().Add(-time.Duration(f.Hours) * time.Hour)
	}
	jobs, err := db.ListJobsByUser(ctx, m.sqlDB, userName, filter)
	if err != nil {
		return nil, err
	}
	out := make([]JobSummary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, JobSummary{JobID: j.JobID, Status: j.Status})
	}
	return out, nil
}

func mustJoinParties(raw string) []string {
	var parties []string
	_ = json.Unmarshal([]byte(raw), &parties)
	return parties
}

// UpdateTaskParams is the request body shape for PATCH /api/v1/tasks/<job>/<task>.
type UpdateTaskParams struct {
	TaskStatus string         `json:"task_status"`
	JobContext map[string]any `json:"job_context,omitempty"`
	Errors     string         `json:"errors,omitempty"`
}

// UpdateTask implements §4.6 update_task(job_id, task_name, task_status,
// job_context?, errors?), applying the transition locally and, when this
// party owns the task, broadcasting the same transition to every other
// join party.
func (m *Manager) UpdateTask(ctx context.Context, jobID, taskName string, params UpdateTaskParams) error {
	switch params.TaskStatus {
	case db.TaskRunning, db.TaskSuccess, db.TaskFailed:
	default:
		return fmt.Errorf("jobmgr: invalid task_status %q", params.TaskStatus)
	}

	task, err := db.GetTask(ctx, m.sqlDB, jobID, taskName)
	if err != nil {
		return err
	}

	switch params.TaskStatus {
	case db.TaskRunning:
		if err := db.RunTask(ctx, m.sqlDB, jobID, taskName, task.VersionID); err != nil {
			return err
		}
	case db.TaskFailed:
		if err := db.FailTask(ctx, m.sqlDB, jobID, taskName, params.Errors, task.VersionID); err != nil {
			return err
		}
	case db.TaskSuccess:
		if len(params.JobContext) > 0 {
			if err := m.mergeJobContext(ctx, jobID, params.JobContext); err != nil {
				return err
			}
		}
		if err := db.SucceedTask(ctx, m.sqlDB, jobID, taskName, task.VersionID); err != nil {
			return err
		}
	}

	if task.Party == m.thisParty {
		job, joinPartiesJSON, err := db.GetJob(ctx, m.sqlDB, jobID)
		if err != nil {
			return err
		}
		var mergedDoc map[string]any
		if params.TaskStatus == db.TaskSuccess {
			if err := json.Unmarshal([]byte(job.JobContext), &mergedDoc); err != nil {
				return err
			}
		}
		for _, p := range mustJoinParties(joinPartiesJSON) {
			if p == m.thisParty {
				continue
			}
			payload := peer.UpdateTaskPayload{TaskStatus: params.TaskStatus}
			switch params.TaskStatus {
			case db.TaskSuccess:
				payload.JobContext = peerJobContextSlice(mergedDoc, p)
			case db.TaskFailed:
				payload.Errors = params.Errors
			}
			if err := m.peerClient.UpdateTask(ctx, p, jobID, taskName, payload); err != nil {
				return fmt.Errorf("jobmgr: peer update_task to %s: %w", p, err)
			}
		}
	}

	if params.TaskStatus == db.TaskSuccess || params.TaskStatus == db.TaskFailed {
		return m.TriggerJob(ctx, jobID)
	}
	return nil
}

// mergeJobContext deep-merges an emitted task's job_context fragment into
// the Job's persisted document, retrying on stale-data per the optimistic
// locking scheme shared by every Job/Task mutation.
func (m *Manager) mergeJobContext(ctx context.Context, jobID string, fragment map[string]any) error {
	return db.CommitWithRetry(ctx, 5, func() error {
		job, _, err := db.GetJob(ctx, m.sqlDB, jobID)
		if err != nil {
			return err
		}
		var current map[string]any
		if err := json.Unmarshal([]byte(job.JobContext), &current); err != nil {
			return err
		}
		merged := deepMergeJSON(current, fragment)
		mergedJSON, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		return db.UpdateJobStatusAndContext(ctx, m.sqlDB, jobID, job.Status, string(mergedJSON), job.VersionID)
	})
}

// peerJobContextSlice builds the fragment of doc that party p is allowed to
// see on a broadcast: the shared "common" section plus p's own subtree,
// never another party's.
func peerJobContextSlice(doc map[string]any, p string) map[string]any {
	slice := make(map[string]any, 2)
	if common, ok := doc["common"]; ok {
		slice["common"] = common
	}
	if own, ok := doc[p]; ok {
		slice[p] = own
	}
	return slice
}

func deepMergeJSON(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst))
	for k, v := range dst {
		out[k] = v
	}
	for k, sv := range src {
		if dv, ok := out[k]; ok {
			dm, dok := dv.(map[string]any)
			sm, sok := sv.(map[string]any)
			if dok && sok {
				out[k] = deepMergeJSON(dm, sm)
				continue
			}
		}
		out[k] = sv
	}
	return out
}

// TriggerJob implements §4.6 trigger_job(job_id): rebuilds the DAG from the
// store, judges the aggregate status, and either forks workers for every
// locally-ready vertex (RUNNING) or persists the terminal aggregate status
// onto the Job row. Safe to call concurrently: each spawn only reads the
// current persisted task row, and the INIT->RUNNING transition happens
// under the task's own optimistic lock via UpdateTask/RunTask, so a loser
// of a concurrent TriggerJob race gets ErrStaleData and exits without
// running its operator.
func (m *Manager) TriggerJob(ctx context.Context, jobID string) error {
	job, _, err := db.GetJob(ctx, m.sqlDB, jobID)
	if err != nil {
		return err
	}
	mission, err := db.GetMission(ctx, m.sqlDB, job.MissionName, job.MissionVersion)
	if err != nil {
		return err
	}
	tasks, err := db.ListTasksByJob(ctx, m.sqlDB, jobID)
	if err != nil {
		return err
	}
	graph, err := dag.Build(mission, tasks, m.thisParty)
	if err != nil {
		return err
	}

	status := graph.JudgeJobStatus()
	if status == db.JobRunning {
		for _, name := range graph.LocalReadyTasks() {
			if err := m.spawner.SpawnTask(jobID, name); err != nil {
				return fmt.Errorf("jobmgr: spawn %s/%s: %w", jobID, name, err)
			}
		}
		return nil
	}

	if err := db.UpdateJobStatus(ctx, m.sqlDB, jobID, status, job.VersionID); err != nil && err != db.ErrStaleData {
		return err
	}
	return nil
}
