package db

import (
	"context"
	"database/sql"
	"time"
)

const (
	TaskInit     = "INIT"
	TaskRunning  = "RUNNING"
	TaskSuccess  = "SUCCESS"
	TaskFailed   = "FAILED"
	TaskCanceled = "CANCELED"
)

// Task is one vertex of a Job.
type Task struct {
	JobID     string
	Name      string
	Party     string
	Args      string // raw JSON
	Status    string
	StartTime sql.NullTime
	EndTime   sql.NullTime
	Errors    string
	VersionID int64
}

// InsertTask creates a task row at VersionID 1, status INIT.
func InsertTask(ctx context.Context, sqlDB *sql.DB, t *Task) error {
	_, err := sqlDB.ExecContext(ctx,
		`INSERT INTO tasks(job_id, name, party, args, status, version_id) VALUES(?,?,?,?,?,1)`,
		t.JobID, t.Name, t.Party, t.Args, TaskInit)
	return err
}

// GetTask fetches a single task by (jobID, name).
func GetTask(ctx context.Context, sqlDB *sql.DB, jobID, name string) (*Task, error) {
	row := sqlDB.QueryRowContext(ctx, `
		SELECT job_id, name, party, args, status, start_time, end_time, errors, version_id
		FROM tasks WHERE job_id=? AND name=?`, jobID, name)
	var t Task
	if err := row.Scan(&t.JobID, &t.Name, &t.Party, &t.Args, &t.Status, &t.StartTime, &t.EndTime, &t.Errors, &t.VersionID); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTasksByJob returns every task row belonging to jobID.
func ListTasksByJob(ctx context.Context, sqlDB *sql.DB, jobID string) ([]Task, error) {
	rows, err := sqlDB.QueryContext(ctx, `
		SELECT job_id, name, party, args, status, start_time, end_time, errors, version_id
		FROM tasks WHERE job_id=?`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.JobID, &t.Name, &t.Party, &t.Args, &t.Status, &t.StartTime, &t.EndTime, &t.Errors, &t.VersionID); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// RunTask transitions an INIT task to RUNNING, setting start_time=now, under
// optimistic lock. Returns ErrStaleData if another worker already claimed it.
func RunTask(ctx context.Context, sqlDB *sql.DB, jobID, name string, expectedVersion int64) error {
	res, err := sqlDB.ExecContext(ctx, `
		UPDATE tasks SET status=?, start_time=CURRENT_TIMESTAMP, version_id=version_id+1
		WHERE job_id=? AND name=? AND version_id=? AND status=?`,
		TaskRunning, jobID, name, expectedVersion, TaskInit)
	if err != nil {
		return err
	}
	return checkSingleRowUpdated(res)
}

// SucceedTask transitions a task to SUCCESS, setting end_time=now.
func SucceedTask(ctx context.Context, sqlDB *sql.DB, jobID, name string, expectedVersion int64) error {
	res, err := sqlDB.ExecContext(ctx, `
		UPDATE tasks SET status=?, end_time=CURRENT_TIMESTAMP, version_id=version_id+1
		WHERE job_id=? AND name=? AND version_id=?`,
		TaskSuccess, jobID, name, expectedVersion)
	if err != nil {
		return err
	}
	return checkSingleRowUpdated(res)
}

// FailTask transitions a task to FAILED with the given error message.
func FailTask(ctx context.Context, sqlDB *sql.DB, jobID, name, errMsg string, expectedVersion int64) error {
	res, err := sqlDB.ExecContext(ctx, `
		UPDATE tasks SET status=?, end_time=CURRENT_TIMESTAMP, errors=?, version_id=version_id+1
		WHERE job_id=? AND name=? AND version_id=?`,
		TaskFailed, errMsg, jobID, name, expectedVersion)
	if err != nil {
		return err
	}
	return checkSingleRowUpdated(res)
}

// CancelTask transitions a task to CANCELED with end_time=now.
func CancelTask(ctx context.Context, sqlDB *sql.DB, jobID, name string, expectedVersion int64) error {
	res, err := sqlDB.ExecContext(ctx, `
		UPDATE tasks SET status=?, end_time=CURRENT_TIMESTAMP, version_id=version_id+1
		WHERE job_id=? AND name=? AND version_id=?`,
		TaskCanceled, jobID, name, expectedVersion)
	if err != nil {
		return err
	}
	return checkSingleRowUpdated(res)
}

// ListStuckTasks returns RUNNING tasks whose start_time is older than
// olderThan, candidates for the housekeeping sweep's orphan reconciliation
// (§5's "orchestrator-level reaping outside this core's scope").
func ListStuckTasks(ctx context.Context, sqlDB *sql.DB, olderThan time.Time) ([]Task, error) {
	rows, err := sqlDB.QueryContext(ctx, `
		SELECT job_id, name, party, args, status, start_time, end_time, errors, version_id
		FROM tasks WHERE status=? AND start_time < ?`, TaskRunning, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.JobID, &t.Name, &t.Party, &t.Args, &t.Status, &t.StartTime, &t.EndTime, &t.Errors, &t.VersionID); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// ResetTask brings a terminal task back to INIT with timestamps cleared, for rerun.
func ResetTask(ctx context.Context, sqlDB *sql.DB, jobID, name string, expectedVersion int64) error {
	res, err := sqlDB.ExecContext(ctx, `
		UPDATE tasks SET status=?, start_time=NULL, end_time=NULL, errors='', version_id=version_id+1
		WHERE job_id=? AND name=? AND version_id=?`,
		TaskInit, jobID, name, expectedVersion)
	if err != nil {
		return err
	}
	return checkSingleRowUpdated(res)
}
