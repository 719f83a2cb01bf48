package db

import (
	"context"
	"database/sql"
	"time"
)

const (
	JobInit     = "INIT"
	JobRunning  = "RUNNING"
	JobSuccess  = "SUCCESS"
	JobFailed   = "FAILED"
	JobCanceled = "CANCELED"
)

// Job is an instance of a Mission.
type Job struct {
	JobID          string
	MissionName    string
	MissionVersion int64
	MainParty      string
	JoinParties    []string // persisted as JSON
	JobContext     string   // raw JSON document
	Status         string
	UserName       string
	VersionID      int64
	CreateTime     time.Time
	UpdateTime     time.Time
}

// InsertJob persists a new job row at VersionID 1.
func InsertJob(ctx context.Context, sqlDB *sql.DB, j *Job, joinPartiesJSON string) error {
	_, err := sqlDB.ExecContext(ctx, `
		INSERT INTO jobs(job_id, mission_name, mission_version, main_party, join_parties, job_context, status, user_name, version_id)
		VALUES(?,?,?,?,?,?,?,?,1)`,
		j.JobID, j.MissionName, j.MissionVersion, j.MainParty, joinPartiesJSON, j.JobContext, j.Status, j.UserName)
	return err
}

// GetJob fetches a job by ID.
func GetJob(ctx context.Context, sqlDB *sql.DB, jobID string) (*Job, string, error) {
	row := sqlDB.QueryRowContext(ctx, `
		SELECT job_id, mission_name, mission_version, main_party, join_parties, job_context, status, user_name, version_id, create_time, update_time
		FROM jobs WHERE job_id=?`, jobID)
	var j Job
	var joinPartiesJSON string
	if err := row.Scan(&j.JobID, &j.MissionName, &j.MissionVersion, &j.MainParty, &joinPartiesJSON, &j.JobContext, &j.Status, &j.UserName, &j.VersionID, &j.CreateTime, &j.UpdateTime); err != nil {
		return nil, "", err
	}
	return &j, joinPartiesJSON, nil
}

// CountRunningJobs returns the number of jobs currently RUNNING.
func CountRunningJobs(ctx context.Context, sqlDB *sql.DB) (int, error) {
	row := sqlDB.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs WHERE status=?`, JobRunning)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// UpdateJobStatus transitions a job's status under optimistic lock.
// Returns ErrStaleData if expectedVersion no longer matches the stored row.
func UpdateJobStatus(ctx context.Context, sqlDB *sql.DB, jobID, status string, expectedVersion int64) error {
	res, err := sqlDB.ExecContext(ctx,
		`UPDATE jobs SET status=?, version_id=version_id+1, update_time=CURRENT_TIMESTAMP WHERE job_id=? AND version_id=?`,
		status, jobID, expectedVersion)
	if err != nil {
		return err
	}
	return checkSingleRowUpdated(res)
}

// UpdateJobContext replaces a job's job_context document under optimistic lock.
func UpdateJobContext(ctx context.Context, sqlDB *sql.DB, jobID, jobContext string, expectedVersion int64) error {
	res, err := sqlDB.ExecContext(ctx,
		`UPDATE jobs SET job_context=?, version_id=version_id+1, update_time=CURRENT_TIMESTAMP WHERE job_id=? AND version_id=?`,
		jobContext, jobID, expectedVersion)
	if err != nil {
		return err
	}
	return checkSingleRowUpdated(res)
}

// UpdateJobStatusAndContext performs both mutations atomically under a single
// optimistic-lock check, used when a SUCCESS task transition also merges
// emitted context into the job document.
func UpdateJobStatusAndContext(ctx context.Context, sqlDB *sql.DB, jobID, status, jobContext string, expectedVersion int64) error {
	res, err := sqlDB.ExecContext(ctx,
		`UPDATE jobs SET status=?, job_context=?, version_id=version_id+1, update_time=CURRENT_TIMESTAMP WHERE job_id=? AND version_id=?`,
		status, jobContext, jobID, expectedVersion)
	if err != nil {
		return err
	}
	return checkSingleRowUpdated(res)
}

func checkSingleRowUpdated(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleData
	}
	return nil
}

// JobFilter narrows ListJobsByUser.
type JobFilter struct {
	Status string
	Since  time.Time
	Limit  int
}

// ListJobsByUser returns the most recent jobs owned by userName matching f.
func ListJobsByUser(ctx context.Context, sqlDB *sql.DB, userName string, f JobFilter) ([]Job, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT job_id, mission_name, mission_version, main_party, join_parties, job_context, status, user_name, version_id, create_time, update_time
		FROM jobs WHERE user_name=?`
	args := []any{userName}
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, f.Status)
	}
	if !f.Since.IsZero() {
		query += ` AND create_time >= ?`
		args = append(args, f.Since)
	}
	query += ` ORDER BY create_time DESC LIMIT ?`
	args = append(args, limit)

	rows, err := sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var joinPartiesJSON string
		if err := rows.Scan(&j.JobID, &j.MissionName, &j.MissionVersion, &j.MainParty, &joinPartiesJSON, &j.JobContext, &j.Status, &j.UserName, &j.VersionID, &j.CreateTime, &j.UpdateTime); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// InsertOrphanCandidate records a job_id whose peer-side submit succeeded but
// whose local commit failed, per the submit-ordering open question: peers
// are notified before the local row is committed, so a local failure leaves
// orphan Jobs on peers. This table makes that condition observable instead
// of silently swallowing it.
func InsertOrphanCandidate(ctx context.Context, sqlDB *sql.DB, jobID, reason string) error {
	_, err := sqlDB.ExecContext(ctx,
		`INSERT INTO job_orphan_candidates(job_id, reason) VALUES(?,?)`, jobID, reason)
	return err
}
