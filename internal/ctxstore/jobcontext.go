package ctxstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"petnet-coordinator/internal/db"
)

// JobContext is backed by the Job.job_context JSON document: a mapping of
// {party_name: mapping, ..., "common": mapping}.
type JobContext struct {
	sqlDB     *sql.DB
	thisParty string
}

func NewJobContext(sqlDB *sql.DB, thisParty string) *JobContext {
	return &JobContext{sqlDB: sqlDB, thisParty: thisParty}
}

const commonPartition = "common"

// Get resolves a dotted key. If party is non-empty, only that party's
// subtree is searched; otherwise [thisParty, "common"] is tried in order and
// the first subtree that resolves the full path wins.
func (j *JobContext) Get(ctx context.Context, jobID, key string, party string) (any, bool, error) {
	doc, err := j.GetAll(ctx, jobID)
	if err != nil {
		return nil, false, err
	}
	path := strings.Split(key, ".")

	scopes := []string{party}
	if party == "" {
		scopes = []string{j.thisParty, commonPartition}
	}
	for _, scope := range scopes {
		sub, ok := doc[scope].(map[string]any)
		if !ok {
			continue
		}
		if v, ok := getDotted(sub, path); ok {
			return v, true, nil
		}
	}
	return nil, false, nil
}

// GetAll returns the full job_context document as a generic map.
func (j *JobContext) GetAll(ctx context.Context, jobID string) (map[string]any, error) {
	job, _, err := db.GetJob(ctx, j.sqlDB, jobID)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(job.JobContext), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Set builds a nested object {party: {...dotted path...: value}}, deep-merges
// it into the current document and writes back, retrying up to maxRetry
// times on stale-data. Returns false when retries are exhausted.
func (j *JobContext) Set(ctx context.Context, jobID, key string, value any, party string, maxRetry int) (bool, error) {
	if maxRetry <= 0 {
		maxRetry = 3
	}
	path := strings.Split(key, ".")

	for attempt := 0; attempt < maxRetry; attempt++ {
		job, _, err := db.GetJob(ctx, j.sqlDB, jobID)
		if err != nil {
			return false, err
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(job.JobContext), &doc); err != nil {
			return false, err
		}

		partial := map[string]any{party: map[string]any{}}
		setDotted(partial[party].(map[string]any), path, value)
		merged := deepMerge(doc, partial)

		raw, err := json.Marshal(merged)
		if err != nil {
			return false, err
		}
		err = db.UpdateJobContext(ctx, j.sqlDB, jobID, string(raw), job.VersionID)
		if err == nil {
			return true, nil
		}
		if err != db.ErrStaleData {
			return false, err
		}
	}
	return false, nil
}

// SetAll merges a flat mapping into document[party]. Keys must not contain
// "." at the top level.
func (j *JobContext) SetAll(ctx context.Context, jobID string, mapping map[string]any, party string, maxRetry int) (bool, error) {
	if party == "" {
		party = commonPartition
	}
	if maxRetry <= 0 {
		maxRetry = 3
	}

	for attempt := 0; attempt < maxRetry; attempt++ {
		job, _, err := db.GetJob(ctx, j.sqlDB, jobID)
		if err != nil {
			return false, err
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(job.JobContext), &doc); err != nil {
			return false, err
		}

		partial := map[string]any{party: mapping}
		merged := deepMerge(doc, partial)

		raw, err := json.Marshal(merged)
		if err != nil {
			return false, err
		}
		err = db.UpdateJobContext(ctx, j.sqlDB, jobID, string(raw), job.VersionID)
		if err == nil {
			return true, nil
		}
		if err != db.ErrStaleData {
			return false, err
		}
	}
	return false, nil
}
