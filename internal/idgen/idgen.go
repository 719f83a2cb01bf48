// Package idgen generates job IDs.
package idgen

import "github.com/segmentio/ksuid"

// NewJobID returns a new job_id: "j_" prefix plus a time-sorted unique
// suffix.
func NewJobID() string {
	return "j_" + ksuid.New().String()
}
