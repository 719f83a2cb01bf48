// Package housekeeping schedules the periodic sweeps that keep stale state
// from accumulating: expired MissionContext rows and RUNNING tasks whose
// worker process never reported back.
package housekeeping

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"

	"petnet-coordinator/internal/db"
	"petnet-coordinator/internal/jobmgr"
)

// MaxTaskAge bounds how long a task may sit RUNNING before the sweep
// considers its worker process dead and fails it.
const MaxTaskAge = 30 * time.Minute

// Start registers the sweeps on scheduler and starts it asynchronously.
func Start(scheduler *gocron.Scheduler, sqlDB *sql.DB, mgr *jobmgr.Manager) {
	scheduler.Every(10).Minutes().Do(func() { purgeExpiredMissionContext(sqlDB) })
	scheduler.Every(5).Minutes().Do(func() { reapStuckTasks(mgr) })
	scheduler.StartAsync()
}

func purgeExpiredMissionContext(sqlDB *sql.DB) {
	n, err := db.PurgeExpiredMissionContext(context.Background(), sqlDB)
	if err != nil {
		log.Error().Err(err).Msg("purge expired mission context")
		return
	}
	if n > 0 {
		log.Info().Int64("rows", n).Msg("purged expired mission context")
	}
}

func reapStuckTasks(mgr *jobmgr.Manager) {
	n, err := mgr.ReapStuckTasks(context.Background(), MaxTaskAge)
	if err != nil {
		log.Error().Err(err).Msg("reap stuck tasks")
		return
	}
	if n > 0 {
		log.Info().Int("count", n).Msg("reaped stuck tasks")
	}
}
