// Command taskexec is the Task Executor (C7) worker process forked by the
// Job Manager for exactly one ready vertex: it resolves its own task/job
// rows from the shared store, runs the named operator, and reports the
// terminal status back to the local Job Manager's HTTP surface.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"petnet-coordinator/internal/config"
	"petnet-coordinator/internal/ctxstore"
	"petnet-coordinator/internal/dag"
	"petnet-coordinator/internal/db"
	"petnet-coordinator/internal/netdesc"
	"petnet-coordinator/internal/peer"
	"petnet-coordinator/internal/taskexec"

	_ "petnet-coordinator/internal/operator/builtin"
)

func main() {
	log.Logger = log.Output(zerolog.New(os.Stdout).With().Timestamp().Logger())

	jobID := flag.String("job", "", "job id")
	taskName := flag.String("task", "", "task name")
	flag.Parse()
	if *jobID == "" || *taskName == "" {
		log.Fatal().Msg("-job and -task are required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	sqlDB, err := db.Open(cfg.DBURI)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer sqlDB.Close()

	partyCfg, err := peer.LoadPartyConfig(cfg.PartyConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("load party config")
	}
	addresses := make(map[string]string, len(partyCfg))
	for party, entry := range partyCfg {
		addresses[party] = entry.Address
	}

	job, _, err := db.GetJob(context.Background(), sqlDB, *jobID)
	if err != nil {
		log.Fatal().Err(err).Str("job_id", *jobID).Msg("load job")
	}
	mission, err := db.GetMission(context.Background(), sqlDB, job.MissionName, job.MissionVersion)
	if err != nil {
		log.Fatal().Err(err).Msg("load mission")
	}
	tasks, err := db.ListTasksByJob(context.Background(), sqlDB, *jobID)
	if err != nil {
		log.Fatal().Err(err).Msg("list tasks")
	}
	graph, err := dag.Build(mission, tasks, cfg.Party)
	if err != nil {
		log.Fatal().Err(err).Msg("build dag")
	}
	op, ok := graph.Operator(*taskName)
	if !ok {
		log.Fatal().Str("task", *taskName).Msg("operator not found in mission dag")
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(rawArgsFor(tasks, *taskName)), &args); err != nil {
		log.Fatal().Err(err).Msg("parse task args")
	}

	jobContext := ctxstore.NewJobContext(sqlDB, cfg.Party)
	missionContext := ctxstore.NewMissionContext(sqlDB)
	globalConfig := ctxstore.NewGlobalConfig(sqlDB)
	netdescBuilder := netdesc.NewBuilder(cfg.NetworkScheme, cfg.PortLowerBound, cfg.PortUpperBound, netdesc.ConfigAddress(addresses))

	exec := taskexec.New(cfg, jobContext, missionContext, globalConfig, netdescBuilder)
	if err := exec.Run(context.Background(), *jobID, *taskName, op.Party, op.ClassPath, op.Class, args, job.MissionName, op.Depends); err != nil {
		log.Error().Err(err).Str("job_id", *jobID).Str("task", *taskName).Msg("task execution failed")
		os.Exit(1)
	}
}

func rawArgsFor(tasks []db.Task, name string) string {
	for _, t := range tasks {
		if t.Name == name {
			if t.Args == "" {
				return "{}"
			}
			return t.Args
		}
	}
	return "{}"
}
