// Command coordinator runs one party's Job Manager: the external +
// peer-to-peer HTTP surface, the housekeeping sweeps, and mission template
// loading at startup.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"petnet-coordinator/internal/auth"
	"petnet-coordinator/internal/config"
	"petnet-coordinator/internal/db"
	"petnet-coordinator/internal/housekeeping"
	"petnet-coordinator/internal/httpapi"
	"petnet-coordinator/internal/jobmgr"
	"petnet-coordinator/internal/missionloader"
	"petnet-coordinator/internal/peer"
	"petnet-coordinator/internal/secrets"

	_ "petnet-coordinator/internal/operator/builtin"
)

// peerTokenSecret names the row under which the outbound peer bearer token
// is stored, encrypted at rest by the envelope key derived from
// COORDINATOR_NODE_KEY.
const peerTokenSecret = "peer_token"

func main() {
	log.Logger = log.Output(zerolog.New(os.Stdout).With().Timestamp().Logger())

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	sqlDB, err := db.Open(cfg.DBURI)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer sqlDB.Close()

	n, err := missionloader.LoadDir(context.Background(), sqlDB, cfg.MissionDir)
	if err != nil {
		log.Fatal().Err(err).Msg("load mission templates")
	}
	log.Info().Int("count", n).Str("dir", cfg.MissionDir).Msg("loaded mission templates")

	partyCfg, err := peer.LoadPartyConfig(cfg.PartyConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("load party config")
	}

	secMgr, err := secrets.Load(context.Background(), sqlDB)
	if err != nil {
		log.Fatal().Err(err).Msg("load node key")
	}
	if err := secrets.VerifyAll(context.Background(), sqlDB, secMgr); err != nil {
		log.Fatal().Err(err).Msg("stored secrets do not decrypt under the current node key")
	}
	secSvc := secrets.NewService(sqlDB, secMgr)
	peerToken, err := resolvePeerToken(context.Background(), secSvc, cfg.JWTToken)
	if err != nil {
		log.Fatal().Err(err).Msg("resolve peer bearer token")
	}
	peerClient := peer.NewClient(partyCfg, peerToken)

	spawner := jobmgr.NewProcessSpawner(taskExecPath())
	mgr := jobmgr.New(sqlDB, cfg.Party, cfg.MaxJobLimit, peerClient, spawner)

	verifier := auth.NewVerifier(cfg.Secret, sqlDB)
	router := httpapi.NewRouter(mgr, verifier)

	scheduler := gocron.NewScheduler(time.UTC)
	housekeeping.Start(scheduler, sqlDB, mgr)

	log.Info().Str("addr", cfg.ListenAddr).Str("party", cfg.Party).Msg("starting coordinator")
	if err := http.ListenAndServe(cfg.ListenAddr, router); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

// resolvePeerToken stores envToken (if set) as this party's peer bearer
// token and returns it; otherwise it returns the token already on file,
// decrypted for use. JWT_TOKEN being set always wins, so a rotated token
// takes effect on the next restart.
func resolvePeerToken(ctx context.Context, svc *secrets.Service, envToken string) (string, error) {
	if envToken != "" {
		if err := svc.Set(ctx, peerTokenSecret, []byte(envToken)); err != nil {
			return "", err
		}
		return envToken, nil
	}
	stored, err := svc.DecryptForUse(ctx, peerTokenSecret)
	if err != nil {
		return "", err
	}
	if stored == nil {
		return "", fmt.Errorf("no peer bearer token configured: set JWT_TOKEN")
	}
	return string(stored), nil
}

func taskExecPath() string {
	if p := os.Getenv("TASKEXEC_PATH"); p != "" {
		return p
	}
	return "taskexec"
}
