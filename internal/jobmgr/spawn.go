package jobmgr

import (
	"os"
	"os/exec"
)

// Spawner launches a Task Executor worker for one ready vertex. Operators
// are untrusted third-party code, so each task runs in its own isolated OS
// process rather than a goroutine.
type Spawner interface {
	SpawnTask(jobID, taskName string) error
}

// ProcessSpawner forks the taskexec binary as an independent OS process per
// task, passing job/task identity as CLI args and inheriting the parent's
// environment (DB URI, party, config file, etc).
type ProcessSpawner struct {
	TaskExecPath string
}

func NewProcessSpawner(taskExecPath string) *ProcessSpawner {
	return &ProcessSpawner{TaskExecPath: taskExecPath}
}

func (s *ProcessSpawner) SpawnTask(jobID, taskName string) error {
	cmd := exec.Command(s.TaskExecPath, "-job", jobID, "-task", taskName)
	cmd.Env = os.Environ()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

// noopSpawner is used where tests want to assert which tasks were chosen to
// run without actually forking processes.
type noopSpawner struct {
	spawned []string
}

func (s *noopSpawner) SpawnTask(jobID, taskName string) error {
	s.spawned = append(s.spawned, jobID+"/"+taskName)
	return nil
}

var _ Spawner = (*ProcessSpawner)(nil)
