// Package taskexec is the Task Executor (C7): the body of the per-process
// worker spawned by the Job Manager for one ready vertex. Resolves the
// named operator from the compile-time registry, assembles its configmap
// from the context layer and network descriptor builder, runs it, and
// reports the terminal status back to the local Job Manager over HTTP.
package taskexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"petnet-coordinator/internal/config"
	"petnet-coordinator/internal/ctxstore"
	"petnet-coordinator/internal/netdesc"
	"petnet-coordinator/internal/operator"
	"petnet-coordinator/internal/sandbox"
)

const commonPartition = "common"

// Executor runs a single task to completion.
type Executor struct {
	cfg            *config.Config
	jobContext     *ctxstore.JobContext
	missionContext *ctxstore.MissionContext
	globalConfig   *ctxstore.GlobalConfig
	netdescBuilder *netdesc.Builder
	http           *http.Client
}

func New(cfg *config.Config, jobContext *ctxstore.JobContext, missionContext *ctxstore.MissionContext, globalConfig *ctxstore.GlobalConfig, netdescBuilder *netdesc.Builder) *Executor {
	return &Executor{
		cfg:            cfg,
		jobContext:     jobContext,
		missionContext: missionContext,
		globalConfig:   globalConfig,
		netdescBuilder: netdescBuilder,
		http:           &http.Client{Timeout: 10 * time.Second},
	}
}

// Run executes jobID/taskName per §4.7: report RUNNING, resolve the
// operator, assemble its configmap, invoke it, report the terminal status.
// A stale-data RUNNING report (another worker already claimed the task)
// exits silently with a nil error.
func (e *Executor) Run(ctx context.Context, jobID, taskName, party, classPath, className string, rawArgs map[string]any, missionName string, depends []string) error {
	claimed, err := e.reportRunning(ctx, jobID, taskName)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	factory, err := operator.Lookup(classPath, className)
	if err != nil {
		return e.reportFailed(ctx, jobID, taskName, err.Error())
	}

	configmap, err := e.buildConfigmap(ctx, jobID, party, classPath, className)
	if err != nil {
		return e.reportFailed(ctx, jobID, taskName, err.Error())
	}

	args, err := e.resolveArgs(ctx, jobID, missionName, rawArgs)
	if err != nil {
		return e.reportFailed(ctx, jobID, taskName, err.Error())
	}
	args = sandbox.RewriteArgs(args, e.cfg.SafeWorkDir)

	cm := &configManager{
		jobContext:     e.jobContext,
		missionContext: e.missionContext,
		globalConfig:   e.globalConfig,
		jobID:          jobID,
		party:          party,
		missionName:    missionName,
	}

	op := factory()
	ok, runErr := op.Run(ctx, party, cm, configmap, args)
	if runErr != nil {
		return e.reportFailed(ctx, jobID, taskName, runErr.Error())
	}
	if !ok {
		return e.reportFailed(ctx, jobID, taskName, "operator returned failure")
	}

	var emitted map[string]any
	if emitter, ok := op.(operator.ContextEmitter); ok {
		if out := emitter.EmittedContext(); len(out) > 0 {
			emitted = map[string]any{party: out}
		}
	}
	return e.reportSuccess(ctx, jobID, taskName, emitted)
}

// configManager implements operator.ConfigManager, scoping writes to the
// task's own party subtree within jobID's context document; reads try that
// subtree first and then the shared "common" subtree.
type configManager struct {
	jobContext     *ctxstore.JobContext
	missionContext *ctxstore.MissionContext
	globalConfig   *ctxstore.GlobalConfig
	jobID          string
	party          string
	missionName    string
}

func (c *configManager) Get(ctx context.Context, key string) (any, bool, error) {
	v, ok, err := c.jobContext.Get(ctx, c.jobID, key, c.party)
	if err != nil || ok {
		return v, ok, err
	}
	return c.jobContext.Get(ctx, c.jobID, key, commonPartition)
}

func (c *configManager) Set(ctx context.Context, key string, value any) (bool, error) {
	return c.jobContext.Set(ctx, c.jobID, key, value, c.party, 3)
}

func (c *configManager) MissionContextGet(ctx context.Context, key string) (string, bool, error) {
	return c.missionContext.Get(ctx, c.missionName, key)
}

func (c *configManager) MissionContextSet(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.missionContext.Set(ctx, c.missionName, key, value, ttl)
}

func (c *configManager) GlobalConfigGet(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := c.globalConfig.Get(ctx, key)
	return v, ok, err
}

// buildConfigmap implements §4.7 step 3: pull job_context, strip and
// redistribute __user_input, merge in the network descriptor.
func (e *Executor) buildConfigmap(ctx context.Context, jobID, party, classPath, className string) (map[string]any, error) {
	doc, err := e.jobContext.GetAll(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var parties []string
	for k := range doc {
		if k != commonPartition {
			parties = append(parties, k)
		}
	}

	common, _ := doc[commonPartition].(map[string]any)
	if common == nil {
		common = map[string]any{}
	}
	userInput, _ := common["__user_input"].(map[string]any)
	delete(common, "__user_input")

	for _, p := range parties {
		sub, _ := doc[p].(map[string]any)
		if sub == nil {
			sub = map[string]any{}
		}
		if perPartyInput, ok := userInput[p].(map[string]any); ok {
			sub = mergeInto(sub, perPartyInput)
		}
		doc[p] = sub
	}
	remainder := make(map[string]any, len(userInput))
	for k, v := range userInput {
		if contains(parties, k) {
			continue
		}
		remainder[k] = v
	}
	common = mergeInto(common, remainder)

	desc, err := e.netdescBuilder.Build(parties, netdesc.Passphrase(jobID, classPath, className))
	if err != nil {
		return nil, err
	}
	descJSON, err := json.Marshal(desc)
	if err != nil {
		return nil, err
	}
	var descMap map[string]any
	if err := json.Unmarshal(descJSON, &descMap); err != nil {
		return nil, err
	}
	for k, v := range descMap {
		common[k] = v
	}
	doc[commonPartition] = common

	return doc, nil
}

func mergeInto(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// resolveArgs implements §4.7 step 4: "${scope.dotted.path}" references are
// looked up from job_context, mission_context, or global_config by prefix.
func (e *Executor) resolveArgs(ctx context.Context, jobID, missionName string, rawArgs map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(rawArgs))
	for k, v := range rawArgs {
		s, ok := v.(string)
		if !ok || !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
			resolved[k] = v
			continue
		}
		ref := strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}")
		parts := strings.SplitN(ref, ".", 2)
		if len(parts) != 2 {
			resolved[k] = v
			continue
		}
		scope, path := parts[0], parts[1]
		val, err := e.resolveRef(ctx, jobID, missionName, scope, path)
		if err != nil {
			return nil, err
		}
		resolved[k] = val
	}
	return resolved, nil
}

func (e *Executor) resolveRef(ctx context.Context, jobID, missionName, scope, path string) (any, error) {
	switch scope {
	case "job_context":
		v, _, err := e.jobContext.Get(ctx, jobID, path, "")
		return v, err
	case "mission_context":
		v, _, err := e.missionContext.Get(ctx, missionName, path)
		return v, err
	case "global_config":
		v, _, err := e.globalConfig.Get(ctx, path)
		return v, err
	default:
		return nil, fmt.Errorf("taskexec: unknown arg scope %q", scope)
	}
}

type patchPayload struct {
	TaskStatus string         `json:"task_status"`
	JobContext map[string]any `json:"job_context,omitempty"`
	Errors     string         `json:"errors,omitempty"`
}

// reportRunning returns false (no error) if the transition is stale,
// meaning another worker already claimed the task.
func (e *Executor) reportRunning(ctx context.Context, jobID, taskName string) (bool, error) {
	status, err := e.patch(ctx, jobID, taskName, patchPayload{TaskStatus: "RUNNING"})
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

func (e *Executor) reportSuccess(ctx context.Context, jobID, taskName string, emittedContext map[string]any) error {
	_, err := e.patch(ctx, jobID, taskName, patchPayload{TaskStatus: "SUCCESS", JobContext: emittedContext})
	return err
}

func (e *Executor) reportFailed(ctx context.Context, jobID, taskName, message string) error {
	_, err := e.patch(ctx, jobID, taskName, patchPayload{TaskStatus: "FAILED", Errors: message})
	return err
}

func (e *Executor) patch(ctx context.Context, jobID, taskName string, payload patchPayload) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	url := e.cfg.LocalAPIAddr + "/api/v1/tasks/" + jobID + "/" + taskName
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.cfg.JWTToken)
	resp, err := e.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
