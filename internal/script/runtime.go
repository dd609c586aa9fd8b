// Package script runs Lua pipeline scripts against the backend:
// submit one or more workflows, wait for them to finish, pull logs.
package script

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/ameen-91/exray/internal/api"
	"github.com/ameen-91/exray/internal/models"
	"github.com/ameen-91/exray/internal/storage"
)

// DefaultPollInterval is how often wait() re-checks a run's phase.
const DefaultPollInterval = 5 * time.Second

// Runtime executes a Lua pipeline script in a sandboxed environment.
type Runtime struct {
	client       *api.Client
	store        *storage.Storage // optional; records submissions when set
	out          io.Writer
	pollInterval time.Duration

	ctx  context.Context
	logs []string

	// failReason is set when fail() is called
	failReason string
	failed     bool
}

// NewRuntime creates a runtime driving the given client. store may be
// nil; out receives log() output and defaults to os.Stdout.
func NewRuntime(client *api.Client, store *storage.Storage, out io.Writer) *Runtime {
	if out == nil {
		out = os.Stdout
	}
	return &Runtime{
		client:       client,
		store:        store,
		out:          out,
		pollInterval: DefaultPollInterval,
	}
}

// SetPollInterval overrides how often wait() polls.
func (r *Runtime) SetPollInterval(d time.Duration) {
	if d > 0 {
		r.pollInterval = d
	}
}

// Execute runs the script at scriptPath. The script must define a
// global `pipeline` function, which is called with no arguments.
func (r *Runtime) Execute(ctx context.Context, scriptPath string) error {
	script, err := os.ReadFile(scriptPath)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}

	r.ctx = ctx

	L := lua.NewState(lua.Options{
		SkipOpenLibs: true, // Don't load any libraries by default
	})
	defer L.Close()

	r.openSafeLibs(L)
	r.registerAPI(L)

	if err := L.DoString(string(script)); err != nil {
		return fmt.Errorf("failed to load script: %w", err)
	}

	pipeline := L.GetGlobal("pipeline")
	if pipeline == lua.LNil {
		return fmt.Errorf("script must define a 'pipeline' function")
	}

	L.Push(pipeline)
	if err := L.PCall(0, 0, nil); err != nil {
		if r.failed {
			return fmt.Errorf("pipeline failed: %s", r.failReason)
		}
		return fmt.Errorf("pipeline execution failed: %w", err)
	}

	if r.failed {
		return fmt.Errorf("pipeline failed: %s", r.failReason)
	}
	return nil
}

// openSafeLibs loads only the safe standard libraries
func (r *Runtime) openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)

	// Remove anything that touches the host
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("print", lua.LNil) // Use log() instead

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// registerAPI registers the exray-specific API functions
func (r *Runtime) registerAPI(L *lua.LState) {
	L.SetGlobal("submit_ctgan", L.NewFunction(r.luaSubmitCTGAN))
	L.SetGlobal("submit_llm", L.NewFunction(r.luaSubmitLLM))
	L.SetGlobal("submit_custom", L.NewFunction(r.luaSubmitCustom))
	L.SetGlobal("wait", L.NewFunction(r.luaWait))
	L.SetGlobal("status", L.NewFunction(r.luaStatus))
	L.SetGlobal("logs", L.NewFunction(r.luaLogs))
	L.SetGlobal("log", L.NewFunction(r.luaLog))
	L.SetGlobal("fail", L.NewFunction(r.luaFail))
}

// luaSubmitCTGAN implements submit_ctgan{file=..., discrete_columns=..., epochs=..., samples=...}
func (r *Runtime) luaSubmitCTGAN(L *lua.LState) int {
	opts := L.CheckTable(1)

	run, err := r.client.SubmitCTGAN(r.ctx, api.CTGANSubmission{
		FilePath:        tableString(opts, "file"),
		DiscreteColumns: tableString(opts, "discrete_columns"),
		Epochs:          tableInt(opts, "epochs"),
		Samples:         tableInt(opts, "samples"),
		Limits:          tableLimits(opts),
	})
	if err != nil {
		L.RaiseError("submit_ctgan: %v", err)
		return 0
	}

	r.recordSubmission(run)
	L.Push(r.runToTable(L, run))
	return 1
}

// luaSubmitLLM implements submit_llm{file=..., labels=..., model=..., parallelism=...}
func (r *Runtime) luaSubmitLLM(L *lua.LState) int {
	opts := L.CheckTable(1)

	run, err := r.client.SubmitLLM(r.ctx, api.LLMSubmission{
		FilePath:    tableString(opts, "file"),
		Labels:      tableString(opts, "labels"),
		Model:       tableString(opts, "model"),
		Parallelism: tableInt(opts, "parallelism"),
		Limits:      tableLimits(opts),
	})
	if err != nil {
		L.RaiseError("submit_llm: %v", err)
		return 0
	}

	r.recordSubmission(run)
	L.Push(r.runToTable(L, run))
	return 1
}

// luaSubmitCustom implements submit_custom{data_file=..., python_file=..., function_name=..., pip_packages=...}
func (r *Runtime) luaSubmitCustom(L *lua.LState) int {
	opts := L.CheckTable(1)

	run, err := r.client.SubmitCustom(r.ctx, api.CustomSubmission{
		DataFilePath:   tableString(opts, "data_file"),
		PythonFilePath: tableString(opts, "python_file"),
		FunctionName:   tableString(opts, "function_name"),
		PipPackages:    tableString(opts, "pip_packages"),
		Limits:         tableLimits(opts),
	})
	if err != nil {
		L.RaiseError("submit_custom: %v", err)
		return 0
	}

	r.recordSubmission(run)
	L.Push(r.runToTable(L, run))
	return 1
}

// luaWait implements wait(run_id, timeout_seconds?) -> status table.
// It polls until the run reaches a terminal phase.
func (r *Runtime) luaWait(L *lua.LState) int {
	runID := L.CheckString(1)
	timeoutSecs := L.OptInt(2, 0)

	ctx := r.ctx
	if timeoutSecs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSecs)*time.Second)
		defer cancel()
	}

	for {
		run, err := r.client.GetRun(ctx, runID, true)
		if err == nil && run.Terminal() {
			L.Push(r.statusToTable(L, run))
			return 1
		}
		if err != nil {
			r.logLine(fmt.Sprintf("wait %s: %v", runID, err))
		}

		select {
		case <-ctx.Done():
			L.RaiseError("wait %s: %v", runID, ctx.Err())
			return 0
		case <-time.After(r.pollInterval):
		}
	}
}

// luaStatus implements status(run_id) -> status table
func (r *Runtime) luaStatus(L *lua.LState) int {
	runID := L.CheckString(1)

	run, err := r.client.GetRun(r.ctx, runID, false)
	if err != nil {
		L.RaiseError("status %s: %v", runID, err)
		return 0
	}

	L.Push(r.statusToTable(L, run))
	return 1
}

// luaLogs implements logs(run_id, tail?) -> string
func (r *Runtime) luaLogs(L *lua.LState) int {
	runID := L.CheckString(1)
	tail := L.OptInt(2, 0)

	raw, err := r.client.FetchLogs(r.ctx, runID, tail)
	if err != nil {
		L.RaiseError("logs %s: %v", runID, err)
		return 0
	}

	L.Push(lua.LString(raw))
	return 1
}

// luaLog implements the log(message) API
func (r *Runtime) luaLog(L *lua.LState) int {
	message := L.CheckString(1)
	r.logLine(message)
	return 0
}

// luaFail implements the fail(reason?) API
func (r *Runtime) luaFail(L *lua.LState) int {
	reason := L.OptString(1, "pipeline failed")
	r.failReason = reason
	r.failed = true
	// Raise an error to stop execution
	L.RaiseError("fail: %s", reason)
	return 0
}

func (r *Runtime) logLine(message string) {
	r.logs = append(r.logs, message)
	fmt.Fprintln(r.out, message)
}

func (r *Runtime) recordSubmission(run *models.Run) {
	if r.store == nil {
		return
	}
	if err := r.store.RecordSubmission(run, r.client.BaseURL()); err != nil {
		r.logLine(fmt.Sprintf("warning: could not record submission %s: %v", run.RunID, err))
	}
}

// GetLogs returns the log() lines collected during execution
func (r *Runtime) GetLogs() []string {
	return r.logs
}

func (r *Runtime) runToTable(L *lua.LState, run *models.Run) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "run_id", lua.LString(run.RunID))
	L.SetField(tbl, "workflow", lua.LString(string(run.Workflow)))
	L.SetField(tbl, "phase", lua.LString(run.Status.Phase))
	L.SetField(tbl, "input_file", lua.LString(run.OriginalFilename))
	return tbl
}

func (r *Runtime) statusToTable(L *lua.LState, run *models.Run) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "run_id", lua.LString(run.RunID))
	L.SetField(tbl, "phase", lua.LString(run.Status.Phase))
	L.SetField(tbl, "message", lua.LString(run.Status.Message))
	L.SetField(tbl, "progress", lua.LString(run.Status.Progress))
	L.SetField(tbl, "started_at", lua.LString(run.Status.StartedAt))
	L.SetField(tbl, "finished_at", lua.LString(run.Status.FinishedAt))
	L.SetField(tbl, "succeeded", lua.LBool(models.ClassifyPhase(run.Status.Phase) == models.PhaseCategorySuccess))
	return tbl
}

func tableString(tbl *lua.LTable, key string) string {
	if v, ok := tbl.RawGetString(key).(lua.LString); ok {
		return string(v)
	}
	return ""
}

func tableInt(tbl *lua.LTable, key string) int {
	if v, ok := tbl.RawGetString(key).(lua.LNumber); ok {
		return int(v)
	}
	return 0
}

func tableLimits(tbl *lua.LTable) api.ResourceLimits {
	return api.ResourceLimits{
		CPU:    tableString(tbl, "cpu_limit"),
		Memory: tableString(tbl, "memory_limit"),
	}
}

// IsScript checks if a file is a Lua pipeline script
func IsScript(path string) bool {
	return filepath.Ext(path) == ".lua"
}
