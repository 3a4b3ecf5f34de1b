package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/vmforge/vmforge/internal/config"
)

// Result is the normalized outcome of one bridge invocation. Success comes
// from the JSON document the script prints, not from the exit code: the
// script may exit non-zero while still reporting a structured failure.
type Result struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	Error    string         `json:"error,omitempty"`
	Data     map[string]any `json:"-"`
	Raw      string         `json:"-"`
	ExitCode int            `json:"-"`
}

// Params are the flat arguments handed to the bridge as CLI flags. Zero
// fields are omitted; VMID is always passed.
type Params struct {
	VMID         int
	Name         string
	VCPU         int
	RAMMB        int
	DiskGB       int
	OSTemplate   string
	IPAddress    string
	Gateway      string
	Node         string
	Force        bool
	SnapshotName string
}

func (p Params) args(action string) []string {
	args := []string{
		"--action", action,
		"--vmid", strconv.Itoa(p.VMID),
	}
	if p.Name != "" {
		args = append(args, "--name", p.Name)
	}
	if p.VCPU > 0 {
		args = append(args, "--vcpu", strconv.Itoa(p.VCPU))
	}
	if p.RAMMB > 0 {
		args = append(args, "--ram", strconv.Itoa(p.RAMMB))
	}
	if p.DiskGB > 0 {
		args = append(args, "--disk", strconv.Itoa(p.DiskGB))
	}
	if p.OSTemplate != "" {
		args = append(args, "--os-template", p.OSTemplate)
	}
	if p.IPAddress != "" {
		args = append(args, "--ip-address", p.IPAddress)
	}
	if p.Gateway != "" {
		args = append(args, "--gateway", p.Gateway)
	}
	if p.Node != "" {
		args = append(args, "--node", p.Node)
	}
	if p.Force {
		args = append(args, "--force")
	}
	if p.SnapshotName != "" {
		args = append(args, "--snapshot-name", p.SnapshotName)
	}
	return args
}

// Executor runs the Proxmox bridge script as an isolated subprocess, one
// invocation per action, and parses its stdout as a single JSON document.
type Executor struct {
	python  string
	script  string
	timeout time.Duration
}

// NewExecutor verifies the bridge script exists. A missing script is a fatal
// deployment error, caught at startup rather than on the first task.
func NewExecutor(cfg *config.BridgeConfig) (*Executor, error) {
	if _, err := os.Stat(cfg.Script); err != nil {
		return nil, fmt.Errorf("bridge script not found at %s: %w", cfg.Script, err)
	}
	return &Executor{
		python:  cfg.Python,
		script:  cfg.Script,
		timeout: cfg.Timeout,
	}, nil
}

// Run invokes the bridge once. It never returns a Go error for driver-level
// problems: timeouts, non-zero exits and unparseable output all come back as
// a failed Result so the worker can apply the retry policy uniformly.
func (e *Executor) Run(ctx context.Context, action string, params Params) Result {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := append([]string{e.script}, params.args(action)...)
	cmd := exec.CommandContext(ctx, e.python, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	raw := stdout.String()

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	if ctx.Err() == context.DeadlineExceeded {
		return Result{
			Success:  false,
			Message:  fmt.Sprintf("bridge timed out after %v", e.timeout),
			Error:    "driver timeout",
			Raw:      raw,
			ExitCode: exitCode,
		}
	}

	if runErr != nil && exitCode == -1 {
		// Process never produced output (binary missing, fork failure).
		return Result{
			Success:  false,
			Message:  fmt.Sprintf("bridge invocation failed: %v", runErr),
			Error:    runErr.Error(),
			Raw:      raw,
			ExitCode: exitCode,
		}
	}

	res, err := parseResult(raw)
	if err != nil {
		log.Printf("[bridge] malformed output for action %q (exit %d): %s",
			action, exitCode, strings.TrimSpace(raw))
		return Result{
			Success:  false,
			Message:  "bridge produced unparseable output",
			Error:    "malformed driver output",
			Raw:      raw,
			ExitCode: exitCode,
		}
	}

	res.Raw = raw
	res.ExitCode = exitCode
	return res
}

func parseResult(raw string) (Result, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Result{}, errors.New("empty output")
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return Result{}, err
	}

	res := Result{Data: doc}
	if v, ok := doc["success"].(bool); ok {
		res.Success = v
	}
	if v, ok := doc["message"].(string); ok {
		res.Message = v
	}
	if v, ok := doc["error"].(string); ok {
		res.Error = v
	}
	return res, nil
}

// JSON renders the full decoded document for storage as a task result.
func (r Result) JSON() []byte {
	if r.Data != nil {
		if b, err := json.Marshal(r.Data); err == nil {
			return b
		}
	}
	b, _ := json.Marshal(r)
	return b
}

// FailureMessage picks the most specific text available for the task error
// column.
func (r Result) FailureMessage() string {
	switch {
	case r.Message != "":
		return r.Message
	case r.Error != "":
		return r.Error
	default:
		return fmt.Sprintf("bridge failed with exit code %d", r.ExitCode)
	}
}
