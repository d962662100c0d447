package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/banshee-data/cavesweep/internal/settings"
)

// maxStderr bounds how much solver stderr is carried in an error.
const maxStderr = 512

// ExecAdapter runs the solver as a subprocess per configuration. The request
// is written as JSON to stdin and the column-oriented result is read as JSON
// from stdout.
type ExecAdapter struct {
	Command string
	Args    []string
	Env     []string
	Catalog Catalog
}

// NewExecAdapter returns an adapter for the given solver command.
func NewExecAdapter(command string, args ...string) *ExecAdapter {
	return &ExecAdapter{Command: command, Args: args}
}

// Run implements Adapter.
func (a *ExecAdapter) Run(ctx context.Context, cfg settings.Configuration) (RunResult, error) {
	req, err := newRequest(a.Catalog, cfg)
	if err != nil {
		return RunResult{}, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return RunResult{}, fmt.Errorf("encode request: %w", err)
	}

	cmd := exec.CommandContext(ctx, a.Command, a.Args...)
	if len(a.Env) > 0 {
		cmd.Env = append(cmd.Environ(), a.Env...)
	}
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[:maxStderr] + "..."
		}
		if msg != "" {
			return RunResult{}, fmt.Errorf("%s: %w: %s", a.Command, err, msg)
		}
		return RunResult{}, fmt.Errorf("%s: %w", a.Command, err)
	}

	var cols map[string]interface{}
	if err := json.Unmarshal(stdout.Bytes(), &cols); err != nil {
		return RunResult{}, fmt.Errorf("decode solver output: %w", err)
	}
	return DecodeColumns(cols)
}
