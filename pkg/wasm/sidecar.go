package wasm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/cast"

	"rigz/pkg/module"
	"rigz/pkg/value"
)

// maxSidecarLine bounds a single response line.
const maxSidecarLine = 16 << 20

// sidecarStopTimeout is how long Close waits after closing stdin.
const sidecarStopTimeout = 2 * time.Second

// SidecarRequest is one line written to the sidecar's stdin.
type SidecarRequest struct {
	Method     string         `json:"method"`
	Name       string         `json:"name,omitempty"`
	Invocation *value.Value   `json:"invocation,omitempty"`
	Config     map[string]any `json:"config,omitempty"`
}

// SidecarResponse is one line read back from its stdout.
type SidecarResponse struct {
	Status string      `json:"status"`
	Value  value.Value `json:"value"`
	Error  string      `json:"error,omitempty"`
}

// Sidecar is a module backed by a child process speaking JSON lines.
// Values travel in their tagged JSON form so numeric kinds survive.
type Sidecar struct {
	def  module.Definition
	opts module.AssembleOptions
	log  *slog.Logger

	mu          sync.Mutex
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	stdout      *bufio.Scanner
	stopTimeout time.Duration
}

var _ module.Module = (*Sidecar)(nil)

func NewSidecar(def module.Definition) *Sidecar {
	return &Sidecar{def: def, log: slog.Default(), stopTimeout: sidecarStopTimeout}
}

func (p *Sidecar) Name() string { return p.def.Name }

func (p *Sidecar) Root() string { return p.def.Root }

func (p *Sidecar) start() error {
	// A bare command name is looked up on PATH.
	bin := p.def.Binary[0]
	if strings.ContainsRune(bin, filepath.Separator) {
		bin = p.def.Resolve(bin)
	}
	p.cmd = exec.Command(bin, p.def.Binary[1:]...)
	p.cmd.Dir = p.def.Root
	p.cmd.Stderr = os.Stderr
	p.cmd.Env = os.Environ()
	for k, v := range cast.ToStringMapString(p.def.Config["env"]) {
		p.cmd.Env = append(p.cmd.Env, k+"="+v)
	}

	var err error
	if p.stdin, err = p.cmd.StdinPipe(); err != nil {
		return err
	}
	stdoutPipe, err := p.cmd.StdoutPipe()
	if err != nil {
		return err
	}
	p.stdout = bufio.NewScanner(stdoutPipe)
	p.stdout.Buffer(make([]byte, 0, 64*1024), maxSidecarLine)

	if err := p.cmd.Start(); err != nil {
		return err
	}
	p.log.Info("Sidecar process started", "path", bin, "pid", p.cmd.Process.Pid)
	return nil
}

// Initialize starts the process and sends it the module config. A sidecar
// answering not_found has no initialization step.
func (p *Sidecar) Initialize(_ context.Context, args module.InitArgs) module.Status[struct{}] {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.opts = module.AssembleOptions{IncludeNonePrior: args.IncludeNonePrior}
	p.log = args.Log().With("module", p.def.Name)

	if len(p.def.Binary) == 0 {
		return module.Errf[struct{}]("module %s: no sidecar binary", p.def.Name)
	}
	if err := p.start(); err != nil {
		p.cmd = nil
		return module.Errf[struct{}]("failed to start sidecar: %s - %v", p.def.Name, err)
	}

	resp, err := p.roundTrip(SidecarRequest{Method: "initialize", Config: p.def.Config})
	if err != nil {
		return module.Errf[struct{}]("initialization failed: %s - %v", p.def.Name, err)
	}
	switch resp.Status {
	case "ok":
		return module.Ok(struct{}{})
	case "not_found":
		return module.NotFound[struct{}]()
	}
	return module.Errf[struct{}]("initialization failed: %s - %s", p.def.Name, resp.Error)
}

func (p *Sidecar) FunctionCall(_ context.Context, call module.Call) module.Status[value.Value] {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd == nil {
		return module.NotFound[value.Value]()
	}

	inv := module.Assemble(p.def.Convention, call, p.opts).AsValue()
	resp, err := p.roundTrip(SidecarRequest{Method: "invoke", Name: call.Name, Invocation: &inv})
	if err != nil {
		return module.Errf[value.Value]("sidecar call failed: %s.%s - %v", p.def.Name, call.Name, err)
	}
	switch resp.Status {
	case "ok":
		return module.Ok(resp.Value)
	case "not_found":
		return module.NotFound[value.Value]()
	case "error":
		return module.Err[value.Value](resp.Error)
	}
	return module.Errf[value.Value]("sidecar call failed: %s.%s - unknown status %q", p.def.Name, call.Name, resp.Status)
}

func (p *Sidecar) roundTrip(req SidecarRequest) (SidecarResponse, error) {
	line, err := gojson.Marshal(req)
	if err != nil {
		return SidecarResponse{}, fmt.Errorf("encode request: %w", err)
	}
	if _, err := fmt.Fprintln(p.stdin, string(line)); err != nil {
		return SidecarResponse{}, fmt.Errorf("failed to send request to sidecar: %w", err)
	}

	if !p.stdout.Scan() {
		if err := p.stdout.Err(); err != nil {
			return SidecarResponse{}, fmt.Errorf("sidecar read error: %w", err)
		}
		return SidecarResponse{}, fmt.Errorf("sidecar process exited unexpectedly")
	}
	var resp SidecarResponse
	if err := gojson.Unmarshal(p.stdout.Bytes(), &resp); err != nil {
		return SidecarResponse{}, fmt.Errorf("invalid response from sidecar: %w", err)
	}
	return resp, nil
}

// Close ends the sidecar by closing its stdin, killing it if it has not
// exited within the stop timeout. A non-zero exit or a kill is reported.
func (p *Sidecar) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd == nil {
		return nil
	}
	_ = p.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()

	var err error
	select {
	case werr := <-done:
		if werr != nil {
			err = fmt.Errorf("sidecar %s exited: %w", p.def.Name, werr)
		}
	case <-time.After(p.stopTimeout):
		_ = p.cmd.Process.Kill()
		<-done
		err = fmt.Errorf("sidecar %s did not exit within %s and was killed", p.def.Name, p.stopTimeout)
	}
	if err != nil {
		p.log.Warn("⚠️ Sidecar stopped uncleanly", "error", err)
	} else {
		p.log.Info("Sidecar process stopped")
	}
	p.cmd = nil
	return err
}
