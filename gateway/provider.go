package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/codewandler/realtime-go/internal/procattr"
)

const maxStderrLine = 1024 * 1024

// provider is one running tool provider subprocess. Requests are serialized:
// the stdio pair carries at most one request at a time.
type provider struct {
	name   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	logger *slog.Logger

	sem     chan struct{}
	exited  chan struct{}
	waitErr error
}

func startProcess(name string, cfg ProviderConfig, logger *slog.Logger) (*provider, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("provider %q: %w", name, ErrMissingCommand)
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	procattr.Set(cmd)

	if len(cfg.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &ProcessError{Provider: name, Message: "failed to get stdin pipe", Cause: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ProcessError{Provider: name, Message: "failed to get stdout pipe", Cause: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &ProcessError{Provider: name, Message: "failed to get stderr pipe", Cause: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &ProcessError{Provider: name, Message: "failed to start process", Cause: err}
	}

	p := &provider{
		name:   name,
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		logger: logger.With(slog.String("provider", name)),
		sem:    make(chan struct{}, 1),
		exited: make(chan struct{}),
	}

	go p.drainStderr(stderr)
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
		p.logger.Debug("provider exited", slog.Any("err", p.waitErr))
	}()

	return p, nil
}

// drainStderr logs stderr line by line. Once a line exceeds the scanner
// limit the rest is discarded so the provider never blocks on a full pipe.
func (p *provider) drainStderr(r io.Reader) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxStderrLine)
	for s.Scan() {
		p.logger.Debug("stderr", slog.String("line", s.Text()))
	}
	if err := s.Err(); err != nil {
		p.logger.Warn("stderr not logged any further", slog.Any("err", err))
	}
	_, _ = io.Copy(io.Discard, r)
}

func (p *provider) running() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// call sends one request and waits for the response with the same id,
// skipping notifications in between. When ctx ends first the pending read
// keeps the provider locked until the response arrives.
func (p *provider) call(ctx context.Context, id int64, method string, params any) (*Response, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.exited:
		return nil, fmt.Errorf("provider %q: %w", p.name, ErrProviderNotRunning)
	}

	if err := sendRequest(p.stdin, newRequest(id, method, params)); err != nil {
		<-p.sem
		return nil, &ProcessError{Provider: p.name, Message: "write " + method, Cause: err}
	}

	type result struct {
		resp *Response
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() { <-p.sem }()
		for {
			resp, err := readResponse(p.stdout)
			if err != nil {
				ch <- result{err: &ProcessError{Provider: p.name, Message: "read " + method, Cause: err}}
				return
			}
			if resp == nil {
				ch <- result{err: &ProcessError{Provider: p.name, Message: "output closed"}}
				return
			}
			if resp.ID == nil || *resp.ID != id {
				p.logger.Debug("skipping message", slog.String("method", resp.Method))
				continue
			}
			ch <- result{resp: resp}
			return
		}
	}()

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *provider) notify(method string, params any) error {
	p.sem <- struct{}{}
	defer func() { <-p.sem }()
	if err := sendRequest(p.stdin, newNotification(method, params)); err != nil {
		return &ProcessError{Provider: p.name, Message: "write " + method, Cause: err}
	}
	return nil
}

// decodeResult unmarshals a successful result into v.
func (p *provider) decodeResult(resp *Response, tool string, v any) error {
	if resp.Error != nil {
		return &ProviderError{Provider: p.name, Tool: tool, Code: resp.Error.Code, Message: resp.Error.Message}
	}
	if err := json.Unmarshal(resp.Result, v); err != nil {
		return &ProcessError{Provider: p.name, Message: "decode result", Cause: err}
	}
	return nil
}

// stop closes stdin and terminates the process group, escalating to SIGKILL
// when the process is still alive after grace.
func (p *provider) stop(ctx context.Context, grace time.Duration) error {
	_ = p.stdin.Close()
	if err := procattr.TerminateGroup(p.cmd.Process); err != nil {
		p.logger.Debug("terminate failed", slog.Any("err", err))
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.exited:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	p.logger.Warn("provider did not exit, killing")
	_ = procattr.KillGroup(p.cmd.Process)

	select {
	case <-p.exited:
		return nil
	case <-ctx.Done():
		return &ProcessError{Provider: p.name, Message: "did not exit", Cause: ctx.Err()}
	}
}
