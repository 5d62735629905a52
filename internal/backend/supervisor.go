// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/wingedpig/replayhost/internal/platform"
)

const (
	defaultStopTimeout = 5 * time.Second
	eventBufferSize    = 64
)

// ErrClosed is returned by Launch after Close.
var ErrClosed = errors.New("supervisor is closed")

// Options configures a Supervisor.
type Options struct {
	Binary         string
	WorkDir        string
	CacheDir       string
	Env            map[string]string
	StopTimeout    time.Duration
	StartupTimeout time.Duration // 0 disables the startup timer
	LogBufferSize  int
	Discoverer     PortDiscoverer
	Terminator     platform.Terminator
}

// Supervisor owns the backend process. At most one generation is live at a
// time; every launch terminates the previous generation first.
type Supervisor struct {
	opts    Options
	logs    *LogBuffer
	scanner *Scanner
	term    platform.Terminator

	launchMu sync.Mutex // serializes Launch, Terminate, Interrupt and Close

	mu         sync.RWMutex
	state      State
	generation uint64
	proc       *process
	endpoint   *Endpoint
	pending    LaunchRequest // request of the current generation
	exitCode   int

	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once
	reap      sync.WaitGroup
}

// process is one generation of the backend.
type process struct {
	cmd           *exec.Cmd
	pid           int
	generation    uint64
	req           LaunchRequest
	startedAt     time.Time
	waitDone      chan struct{}
	startupTimer  *time.Timer
	stopRequested bool
	detached      bool
	releaseOnce   sync.Once
}

// NewSupervisor creates an idle supervisor.
func NewSupervisor(opts Options) *Supervisor {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	if opts.Terminator == nil {
		opts.Terminator = platform.NewTerminator()
	}

	s := &Supervisor{
		opts:   opts,
		logs:   NewLogBuffer(opts.LogBufferSize),
		term:   opts.Terminator,
		state:  StateIdle,
		events: make(chan Event, eventBufferSize),
		closed: make(chan struct{}),
	}
	s.scanner = NewScanner(s.logs, opts.Discoverer, s.handleDiscovery)
	return s
}

// Events returns the supervisor event stream.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// Done is closed once the supervisor has been closed.
func (s *Supervisor) Done() <-chan struct{} {
	return s.closed
}

// Logs returns the log buffer of the active generation.
func (s *Supervisor) Logs() *LogBuffer {
	return s.logs
}

// Generation returns the current generation number.
func (s *Supervisor) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Endpoint returns the endpoint of the current generation, if discovered.
func (s *Supervisor) Endpoint() (Endpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.endpoint == nil {
		return Endpoint{}, false
	}
	return *s.endpoint, true
}

// Status returns a snapshot of the supervisor.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		State:      s.state,
		Generation: s.generation,
		ExitCode:   s.exitCode,
	}
	if s.endpoint != nil {
		ep := *s.endpoint
		st.Endpoint = &ep
	}
	if p := s.proc; p != nil {
		st.PID = p.pid
		st.Mode = p.req.Mode.String()
		st.Source = p.req.Source
		st.Origin = p.req.IndexSource()
		st.Detached = p.detached
		st.StartedAt = p.startedAt
	}
	return st
}

// Launch terminates the live generation, if any, and starts a new one.
// It returns the new generation number. A spawn failure is recorded in the
// log buffer and returned wrapped in ErrSpawn.
func (s *Supervisor) Launch(ctx context.Context, req LaunchRequest) (uint64, error) {
	s.launchMu.Lock()
	defer s.launchMu.Unlock()

	select {
	case <-s.closed:
		return 0, ErrClosed
	default:
	}

	if err := s.terminate(ctx); err != nil {
		s.mu.Lock()
		alive := s.proc != nil
		if alive {
			s.state = StateRunning
		}
		gen := s.generation
		s.mu.Unlock()
		// Two live backends must never coexist; keep the old one.
		if alive {
			return gen, fmt.Errorf("terminate generation %d: %w", gen, err)
		}
		log.Printf("Backend: terminate before launch: %v", err)
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.state = StateLaunching
	s.endpoint = nil
	s.pending = req
	s.exitCode = 0
	s.mu.Unlock()

	s.logs.Reset()
	s.scanner.Reset(gen)

	args := req.Args(s.opts.CacheDir)
	cmd := exec.Command(s.opts.Binary, args...)
	cmd.Dir = s.opts.WorkDir
	cmd.SysProcAttr = platform.SysProcAttr()
	cmd.WaitDelay = s.opts.StopTimeout
	cmd.Env = os.Environ()
	for k, v := range s.opts.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdout := newLineWriter(func(line string) { s.scanner.OnData(line, gen) })
	stderr := newLineWriter(func(line string) { s.scanner.OnStderr(line, gen) })
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	s.logs.Write(fmt.Sprintf("[replayhost] Starting: %s %s", s.opts.Binary, strings.Join(args, " ")))

	if err := cmd.Start(); err != nil {
		s.logs.Write(fmt.Sprintf("Error spawning %s binary: %v", s.opts.Binary, err))
		s.mu.Lock()
		s.state = StateIdle
		s.exitCode = -1
		s.mu.Unlock()
		return gen, fmt.Errorf("%w %s: %v", ErrSpawn, s.opts.Binary, err)
	}

	p := &process{
		cmd:        cmd,
		pid:        cmd.Process.Pid,
		generation: gen,
		req:        req,
		startedAt:  time.Now(),
		waitDone:   make(chan struct{}),
	}
	s.reap.Add(1)

	s.mu.Lock()
	s.proc = p
	s.state = StateRunning
	if s.endpoint != nil {
		// The port was announced before the process was recorded.
		s.detachLocked(p)
	} else if s.opts.StartupTimeout > 0 {
		p.startupTimer = time.AfterFunc(s.opts.StartupTimeout, func() { s.startupExpired(p) })
	}
	s.mu.Unlock()

	go s.waitForExit(p, stdout, stderr)

	return gen, nil
}

// Terminate stops the live generation: a graceful signal first, a forced
// tree kill if that is unavailable or the stop timeout passes. Calling it
// with nothing running is a no-op. The discovered endpoint is always cleared.
func (s *Supervisor) Terminate(ctx context.Context) error {
	s.launchMu.Lock()
	defer s.launchMu.Unlock()
	return s.terminate(ctx)
}

func (s *Supervisor) terminate(ctx context.Context) error {
	p := s.beginStop()
	if p == nil {
		return nil
	}

	if err := s.term.TerminateGracefully(p.pid); err != nil {
		if !errors.Is(err, platform.ErrNoGracefulSignal) {
			log.Printf("Backend: graceful stop of pid %d failed: %v", p.pid, err)
		}
		return s.kill(p)
	}

	select {
	case <-p.waitDone:
		return nil
	case <-time.After(s.opts.StopTimeout):
		log.Printf("Backend: pid %d did not exit within %s, killing", p.pid, s.opts.StopTimeout)
		return s.kill(p)
	case <-ctx.Done():
		if err := s.kill(p); err != nil {
			return err
		}
		return ctx.Err()
	}
}

// Interrupt delivers the window-close signal to the live generation without
// waiting for it to exit.
func (s *Supervisor) Interrupt() error {
	s.launchMu.Lock()
	defer s.launchMu.Unlock()

	p := s.beginStop()
	if p == nil {
		return nil
	}
	return s.term.Interrupt(p.pid)
}

// Close force-kills the live generation and waits for supervised processes
// to be reaped. Detached processes are not waited for.
func (s *Supervisor) Close(ctx context.Context) error {
	s.launchMu.Lock()
	defer s.launchMu.Unlock()

	var err error
	if p := s.beginStop(); p != nil {
		err = s.kill(p)
	}

	s.closeOnce.Do(func() { close(s.closed) })

	reaped := make(chan struct{})
	go func() {
		s.reap.Wait()
		close(reaped)
	}()
	select {
	case <-reaped:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// beginStop marks the live process as stopping and returns it, or nil.
func (s *Supervisor) beginStop() *process {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endpoint = nil
	p := s.proc
	if p == nil {
		s.state = StateIdle
		return nil
	}
	if p.startupTimer != nil {
		p.startupTimer.Stop()
	}
	p.stopRequested = true
	s.state = StateTerminating
	return p
}

func (s *Supervisor) kill(p *process) error {
	err := s.term.TerminateForcefully(p.pid)
	select {
	case <-p.waitDone:
		return nil
	case <-time.After(s.opts.StopTimeout):
	}
	if err != nil {
		return fmt.Errorf("%w: pid %d: %v", ErrStillRunning, p.pid, err)
	}
	return fmt.Errorf("%w: pid %d after kill", ErrStillRunning, p.pid)
}

func (s *Supervisor) handleDiscovery(ep Endpoint) {
	s.mu.Lock()
	if ep.Generation != s.generation || s.endpoint != nil || s.state == StateTerminating {
		s.mu.Unlock()
		return
	}
	s.endpoint = &ep
	origin := s.pending.IndexSource()
	if p := s.proc; p != nil && p.generation == ep.Generation {
		if p.startupTimer != nil {
			p.startupTimer.Stop()
		}
		s.detachLocked(p)
	}
	s.mu.Unlock()

	s.emit(Event{Type: EventDiscovered, Generation: ep.Generation, Endpoint: ep, Origin: origin})
}

// detachLocked releases p from the reap group on platforms where the
// backend outlives the supervisor's bookkeeping once it is serving.
func (s *Supervisor) detachLocked(p *process) {
	if !platform.DetachOnDiscovery {
		return
	}
	p.detached = true
	s.release(p)
}

func (s *Supervisor) release(p *process) {
	p.releaseOnce.Do(s.reap.Done)
}

func (s *Supervisor) startupExpired(p *process) {
	s.mu.RLock()
	stale := s.proc != p || s.endpoint != nil || p.stopRequested
	s.mu.RUnlock()
	if stale {
		return
	}

	timeout := s.opts.StartupTimeout
	s.logs.Write(fmt.Sprintf("[replayhost] backend did not report a port within %s", timeout))
	s.emit(Event{
		Type:       EventStartupTimeout,
		Generation: p.generation,
		Err:        fmt.Errorf("%w within %s", ErrStartupTimeout, timeout),
	})
}

func (s *Supervisor) waitForExit(p *process, stdout, stderr *lineWriter) {
	err := p.cmd.Wait()
	stdout.Flush()
	stderr.Flush()

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	s.mu.Lock()
	if p.startupTimer != nil {
		p.startupTimer.Stop()
	}
	current := s.proc == p
	if current {
		s.proc = nil
		s.state = StateIdle
		s.endpoint = nil
		s.exitCode = exitCode
	}
	stopRequested := p.stopRequested
	s.mu.Unlock()

	if current {
		switch {
		case stopRequested:
			s.logs.Write("[replayhost] Backend stopped")
		case err != nil:
			s.logs.Write(fmt.Sprintf("[replayhost] Backend exited with error: %v", err))
		default:
			s.logs.Write("[replayhost] Backend exited cleanly")
		}
	}

	close(p.waitDone)
	s.emit(Event{Type: EventExited, Generation: p.generation, ExitCode: exitCode})
	s.release(p)
}

func (s *Supervisor) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.closed:
	}
}
