// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package datsync downloads archives from the swarm and hands completed
// directories to the backend as a collection.
package datsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wingedpig/replayhost/internal/events"
	"github.com/wingedpig/replayhost/internal/metrics"
	"github.com/wingedpig/replayhost/internal/swarm"
	"github.com/wingedpig/replayhost/internal/watcher"
)

// DefaultSettleDelay is how long a complete download must stay complete
// before the backend is launched on it.
const DefaultSettleDelay = 750 * time.Millisecond

var (
	// ErrJoin is returned when no peer could serve the archive.
	ErrJoin = errors.New("join swarm")
	// ErrFilesystem is returned when the download directory cannot be created.
	ErrFilesystem = errors.New("prepare download directory")
	// ErrSuperseded is returned when a newer job replaced this one.
	ErrSuperseded = errors.New("sync job superseded")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("sync controller closed")
)

// Archive is a download in progress.
type Archive interface {
	// Stats streams progress and is closed when the download ends.
	Stats() <-chan swarm.Stats
	Wait() error
	Close() error
}

// Joiner joins the swarm for key and downloads into dir.
type Joiner func(ctx context.Context, key, dir string) (Archive, error)

// SwarmJoiner adapts a swarm network to a Joiner.
func SwarmJoiner(n *swarm.Network) Joiner {
	return func(ctx context.Context, key, dir string) (Archive, error) {
		a, err := n.Join(ctx, key, dir)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}

// Options configures a Controller.
type Options struct {
	Join        Joiner
	Bus         events.EventBus
	DownloadDir string
	SettleDelay time.Duration
	// OnSettled is called once per job, after its download stayed complete
	// for SettleDelay.
	OnSettled func(Job)
	Metrics   metrics.Recorder
}

// Job is a snapshot of a sync job.
type Job struct {
	ID         string    `json:"id"`
	Key        string    `json:"key"`
	Dir        string    `json:"dir"`
	Downloaded int64     `json:"downloaded"`
	Length     int64     `json:"length"`
	Percent    int       `json:"percent"`
	Complete   bool      `json:"complete"`
	StartedAt  time.Time `json:"started_at"`
}

type job struct {
	Job
	ctx      context.Context // canceled when the job is superseded
	cancel   context.CancelFunc
	archive  Archive
	launched bool
	finished bool
}

// Controller runs at most one sync job at a time. Starting a job
// supersedes the previous one.
type Controller struct {
	opts      Options
	debouncer *watcher.Debouncer

	mu      sync.Mutex
	current *job
	closed  bool
	wg      sync.WaitGroup
}

// NewController creates a sync controller.
func NewController(opts Options) *Controller {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoopRecorder()
	}
	return &Controller{
		opts:      opts,
		debouncer: watcher.NewDebouncer(opts.SettleDelay),
	}
}

// Start begins syncing key. It blocks until a peer is joined; the download
// itself continues in the background.
func (c *Controller) Start(ctx context.Context, key string) (Job, error) {
	j, err := c.Begin(ctx, key)
	if err != nil {
		return Job{}, err
	}
	return c.Join(j.ID)
}

// Begin registers a job for key as the active one, superseding any previous
// job, and announces it. It does not block on the network; callers that
// order jobs must call Begin in that order and may run Join elsewhere.
func (c *Controller) Begin(ctx context.Context, key string) (Job, error) {
	k, err := swarm.ParseKey(key)
	if err != nil {
		c.publishError(ctx, err.Error())
		return Job{}, err
	}

	jctx, cancel := context.WithCancel(ctx)
	j := &job{
		Job: Job{
			ID:        uuid.New().String(),
			Key:       key,
			Dir:       filepath.Join(c.opts.DownloadDir, k),
			StartedAt: time.Now(),
		},
		ctx:    jctx,
		cancel: cancel,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return Job{}, ErrClosed
	}
	prev := c.current
	c.current = j
	c.mu.Unlock()

	if prev != nil {
		c.supersede(prev)
	}

	c.publish(ctx, events.EventInitializing, events.InitializingPayload{Src: events.SourceDat})
	return j.Job, nil
}

// Join prepares the download directory of job id and joins the swarm for
// it. It returns ErrSuperseded if the job stopped being the active one
// before or while joining.
func (c *Controller) Join(id string) (Job, error) {
	c.mu.Lock()
	j := c.current
	c.mu.Unlock()
	if j == nil || j.ID != id {
		return Job{}, ErrSuperseded
	}

	if err := os.MkdirAll(j.Dir, 0755); err != nil {
		if !c.IsCurrent(j.ID) {
			return Job{}, ErrSuperseded
		}
		c.fail(j.ctx, j, fmt.Sprintf("Unable to create %s: %v", c.opts.DownloadDir, err))
		return Job{}, fmt.Errorf("%w: %v", ErrFilesystem, err)
	}

	log.Printf("Sync: joining swarm for %s into %s", j.Key, j.Dir)
	archive, err := c.opts.Join(j.ctx, j.Key, j.Dir)
	if err != nil {
		if !c.IsCurrent(j.ID) {
			return Job{}, ErrSuperseded
		}
		c.fail(j.ctx, j, fmt.Sprintf("Unable to sync %s: %v", j.Key, err))
		return Job{}, fmt.Errorf("%w: %v", ErrJoin, err)
	}

	c.mu.Lock()
	if c.current != j {
		c.mu.Unlock()
		archive.Close()
		return Job{}, ErrSuperseded
	}
	j.archive = archive
	snap := j.Job
	c.wg.Add(1)
	c.mu.Unlock()

	go c.watch(j, archive)
	return snap, nil
}

// Current returns the active job, if any.
func (c *Controller) Current() (Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Job{}, false
	}
	return c.current.Job, true
}

// IsCurrent reports whether id is the active job.
func (c *Controller) IsCurrent(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && c.current.ID == id
}

// Cancel stops the active job without starting another. It reports
// whether a job was active.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	cur := c.current
	c.current = nil
	c.mu.Unlock()
	if cur == nil {
		return false
	}
	c.supersede(cur)
	return true
}

// Close stops the active job and waits for its watcher to exit.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cur := c.current
	c.current = nil
	c.mu.Unlock()

	c.debouncer.Stop()
	if cur != nil {
		c.stop(cur)
	}
	c.wg.Wait()
	return nil
}

func (c *Controller) supersede(j *job) {
	c.debouncer.Cancel(j.ID)
	c.mu.Lock()
	counted := !j.finished
	j.finished = true
	c.mu.Unlock()
	if counted {
		c.opts.Metrics.SyncJob(metrics.SyncSuperseded)
	}
	log.Printf("Sync: job %s for %s superseded", j.ID, j.Key)
	c.stop(j)
}

func (c *Controller) stop(j *job) {
	j.cancel()
	c.mu.Lock()
	archive := j.archive
	c.mu.Unlock()
	if archive != nil {
		archive.Close()
	}
}

func (c *Controller) watch(j *job, archive Archive) {
	defer c.wg.Done()

	for st := range archive.Stats() {
		c.progress(j, st)
	}

	err := archive.Wait()
	if err == nil {
		return
	}

	c.mu.Lock()
	report := c.current == j && !j.finished && !j.launched
	if report {
		j.finished = true
	}
	c.mu.Unlock()
	if report {
		log.Printf("Sync: download of %s failed: %v", j.Key, err)
		c.opts.Metrics.SyncJob(metrics.SyncFailed)
		c.publishError(context.Background(), fmt.Sprintf("Sync of %s failed: %v", j.Key, err))
	}
}

// progress records a stats update, reports it, and arms or disarms the
// settle timer.
func (c *Controller) progress(j *job, st swarm.Stats) {
	c.mu.Lock()
	if c.current != j {
		c.mu.Unlock()
		return
	}
	pct := Percent(st.Downloaded, st.Length)
	if pct < j.Percent {
		pct = j.Percent
	}
	j.Downloaded = st.Downloaded
	j.Length = st.Length
	j.Percent = pct
	j.Complete = st.Length > 0 && st.Downloaded == st.Length
	complete := j.Complete
	c.mu.Unlock()

	c.opts.Metrics.SyncProgress(pct)
	c.publish(context.Background(), events.EventIndexProgress, events.IndexProgressPayload{Perct: pct})

	if complete {
		c.debouncer.Debounce(j.ID, func() { c.settle(j) })
	} else {
		c.debouncer.Cancel(j.ID)
	}
}

func (c *Controller) settle(j *job) {
	c.mu.Lock()
	if c.current != j || j.launched || !j.Complete {
		c.mu.Unlock()
		return
	}
	j.launched = true
	j.finished = true
	snap := j.Job
	c.mu.Unlock()

	log.Printf("Sync: %s complete (%d bytes)", j.Key, snap.Length)
	c.opts.Metrics.SyncJob(metrics.SyncCompleted)
	if c.opts.OnSettled != nil {
		c.opts.OnSettled(snap)
	}
}

func (c *Controller) fail(ctx context.Context, j *job, msg string) {
	c.mu.Lock()
	if c.current == j {
		c.current = nil
	}
	j.finished = true
	c.mu.Unlock()
	j.cancel()
	log.Printf("Sync: %s", msg)
	c.opts.Metrics.SyncJob(metrics.SyncFailed)
	c.publishError(ctx, msg)
}

func (c *Controller) publishError(ctx context.Context, msg string) {
	c.publish(ctx, events.EventError, events.ErrorPayload{Message: msg})
}

func (c *Controller) publish(ctx context.Context, typ string, payload interface{}) {
	if c.opts.Bus == nil {
		return
	}
	if err := c.opts.Bus.Publish(ctx, events.Event{Type: typ, Payload: payload}); err != nil {
		log.Printf("Sync: publish %s: %v", typ, err)
	}
}

// Percent converts a byte count to a whole percentage of length, clamped
// to [0, 100]. An unknown length reports 0.
func Percent(downloaded, length int64) int {
	if length <= 0 {
		return 0
	}
	pct := int(math.Round(float64(downloaded) / float64(length) * 100))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
