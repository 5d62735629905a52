// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/yamux"
)

const (
	defaultDialTimeout      = 10 * time.Second
	defaultProgressInterval = 64 * 1024
)

// ErrNoPeers is returned when no peer is configured.
var ErrNoPeers = errors.New("no peers configured")

// Config configures a Network.
type Config struct {
	Peers            []string // host:port, tried in order
	DialTimeout      time.Duration
	ProgressInterval int64 // bytes between progress reports
}

// Stats reports download progress of an archive.
type Stats struct {
	Downloaded int64
	Length     int64
}

// Network joins peers to fetch archives.
type Network struct {
	cfg Config
}

// NewNetwork creates a network client.
func NewNetwork(cfg Config) *Network {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = defaultProgressInterval
	}
	return &Network{cfg: cfg}
}

// Join finds a peer that serves key and starts downloading its files into
// dir. Peers are tried in order; the error of the last one is returned when
// none serves the key.
func (n *Network) Join(ctx context.Context, key, dir string) (*Archive, error) {
	k, err := ParseKey(key)
	if err != nil {
		return nil, err
	}
	if len(n.cfg.Peers) == 0 {
		return nil, ErrNoPeers
	}

	lastErr := ErrNoPeers
	for _, peer := range n.cfg.Peers {
		session, files, err := n.joinPeer(ctx, peer, k)
		if err != nil {
			log.Printf("Swarm: peer %s: %v", peer, err)
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		return newArchive(k, dir, peer, session, files, n.cfg.ProgressInterval), nil
	}
	return nil, fmt.Errorf("join %s: %w", k, lastErr)
}

func (n *Network) joinPeer(ctx context.Context, peer, key string) (*yamux.Session, []FileInfo, error) {
	dialer := &net.Dialer{Timeout: n.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", peer)
	if err != nil {
		return nil, nil, err
	}

	session, err := yamux.Client(conn, YamuxConfig())
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	stream, err := session.Open()
	if err != nil {
		session.Close()
		return nil, nil, err
	}
	defer stream.Close()

	if deadline, ok := ctx.Deadline(); ok {
		stream.SetDeadline(deadline)
	}

	if err := writeJSON(stream, Request{Op: OpManifest, Key: key}); err != nil {
		session.Close()
		return nil, nil, fmt.Errorf("send manifest request: %w", err)
	}
	var resp Response
	if err := readJSON(bufio.NewReader(stream), &resp); err != nil {
		session.Close()
		return nil, nil, fmt.Errorf("read manifest: %w", err)
	}
	if err := resp.Err(); err != nil {
		session.Close()
		return nil, nil, err
	}

	for _, f := range resp.Files {
		if _, err := cleanRelPath(f.Path); err != nil {
			session.Close()
			return nil, nil, err
		}
		if f.Size < 0 {
			session.Close()
			return nil, nil, fmt.Errorf("negative size for %s", f.Path)
		}
	}
	return session, resp.Files, nil
}

// Archive is a joined archive being downloaded.
type Archive struct {
	key     string
	dir     string
	peer    string
	session *yamux.Session
	files   []FileInfo
	length  int64

	stats    chan Stats
	tracker  *progressTracker
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
}

func newArchive(key, dir, peer string, session *yamux.Session, files []FileInfo, interval int64) *Archive {
	var length int64
	for _, f := range files {
		length += f.Size
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Archive{
		key:     key,
		dir:     dir,
		peer:    peer,
		session: session,
		files:   files,
		length:  length,
		stats:   make(chan Stats, 16),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	a.tracker = newProgressTracker(interval, a.sendStats)

	go a.download()
	return a
}

// Key returns the sanitized content key.
func (a *Archive) Key() string {
	return a.key
}

// Peer returns the address of the peer serving the archive.
func (a *Archive) Peer() string {
	return a.peer
}

// Length returns the total size of the archive in bytes.
func (a *Archive) Length() int64 {
	return a.length
}

// Stats returns the progress stream. It is closed when the download ends.
func (a *Archive) Stats() <-chan Stats {
	return a.stats
}

// Wait blocks until the download ends and returns its error.
func (a *Archive) Wait() error {
	<-a.done
	return a.err
}

// Close stops the download and leaves the peer.
func (a *Archive) Close() error {
	a.cancel()
	<-a.done
	return nil
}

func (a *Archive) sendStats(downloaded int64) {
	select {
	case a.stats <- Stats{Downloaded: downloaded, Length: a.length}:
	case <-a.ctx.Done():
	}
}

func (a *Archive) download() {
	defer close(a.done)
	defer close(a.stats)
	defer a.session.Close()

	// Closing the session unblocks any stream read when cancelled.
	stop := context.AfterFunc(a.ctx, func() { a.session.Close() })
	defer stop()

	a.sendStats(0)

	var downloaded int64
	for _, f := range a.files {
		n, err := a.fetch(f, downloaded)
		downloaded += n
		if err != nil {
			if a.ctx.Err() != nil {
				err = a.ctx.Err()
			}
			a.err = fmt.Errorf("fetch %s: %w", f.Path, err)
			return
		}
	}
	a.tracker.Finish(downloaded, a.length)
}

func (a *Archive) fetch(f FileInfo, base int64) (int64, error) {
	target, err := safeJoin(a.dir, f.Path)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, err
	}

	stream, err := a.session.Open()
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	if err := writeJSON(stream, Request{Op: OpFetch, Key: a.key, Path: f.Path}); err != nil {
		return 0, err
	}
	br := bufio.NewReader(stream)
	var resp Response
	if err := readJSON(br, &resp); err != nil {
		return 0, err
	}
	if err := resp.Err(); err != nil {
		return 0, err
	}
	if resp.Size != f.Size {
		return 0, fmt.Errorf("size mismatch: manifest %d, peer %d", f.Size, resp.Size)
	}

	out, err := os.Create(target)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	w := &countingWriter{w: out, onWrite: func(total int64) {
		a.tracker.Report(base+total, a.length)
	}}
	n, err := io.CopyN(w, br, f.Size)
	if err != nil {
		return n, err
	}
	return n, out.Close()
}

type countingWriter struct {
	w       io.Writer
	n       int64
	onWrite func(total int64)
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	if n > 0 && c.onWrite != nil {
		c.onWrite(c.n)
	}
	return n, err
}

// progressTracker throttles progress reports by byte interval. The final
// report is always sent.
type progressTracker struct {
	interval int64
	last     int64
	sent     bool
	emit     func(processed int64)
}

func newProgressTracker(interval int64, emit func(processed int64)) *progressTracker {
	return &progressTracker{interval: interval, emit: emit}
}

// Report emits processed if enough bytes passed since the last report or
// the total is reached. Nothing is emitted while total is unknown.
func (pt *progressTracker) Report(processed, total int64) {
	if total <= 0 {
		return
	}
	if processed-pt.last < pt.interval && processed < total {
		return
	}
	if pt.sent && processed == pt.last {
		return
	}
	pt.last = processed
	pt.sent = true
	pt.emit(processed)
}

// Finish emits the final report unless it was already sent.
func (pt *progressTracker) Finish(processed, total int64) {
	if total <= 0 {
		return
	}
	if pt.sent && pt.last == processed {
		return
	}
	pt.last = processed
	pt.sent = true
	pt.emit(processed)
}
