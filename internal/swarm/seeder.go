// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hashicorp/yamux"
)

// Seeder serves archives stored as <root>/<key>/... to fetching peers.
type Seeder struct {
	root string

	mu       sync.Mutex
	listener net.Listener
	sessions map[*yamux.Session]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewSeeder creates a seeder for root.
func NewSeeder(root string) *Seeder {
	return &Seeder{
		root:     root,
		sessions: make(map[*yamux.Session]struct{}),
	}
}

// Listen opens a TCP listener on addr and serves it in the background.
func (s *Seeder) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("seeder listen %s: %w", addr, err)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Serve(ln); err != nil {
			log.Printf("Seeder: %v", err)
		}
	}()
	return nil
}

// Serve accepts peers on ln until Close.
func (s *Seeder) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return errors.New("seeder is closed")
	}
	s.listener = ln
	s.mu.Unlock()

	log.Printf("Seeder serving %s on %s", s.root, ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}

		session, err := yamux.Server(conn, YamuxConfig())
		if err != nil {
			conn.Close()
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			session.Close()
			return nil
		}
		s.sessions[session] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.serveSession(session)
	}
}

// Addr returns the listener address, or nil before Serve.
func (s *Seeder) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting peers and closes open sessions.
func (s *Seeder) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
	for session := range s.sessions {
		session.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Seeder) serveSession(session *yamux.Session) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.sessions, session)
		s.mu.Unlock()
		session.Close()
	}()

	var streams sync.WaitGroup
	defer streams.Wait()

	for {
		stream, err := session.Accept()
		if err != nil {
			return
		}
		streams.Add(1)
		go func() {
			defer streams.Done()
			defer stream.Close()
			s.handleStream(stream)
		}()
	}
}

func (s *Seeder) handleStream(stream io.ReadWriter) {
	var req Request
	if err := readJSON(bufio.NewReader(stream), &req); err != nil {
		return
	}

	key, err := ParseKey(req.Key)
	if err != nil {
		writeJSON(stream, Response{Error: err.Error()})
		return
	}
	dir := filepath.Join(s.root, key)

	switch req.Op {
	case OpManifest:
		files, err := s.manifest(dir)
		if err != nil {
			writeJSON(stream, Response{Error: errNotFoundMsg})
			return
		}
		writeJSON(stream, Response{Files: files})

	case OpFetch:
		path, err := safeJoin(dir, req.Path)
		if err != nil {
			writeJSON(stream, Response{Error: err.Error()})
			return
		}
		f, err := os.Open(path)
		if err != nil {
			writeJSON(stream, Response{Error: errNotFoundMsg})
			return
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil || !info.Mode().IsRegular() {
			writeJSON(stream, Response{Error: errNotFoundMsg})
			return
		}
		if err := writeJSON(stream, Response{Size: info.Size()}); err != nil {
			return
		}
		if _, err := io.CopyN(stream, f, info.Size()); err != nil {
			log.Printf("Seeder: send %s/%s: %v", key, req.Path, err)
		}

	default:
		writeJSON(stream, Response{Error: fmt.Sprintf("unknown op %q", req.Op)})
	}
}

func (s *Seeder) manifest(dir string) ([]FileInfo, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	files := []FileInfo{}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, FileInfo{Path: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
