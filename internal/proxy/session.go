// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package proxy routes the UI's persistent network session through the
// replay backend.
package proxy

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"
)

const dialTimeout = 10 * time.Second

// Session is the UI's dedicated network session. The UI points its
// partition at Addr, and the session forwards every request either directly
// or through the proxy named by the current rule.
type Session struct {
	partition string
	listen    string

	direct *http.Transport

	mu        sync.RWMutex
	rule      string
	upstream  *url.URL
	transport *http.Transport

	server   *http.Server
	listener net.Listener
}

// NewSession creates a session for partition that will listen on listen.
func NewSession(partition, listen string) *Session {
	s := &Session{
		partition: partition,
		listen:    listen,
		direct:    newTransport(nil),
		transport: newTransport(nil),
	}
	s.server = &http.Server{Handler: http.HandlerFunc(s.serveHTTP)}
	return s
}

func newTransport(upstream *url.URL) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if upstream != nil {
		t.Proxy = http.ProxyURL(upstream)
	} else {
		t.Proxy = nil
	}
	return t
}

// Partition returns the session partition name.
func (s *Session) Partition() string {
	return s.partition
}

// Start opens the session listener and serves in the background.
func (s *Session) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("session listen %s: %w", s.listen, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	log.Printf("Session %s listening on %s", s.partition, ln.Addr())
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("Session %s error: %v", s.partition, err)
		}
	}()
	return nil
}

// Addr returns the listener address, or "" before Start.
func (s *Session) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// SetProxy applies a proxy rule of the form host:port. An empty rule
// restores direct connections. Connections opened under the previous rule
// are dropped.
func (s *Session) SetProxy(ctx context.Context, rule string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var upstream *url.URL
	if rule != "" {
		u, err := parseRule(rule)
		if err != nil {
			return err
		}
		upstream = u
	}

	s.mu.Lock()
	old := s.transport
	s.rule = rule
	s.upstream = upstream
	s.transport = newTransport(upstream)
	s.mu.Unlock()

	old.CloseIdleConnections()
	return nil
}

// ProxyRule returns the rule currently applied.
func (s *Session) ProxyRule() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rule
}

// Shutdown stops the session listener.
func (s *Session) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func parseRule(rule string) (*url.URL, error) {
	raw := rule
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid proxy rule %q", rule)
	}
	if _, _, err := net.SplitHostPort(u.Host); err != nil {
		return nil, fmt.Errorf("invalid proxy rule %q: %w", rule, err)
	}
	return u, nil
}

func (s *Session) current() (*url.URL, *http.Transport) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upstream, s.transport
}

func (s *Session) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect || isWebSocket(r) {
		s.serveTunnel(w, r)
		return
	}

	upstream, transport := s.current()

	// Requests without an absolute URL are addressed to the backend itself.
	if !r.URL.IsAbs() {
		if upstream == nil {
			http.Error(w, "No backend configured", http.StatusBadGateway)
			return
		}
		target := *upstream
		rp := httputil.NewSingleHostReverseProxy(&target)
		rp.Transport = s.direct
		rp.FlushInterval = -1
		rp.ErrorHandler = proxyError(target.Host)
		rp.ServeHTTP(w, r)
		return
	}

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			u := *pr.In.URL
			pr.Out.URL = &u
			pr.Out.Host = u.Host
		},
		Transport:     transport,
		FlushInterval: -1,
		ErrorHandler:  proxyError(r.URL.Host),
	}
	rp.ServeHTTP(w, r)
}

func proxyError(target string) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, req *http.Request, err error) {
		log.Printf("Proxy error [%s -> %s]: %v", req.URL.Path, target, err)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
	}
}

// serveTunnel handles CONNECT and websocket upgrades by splicing the client
// connection onto the upstream proxy, or onto the target when direct.
func (s *Session) serveTunnel(w http.ResponseWriter, r *http.Request) {
	upstream, _ := s.current()

	targetAddr := r.Host
	if upstream != nil {
		targetAddr = upstream.Host
	} else if r.Method != http.MethodConnect && r.URL.IsAbs() {
		targetAddr = r.URL.Host
	}
	if _, _, err := net.SplitHostPort(targetAddr); err != nil {
		targetAddr = net.JoinHostPort(targetAddr, "80")
	}

	dialer := &net.Dialer{Timeout: dialTimeout}
	upstreamConn, err := dialer.DialContext(r.Context(), "tcp", targetAddr)
	if err != nil {
		log.Printf("Tunnel: failed to connect to %s: %v", targetAddr, err)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		upstreamConn.Close()
		http.Error(w, "Hijack not supported", http.StatusInternalServerError)
		return
	}
	clientConn, clientBuf, err := hijacker.Hijack()
	if err != nil {
		upstreamConn.Close()
		log.Printf("Tunnel: hijack failed: %v", err)
		return
	}

	switch {
	case r.Method == http.MethodConnect && upstream == nil:
		// Direct CONNECT: the tunnel is ours to establish.
		if _, err := io.WriteString(clientConn, "HTTP/1.1 200 Connection Established\r\n\r\n"); err != nil {
			clientConn.Close()
			upstreamConn.Close()
			return
		}
	case r.Method == http.MethodConnect:
		// Let the upstream proxy answer the CONNECT.
		if err := r.Write(upstreamConn); err != nil {
			clientConn.Close()
			upstreamConn.Close()
			log.Printf("Tunnel: failed to write CONNECT to %s: %v", targetAddr, err)
			return
		}
	default:
		if upstream != nil {
			err = r.WriteProxy(upstreamConn)
		} else {
			err = r.Write(upstreamConn)
		}
		if err != nil {
			clientConn.Close()
			upstreamConn.Close()
			log.Printf("Tunnel: failed to write request to %s: %v", targetAddr, err)
			return
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		io.Copy(clientConn, upstreamConn)
		clientConn.Close()
	}()

	go func() {
		defer wg.Done()
		if n := clientBuf.Reader.Buffered(); n > 0 {
			buffered := make([]byte, n)
			clientBuf.Read(buffered)
			upstreamConn.Write(buffered)
		}
		io.Copy(upstreamConn, clientConn)
		upstreamConn.Close()
	}()

	wg.Wait()
}

func isWebSocket(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
