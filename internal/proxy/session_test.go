// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startSession(t *testing.T) *Session {
	t.Helper()
	s := NewSession("persist:wr", "127.0.0.1:0")
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func clientVia(t *testing.T, s *Session) *http.Client {
	t.Helper()
	proxyURL, err := url.Parse("http://" + s.Addr())
	require.NoError(t, err)
	return &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		Timeout:   5 * time.Second,
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestSession_ForwardsThroughProxyRule(t *testing.T) {
	// Stands in for the backend running in proxy mode.
	backendProxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "replayed %s%s", r.Host, r.URL.Path)
	}))
	defer backendProxy.Close()

	s := startSession(t)
	assert.Equal(t, "persist:wr", s.Partition())

	rule := strings.TrimPrefix(backendProxy.URL, "http://")
	require.NoError(t, s.SetProxy(context.Background(), rule))
	assert.Equal(t, rule, s.ProxyRule())

	resp, err := clientVia(t, s).Get("http://example.com/page")
	require.NoError(t, err)
	assert.Equal(t, "replayed example.com/page", readBody(t, resp))
}

func TestSession_DirectWithoutRule(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "origin")
	}))
	defer origin.Close()

	s := startSession(t)
	require.NoError(t, s.SetProxy(context.Background(), ""))

	resp, err := clientVia(t, s).Get(origin.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, "origin", readBody(t, resp))
}

func TestSession_RelativeRequestGoesToBackend(t *testing.T) {
	backendProxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "backend %s", r.URL.Path)
	}))
	defer backendProxy.Close()

	s := startSession(t)

	resp, err := http.Get("http://" + s.Addr() + "/collections")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	resp.Body.Close()

	require.NoError(t, s.SetProxy(context.Background(), strings.TrimPrefix(backendProxy.URL, "http://")))
	resp, err = http.Get("http://" + s.Addr() + "/collections")
	require.NoError(t, err)
	assert.Equal(t, "backend /collections", readBody(t, resp))
}

func TestSession_ConnectTunnel(t *testing.T) {
	echo, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer echo.Close()
	go func() {
		conn, err := echo.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(conn, conn)
	}()

	s := startSession(t)

	conn, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	defer conn.Close()

	fmt.Fprintf(conn, "CONNECT %s HTTP/1.1\r\nHost: %s\r\n\r\n", echo.Addr(), echo.Addr())
	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = io.WriteString(conn, "ping\n")
	require.NoError(t, err)
	line, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ping\n", line)
}

func TestSession_InvalidRule(t *testing.T) {
	s := NewSession("persist:wr", "127.0.0.1:0")
	assert.Error(t, s.SetProxy(context.Background(), "localhost"))
	assert.Error(t, s.SetProxy(context.Background(), "://"))
	assert.Equal(t, "", s.ProxyRule())
}

func TestSession_SetProxyCancelled(t *testing.T) {
	s := NewSession("persist:wr", "127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.SetProxy(ctx, "localhost:8090"), context.Canceled)
}
