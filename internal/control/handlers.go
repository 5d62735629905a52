// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/wingedpig/replayhost/internal/events"
)

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.deps.Host.Status())
}

// history returns recent control messages.
func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := events.EventFilter{}
	if types := query["type"]; len(types) > 0 {
		filter.Types = types
	}
	if genStr := query.Get("generation"); genStr != "" {
		if gen, err := strconv.ParseUint(genStr, 10, 64); err == nil {
			filter.Generation = gen
		}
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if sinceStr := query.Get("since"); sinceStr != "" {
		if t, err := time.Parse(time.RFC3339, sinceStr); err == nil {
			filter.Since = t
		}
	}
	if untilStr := query.Get("until"); untilStr != "" {
		if t, err := time.Parse(time.RFC3339, untilStr); err == nil {
			filter.Until = t
		}
	}

	list, err := s.deps.Bus.History(filter)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

// command runs a single command posted as a control message.
func (s *Server) command(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid message: "+err.Error())
		return
	}

	reply, err := s.dispatch(r.Context(), msg)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, err.Error())
		return
	}
	if reply == nil {
		WriteJSON(w, http.StatusAccepted, map[string]string{"type": msg.Type})
		return
	}
	WriteJSON(w, http.StatusOK, reply)
}
