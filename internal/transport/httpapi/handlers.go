package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"demoreel/internal/analysis"
	"demoreel/internal/demo"
	"demoreel/internal/jsonpath"
	"demoreel/internal/model"
	"demoreel/internal/protocol"
)

// dtraceResponse is what /v1/dtrace filters with ?path=.
type dtraceResponse struct {
	Summary protocol.RunSummary                 `json:"summary"`
	Header  protocol.Header                     `json:"header"`
	Roster  []model.PlayerIdentity              `json:"roster"`
	States  []model.WithTick[model.PlayerState] `json:"states"`
	Events  []model.WithTick[model.DamageEvent] `json:"events"`
	Bounds  []model.WithTick[model.WorldBounds] `json:"bounds"`
	Kills   []model.WithTick[model.Kill]        `json:"kills"`
	Traces  []model.DamageTrace                 `json:"traces"`
}

func (h *routerHandlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *routerHandlers) handleDtrace(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path, err := jsonpath.ParseOptional(q.Get("path"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rd, err := h.open(w, r)
	if err != nil {
		h.fail(w, err)
		return
	}
	defer rd.Close()

	cfg := h.cfg.Pipeline
	if src := strings.TrimSpace(q.Get("source")); src != "" {
		cfg.SourceIdentity = src
	}
	if cfg.Logger == nil {
		cfg.Logger = h.log
	}
	if h.cfg.Metrics != nil {
		cfg.Observer = h.cfg.Metrics
	}

	started := time.Now()
	res, err := analysis.Run(r.Context(), rd.Header(), rd, cfg, nil)
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.RunFinished(time.Since(started), err)
	}
	if err != nil {
		h.fail(w, err)
		return
	}

	out, _, err := jsonpath.Filter(path, dtraceResponse{
		Summary: res.Summary(),
		Header:  res.Header,
		Roster:  res.Roster,
		States:  res.States,
		Events:  res.Events,
		Bounds:  res.Bounds,
		Kills:   res.Kills,
		Traces:  res.Traces,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *routerHandlers) handleUnspool(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	expr := q.Get("path")
	if expr == "" {
		expr = h.cfg.UnspoolPath
	}
	path, err := jsonpath.ParseOptional(expr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	freq := h.cfg.UnspoolTickFreq
	if s := q.Get("tick_freq"); s != "" {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil || n == 0 {
			writeError(w, http.StatusBadRequest, "tick_freq must be a positive integer")
			return
		}
		freq = uint32(n)
	}

	rd, err := h.open(w, r)
	if err != nil {
		h.fail(w, err)
		return
	}
	defer rd.Close()

	out := make([]any, 0, 64)
	err = analysis.Unspool(r.Context(), rd, path, freq, func(v any) error {
		out = append(out, v)
		return nil
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *routerHandlers) open(w http.ResponseWriter, r *http.Request) (*demo.Reader, error) {
	var body io.Reader = r.Body
	if h.cfg.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	}
	return demo.Open(body, demo.WithValidator(h.cfg.Validator))
}

func (h *routerHandlers) fail(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		h.rejected("body_too_large")
		writeError(w, http.StatusRequestEntityTooLarge, "stream too large")
	case errors.Is(err, protocol.ErrPlayerInfo):
		h.rejected("decode")
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, demo.ErrDecode):
		h.rejected("decode")
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Warn("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *routerHandlers) rejected(reason string) {
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.Rejected(reason)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
