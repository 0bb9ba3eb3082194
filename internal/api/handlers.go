// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ManuGH/myth2dsv/internal/catalog"
	"github.com/ManuGH/myth2dsv/internal/encode"
	"github.com/ManuGH/myth2dsv/internal/events"
	xglog "github.com/ManuGH/myth2dsv/internal/log"
	"github.com/go-chi/chi/v5"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

type statusResponse struct {
	Host       string                    `json:"host"`
	Connected  bool                      `json:"connected"`
	Recordings int                       `json:"recordings"`
	LoadedAt   time.Time                 `json:"loaded_at,omitzero"`
	Encode     encode.Progress           `json:"encode"`
	Latest     map[events.Kind]eventView `json:"latest"`
}

type eventView struct {
	events.Event
	Message string `json:"message"`
}

func newEventView(e events.Event) eventView {
	return eventView{Event: e, Message: e.String()}
}

type recordingView struct {
	catalog.Recording
	DisplayTitle  string `json:"display_title"`
	DisplayStart  string `json:"display_start"`
	HumanSize     string `json:"human_size"`
	HumanDuration string `json:"human_duration"`
	Thumbnail     string `json:"thumbnail,omitempty"`
}

type refreshRequest struct {
	Host string `json:"host"`
}

type encodeResponse struct {
	Outcome  string          `json:"outcome"`
	Progress encode.Progress `json:"progress"`
}

type shutdownRequest struct {
	Confirm bool `json:"confirm"`
}

type shutdownResponse struct {
	Shutdown bool `json:"shutdown"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.ctl.Catalog()
	host := s.ctl.Host()
	resp := statusResponse{
		Host:       host,
		Connected:  host != "",
		Recordings: snap.Len(),
		Encode:     s.ctl.Progress(),
		Latest:     make(map[events.Kind]eventView),
	}
	if snap != nil {
		resp.LoadedAt = snap.LoadedAt
	}
	if s.events != nil {
		for k, e := range s.events.LatestAll() {
			resp.Latest[k] = newEventView(e)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRecordings(w http.ResponseWriter, _ *http.Request) {
	recs := s.ctl.Catalog().Recordings()
	cache := s.ctl.Cache()
	out := make([]recordingView, 0, len(recs))
	for _, r := range recs {
		v := recordingView{
			Recording:     r,
			DisplayTitle:  r.DisplayTitle(),
			DisplayStart:  r.DisplayStart(),
			HumanSize:     r.HumanSize(),
			HumanDuration: r.HumanDuration(),
		}
		if cache != nil && cache.Has(r.Filename) {
			v.Thumbnail = "/api/recordings/" + url.PathEscape(r.Filename) + "/thumbnail"
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	host := req.Host
	if host == "" {
		host = s.ctl.Host()
	}
	if host == "" && s.cfg.DefaultHost != nil {
		host = s.cfg.DefaultHost()
	}
	if host == "" {
		writeBadRequest(w, "no backend host given or configured")
		return
	}

	if err := s.ctl.Refresh(r.Context(), host); err != nil {
		xglog.FromContext(r.Context()).Warn().Err(err).Str(xglog.FieldHost, host).Msg("refresh failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"host":       host,
		"recordings": s.ctl.Catalog().Len(),
	})
}

func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	// The job outlives the request.
	ctx := context.WithoutCancel(r.Context())
	outcome, err := s.ctl.StartOrCancelEncode(ctx, filename)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, encodeResponse{
		Outcome:  outcome.String(),
		Progress: s.ctl.Progress(),
	})
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	cache := s.ctl.Cache()
	if cache == nil || !cache.Has(filename) {
		writeNotFound(w)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, cache.Path(filename))
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	var req shutdownRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	ok, err := s.ctl.RequestShutdown(r.Context(), func(context.Context) bool { return req.Confirm })
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusConflict, shutdownResponse{Shutdown: false})
		return
	}
	writeJSON(w, http.StatusOK, shutdownResponse{Shutdown: true})
	if s.cfg.OnShutdown != nil {
		go s.cfg.OnShutdown()
	}
}

// decodeBody decodes an optional JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
