/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
)

const maxBodySize = 64 << 10

var okResponse = map[string]bool{"ok": true}

type errorResponse struct {
	Error string `json:"error"`
}

// pointsInput accepts points typed by the admin either as a JSON number or
// as the raw text of the input field; parsing happens in the scoreboard.
type pointsInput string

func (p *pointsInput) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*p = pointsInput(s)
		return nil
	}

	*p = pointsInput(strings.TrimSpace(string(b)))

	return nil
}

func writeJSON(cfg *Config, w http.ResponseWriter, errs chan<- error, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		errs <- err
	}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrEmptyTitle),
		errors.Is(err, ErrEmptyMembers),
		errors.Is(err, ErrInvalidPoints),
		errors.Is(err, ErrNoTeams),
		errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrBadPassword):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotAdmin):
		return http.StatusForbidden
	case errors.Is(err, ErrTeamNotFound), errors.Is(err, ErrChallengeNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAwardState):
		return http.StatusConflict
	case errors.Is(err, ErrStore):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports rejected input back to the admin verbatim. Store and
// internal failures are logged and answered with a generic message.
func writeError(cfg *Config, w http.ResponseWriter, r *http.Request, errs chan<- error, err error) {
	status := errorStatus(err)

	msg := err.Error()
	switch status {
	case http.StatusBadGateway:
		logErr(cfg, "STORE: Write failed", err, "path", r.URL.Path, "remote", realIP(r))
		msg = ErrStore.Error()
	case http.StatusInternalServerError:
		logErr(cfg, "SERVE: Request failed", err, "path", r.URL.Path, "remote", realIP(r))
		msg = http.StatusText(status)
	}

	writeJSON(cfg, w, errs, status, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		return ErrBadRequest
	}

	return nil
}

func readJSON(cfg *Config, w http.ResponseWriter, r *http.Request, errs chan<- error, v any) bool {
	if err := decodeBody(w, r, v); err != nil {
		writeError(cfg, w, r, errs, err)
		return false
	}

	return true
}

func idParam(p httprouter.Params) (int64, error) {
	id, err := strconv.ParseInt(p.ByName("id"), 10, 64)
	if err != nil {
		return 0, ErrBadRequest
	}

	return id, nil
}

// opContext detaches store work from the request, so a browser that goes
// away halfway through an award does not cancel its second write.
func opContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

type api struct {
	cfg  *Config
	sb   *Scoreboard
	sm   *sessionManager
	gate *adminGate
	errs chan<- error
}

func (a *api) respondView(w http.ResponseWriter, r *http.Request, status int) {
	a.respondSessionView(w, r, getOrSetSessionID(w, r), status)
}

func (a *api) respondSessionView(w http.ResponseWriter, r *http.Request, sid string, status int) {
	writeJSON(a.cfg, w, a.errs, status, buildView(a.cfg, a.sb, a.gate.isAdmin(r), a.sm.peek(sid)))
}

func (a *api) serveState() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		a.respondView(w, r, http.StatusOK)
	}
}

func (a *api) serveAddChallenge() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		}
		if !readJSON(a.cfg, w, r, a.errs, &req) {
			return
		}

		if _, err := a.sb.AddChallenge(opContext(r), req.Title, req.Description); err != nil {
			writeError(a.cfg, w, r, a.errs, err)
			return
		}

		a.respondView(w, r, http.StatusCreated)
	}
}

func (a *api) serveDeleteChallenge() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		id, err := idParam(p)
		if err == nil {
			err = a.sb.DeleteChallenge(opContext(r), id)
		}
		if err != nil {
			writeError(a.cfg, w, r, a.errs, err)
			return
		}

		a.respondView(w, r, http.StatusOK)
	}
}

func (a *api) serveAddTeam() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req struct {
			Members string `json:"members"`
			Color   string `json:"color"`
		}
		if !readJSON(a.cfg, w, r, a.errs, &req) {
			return
		}

		if _, err := a.sb.AddTeam(opContext(r), req.Members, req.Color); err != nil {
			writeError(a.cfg, w, r, a.errs, err)
			return
		}

		a.respondView(w, r, http.StatusCreated)
	}
}

func (a *api) serveDeleteTeam() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		id, err := idParam(p)
		if err == nil {
			err = a.sb.DeleteTeam(opContext(r), id)
		}
		if err != nil {
			writeError(a.cfg, w, r, a.errs, err)
			return
		}

		a.respondView(w, r, http.StatusOK)
	}
}

func (a *api) serveAdjustPoints() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		id, err := idParam(p)
		if err != nil {
			writeError(a.cfg, w, r, a.errs, err)
			return
		}

		var req struct {
			Points   pointsInput `json:"points"`
			Subtract bool        `json:"subtract"`
		}
		if !readJSON(a.cfg, w, r, a.errs, &req) {
			return
		}

		if err := a.sb.AdjustPoints(opContext(r), id, string(req.Points), req.Subtract); err != nil {
			writeError(a.cfg, w, r, a.errs, err)
			return
		}

		a.respondView(w, r, http.StatusOK)
	}
}

// serveAward wraps one step of the caller's award dialog.
func (a *api) serveAward(step func(w http.ResponseWriter, r *http.Request, d *AwardDialog) error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		sid := getOrSetSessionID(w, r)
		s := a.sm.get(sid)

		s.mu.Lock()
		err := step(w, r, &s.dialog)
		s.mu.Unlock()

		if err != nil {
			writeError(a.cfg, w, r, a.errs, err)
			return
		}

		a.respondSessionView(w, r, sid, http.StatusOK)
	}
}

func (a *api) serveAwardChallenge() httprouter.Handle {
	return a.serveAward(func(w http.ResponseWriter, r *http.Request, d *AwardDialog) error {
		var req struct {
			ID int64 `json:"id"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			return err
		}

		return d.SelectChallenge(a.sb, req.ID)
	})
}

func (a *api) serveAwardTeam() httprouter.Handle {
	return a.serveAward(func(w http.ResponseWriter, r *http.Request, d *AwardDialog) error {
		var req struct {
			ID int64 `json:"id"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			return err
		}

		return d.SelectTeam(a.sb, req.ID)
	})
}

func (a *api) serveAwardBack() httprouter.Handle {
	return a.serveAward(func(_ http.ResponseWriter, _ *http.Request, d *AwardDialog) error {
		return d.Back()
	})
}

func (a *api) serveAwardCancel() httprouter.Handle {
	return a.serveAward(func(_ http.ResponseWriter, _ *http.Request, d *AwardDialog) error {
		d.Cancel()
		return nil
	})
}

func (a *api) serveAwardCommit() httprouter.Handle {
	return a.serveAward(func(w http.ResponseWriter, r *http.Request, d *AwardDialog) error {
		var req struct {
			Points pointsInput `json:"points"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			return err
		}

		return d.Commit(opContext(r), a.sb, string(req.Points))
	})
}

func (a *api) serveReset() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if err := a.sb.Reset(opContext(r)); err != nil {
			writeError(a.cfg, w, r, a.errs, err)
			return
		}

		logf(a.cfg, "ADMIN: Reset requested by %s", realIP(r))

		a.respondView(w, r, http.StatusOK)
	}
}

func registerAPI(cfg *Config, mux *httprouter.Router, sb *Scoreboard, sm *sessionManager, errs chan<- error) {
	gate := newAdminGate()
	a := &api{cfg: cfg, sb: sb, sm: sm, gate: gate, errs: errs}

	admin := func(h httprouter.Handle) httprouter.Handle {
		return gate.require(cfg, errs, h)
	}

	mux.GET(cfg.prefix+"/api/state", a.serveState())

	mux.POST(cfg.prefix+"/api/admin/unlock", gate.serveUnlock(cfg, errs))
	mux.POST(cfg.prefix+"/api/admin/lock", gate.serveLock(cfg, errs))

	mux.POST(cfg.prefix+"/api/challenges", admin(a.serveAddChallenge()))
	mux.DELETE(cfg.prefix+"/api/challenges/:id", admin(a.serveDeleteChallenge()))

	mux.POST(cfg.prefix+"/api/teams", admin(a.serveAddTeam()))
	mux.DELETE(cfg.prefix+"/api/teams/:id", admin(a.serveDeleteTeam()))
	mux.POST(cfg.prefix+"/api/teams/:id/points", admin(a.serveAdjustPoints()))

	mux.POST(cfg.prefix+"/api/award/challenge", admin(a.serveAwardChallenge()))
	mux.POST(cfg.prefix+"/api/award/team", admin(a.serveAwardTeam()))
	mux.POST(cfg.prefix+"/api/award/back", admin(a.serveAwardBack()))
	mux.POST(cfg.prefix+"/api/award/cancel", admin(a.serveAwardCancel()))
	mux.POST(cfg.prefix+"/api/award/commit", admin(a.serveAwardCommit()))

	mux.POST(cfg.prefix+"/api/reset", admin(a.serveReset()))
}
