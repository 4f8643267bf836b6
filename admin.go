/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/subtle"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

const (
	adminCookieName   = "scoreboard_admin"
	adminCookieMaxAge = 10 * 365 * 24 * 60 * 60
)

// adminGate is a convenience lock for a party screen, not a credential
// system. Unlocking hands the browser a random token that stays valid until
// that browser locks again or the server restarts.
type adminGate struct {
	mu     sync.Mutex
	tokens map[string]bool
}

func newAdminGate() *adminGate {
	return &adminGate{tokens: make(map[string]bool)}
}

func (g *adminGate) grant() string {
	token := uuid.NewString()

	g.mu.Lock()
	g.tokens[token] = true
	g.mu.Unlock()

	return token
}

func (g *adminGate) revoke(token string) {
	g.mu.Lock()
	delete(g.tokens, token)
	g.mu.Unlock()
}

func (g *adminGate) isAdmin(r *http.Request) bool {
	c, err := r.Cookie(adminCookieName)
	if err != nil || c.Value == "" {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	return g.tokens[c.Value]
}

func (g *adminGate) require(cfg *Config, errs chan<- error, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if !g.isAdmin(r) {
			writeError(cfg, w, r, errs, ErrNotAdmin)
			return
		}

		next(w, r, p)
	}
}

func (g *adminGate) serveUnlock(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req struct {
			Password string `json:"password"`
		}
		if !readJSON(cfg, w, r, errs, &req) {
			return
		}

		if subtle.ConstantTimeCompare([]byte(req.Password), []byte(cfg.adminPassword)) != 1 {
			logf(cfg, "ADMIN: Rejected unlock from %s", realIP(r))
			writeError(cfg, w, r, errs, ErrBadPassword)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     adminCookieName,
			Value:    g.grant(),
			Path:     "/",
			MaxAge:   adminCookieMaxAge,
			HttpOnly: true,
			Secure:   cfg.scheme() == "https",
			SameSite: http.SameSiteStrictMode,
		})

		logf(cfg, "ADMIN: Unlocked by %s", realIP(r))

		writeJSON(cfg, w, errs, http.StatusOK, okResponse)
	}
}

func (g *adminGate) serveLock(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if c, err := r.Cookie(adminCookieName); err == nil {
			g.revoke(c.Value)
		}

		http.SetCookie(w, &http.Cookie{
			Name:     adminCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})

		logf(cfg, "ADMIN: Locked by %s", realIP(r))

		writeJSON(cfg, w, errs, http.StatusOK, okResponse)
	}
}
