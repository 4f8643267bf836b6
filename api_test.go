/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSessionID = "6f1c2a8e-3b5d-4e7f-9a0b-1c2d3e4f5a6b"

type testServer struct {
	t     *testing.T
	token string
	mux   *httprouter.Router
	sb    *Scoreboard
	store *failingStore
	hub   *Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	sb, store := newTestScoreboard(t)

	cfg := &Config{adminPassword: "1456", title: "Test Party"}

	hub := newHub()
	go hub.run(t.Context(), cfg)
	sb.onChange = hub.notify

	errs := make(chan error, 16)

	ts := &testServer{
		t:     t,
		mux:   newRouter(cfg, sb, newSessionManager(t.Context(), 0), hub, errs),
		sb:    sb,
		store: store,
		hub:   hub,
	}

	rec := ts.do(false, http.MethodPost, "/api/admin/unlock", `{"password":"1456"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	ts.token = cookies[0].Value

	return ts
}

func (ts *testServer) do(admin bool, method, path, body string) *httptest.ResponseRecorder {
	ts.t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: testSessionID})
	if admin {
		req.AddCookie(&http.Cookie{Name: adminCookieName, Value: ts.token})
	}

	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)

	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) View {
	t.Helper()

	var v View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())

	return v
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var e errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())

	return e.Error
}

func TestStateForViewer(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(false, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	v := decodeView(t, rec)
	assert.Equal(t, "Test Party", v.Title)
	assert.False(t, v.Admin)
	assert.Empty(t, v.Teams)
	assert.Len(t, v.Challenges, 22)
	assert.Len(t, v.Palette, 4)
	assert.Equal(t, "idle", v.Award.Step)
	for _, c := range v.Challenges {
		assert.False(t, c.Completed)
		assert.Equal(t, "transparent", c.Border)
	}
}

func TestMutationsRequireAdmin(t *testing.T) {
	ts := newTestServer(t)

	requests := []struct{ method, path, body string }{
		{http.MethodPost, "/api/teams", `{"members":"Alice"}`},
		{http.MethodDelete, "/api/teams/1", ""},
		{http.MethodPost, "/api/teams/1/points", `{"points":"5"}`},
		{http.MethodPost, "/api/challenges", `{"title":"x"}`},
		{http.MethodDelete, "/api/challenges/1", ""},
		{http.MethodPost, "/api/award/challenge", `{"id":1}`},
		{http.MethodPost, "/api/award/team", `{"id":1}`},
		{http.MethodPost, "/api/award/back", ""},
		{http.MethodPost, "/api/award/cancel", ""},
		{http.MethodPost, "/api/award/commit", `{"points":"1"}`},
		{http.MethodPost, "/api/reset", ""},
	}

	for _, r := range requests {
		rec := ts.do(false, r.method, r.path, r.body)
		assert.Equal(t, http.StatusForbidden, rec.Code, r.path)
		assert.Equal(t, ErrNotAdmin.Error(), decodeError(t, rec), r.path)
	}

	assert.Empty(t, ts.sb.Teams())
	assert.Len(t, ts.sb.Challenges(), 22)
}

func TestAdminUnlockAndLock(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(false, http.MethodPost, "/api/admin/unlock", `{"password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "incorrect password", decodeError(t, rec))
	assert.Empty(t, rec.Result().Cookies())

	rec = ts.do(false, http.MethodPost, "/api/admin/unlock", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(false, http.MethodPost, "/api/admin/unlock", `{"password":"1456"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, adminCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.NotEqual(t, ts.token, cookies[0].Value, "each unlock gets its own token")

	v := decodeView(t, ts.do(true, http.MethodGet, "/api/state", ""))
	assert.True(t, v.Admin)

	rec = ts.do(true, http.MethodPost, "/api/admin/lock", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cookies = rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)

	// A locked token stays locked even if the browser keeps sending it.
	v = decodeView(t, ts.do(true, http.MethodGet, "/api/state", ""))
	assert.False(t, v.Admin)
	assert.Equal(t, http.StatusForbidden, ts.do(true, http.MethodPost, "/api/teams", `{"members":"Alice"}`).Code)
}

func TestAdminCookieMustBeIssued(t *testing.T) {
	ts := newTestServer(t)

	for _, forged := range []string{"true", "", testSessionID} {
		req := httptest.NewRequest(http.MethodPost, "/api/teams", strings.NewReader(`{"members":"Mallory"}`))
		req.AddCookie(&http.Cookie{Name: adminCookieName, Value: forged})

		rec := httptest.NewRecorder()
		ts.mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code, forged)
	}

	assert.Empty(t, ts.sb.Teams())
}

func TestTeamAndChallengeEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(true, http.MethodPost, "/api/teams", `{"members":"alice, bob","color":"#FF4757"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	v := decodeView(t, rec)
	require.Len(t, v.Teams, 1)
	assert.Equal(t, "A, B", v.Teams[0].Initials)
	assert.Equal(t, "#FF4757", v.Teams[0].Color)
	assert.Equal(t, []PaletteColor{
		{Color: "#FFD700"},
		{Color: "#FF4757", Used: true},
		{Color: "#3B82F6"},
		{Color: "#10B981"},
	}, v.Palette)

	rec = ts.do(true, http.MethodPost, "/api/teams", `{"members":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrEmptyMembers.Error(), decodeError(t, rec))

	rec = ts.do(true, http.MethodPost, "/api/challenges", `{"title":"Limbo","description":"How low"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	v = decodeView(t, rec)
	require.Len(t, v.Challenges, 23)
	limbo := v.Challenges[22]
	assert.Equal(t, "Limbo", limbo.Title)

	rec = ts.do(true, http.MethodPost, "/api/challenges", `{"title":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(true, http.MethodDelete, "/api/challenges/"+strconv.FormatInt(limbo.ID, 10), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeView(t, rec).Challenges, 22)

	rec = ts.do(true, http.MethodDelete, "/api/challenges/"+strconv.FormatInt(limbo.ID, 10), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	teamPath := "/api/teams/" + strconv.FormatInt(v.Teams[0].ID, 10)

	rec = ts.do(true, http.MethodPost, teamPath+"/points", `{"points":"5","subtract":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	v = decodeView(t, rec)
	assert.Equal(t, -5, v.Teams[0].Score)
	assert.Equal(t, manualAdjustmentLabel, v.Teams[0].History[0].Challenge)

	rec = ts.do(true, http.MethodPost, teamPath+"/points", `{"points":12}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, decodeView(t, rec).Teams[0].Score)

	rec = ts.do(true, http.MethodPost, teamPath+"/points", `{"points":"lots"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "please enter a valid number of points", decodeError(t, rec))

	rec = ts.do(true, http.MethodDelete, "/api/teams/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(true, http.MethodDelete, teamPath, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeView(t, rec).Teams)

	rec = ts.do(true, http.MethodDelete, teamPath, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAwardEndpoints(t *testing.T) {
	ts := newTestServer(t)

	challengeID := ts.sb.Challenges()[0].ID
	idBody := func(id int64) string { return `{"id":` + strconv.FormatInt(id, 10) + `}` }

	rec := ts.do(true, http.MethodPost, "/api/award/challenge", idBody(challengeID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "please add teams first", decodeError(t, rec))

	v := decodeView(t, ts.do(true, http.MethodPost, "/api/teams", `{"members":"Alice","color":"#FFD700"}`))
	teamID := v.Teams[0].ID

	rec = ts.do(true, http.MethodPost, "/api/award/commit", `{"points":"5"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(true, http.MethodPost, "/api/award/challenge", idBody(challengeID))
	require.Equal(t, http.StatusOK, rec.Code)
	v = decodeView(t, rec)
	assert.Equal(t, "challenge_selected", v.Award.Step)
	assert.Equal(t, challengeID, v.Award.ChallengeID)
	assert.NotEmpty(t, v.Award.ChallengeTitle)

	// Viewers never see the admin's dialog.
	assert.Equal(t, "idle", decodeView(t, ts.do(false, http.MethodGet, "/api/state", "")).Award.Step)

	rec = ts.do(true, http.MethodPost, "/api/award/team", idBody(teamID))
	require.Equal(t, http.StatusOK, rec.Code)
	v = decodeView(t, rec)
	assert.Equal(t, "team_selected", v.Award.Step)
	assert.Equal(t, "Alice", v.Award.TeamMembers)

	rec = ts.do(true, http.MethodPost, "/api/award/back", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "challenge_selected", decodeView(t, rec).Award.Step)

	require.Equal(t, http.StatusOK, ts.do(true, http.MethodPost, "/api/award/team", idBody(teamID)).Code)

	rec = ts.do(true, http.MethodPost, "/api/award/commit", `{"points":"-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "team_selected", decodeView(t, ts.do(true, http.MethodGet, "/api/state", "")).Award.Step)

	rec = ts.do(true, http.MethodPost, "/api/award/commit", `{"points":"10"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	v = decodeView(t, rec)
	assert.Equal(t, "idle", v.Award.Step)
	assert.Equal(t, 10, v.Teams[0].Score)
	assert.True(t, v.Challenges[0].Completed)
	assert.Equal(t, "#FFD700", v.Challenges[0].Border)
	require.Len(t, v.Challenges[0].CompletedBy, 1)
	assert.Equal(t, "A", v.Challenges[0].CompletedBy[0].Initials)

	require.Equal(t, http.StatusOK, ts.do(true, http.MethodPost, "/api/award/challenge", idBody(challengeID)).Code)
	rec = ts.do(true, http.MethodPost, "/api/award/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "idle", decodeView(t, rec).Award.Step)
}

func TestStoreFailureResponse(t *testing.T) {
	ts := newTestServer(t)

	ts.store.fail["InsertTeam"] = true

	rec := ts.do(true, http.MethodPost, "/api/teams", `{"members":"Alice"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, ErrStore.Error(), decodeError(t, rec))
	assert.NotContains(t, rec.Body.String(), "boom")
	assert.Empty(t, ts.sb.Teams())
}

func TestResetEndpoint(t *testing.T) {
	ts := newTestServer(t)

	ts.do(true, http.MethodPost, "/api/teams", `{"members":"Alice"}`)
	ts.do(true, http.MethodPost, "/api/challenges", `{"title":"Extra"}`)

	rec := ts.do(true, http.MethodPost, "/api/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)

	v := decodeView(t, rec)
	assert.Empty(t, v.Teams)
	assert.Len(t, v.Challenges, 22)
}

func TestStaticPages(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(false, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<title>Test Party</title>")
	assert.Contains(t, rec.Body.String(), "assets/app.js?v="+releaseVersion)
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))

	rec = ts.do(false, http.MethodGet, "/assets/app.js", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/javascript; charset=utf-8", rec.Header().Get("Content-Type"))

	rec = ts.do(false, http.MethodGet, "/assets/app.css", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/css; charset=utf-8", rec.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusNotFound, ts.do(false, http.MethodGet, "/assets/missing.js", "").Code)

	rec = ts.do(false, http.MethodGet, "/favicons/favicon.svg", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))

	rec = ts.do(false, http.MethodGet, "/healthz", "")
	assert.Equal(t, "Ok\n", rec.Body.String())

	rec = ts.do(false, http.MethodGet, "/version", "")
	assert.Equal(t, "scoreboard v"+releaseVersion+"\n", rec.Body.String())

	rec = ts.do(false, http.MethodGet, "/robots.txt", "")
	assert.Contains(t, rec.Body.String(), "Disallow: /api/")

	rec = ts.do(false, http.MethodGet, "/qr", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestBoardURL(t *testing.T) {
	cfg := &Config{prefix: "/party"}

	req := httptest.NewRequest(http.MethodGet, "http://scores.example.com/party/qr", nil)
	assert.Equal(t, "http://scores.example.com/party/", boardURL(cfg, req))

	req.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://scores.example.com/party/", boardURL(cfg, req))

	req.Header.Set("X-Forwarded-Proto", "gopher")
	assert.Equal(t, "http://scores.example.com/party/", boardURL(cfg, req))
}

func TestLiveRefresh(t *testing.T) {
	ts := newTestServer(t)

	srv := httptest.NewServer(ts.mux)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	// The client registers with the hub after the handshake, so keep
	// mutating until a refresh arrives.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ts.hub.notify()
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg RefreshMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "refresh", msg.Type)
}

func TestHubStopsOnCancel(t *testing.T) {
	hub := newHub()

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.run(ctx, &Config{})
		close(stopped)
	}()

	client := &Client{send: make(chan any, 1)}
	hub.register <- client

	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("hub still running after cancel")
	}

	_, open := <-client.send
	assert.False(t, open)

	// Late notifications must not block once the hub is gone.
	assert.NotPanics(t, hub.notify)
}
