package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PaulBabatuyi/skillswap/internal/apperr"
	"github.com/PaulBabatuyi/skillswap/internal/auth"
	"github.com/PaulBabatuyi/skillswap/internal/config"
	"github.com/PaulBabatuyi/skillswap/internal/data"
	"github.com/PaulBabatuyi/skillswap/internal/data/datatest"
	"github.com/PaulBabatuyi/skillswap/internal/logging"
	"github.com/PaulBabatuyi/skillswap/internal/realtime"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const testPassword = "correct-horse"

type testAPI struct {
	srv    *httptest.Server
	server *Server
	store  *datatest.Store
	jwt    *auth.JWTManager
}

// newTestAPI serves the full router over an in-memory store.
func newTestAPI(t *testing.T, opts ...func(*serverDeps)) *testAPI {
	t.Helper()
	store := datatest.New()
	deps := serverDeps{
		store:    store,
		jwt:      auth.NewJWTManager("test-secret", time.Hour),
		presence: realtime.NewMemoryPresence(time.Minute),
		cfg: config.Config{
			HTTP:   config.HTTPConfig{AllowedOrigins: []string{"*"}},
			Limits: config.LimitsConfig{AuthPerMinute: 600, WSSendPerMinute: 600},
		},
	}
	for _, opt := range opts {
		opt(&deps)
	}
	s := newServer(deps)
	t.Cleanup(s.Close)

	srv := httptest.NewServer(s.routes())
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, server: s, store: store, jwt: deps.jwt}
}

// do sends body as JSON and decodes the response into out when non-nil.
func (a *testAPI) do(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode response (status %d): %v", method, path, resp.StatusCode, err)
		}
	}
	return resp.StatusCode
}

type account struct {
	ID    bson.ObjectID
	Hex   string
	Token string
}

func (a *testAPI) register(t *testing.T, name, email string) account {
	t.Helper()
	var out tokenResponse
	if code := a.do(t, http.MethodPost, "/auth/register", "",
		registerRequest{Name: name, Email: email, Password: testPassword}, &out); code != http.StatusCreated {
		t.Fatalf("register %s: status %d", email, code)
	}
	id, err := bson.ObjectIDFromHex(out.UserID)
	if err != nil {
		t.Fatalf("register %s: bad userId %q", email, out.UserID)
	}
	return account{ID: id, Hex: out.UserID, Token: out.Token}
}

// update rewrites a stored user, for flags the API never sets.
func (a *testAPI) update(t *testing.T, id bson.ObjectID, fn func(*data.User)) {
	t.Helper()
	u, err := a.store.GetUserByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	fn(u)
	a.store.PutUser(u)
}

func TestAuthRegisterAndLogin(t *testing.T) {
	api := newTestAPI(t)
	uma := api.register(t, "Uma", "uma@example.com")
	if uma.Token == "" {
		t.Fatalf("expected a token")
	}
	claims, err := api.jwt.VerifyToken(uma.Token)
	if err != nil || claims.UserID != uma.Hex {
		t.Fatalf("token does not identify the new user: %+v, %v", claims, err)
	}

	var body map[string]any
	if code := api.do(t, http.MethodPost, "/auth/register", "",
		registerRequest{Name: "Uma 2", Email: " UMA@example.com", Password: testPassword}, &body); code != http.StatusConflict {
		t.Fatalf("duplicate email: got %d, want 409", code)
	}

	rejects := []registerRequest{
		{Name: "", Email: "x@example.com", Password: testPassword},
		{Name: "X", Email: "not-an-email", Password: testPassword},
		{Name: "X", Email: "x@example.com", Password: "short"},
	}
	for _, in := range rejects {
		if code := api.do(t, http.MethodPost, "/auth/register", "", in, nil); code != http.StatusBadRequest {
			t.Errorf("register %+v: got %d, want 400", in, code)
		}
	}

	var tok tokenResponse
	if code := api.do(t, http.MethodPost, "/auth/login", "",
		loginRequest{Email: "Uma@Example.com", Password: testPassword}, &tok); code != http.StatusOK {
		t.Fatalf("login: got %d", code)
	}
	if tok.UserID != uma.Hex || tok.ExpiresAt.Before(time.Now()) {
		t.Fatalf("unexpected login response: %+v", tok)
	}

	if code := api.do(t, http.MethodPost, "/auth/login", "",
		loginRequest{Email: "uma@example.com", Password: "wrong-password"}, nil); code != http.StatusUnauthorized {
		t.Fatalf("wrong password: got %d, want 401", code)
	}
	if code := api.do(t, http.MethodPost, "/auth/login", "",
		loginRequest{Email: "nobody@example.com", Password: testPassword}, nil); code != http.StatusUnauthorized {
		t.Fatalf("unknown email: got %d, want 401", code)
	}

	api.update(t, uma.ID, func(u *data.User) { u.IsBanned = true })
	if code := api.do(t, http.MethodPost, "/auth/login", "",
		loginRequest{Email: "uma@example.com", Password: testPassword}, nil); code != http.StatusForbidden {
		t.Fatalf("banned login: got %d, want 403", code)
	}
}

func TestAuthRateLimited(t *testing.T) {
	api := newTestAPI(t, func(d *serverDeps) { d.cfg.Limits.AuthPerMinute = 1 })

	login := loginRequest{Email: "someone@example.com", Password: "whatever"}
	for i := 0; i < 3; i++ {
		if code := api.do(t, http.MethodPost, "/auth/login", "", login, nil); code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: got %d, want 401", i+1, code)
		}
	}
	if code := api.do(t, http.MethodPost, "/auth/login", "", login, nil); code != http.StatusTooManyRequests {
		t.Fatalf("expected the burst to be exhausted, got %d", code)
	}

	// a different account has its own bucket
	other := loginRequest{Email: "other@example.com", Password: "whatever"}
	if code := api.do(t, http.MethodPost, "/auth/login", "", other, nil); code != http.StatusUnauthorized {
		t.Fatalf("other account: got %d, want 401", code)
	}
}

func TestRoutesRequireOwnAccount(t *testing.T) {
	api := newTestAPI(t)
	uma := api.register(t, "Uma", "uma@example.com")
	vic := api.register(t, "Vic", "vic@example.com")

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"no token", http.MethodGet, "/conversations/" + uma.Hex, "", nil, http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/conversations/" + uma.Hex, "garbage", nil, http.StatusUnauthorized},
		{"other user's conversations", http.MethodGet, "/conversations/" + uma.Hex, vic.Token, nil, http.StatusForbidden},
		{"other user's candidates", http.MethodGet, "/matches/" + uma.Hex, vic.Token, nil, http.StatusForbidden},
		{"other user's history", http.MethodGet, "/matches/" + uma.Hex + "/all", vic.Token, nil, http.StatusForbidden},
		{"other user's thread", http.MethodGet, "/messages/" + uma.Hex + "/" + vic.Hex, vic.Token, nil, http.StatusForbidden},
		{"other user's notifications", http.MethodGet, "/notifications/" + uma.Hex, vic.Token, nil, http.StatusForbidden},
		{"other user's ratable matches", http.MethodGet, "/reviews/ratable-matches/" + uma.Hex, vic.Token, nil, http.StatusForbidden},
		{"act as another user", http.MethodPost, "/matches/action", vic.Token,
			matchActionRequest{UserID: uma.Hex, Action: "initiate", SkillID: bson.NewObjectID().Hex()}, http.StatusForbidden},
		{"malformed id", http.MethodGet, "/conversations/not-an-id", vic.Token, nil, http.StatusBadRequest},
		{"unknown action", http.MethodPost, "/matches/action", vic.Token,
			matchActionRequest{Action: "cancel"}, http.StatusBadRequest},
		{"accept without matchId", http.MethodPost, "/matches/action", vic.Token,
			matchActionRequest{Action: "accept"}, http.StatusBadRequest},
		{"catalog is public", http.MethodGet, "/skills", "", nil, http.StatusOK},
		{"reviews need a token", http.MethodGet, "/reviews/" + uma.Hex, "", nil, http.StatusUnauthorized},
		{"unknown route", http.MethodGet, "/nope", "", nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if code := api.do(t, tc.method, tc.path, tc.token, tc.body, nil); code != tc.want {
				t.Fatalf("got %d, want %d", code, tc.want)
			}
		})
	}
}

func TestWriteErrorMapping(t *testing.T) {
	s := &Server{logger: logging.Discard()}
	cases := []struct {
		err     error
		status  int
		message string
		blocked bool
	}{
		{apperr.NotFound("Match not found."), http.StatusNotFound, "Match not found.", false},
		{apperr.Conflict("Already processed."), http.StatusConflict, "Already processed.", false},
		{apperr.Forbidden("Nope."), http.StatusForbidden, "Nope.", false},
		{apperr.Validation("Rating must be between 1 and 5."), http.StatusBadRequest, "Rating must be between 1 and 5.", false},
		{apperr.Unauthorized("Invalid email or password."), http.StatusUnauthorized, "Invalid email or password.", false},
		{apperr.Blocked("You cannot send messages to this user."), http.StatusForbidden, "You cannot send messages to this user.", true},
		{fmt.Errorf("wrapped: %w", apperr.Conflict("Taken.")), http.StatusConflict, "Taken.", false},
		{errors.New("mongo: connection refused on 10.0.0.3"), http.StatusInternalServerError, "internal server error", false},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		s.writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)

		var body map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("%v: decode: %v", tc.err, err)
		}
		if rec.Code != tc.status || body["message"] != tc.message {
			t.Errorf("%v: got %d %v, want %d %q", tc.err, rec.Code, body["message"], tc.status, tc.message)
		}
		if blocked, _ := body["blocked"].(bool); blocked != tc.blocked {
			t.Errorf("%v: blocked=%v, want %v", tc.err, blocked, tc.blocked)
		}
	}
}

type sendResponse struct {
	Message string        `json:"message"`
	Blocked bool          `json:"blocked"`
	Data    *data.Message `json:"data"`
}

func TestMessagingEndpoints(t *testing.T) {
	api := newTestAPI(t)
	uma := api.register(t, "Uma", "uma@example.com")
	vic := api.register(t, "Vic", "vic@example.com")

	send := func(token string, in realtime.SendMessage) (int, sendResponse) {
		var out sendResponse
		code := api.do(t, http.MethodPost, "/messages/send", token, in, &out)
		return code, out
	}

	code, out := send(uma.Token, realtime.SendMessage{ReceiverID: vic.ID, Message: "<b>hi</b>"})
	if code != http.StatusCreated || out.Message != "Message sent." || out.Data == nil {
		t.Fatalf("send: %d %+v", code, out)
	}
	if out.Data.Body != "&lt;b&gt;hi&lt;/b&gt;" || out.Data.SenderID != uma.ID {
		t.Fatalf("unexpected stored message: %+v", out.Data)
	}
	// vic had no socket, so the message left a notification
	if n := api.store.Notifications(vic.ID); len(n) != 1 || n[0].Type != data.NotifyNewMessage {
		t.Fatalf("expected one new_message notification, got %+v", n)
	}

	if code, _ := send(uma.Token, realtime.SendMessage{SenderID: vic.ID, ReceiverID: uma.ID, Message: "spoof"}); code != http.StatusForbidden {
		t.Fatalf("spoofed sender: got %d, want 403", code)
	}
	if code, _ := send(uma.Token, realtime.SendMessage{Message: "to nobody"}); code != http.StatusBadRequest {
		t.Fatalf("missing receiver: got %d, want 400", code)
	}

	var thread []data.Message
	if code := api.do(t, http.MethodGet, "/messages/"+vic.Hex+"/"+uma.Hex, vic.Token, nil, &thread); code != http.StatusOK || len(thread) != 1 {
		t.Fatalf("history: %d, %d messages", code, len(thread))
	}
	if code := api.do(t, http.MethodGet, "/messages/"+vic.Hex+"/"+uma.Hex+"/all?limit=10", vic.Token, nil, &thread); code != http.StatusOK || len(thread) != 1 {
		t.Fatalf("history alias: %d, %d messages", code, len(thread))
	}

	var blocked map[string]any
	if code := api.do(t, http.MethodPost, "/messages/block/"+vic.Hex+"/"+uma.Hex, vic.Token, nil, &blocked); code != http.StatusOK || blocked["blocked"] != true {
		t.Fatalf("block: %d %v", code, blocked)
	}
	var st struct {
		IBlockedThem  bool `json:"iBlockedThem"`
		TheyBlockedMe bool `json:"theyBlockedMe"`
		CanMessage    bool `json:"canMessage"`
	}
	if code := api.do(t, http.MethodGet, "/messages/block-status/"+uma.Hex+"/"+vic.Hex, uma.Token, nil, &st); code != http.StatusOK {
		t.Fatalf("block-status: %d", code)
	}
	if st.IBlockedThem || !st.TheyBlockedMe || st.CanMessage {
		t.Fatalf("unexpected block status: %+v", st)
	}

	code, out = send(uma.Token, realtime.SendMessage{ReceiverID: vic.ID, Message: "still there?"})
	if code != http.StatusForbidden || !out.Blocked {
		t.Fatalf("blocked send: %d %+v", code, out)
	}
	// the sender who blocked is refused as well
	code, out = send(vic.Token, realtime.SendMessage{ReceiverID: uma.ID, Message: "hi"})
	if code != http.StatusForbidden || !out.Blocked {
		t.Fatalf("blocker send: %d %+v", code, out)
	}
	if n := len(api.store.Messages()); n != 1 {
		t.Fatalf("blocked sends persisted messages: %d", n)
	}

	if code := api.do(t, http.MethodPost, "/messages/unblock/"+vic.Hex+"/"+uma.Hex, vic.Token, nil, &blocked); code != http.StatusOK || blocked["blocked"] != false {
		t.Fatalf("unblock: %d %v", code, blocked)
	}
	if code, _ := send(uma.Token, realtime.SendMessage{ReceiverID: vic.ID, Message: "back again"}); code != http.StatusCreated {
		t.Fatalf("send after unblock: %d", code)
	}

	var marked struct {
		Success     bool  `json:"success"`
		MarkedCount int64 `json:"markedCount"`
	}
	if code := api.do(t, http.MethodPost, "/messages/mark-read/"+vic.Hex+"/"+uma.Hex, vic.Token, nil, &marked); code != http.StatusOK {
		t.Fatalf("mark-read: %d", code)
	}
	if !marked.Success || marked.MarkedCount != 2 {
		t.Fatalf("unexpected mark-read result: %+v", marked)
	}
}

func TestSkillEndpoints(t *testing.T) {
	api := newTestAPI(t)
	uma := api.register(t, "Uma", "uma@example.com")
	vic := api.register(t, "Vic", "vic@example.com")

	var skill data.Skill
	code := api.do(t, http.MethodPost, "/skills", uma.Token, map[string]string{
		"type": "offer", "skillName": " Guitar ", "proofUrl": "https://example.com/cert.png",
	}, &skill)
	if code != http.StatusCreated {
		t.Fatalf("create: %d", code)
	}
	if skill.Name != "Guitar" || skill.VerificationStatus != data.VerificationPending ||
		skill.Category != "other" || skill.ExperienceLevel != "intermediate" {
		t.Fatalf("unexpected skill: %+v", skill)
	}
	if code := api.do(t, http.MethodPost, "/skills", "", map[string]string{"type": "offer", "skillName": "Drums"}, nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous create: got %d, want 401", code)
	}
	if code := api.do(t, http.MethodPost, "/skills", uma.Token, map[string]string{"type": "trade", "skillName": "Drums"}, nil); code != http.StatusBadRequest {
		t.Fatalf("bad type: got %d, want 400", code)
	}

	var list []data.Skill
	if code := api.do(t, http.MethodGet, "/skills/user/"+uma.Hex, "", nil, &list); code != http.StatusOK || len(list) != 1 {
		t.Fatalf("list by user: %d, %d skills", code, len(list))
	}

	path := "/skills/" + skill.ID.Hex()
	edit := map[string]string{"type": "offer", "skillName": "Guitar", "description": "Fingerstyle"}
	if code := api.do(t, http.MethodPut, path, vic.Token, edit, nil); code != http.StatusForbidden {
		t.Fatalf("edit by non-owner: got %d, want 403", code)
	}
	if code := api.do(t, http.MethodPut, path, uma.Token, edit, &skill); code != http.StatusOK || skill.Description != "Fingerstyle" {
		t.Fatalf("edit: %d %+v", code, skill)
	}

	verify := "/admin/skills/" + skill.ID.Hex() + "/verification"
	if code := api.do(t, http.MethodPost, verify, vic.Token, verifySkillRequest{Status: data.VerificationVerified}, nil); code != http.StatusForbidden {
		t.Fatalf("verify by non-admin: got %d, want 403", code)
	}
	api.update(t, vic.ID, func(u *data.User) { u.IsAdmin = true })
	if code := api.do(t, http.MethodPost, verify, vic.Token, verifySkillRequest{Status: "maybe"}, nil); code != http.StatusBadRequest {
		t.Fatalf("bad status: got %d, want 400", code)
	}
	if code := api.do(t, http.MethodPost, verify, vic.Token, verifySkillRequest{Status: data.VerificationVerified}, &skill); code != http.StatusOK {
		t.Fatalf("verify: %d", code)
	}
	if skill.VerificationStatus != data.VerificationVerified || skill.VerifiedBy == nil || *skill.VerifiedBy != vic.ID {
		t.Fatalf("unexpected verified skill: %+v", skill)
	}
	if n := api.store.Notifications(uma.ID); len(n) != 1 || n[0].Type != data.NotifySkillVerified {
		t.Fatalf("owner should be told about the verification, got %+v", n)
	}

	// an admin may delete someone else's posting
	if code := api.do(t, http.MethodDelete, path, vic.Token, nil, nil); code != http.StatusOK {
		t.Fatalf("admin delete: %d", code)
	}
	if code := api.do(t, http.MethodGet, "/skills", "", nil, &list); code != http.StatusOK || len(list) != 0 {
		t.Fatalf("catalog after delete: %d, %d skills", code, len(list))
	}
	if code := api.do(t, http.MethodDelete, path, uma.Token, nil, nil); code != http.StatusNotFound {
		t.Fatalf("second delete: got %d, want 404", code)
	}
}

func TestNotificationEndpoints(t *testing.T) {
	api := newTestAPI(t)
	uma := api.register(t, "Uma", "uma@example.com")
	vic := api.register(t, "Vic", "vic@example.com")

	for _, body := range []string{"one", "two"} {
		if code := api.do(t, http.MethodPost, "/messages/send", uma.Token,
			realtime.SendMessage{ReceiverID: vic.ID, Message: body}, nil); code != http.StatusCreated {
			t.Fatalf("send: %d", code)
		}
	}

	var list []data.Notification
	if code := api.do(t, http.MethodGet, "/notifications/"+vic.Hex, vic.Token, nil, &list); code != http.StatusOK || len(list) != 2 {
		t.Fatalf("list: %d, %d notifications", code, len(list))
	}
	var count struct {
		Count int64 `json:"count"`
	}
	if code := api.do(t, http.MethodGet, "/notifications/"+vic.Hex+"/unread-count", vic.Token, nil, &count); code != http.StatusOK || count.Count != 2 {
		t.Fatalf("unread-count: %d %+v", code, count)
	}

	one := "/notifications/mark-read/" + list[0].ID.Hex()
	if code := api.do(t, http.MethodPost, one, uma.Token, nil, nil); code != http.StatusNotFound {
		t.Fatalf("marking someone else's notification: got %d, want 404", code)
	}
	if code := api.do(t, http.MethodPost, one, vic.Token, nil, nil); code != http.StatusOK {
		t.Fatalf("mark-read: %d", code)
	}

	var marked struct {
		MarkedCount int64 `json:"markedCount"`
	}
	if code := api.do(t, http.MethodPost, "/notifications/mark-all-read/"+vic.Hex, vic.Token, nil, &marked); code != http.StatusOK || marked.MarkedCount != 1 {
		t.Fatalf("mark-all-read: %d %+v", code, marked)
	}
	if api.do(t, http.MethodGet, "/notifications/"+vic.Hex+"/unread-count", vic.Token, nil, &count); count.Count != 0 {
		t.Fatalf("expected no unread notifications, got %d", count.Count)
	}
}

type fakePinger struct {
	mu  sync.Mutex
	err error
}

func (p *fakePinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakePinger) set(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func TestHealth(t *testing.T) {
	db := &fakePinger{}
	api := newTestAPI(t, func(d *serverDeps) { d.db = db })

	var body map[string]string
	if code := api.do(t, http.MethodGet, "/health", "", nil, &body); code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthy: %d %v", code, body)
	}
	db.set(errors.New("no reachable servers"))
	if code := api.do(t, http.MethodGet, "/health", "", nil, &body); code != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Fatalf("degraded: %d %v", code, body)
	}
}

func TestCORSAndRequestID(t *testing.T) {
	api := newTestAPI(t, func(d *serverDeps) { d.cfg.HTTP.AllowedOrigins = []string{"https://app.example.com"} })

	req, _ := http.NewRequest(http.MethodGet, api.srv.URL+"/skills", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := api.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow-origin = %q", got)
	}
	if got := resp.Header.Get("X-Request-ID"); got != "req-123" {
		t.Fatalf("request id not echoed: %q", got)
	}

	req, _ = http.NewRequest(http.MethodGet, api.srv.URL+"/skills", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = api.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin for a foreign origin: %q", got)
	}
}

func TestCheckOrigin(t *testing.T) {
	cases := []struct {
		allowed []string
		origin  string
		want    bool
	}{
		{[]string{"*"}, "https://anything.example.com", true},
		{nil, "https://anything.example.com", true},
		{[]string{"https://app.example.com"}, "", true},
		{[]string{"https://app.example.com"}, "https://app.example.com", true},
		{[]string{"https://app.example.com"}, "https://evil.example.com", false},
	}
	for _, tc := range cases {
		s := &Server{allowedOrigins: tc.allowed}
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		if got := s.checkOrigin(r); got != tc.want {
			t.Errorf("allowed=%v origin=%q: got %v, want %v", tc.allowed, tc.origin, got, tc.want)
		}
	}
}

func TestParseFlags(t *testing.T) {
	cfg := config.Config{
		Mongo:   config.MongoConfig{URI: "mongodb://env", Database: "skillswap"},
		HTTP:    config.HTTPConfig{Port: 5000},
		Limits:  config.LimitsConfig{AuthPerMinute: 10},
		Logging: config.LoggingConfig{Level: "info"},
	}
	args := []string{"--port", "6000", "--redis-addr", "redis:6379", "--log-level=debug", "--grpc-health-port", "50051"}
	if err := parseFlags(args, &cfg); err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.HTTP.Port != 6000 || cfg.Redis.Addr != "redis:6379" || cfg.Logging.Level != "debug" || cfg.GRPCPort != 50051 {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	// values without a flag keep what the environment set
	if cfg.Mongo.URI != "mongodb://env" || cfg.Limits.AuthPerMinute != 10 {
		t.Fatalf("env values lost: %+v", cfg)
	}

	if err := parseFlags([]string{"--no-such-flag"}, &cfg); err == nil || !strings.Contains(err.Error(), "no-such-flag") {
		t.Fatalf("expected unknown flag error, got %v", err)
	}
}
