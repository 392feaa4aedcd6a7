// Package freeboxtest provides an in-memory Freebox API for tests.
package freeboxtest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/freebox-hub-go/internal/freebox"
)

const (
	APIBaseURL = "/api/"
	APIVersion = "8.0"
	apiPrefix  = "/api/v8"
)

// Request is one call received by the fake box.
type Request struct {
	Method     string
	RequestURI string
	Auth       string
	Body       map[string]any
}

// Box is a fake Freebox. Fields may be changed between calls through the
// setters; handlers read them under the lock.
type Box struct {
	Server *httptest.Server

	mu           sync.Mutex
	requests     []Request
	appToken     string
	trackID      int
	status       string
	challenge    string
	sessionToken string
	receivers    []freebox.Receiver
	airMedia     freebox.AirMediaConfig
	overrides    map[string]http.HandlerFunc
}

// New starts a fake box with one unprotected "Freebox Player" receiver and
// registers its shutdown with t.
func New(t testing.TB) *Box {
	t.Helper()

	b := &Box{
		appToken:     "T1",
		trackID:      42,
		status:       "pending",
		challenge:    "chall-42",
		sessionToken: "S1",
		receivers: []freebox.Receiver{
			{Name: freebox.DefaultReceiverName, Capabilities: freebox.Capabilities{Photo: true, Audio: true, Video: true, Screen: true}},
		},
		airMedia:  freebox.AirMediaConfig{Enabled: true},
		overrides: map[string]http.HandlerFunc{},
	}
	b.Server = httptest.NewServer(b.routes())
	t.Cleanup(b.Server.Close)
	return b
}

// URL is the discovery base URL to hand to freebox.WithBaseURL.
func (b *Box) URL() string {
	return b.Server.URL
}

// SetStatus changes the authorization status reported for the track id.
func (b *Box) SetStatus(status string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
}

// SetReceivers replaces the receiver list.
func (b *Box) SetReceivers(receivers []freebox.Receiver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receivers = receivers
}

// Override replaces the handler of "METHOD path", path relative to the API
// root (for example "POST login/logout/").
func (b *Box) Override(route string, h http.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.overrides[route] = h
}

// Requests returns a copy of every call received so far.
func (b *Box) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Request, len(b.requests))
	copy(out, b.requests)
	return out
}

// Count returns how many calls matched method and the raw request URI.
func (b *Box) Count(method, requestURI string) int {
	n := 0
	for _, r := range b.Requests() {
		if r.Method == method && r.RequestURI == requestURI {
			n++
		}
	}
	return n
}

// APIPath returns the request URI the client uses for an API path.
func APIPath(path string) string {
	return apiPrefix + "/" + path
}

// Reply writes a success envelope.
func Reply(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	body := map[string]any{"success": true}
	if result != nil {
		body["result"] = result
	}
	_ = json.NewEncoder(w).Encode(body)
}

// Fail writes a failure envelope with the given HTTP status.
func Fail(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":    false,
		"error_code": code,
		"msg":        msg,
	})
}

func (b *Box) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(b.record)

	r.Get("/api_version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(freebox.DeviceDescriptor{
			UID:            "23b86ec8091013d668829fe12791fdab",
			DeviceName:     "Freebox Server",
			APIVersion:     APIVersion,
			APIBaseURL:     APIBaseURL,
			DeviceType:     "FreeboxServer1,2",
			APIDomain:      "box.invalid",
			HTTPSAvailable: true,
			HTTPSPort:      4242,
		})
	})

	r.Route(apiPrefix, func(r chi.Router) {
		r.Post("/login/authorize/", b.handle("POST login/authorize/", b.authorize))
		r.Get("/login/authorize/{track_id}", b.handle("GET login/authorize/", b.authorizeStatus))
		r.Get("/login/", b.handle("GET login/", b.loginChallenge))
		r.Post("/login/session/", b.handle("POST login/session/", b.openSession))
		r.Post("/login/logout/", b.handle("POST login/logout/", b.requireSession(b.logout)))
		r.Get("/airmedia/receivers/", b.handle("GET airmedia/receivers/", b.requireSession(b.listReceivers)))
		r.Post("/airmedia/receivers/{name}", b.handle("POST airmedia/receivers/", b.requireSession(b.control)))
		r.Get("/airmedia/config/", b.handle("GET airmedia/config/", b.requireSession(b.getAirMedia)))
		r.Put("/airmedia/config/", b.handle("PUT airmedia/config/", b.requireSession(b.putAirMedia)))
	})
	return r
}

func (b *Box) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := Request{
			Method:     r.Method,
			RequestURI: r.RequestURI,
			Auth:       r.Header.Get("X-Fbx-App-Auth"),
		}
		if r.Body != nil && r.ContentLength != 0 {
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
				req.Body = body
			}
		}
		b.mu.Lock()
		b.requests = append(b.requests, req)
		b.mu.Unlock()

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), bodyKey{}, req.Body)))
	})
}

type bodyKey struct{}

// bodyOf returns the JSON body decoded by record.
func bodyOf(r *http.Request) map[string]any {
	body, _ := r.Context().Value(bodyKey{}).(map[string]any)
	return body
}

func (b *Box) handle(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		override := b.overrides[route]
		b.mu.Unlock()
		if override != nil {
			override(w, r)
			return
		}
		h(w, r)
	}
}

func (b *Box) requireSession(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		token := b.sessionToken
		b.mu.Unlock()
		if r.Header.Get("X-Fbx-App-Auth") != token {
			Fail(w, http.StatusForbidden, "auth_required", "Invalid session token, or no session token sent")
			return
		}
		h(w, r)
	}
}

func (b *Box) authorize(w http.ResponseWriter, r *http.Request) {
	body := bodyOf(r)
	if body["app_id"] == nil || body["app_name"] == nil {
		Fail(w, http.StatusBadRequest, "invalid_request", "missing app_id or app_name")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	Reply(w, map[string]any{"app_token": b.appToken, "track_id": b.trackID})
}

func (b *Box) authorizeStatus(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if chi.URLParam(r, "track_id") != strconv.Itoa(b.trackID) {
		Fail(w, http.StatusNotFound, "noent", "unknown track id")
		return
	}
	Reply(w, map[string]any{"status": b.status, "challenge": b.challenge})
}

func (b *Box) loginChallenge(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	Reply(w, map[string]any{"logged_in": false, "challenge": b.challenge})
}

func (b *Box) openSession(w http.ResponseWriter, r *http.Request) {
	body := bodyOf(r)
	b.mu.Lock()
	defer b.mu.Unlock()
	want := freebox.Password(b.appToken, b.challenge)
	if body["password"] != want {
		Fail(w, http.StatusForbidden, "invalid_token", "The app token you are trying to use is invalid")
		return
	}
	Reply(w, map[string]any{
		"session_token": b.sessionToken,
		"challenge":     b.challenge,
		"permissions":   map[string]bool{"settings": true, "player": true},
	})
}

func (b *Box) logout(w http.ResponseWriter, r *http.Request) {
	Reply(w, nil)
}

func (b *Box) listReceivers(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	Reply(w, b.receivers)
}

func (b *Box) control(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	b.mu.Lock()
	found := false
	for _, rc := range b.receivers {
		if rc.Name == name {
			found = true
			break
		}
	}
	b.mu.Unlock()
	if !found {
		Fail(w, http.StatusNotFound, "invalid_receiver", "unknown receiver")
		return
	}
	body := bodyOf(r)
	if body["action"] != "start" && body["action"] != "stop" {
		Fail(w, http.StatusBadRequest, "invalid_action", "unknown action")
		return
	}
	Reply(w, nil)
}

func (b *Box) getAirMedia(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	Reply(w, b.airMedia)
}

func (b *Box) putAirMedia(w http.ResponseWriter, r *http.Request) {
	body := bodyOf(r)
	b.mu.Lock()
	defer b.mu.Unlock()
	if enabled, ok := body["enabled"].(bool); ok {
		b.airMedia.Enabled = enabled
	}
	if password, ok := body["password"].(string); ok {
		b.airMedia.Password = password
	}
	Reply(w, freebox.AirMediaConfig{Enabled: b.airMedia.Enabled})
}
