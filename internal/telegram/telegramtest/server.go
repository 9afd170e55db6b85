// Package telegramtest provides an in-memory Bot API server for tests of code
// built on package telegram.
package telegramtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Samehadar/telegram-bot/internal/telegram"
)

// Token is the bot token the server accepts.
const Token = "424242:telegramtest"

// idleWait bounds how long an empty long poll is held open.
const idleWait = 50 * time.Millisecond

// Server answers getUpdates from a queue of pushed updates, honouring the
// offset like the real API: updates below the requested offset are dropped
// for good. Every other method is recorded and answered with the result set
// by SetResult, or true.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	queue     []telegram.Update
	offset    int64
	requests  map[string][]url.Values
	results   map[string]json.RawMessage
	errors    map[string]string
	pushed    chan struct{}
	nextMsgID int64
	// failPolls is the number of polling getUpdates calls still to fail.
	failPolls int
}

// NewServer starts a Server that is closed when t finishes.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		requests: make(map[string][]url.Values),
		results:  make(map[string]json.RawMessage),
		errors:   make(map[string]string),
		pushed:   make(chan struct{}, 1),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// API returns a client for s.
func (s *Server) API(t testing.TB, opts ...telegram.Option) *telegram.Api {
	t.Helper()
	api, err := telegram.FromToken(Token, append([]telegram.Option{telegram.WithEndpoint(s.URL)}, opts...)...)
	if err != nil {
		t.Fatalf("telegramtest: %v", err)
	}
	return api
}

// Push queues updates for delivery.
func (s *Server) Push(updates ...telegram.Update) {
	s.mu.Lock()
	s.queue = append(s.queue, updates...)
	s.mu.Unlock()
	select {
	case s.pushed <- struct{}{}:
	default:
	}
}

// PushText queues a private text message from user with the given update id.
func (s *Server) PushText(updateID int64, from telegram.User, text string) {
	s.Push(telegram.Update{
		UpdateID: updateID,
		Message: &telegram.Message{
			MessageID: updateID,
			From:      &from,
			Chat:      telegram.Chat{ID: from.ID, Type: telegram.ChatPrivate, FirstName: from.FirstName},
			Date:      time.Now().Unix(),
			Text:      text,
		},
	})
}

// SetResult sets the result returned for method.
func (s *Server) SetResult(method string, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	s.results[method] = raw
	s.mu.Unlock()
}

// FailMethod makes method answer {"ok":false} with description.
func (s *Server) FailMethod(method, description string) {
	s.mu.Lock()
	s.errors[method] = description
	s.mu.Unlock()
}

// FailPolls makes the next n getUpdates calls that ask for updates answer
// 502 with an HTML body, like a proxy in front of the API. Acknowledgment-only
// calls (limit=0) are not affected.
func (s *Server) FailPolls(n int) {
	s.mu.Lock()
	s.failPolls = n
	s.mu.Unlock()
}

// Requests returns the forms posted to method, oldest first.
func (s *Server) Requests(method string) []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.requests[method]...)
}

// Offset returns the highest offset any getUpdates call has confirmed.
func (s *Server) Offset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// Pending returns the number of queued updates not yet confirmed.
func (s *Server) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	prefix := "/bot" + Token + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
		return
	}
	method := strings.TrimPrefix(r.URL.Path, prefix)
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests[method] = append(s.requests[method], r.PostForm)
	desc, failing := s.errors[method]
	s.mu.Unlock()

	if failing {
		writeJSON(w, map[string]any{"ok": false, "error_code": 400, "description": desc})
		return
	}
	if method == "getUpdates" {
		s.getUpdates(w, r)
		return
	}

	s.mu.Lock()
	res, ok := s.results[method]
	if !ok && (method == "sendMessage" || method == "forwardMessage" || method == "sendLocation") {
		s.nextMsgID++
		chatID, _ := strconv.ParseInt(r.PostForm.Get("chat_id"), 10, 64)
		res, _ = json.Marshal(telegram.Message{
			MessageID: s.nextMsgID,
			Chat:      telegram.Chat{ID: chatID, Type: telegram.ChatPrivate},
			Date:      time.Now().Unix(),
			Text:      r.PostForm.Get("text"),
		})
		ok = true
	}
	s.mu.Unlock()
	if !ok {
		res = json.RawMessage("true")
	}
	writeJSON(w, map[string]any{"ok": true, "result": res})
}

func (s *Server) getUpdates(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.ParseInt(r.PostForm.Get("offset"), 10, 64)
	limit := int64(100)
	if v := r.PostForm.Get("limit"); v != "" {
		limit, _ = strconv.ParseInt(v, 10, 64)
	}
	longPoll := r.PostForm.Get("timeout") != ""

	s.mu.Lock()
	failing := limit != 0 && s.failPolls > 0
	if failing {
		s.failPolls--
	}
	s.mu.Unlock()
	if failing {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
		return
	}

	for {
		s.mu.Lock()
		if offset > s.offset {
			s.offset = offset
		}
		kept := s.queue[:0]
		for _, u := range s.queue {
			if u.UpdateID >= s.offset {
				kept = append(kept, u)
			}
		}
		s.queue = kept
		var out []telegram.Update
		if limit > 0 {
			n := min(int64(len(s.queue)), limit)
			out = append(out, s.queue[:n]...)
		}
		s.mu.Unlock()

		if len(out) > 0 || limit == 0 || !longPoll {
			if out == nil {
				out = []telegram.Update{}
			}
			writeJSON(w, map[string]any{"ok": true, "result": out})
			return
		}

		select {
		case <-s.pushed:
		case <-time.After(idleWait):
			longPoll = false
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
