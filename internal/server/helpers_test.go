package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/dashboard/internal/auth"
	"github.com/MarcoPoloResearchLab/dashboard/internal/dashboard"
	"github.com/MarcoPoloResearchLab/dashboard/internal/docstore"
	"github.com/gin-gonic/gin"
)

const (
	testSigningSecret = "test-signing-secret"
	testCookieName    = "app_session"
	testIssuer        = "tauth"
	testUserID        = "user-123"
	testWaitTimeout   = 2 * time.Second
	settleReads       = 3
)

type testServer struct {
	server   *httptest.Server
	manager  *dashboard.Manager
	store    *docstore.MemoryStore
	issuer   *auth.SessionIssuer
	token    string
	validate *auth.SessionValidator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := docstore.NewMemoryStore(docstore.MemoryConfig{})
	manager, err := dashboard.NewManager(dashboard.ManagerConfig{Store: store, WriteTimeout: time.Second})
	if err != nil {
		t.Fatalf("failed to construct manager: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
	})
	if err != nil {
		t.Fatalf("failed to construct issuer: %v", err)
	}
	token, _, err := issuer.Issue(auth.SessionGrant{UserID: testUserID})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Sessions:          manager,
		Validator:         validator,
		HeartbeatInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), testWaitTimeout)
		defer cancel()
		_ = manager.Close(ctx)
		_ = store.Close()
	})
	return &testServer{
		server:   server,
		manager:  manager,
		store:    store,
		issuer:   issuer,
		token:    token,
		validate: validator,
	}
}

// do sends an authenticated JSON request and decodes the response body into out when given.
func (s *testServer) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, s.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to construct request: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.AddCookie(&http.Cookie{Name: testCookieName, Value: s.token})
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	defer response.Body.Close()
	if out != nil {
		if err := json.NewDecoder(response.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode %s %s response: %v", method, path, err)
		}
	}
	return response.StatusCode
}

type boardResponse struct {
	Loading bool                `json:"loading"`
	Board   dashboard.BoardView `json:"board"`
}

type notesResponse struct {
	Loading bool                `json:"loading"`
	Notes   dashboard.NotesView `json:"notes"`
}

type intentReply struct {
	Applied bool            `json:"applied"`
	TaskID  string          `json:"taskId"`
	Views   dashboard.Views `json:"views"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

// settleBoard drains pending writes and polls the board until check holds on consecutive reads,
// so store echoes of earlier writes cannot interleave with the next intent.
func (s *testServer) settleBoard(t *testing.T, check func(dashboard.BoardView) bool) dashboard.BoardView {
	t.Helper()
	s.do(t, http.MethodGet, "/board", nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), testWaitTimeout)
	defer cancel()
	if err := s.manager.Wait(ctx); err != nil {
		t.Fatalf("writes did not drain: %v", err)
	}
	deadline := time.Now().Add(testWaitTimeout)
	var last boardResponse
	stable := 0
	for time.Now().Before(deadline) {
		last = boardResponse{}
		s.do(t, http.MethodGet, "/board", nil, &last)
		if !last.Loading && check(last.Board) {
			stable++
			if stable == settleReads {
				return last.Board
			}
		} else {
			stable = 0
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("board did not settle, last view %+v", last)
	return dashboard.BoardView{}
}

func (s *testServer) settleNotes(t *testing.T, check func(dashboard.NotesView) bool) dashboard.NotesView {
	t.Helper()
	deadline := time.Now().Add(testWaitTimeout)
	var last notesResponse
	for time.Now().Before(deadline) {
		last = notesResponse{}
		s.do(t, http.MethodGet, "/notes", nil, &last)
		if check(last.Notes) {
			return last.Notes
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("notes did not settle, last view %+v", last)
	return dashboard.NotesView{}
}

func columnCounts(view dashboard.BoardView) map[string]int {
	counts := make(map[string]int, len(view.Columns))
	for _, column := range view.Columns {
		counts[column.ID.String()] = column.Count
	}
	return counts
}
