package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"agentvoice/native/internal/domain"
)

func TestCreateSession_Success(t *testing.T) {
	var got domain.SessionRequest
	var gotPath, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRequestID = r.Header.Get("X-Request-ID")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"session_id":"ses_abc","connection_token":"tok","connection_url":"wss://x"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	session, err := c.CreateSession(context.Background(), domain.SessionRequest{AgentToken: "agt_valid", UserID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/v1/session" {
		t.Errorf("expected path /v1/session, got %q", gotPath)
	}
	if gotRequestID == "" {
		t.Error("expected X-Request-ID header")
	}
	if got.AgentToken != "agt_valid" || got.UserID != "u1" {
		t.Errorf("unexpected request body: %+v", got)
	}
	if session.ID != "ses_abc" || session.ConnectionToken != "tok" || session.ConnectionURL != "wss://x" {
		t.Errorf("unexpected session: %+v", session)
	}
}

func TestCreateSession_OmitsEmptyUserID(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		w.Write([]byte(`{"session_id":"ses_1","connection_token":"t","connection_url":"ws://y"}`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).CreateSession(context.Background(), domain.SessionRequest{AgentToken: "agt"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := raw["user_id"]; ok {
		t.Errorf("expected user_id to be omitted, got %v", raw)
	}
}

func TestCreateSession_ErrorDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Invalid agent token"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).CreateSession(context.Background(), domain.SessionRequest{AgentToken: "bad"})
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "Invalid agent token" {
		t.Errorf("expected server detail, got %q", err.Error())
	}
	var se *SessionError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected SessionError with 401, got %#v", err)
	}
}

func TestCreateSession_UnparsableErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).CreateSession(context.Background(), domain.SessionRequest{AgentToken: "agt"})
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "session request failed with status 502" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestCreateSession_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).CreateSession(context.Background(), domain.SessionRequest{AgentToken: "agt"})
	if err == nil {
		t.Fatal("expected error for closed server")
	}
	var se *SessionError
	if errors.As(err, &se) {
		t.Errorf("network failure should not be a SessionError: %v", err)
	}
}
