package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kevinwklawrence/lounge-realtime/internal/chat"
	"github.com/kevinwklawrence/lounge-realtime/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.DefaultClientConfig()
	cfg.APIBaseURL = srv.URL
	cfg.TimeoutShort = 2 * time.Second
	cfg.TimeoutMedium = 2 * time.Second
	cfg.TimeoutLong = 2 * time.Second
	return NewClient(cfg, "sess-1")
}

func TestFetchRoomMessages(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/rooms/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("room_id"); got != "7" {
			t.Errorf("room_id = %q, want 7", got)
		}
		if got := r.URL.Query().Get("session_id"); got != "sess-1" {
			t.Errorf("session_id = %q, want sess-1", got)
		}
		w.Write([]byte(`{"status":"success","data":[
			{"id":"m1","sender_id":"u1","sender_name":"ann","body":"hi"},
			{"id":"m2","sender_id":"u2","sender_name":"bob","body":"yo"}
		]}`))
	})

	messages, err := client.FetchRoomMessages(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0].ID != "m1" || messages[1].ID != "m2" {
		t.Errorf("server order not preserved: %v", messages)
	}
}

func TestEmptyRoomIsNotAnError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":[]}`))
	})

	messages, err := client.FetchRoomMessages(context.Background(), 1)
	if err != nil {
		t.Fatalf("empty room must not be an error, got %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("got %d messages, want 0", len(messages))
	}
}

func TestMalformedPayloadIsDecodeError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	})

	_, err := client.FetchRoster(context.Background(), 1)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("want DecodeError, got %v", err)
	}
}

func TestAuthoritativeRejection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","message":"You cannot send a friend request to yourself"}`))
	})

	err := client.SendPrivateMessage(context.Background(), chat.PrivateKey("me"), "hi")
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("want RejectedError, got %v", err)
	}
	if rejected.Message != "You cannot send a friend request to yourself" {
		t.Errorf("server message not preserved verbatim: %q", rejected.Message)
	}
}

func TestRequestTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"status":"success"}`))
	})
	client.timeoutShort = 50 * time.Millisecond

	_, err := client.FetchRoster(context.Background(), 1)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		t.Fatal("timeout must not be classified as a decode error")
	}
}

func TestSendPrivateWhisperCarriesRoomScope(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := jsonDecode(r, &got); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		w.Write([]byte(`{"status":"success"}`))
	})

	key := chat.WhisperKey("u9", 4)
	if err := client.SendPrivateMessage(context.Background(), key, "psst"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["kind"] != "whisper" {
		t.Errorf("kind = %v, want whisper", got["kind"])
	}
	if got["room_id"] != float64(4) {
		t.Errorf("room_id = %v, want 4", got["room_id"])
	}
}

func jsonDecode(r *http.Request, out any) error {
	return json.NewDecoder(r.Body).Decode(out)
}

func TestCheckRoomKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"valid":true}}`))
	})

	valid, err := client.CheckRoomKey(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !valid {
		t.Error("want valid key")
	}
}
