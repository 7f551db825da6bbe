package infra

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"verity-gateway/middleware/quota/domain"
)

// restServer devolve respostas pré-programadas e grava os comandos recebidos.
type restServer struct {
	t        *testing.T
	commands [][]any
	replies  []string
	status   int
}

func (rs *restServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rs.t.Errorf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			rs.t.Errorf("expected bearer token header, got %q", got)
		}

		body, _ := io.ReadAll(r.Body)
		var cmd []any
		if err := json.Unmarshal(body, &cmd); err != nil {
			rs.t.Errorf("expected JSON array body, got %q: %v", body, err)
		}
		rs.commands = append(rs.commands, cmd)

		if rs.status != 0 {
			w.WriteHeader(rs.status)
			_, _ = io.WriteString(w, "upstream exploded")
			return
		}

		reply := `{"result":null}`
		if len(rs.replies) > 0 {
			reply = rs.replies[0]
			rs.replies = rs.replies[1:]
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, reply)
	})
}

func newRESTFixture(t *testing.T) (*RESTStore, *restServer, func()) {
	rs := &restServer{t: t}
	srv := httptest.NewServer(rs.handler())
	store := NewRESTStore(srv.URL, "test-token", WithHTTPClient(srv.Client()))
	return store, rs, srv.Close
}

func TestRESTStore_GetHitAndMiss(t *testing.T) {
	store, rs, done := newRESTFixture(t)
	defer done()

	rs.replies = []string{`{"result":"hello"}`, `{"result":null}`}

	v, found, err := store.Get(context.Background(), "k")
	if err != nil || !found || v != "hello" {
		t.Fatalf("expected hit with hello, got %q found=%v err=%v", v, found, err)
	}

	_, found, err = store.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatalf("expected miss for null result")
	}

	if len(rs.commands) != 2 || rs.commands[0][0] != "GET" || rs.commands[0][1] != "k" {
		t.Fatalf("unexpected commands sent: %#v", rs.commands)
	}
}

func TestRESTStore_SetSendsExpiryArgs(t *testing.T) {
	store, rs, done := newRESTFixture(t)
	defer done()

	rs.replies = []string{`{"result":"OK"}`}

	ok, err := store.Set(context.Background(), "k", "v", domain.SetOptions{EX: 300 * time.Second, NX: true})
	if err != nil || !ok {
		t.Fatalf("expected set ok, got ok=%v err=%v", ok, err)
	}

	want := []any{"SET", "k", "v", "EX", "300", "NX"}
	got := rs.commands[0]
	if len(got) != len(want) {
		t.Fatalf("expected command %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected command %v, got %v", want, got)
		}
	}
}

func TestRESTStore_ZAddSendsScoreAsPlainNumber(t *testing.T) {
	store, rs, done := newRESTFixture(t)
	defer done()

	rs.replies = []string{`{"result":1}`}

	// timestamp em ms: não pode virar notação científica no wire
	n, err := store.ZAdd(context.Background(), "rate_limit:u1", 1741348800000, "1741348800000-abc")
	if err != nil || n != 1 {
		t.Fatalf("expected zadd=1, got %d err=%v", n, err)
	}
	if got := rs.commands[0][2]; got != "1741348800000" {
		t.Fatalf("expected plain score string, got %v", got)
	}
}

func TestRESTStore_ZRangeWithScoresParsesFlatReply(t *testing.T) {
	store, rs, done := newRESTFixture(t)
	defer done()

	rs.replies = []string{`{"result":["m1","100","m2","250.5"]}`}

	members, err := store.ZRangeWithScores(context.Background(), "w", 0, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(members) != 2 || members[0].Member != "m1" || members[0].Score != 100 || members[1].Score != 250.5 {
		t.Fatalf("unexpected members: %#v", members)
	}
}

func TestRESTStore_HGetAllParsesFlatReply(t *testing.T) {
	store, rs, done := newRESTFixture(t)
	defer done()

	rs.replies = []string{`{"result":["total_count","3","standard_count","3"]}`}

	all, err := store.HGetAll(context.Background(), "usage:u1:2025-03")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if all["total_count"] != "3" || all["standard_count"] != "3" {
		t.Fatalf("unexpected hash: %#v", all)
	}
}

func TestRESTStore_Non2xxIsError(t *testing.T) {
	store, rs, done := newRESTFixture(t)
	defer done()

	rs.status = http.StatusBadGateway

	if _, _, err := store.Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected error on non-2xx status")
	}
}

func TestRESTStore_MalformedBodyIsError(t *testing.T) {
	store, rs, done := newRESTFixture(t)
	defer done()

	rs.replies = []string{`this is not json`}

	if _, err := store.Incr(context.Background(), "k"); err == nil {
		t.Fatalf("expected error on malformed body")
	}
}

func TestRESTStore_ErrorFieldIsError(t *testing.T) {
	store, rs, done := newRESTFixture(t)
	defer done()

	rs.replies = []string{`{"error":"WRONGTYPE Operation against a key"}`}

	if _, err := store.ZCard(context.Background(), "k"); err == nil {
		t.Fatalf("expected error when body carries error field")
	}
}
