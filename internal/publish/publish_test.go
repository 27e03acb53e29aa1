package publish

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count stuck at %d, want %d", h.ClientCount(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	c1 := dialHub(t, srv)
	c2 := dialHub(t, srv)
	waitForClients(t, h, 2)

	h.Broadcast(Message{Type: TypeDiagnosis, Data: []string{"a", "b"}})

	for i, c := range []*websocket.Conn{c1, c2} {
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("client %d read: %v", i, err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("client %d decode: %v", i, err)
		}
		if msg.Type != TypeDiagnosis {
			t.Errorf("client %d got type %q", i, msg.Type)
		}
	}
}

func TestDeadClientDropped(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	c := dialHub(t, srv)
	waitForClients(t, h, 1)
	c.Close()
	waitForClients(t, h, 0)

	// Broadcasting with no clients must not panic or block.
	h.Broadcast(Message{Type: TypeStatus, Data: StatusRecord{}})
}

func TestStatusRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status_update.json")

	question := "Any fever?"
	education := "Stay hydrated."
	rec := StatusRecord{IsFinished: false, Question: &question, Education: &education}
	if err := WriteStatus(path, rec); err != nil {
		t.Fatalf("WriteStatus: %v", err)
	}

	got, err := ReadStatus(path)
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if got.IsFinished != rec.IsFinished {
		t.Errorf("is_finished mismatch: %+v", got)
	}
	if got.Question == nil || *got.Question != question {
		t.Errorf("question mismatch: %v", got.Question)
	}
	if got.Education == nil || *got.Education != education {
		t.Errorf("education mismatch: %v", got.Education)
	}
}

func TestAbsentFieldsSerializeAsNull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status_update.json")
	if err := WriteStatus(path, StatusRecord{IsFinished: true}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"question": null`) {
		t.Errorf("absent question not null: %s", data)
	}
	if !strings.Contains(string(data), `"education": null`) {
		t.Errorf("absent education not null: %s", data)
	}

	got, err := ReadStatus(path)
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if got.Question != nil || got.Education != nil {
		t.Errorf("null fields decoded non-nil: %+v", got)
	}
}

func TestStatusKeysMatchContract(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status_update.json")
	if err := WriteStatus(path, StatusRecord{IsFinished: true}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"is_finished"`, `"question"`, `"education"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("status file missing key %s: %s", key, data)
		}
	}
}

func TestReadStatusRetriesThenFails(t *testing.T) {
	start := time.Now()
	_, err := ReadStatus(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if elapsed := time.Since(start); elapsed < 2*readBackoff {
		t.Errorf("returned in %v, expected retries with backoff", elapsed)
	}
}
