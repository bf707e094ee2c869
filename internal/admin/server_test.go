package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pandad/internal/logging"
	"pandad/internal/messaging"
)

func TestHandleHealth(t *testing.T) {
	s := NewServer(logging.Discard())

	w := httptest.NewRecorder()
	s.handleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d before any event", w.Code)
	}

	ev := messaging.Event{Valid: true, PandaStates: []messaging.PandaState{{Voltage: 12000, PandaType: "cuatro"}}}
	if err := s.WriteEvent(messaging.TopicPandaStates, ev); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	w = httptest.NewRecorder()
	s.handleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got messaging.Event
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.PandaStates) != 1 || got.PandaStates[0].Voltage != 12000 {
		t.Fatalf("health = %+v", got)
	}
}

func TestHandlePeripheral(t *testing.T) {
	s := NewServer(logging.Discard())
	_ = s.WriteEvent(messaging.TopicPeripheralState, messaging.Event{PeripheralState: &messaging.PeripheralState{Current: 800}})
	_ = s.WriteEvent(messaging.TopicCan, messaging.Event{Can: []messaging.CanData{{Address: 1}}})

	w := httptest.NewRecorder()
	s.handlePeripheral(w, httptest.NewRequest(http.MethodGet, "/peripheral", nil))
	var got messaging.Event
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.PeripheralState == nil || got.PeripheralState.Current != 800 {
		t.Fatalf("peripheral = %+v", got)
	}
}

func TestWebsocketStream(t *testing.T) {
	s := NewServer(logging.Discard())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	_ = s.WriteEvent(messaging.TopicPandaStates, messaging.Event{PandaStates: []messaging.PandaState{{Uptime: 99}}})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got update
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Topic != messaging.TopicPandaStates || got.PandaStates[0].Uptime != 99 {
		t.Fatalf("update = %+v", got)
	}
}
