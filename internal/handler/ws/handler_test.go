package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/parlohq/parlo/backend/internal/clock"
	"github.com/parlohq/parlo/backend/internal/model/profile"
	"github.com/parlohq/parlo/backend/internal/quota"
	"github.com/parlohq/parlo/backend/internal/service/ai"
	"github.com/parlohq/parlo/backend/internal/session"
	"github.com/parlohq/parlo/backend/internal/store"
)

var fixedNow = time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)

const (
	today     = clock.DayID("2025-03-02")
	yesterday = clock.DayID("2025-03-01")
)

type fakeDialogues struct {
	mu        sync.Mutex
	streaming bool
	chunks    []string
	openErr   error
	streamErr error
	opened    []*ai.Dialogue
}

func (f *fakeDialogues) StreamingEnabled() bool { return f.streaming }

func (f *fakeDialogues) setStreamErr(err error) {
	f.mu.Lock()
	f.streamErr = err
	f.mu.Unlock()
}

func (f *fakeDialogues) openedDialogues() []*ai.Dialogue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*ai.Dialogue(nil), f.opened...)
}

func (f *fakeDialogues) Open(_ context.Context, _ string) (*ai.Dialogue, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, "", f.openErr
	}
	dialogue := &ai.Dialogue{ID: "dialogue"}
	f.opened = append(f.opened, dialogue)
	return dialogue, "Welcome! Ready to practice?", nil
}

func (f *fakeDialogues) Reply(_ context.Context, _ *ai.Dialogue, _ string) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return &schema.Message{Role: schema.Assistant, Content: strings.Join(f.chunks, "")}, nil
}

func (f *fakeDialogues) Stream(_ context.Context, _ *ai.Dialogue, _ string) (*schema.StreamReader[*schema.Message], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reader, writer := schema.Pipe[*schema.Message](len(f.chunks) + 1)
	for _, text := range f.chunks {
		writer.Send(&schema.Message{Role: schema.Assistant, Content: text}, nil)
	}
	if f.streamErr != nil {
		writer.Send(nil, f.streamErr)
	}
	writer.Close()
	return reader, nil
}

type failingUpdates struct {
	*store.Memory
}

func (s failingUpdates) Update(context.Context, string, profile.Update) (profile.Profile, error) {
	return profile.Profile{}, errors.New("store unavailable")
}

type fixture struct {
	handler  *Handler
	registry *session.Registry
	profiles *store.Memory
	fakes    *fakeDialogues
}

func newFixture(profiles profile.Store, fakes *fakeDialogues) (*fixture, *Handler) {
	memory, _ := profiles.(*store.Memory)
	registry := session.NewRegistry()
	handler := New(profiles, quota.NewEngine(quota.DefaultLimits()), registry, fakes, nil)
	handler.now = func() time.Time { return fixedNow }
	return &fixture{handler: handler, registry: registry, profiles: memory, fakes: fakes}, handler
}

func dialTestServer(t *testing.T, handler *Handler) *websocket.Conn {
	t.Helper()

	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type receivedEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func sendEvent(t *testing.T, conn *websocket.Conn, eventType string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": eventType, "payload": payload}); err != nil {
		t.Fatalf("write %s err: %v", eventType, err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) receivedEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event receivedEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event err: %v", err)
	}
	return event
}

func expectEvent(t *testing.T, conn *websocket.Conn, eventType string) receivedEvent {
	t.Helper()
	event := readEvent(t, conn)
	if event.Type != eventType {
		t.Fatalf("expected %s, got %s (payload %s)", eventType, event.Type, event.Payload)
	}
	return event
}

func TestFetchProfileReconcilesLogin(t *testing.T) {
	profiles := store.NewMemory()
	profiles.Seed(profile.Profile{ID: "u1", Streak: 2, LastLoginDay: yesterday, LastConversationDay: today, DailyConversations: 1})
	_, handler := newFixture(profiles, &fakeDialogues{})
	conn := dialTestServer(t, handler)

	sendEvent(t, conn, "fetchProfile", map[string]string{"userId": "u1"})

	event := expectEvent(t, conn, "profileData")
	var got profile.Profile
	if err := json.Unmarshal(event.Payload, &got); err != nil {
		t.Fatalf("unmarshal profile err: %v", err)
	}
	if got.Streak != 3 {
		t.Fatalf("expected streak 3, got %d", got.Streak)
	}
	if got.LastLoginDay != today {
		t.Fatalf("expected login day %s, got %s", today, got.LastLoginDay)
	}
	if got.DailyConversations != 1 {
		t.Fatalf("dailyConversations must stay 1, got %d", got.DailyConversations)
	}

	// Same-day repeat is idempotent.
	sendEvent(t, conn, "fetchProfile", map[string]string{"userId": "u1"})
	event = expectEvent(t, conn, "profileData")
	if err := json.Unmarshal(event.Payload, &got); err != nil {
		t.Fatalf("unmarshal profile err: %v", err)
	}
	if got.Streak != 3 || got.LastLoginDay != today || got.DailyConversations != 1 {
		t.Fatalf("second fetch changed the profile: %+v", got)
	}
}

func TestFetchProfileValidation(t *testing.T) {
	_, handler := newFixture(store.NewMemory(), &fakeDialogues{})
	conn := dialTestServer(t, handler)

	sendEvent(t, conn, "fetchProfile", map[string]string{})
	expectEvent(t, conn, "profileError")

	sendEvent(t, conn, "fetchProfile", map[string]string{"userId": "ghost"})
	expectEvent(t, conn, "profileError")
}

func TestFetchProfileStoreWriteFailureFallsBack(t *testing.T) {
	memory := store.NewMemory()
	memory.Seed(profile.Profile{ID: "u1", Streak: 2, LastLoginDay: yesterday, LastConversationDay: today, DailyConversations: 1})
	_, handler := newFixture(failingUpdates{memory}, &fakeDialogues{})
	conn := dialTestServer(t, handler)

	sendEvent(t, conn, "fetchProfile", map[string]string{"userId": "u1"})

	event := expectEvent(t, conn, "profileData")
	var got profile.Profile
	if err := json.Unmarshal(event.Payload, &got); err != nil {
		t.Fatalf("unmarshal profile err: %v", err)
	}
	if got.Streak != 2 {
		t.Fatalf("expected the pre-update snapshot, got %+v", got)
	}
}

func TestStartConversationQuotaExceeded(t *testing.T) {
	profiles := store.NewMemory()
	profiles.Seed(profile.Profile{ID: "u1", LastConversationDay: today, DailyConversations: 3})
	fx, handler := newFixture(profiles, &fakeDialogues{})
	conn := dialTestServer(t, handler)

	sendEvent(t, conn, "startConversation", map[string]string{"userId": "u1", "scenario": "cafe-ordering"})
	expectEvent(t, conn, "quotaExceeded")

	if fx.registry.Len() != 0 {
		t.Fatal("no session may be created when the quota denies the start")
	}
}

func TestStartConversationStaleCounterCountsAsZero(t *testing.T) {
	profiles := store.NewMemory()
	profiles.Seed(profile.Profile{ID: "u1", LastConversationDay: yesterday, DailyConversations: 3})
	_, handler := newFixture(profiles, &fakeDialogues{streaming: true, chunks: []string{"hi"}})
	conn := dialTestServer(t, handler)

	sendEvent(t, conn, "startConversation", map[string]string{"userId": "u1", "scenario": "cafe-ordering"})
	expectEvent(t, conn, "dialogueOpened")
}

func TestStartConversationReplacesExistingSession(t *testing.T) {
	profiles := store.NewMemory()
	profiles.Seed(profile.Profile{ID: "u1", LastConversationDay: today})
	fakes := &fakeDialogues{streaming: true, chunks: []string{"hi"}}
	fx, handler := newFixture(profiles, fakes)
	conn := dialTestServer(t, handler)

	sendEvent(t, conn, "startConversation", map[string]string{"userId": "u1", "scenario": "cafe-ordering"})
	expectEvent(t, conn, "dialogueOpened")
	sendEvent(t, conn, "startConversation", map[string]string{"userId": "u1", "scenario": "job-interview"})
	expectEvent(t, conn, "dialogueOpened")

	opened := fakes.openedDialogues()
	if len(opened) != 2 {
		t.Fatalf("expected two dialogues, got %d", len(opened))
	}
	if !opened[0].Closed() {
		t.Fatal("displaced dialogue must be closed")
	}
	if opened[1].Closed() {
		t.Fatal("active dialogue must stay open")
	}
	if fx.registry.Len() != 1 {
		t.Fatalf("expected one active session, got %d", fx.registry.Len())
	}
}

func TestSendMessageWithoutSession(t *testing.T) {
	fx, handler := newFixture(store.NewMemory(), &fakeDialogues{})
	conn := dialTestServer(t, handler)

	sendEvent(t, conn, "sendMessage", map[string]string{"text": "hello"})
	expectEvent(t, conn, "conversationError")

	if fx.registry.Len() != 0 {
		t.Fatal("registry must stay untouched")
	}
}

func TestConversationRecordsCompletionExactlyOnce(t *testing.T) {
	profiles := store.NewMemory()
	profiles.Seed(profile.Profile{ID: "u1", LastLoginDay: today, LastConversationDay: today, DailyConversations: 0})
	_, handler := newFixture(profiles, &fakeDialogues{streaming: true, chunks: []string{"Bon", "jour!"}})
	conn := dialTestServer(t, handler)

	sendEvent(t, conn, "startConversation", map[string]string{"userId": "u1", "scenario": "cafe-ordering"})
	expectEvent(t, conn, "dialogueOpened")

	for turn := 1; turn <= 6; turn++ {
		sendEvent(t, conn, "sendMessage", map[string]string{"text": "bonjour"})

		first := expectEvent(t, conn, "dialogueChunk")
		var chunk struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(first.Payload, &chunk); err != nil {
			t.Fatalf("unmarshal chunk err: %v", err)
		}
		if chunk.Text != "Bon" {
			t.Fatalf("turn %d: chunks out of order, got %q first", turn, chunk.Text)
		}
		expectEvent(t, conn, "dialogueChunk")
		expectEvent(t, conn, "dialogueEnd")

		if turn == 5 {
			event := expectEvent(t, conn, "quotaUpdated")
			var payload struct {
				DailyConversations int `json:"dailyConversations"`
			}
			if err := json.Unmarshal(event.Payload, &payload); err != nil {
				t.Fatalf("unmarshal quota err: %v", err)
			}
			if payload.DailyConversations != 1 {
				t.Fatalf("expected counter 1, got %d", payload.DailyConversations)
			}
		}
	}

	// No stray quotaUpdated after turn 6: the next event on this connection
	// must be the profile answer.
	sendEvent(t, conn, "fetchProfile", map[string]string{"userId": "u1"})
	event := expectEvent(t, conn, "profileData")
	var got profile.Profile
	if err := json.Unmarshal(event.Payload, &got); err != nil {
		t.Fatalf("unmarshal profile err: %v", err)
	}
	if got.DailyConversations != 1 {
		t.Fatalf("completion must be recorded exactly once, counter is %d", got.DailyConversations)
	}
}

func TestPremiumCompletionSkipsQuota(t *testing.T) {
	profiles := store.NewMemory()
	profiles.Seed(profile.Profile{ID: "u1", IsPremium: true, LastLoginDay: today, LastConversationDay: today})
	_, handler := newFixture(profiles, &fakeDialogues{streaming: true, chunks: []string{"ok"}})
	conn := dialTestServer(t, handler)

	sendEvent(t, conn, "startConversation", map[string]string{"userId": "u1", "scenario": "cafe-ordering"})
	expectEvent(t, conn, "dialogueOpened")

	for turn := 1; turn <= 5; turn++ {
		sendEvent(t, conn, "sendMessage", map[string]string{"text": "hello"})
		expectEvent(t, conn, "dialogueChunk")
		expectEvent(t, conn, "dialogueEnd")
	}

	sendEvent(t, conn, "fetchProfile", map[string]string{"userId": "u1"})
	event := expectEvent(t, conn, "profileData")
	var got profile.Profile
	if err := json.Unmarshal(event.Payload, &got); err != nil {
		t.Fatalf("unmarshal profile err: %v", err)
	}
	if got.DailyConversations != 0 {
		t.Fatalf("premium sessions must not bill the quota, counter is %d", got.DailyConversations)
	}
}

func TestStreamFailureLeavesSessionActive(t *testing.T) {
	profiles := store.NewMemory()
	profiles.Seed(profile.Profile{ID: "u1", LastConversationDay: today})
	fakes := &fakeDialogues{streaming: true, chunks: []string{"par"}, streamErr: errors.New("provider went away")}
	fx, handler := newFixture(profiles, fakes)
	conn := dialTestServer(t, handler)

	sendEvent(t, conn, "startConversation", map[string]string{"userId": "u1", "scenario": "cafe-ordering"})
	expectEvent(t, conn, "dialogueOpened")

	sendEvent(t, conn, "sendMessage", map[string]string{"text": "hello"})
	expectEvent(t, conn, "dialogueChunk")
	expectEvent(t, conn, "conversationError")

	if fx.registry.Len() != 1 {
		t.Fatal("session must survive a failed turn")
	}

	// The session keeps working once the provider recovers, and the failed
	// turn still counts: completion fires after four more turns.
	fakes.setStreamErr(nil)
	for turn := 2; turn <= 5; turn++ {
		sendEvent(t, conn, "sendMessage", map[string]string{"text": "again"})
		expectEvent(t, conn, "dialogueChunk")
		expectEvent(t, conn, "dialogueEnd")
		if turn == 5 {
			expectEvent(t, conn, "quotaUpdated")
		}
	}
}

func TestDisconnectRemovesSession(t *testing.T) {
	profiles := store.NewMemory()
	profiles.Seed(profile.Profile{ID: "u1", LastConversationDay: today})
	fakes := &fakeDialogues{streaming: true, chunks: []string{"hi"}}
	fx, handler := newFixture(profiles, fakes)
	conn := dialTestServer(t, handler)

	sendEvent(t, conn, "startConversation", map[string]string{"userId": "u1", "scenario": "cafe-ordering"})
	expectEvent(t, conn, "dialogueOpened")

	conn.Close()

	dialogue := fakes.openedDialogues()[0]
	deadline := time.Now().Add(2 * time.Second)
	for fx.registry.Len() != 0 || !dialogue.Closed() {
		if time.Now().After(deadline) {
			t.Fatalf("disconnect cleanup incomplete: sessions=%d closed=%v", fx.registry.Len(), dialogue.Closed())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
