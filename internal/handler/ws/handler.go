package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/parlohq/parlo/backend/internal/clock"
	"github.com/parlohq/parlo/backend/internal/model/profile"
	"github.com/parlohq/parlo/backend/internal/quota"
	"github.com/parlohq/parlo/backend/internal/relay"
	"github.com/parlohq/parlo/backend/internal/service/ai"
	"github.com/parlohq/parlo/backend/internal/session"
)

// DialogueService is the slice of the AI service the connection handler
// depends on.
type DialogueService interface {
	StreamingEnabled() bool
	Open(ctx context.Context, scenario string) (*ai.Dialogue, string, error)
	Reply(ctx context.Context, dialogue *ai.Dialogue, userText string) (*schema.Message, error)
	Stream(ctx context.Context, dialogue *ai.Dialogue, userText string) (*schema.StreamReader[*schema.Message], error)
}

// Handler owns the websocket endpoint that relays tutor conversations.
type Handler struct {
	profiles  profile.Store
	engine    *quota.Engine
	registry  *session.Registry
	dialogues DialogueService
	upgrader  websocket.Upgrader

	now func() time.Time
}

// New creates the websocket handler. An empty origin list allows any origin.
func New(profiles profile.Store, engine *quota.Engine, registry *session.Registry, dialogues DialogueService, allowedOrigins []string) *Handler {
	return &Handler{
		profiles:  profiles,
		engine:    engine,
		registry:  registry,
		dialogues: dialogues,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		now: time.Now,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		for _, candidate := range allowed {
			if candidate == origin {
				return true
			}
		}
		return false
	}
}

// RegisterRoutes registers the websocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

// connection wraps a websocket with a write lock so the relay, the event
// handlers, and the ping loop never write concurrently.
type connection struct {
	id   string
	sock *websocket.Conn
	mu   sync.Mutex
}

func (c *connection) send(event outboundEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock.WriteJSON(event)
}

func (c *connection) sendError(eventType, message string) {
	if err := c.send(outboundEvent{Type: eventType, Payload: errorPayload{Message: message}}); err != nil {
		log.Printf("[ws] write error failed conn=%s: %v", c.id, err)
	}
}

func (c *connection) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock.WriteMessage(websocket.PingMessage, nil)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer sock.Close()

	conn := &connection{id: uuid.NewString(), sock: sock}
	log.Printf("[ws] new connection conn=%s", conn.id)

	defer func() {
		if removed := h.registry.Remove(conn.id); removed != nil && removed.Dialogue != nil {
			removed.Dialogue.Close()
		}
		log.Printf("[ws] connection closed conn=%s", conn.id)
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sock.SetReadDeadline(time.Now().Add(60 * time.Second))
	sock.SetPongHandler(func(string) error {
		sock.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	go h.pingLoop(ctx, conn)

	// One event at a time per connection: the loop below is the only reader
	// and does not dispatch the next event until the previous handler
	// returned, which gives the per-connection ordering guarantee.
	for {
		select {
		case <-ctx.Done():
			return
		default:
			var event inboundEvent
			if err := sock.ReadJSON(&event); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					log.Printf("[ws] read error conn=%s: %v", conn.id, err)
				}
				return
			}

			sock.SetReadDeadline(time.Now().Add(60 * time.Second))
			h.handleEvent(ctx, conn, &event)
		}
	}
}

func (h *Handler) handleEvent(ctx context.Context, conn *connection, event *inboundEvent) {
	switch event.Type {
	case eventFetchProfile:
		h.handleFetchProfile(ctx, conn, event.Payload)
	case eventStartConversation:
		h.handleStartConversation(ctx, conn, event.Payload)
	case eventSendMessage:
		h.handleSendMessage(ctx, conn, event.Payload)
	default:
		conn.sendError(eventConversationError, "unsupported event type: "+event.Type)
	}
}

// handleFetchProfile reads the profile, reconciles streak and daily counters
// for the current day, and returns the resulting snapshot.
func (h *Handler) handleFetchProfile(ctx context.Context, conn *connection, raw json.RawMessage) {
	var payload fetchProfilePayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.UserID == "" {
		conn.sendError(eventProfileError, "userId is required")
		return
	}

	snapshot, err := h.profiles.Get(ctx, payload.UserID)
	if errors.Is(err, profile.ErrNotFound) {
		conn.sendError(eventProfileError, "profile not found")
		return
	}
	if err != nil {
		log.Printf("[ws] profile lookup failed user=%s: %v", payload.UserID, err)
		conn.sendError(eventProfileError, "profile lookup failed")
		return
	}

	now := h.now()
	update := h.engine.ReconcileLogin(snapshot, clock.Today(now), clock.Yesterday(now))
	if update.Empty() {
		h.sendProfile(conn, snapshot)
		return
	}

	updated, err := h.profiles.Update(ctx, payload.UserID, update)
	if err != nil {
		// Non-fatal: answer with the pre-update snapshot; the record stays
		// unreconciled until a later fetch succeeds.
		log.Printf("[ws] profile reconcile write failed user=%s: %v", payload.UserID, err)
		h.sendProfile(conn, snapshot)
		return
	}

	h.sendProfile(conn, updated)
}

func (h *Handler) sendProfile(conn *connection, p profile.Profile) {
	if err := conn.send(outboundEvent{Type: eventProfileData, Payload: p}); err != nil {
		log.Printf("[ws] write profile failed conn=%s: %v", conn.id, err)
	}
}

// handleStartConversation gates on the daily quota, opens a fresh dialogue,
// and installs it as the connection's active session. A prior session on the
// same connection is displaced and its dialogue handle closed.
func (h *Handler) handleStartConversation(ctx context.Context, conn *connection, raw json.RawMessage) {
	var payload startConversationPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.UserID == "" {
		conn.sendError(eventConversationError, "userId is required")
		return
	}

	snapshot, err := h.profiles.Get(ctx, payload.UserID)
	if errors.Is(err, profile.ErrNotFound) {
		conn.sendError(eventConversationError, "profile not found")
		return
	}
	if err != nil {
		log.Printf("[ws] profile lookup failed user=%s: %v", payload.UserID, err)
		conn.sendError(eventConversationError, "profile lookup failed")
		return
	}

	// A stale conversation day means the counter was never reset today and
	// counts as zero for the quota check.
	effective := snapshot
	if effective.LastConversationDay != clock.Today(h.now()) {
		effective.DailyConversations = 0
	}
	if !h.engine.Check(effective) {
		if err := conn.send(outboundEvent{Type: eventQuotaExceeded}); err != nil {
			log.Printf("[ws] write quotaExceeded failed conn=%s: %v", conn.id, err)
		}
		return
	}

	dialogue, opening, err := h.dialogues.Open(ctx, payload.Scenario)
	if err != nil {
		log.Printf("[ws] open dialogue failed user=%s: %v", payload.UserID, err)
		conn.sendError(eventConversationError, "failed to open conversation")
		return
	}

	_, displaced := h.registry.Create(conn.id, payload.UserID, dialogue)
	if displaced != nil && displaced.Dialogue != nil {
		displaced.Dialogue.Close()
	}

	if err := conn.send(outboundEvent{Type: eventDialogueOpened, Payload: openedPayload{Scenario: payload.Scenario, Text: opening}}); err != nil {
		log.Printf("[ws] write dialogueOpened failed conn=%s: %v", conn.id, err)
	}
}

// handleSendMessage drives one conversation turn: increment the turn counter,
// relay the reply, then record a completion if this turn crossed the
// threshold.
func (h *Handler) handleSendMessage(ctx context.Context, conn *connection, raw json.RawMessage) {
	var payload sendMessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Text == "" {
		conn.sendError(eventConversationError, "text is required")
		return
	}

	sess, ok := h.registry.Get(conn.id)
	if !ok {
		conn.sendError(eventConversationError, "no active session")
		return
	}

	turns := sess.NextTurn()

	if h.dialogues.StreamingEnabled() {
		h.streamTurn(ctx, conn, sess, payload.Text)
	} else {
		h.replyTurn(ctx, conn, sess, payload.Text)
	}

	if h.engine.CompletionDue(turns) {
		h.recordCompletion(ctx, conn, sess)
	}
}

func (h *Handler) streamTurn(ctx context.Context, conn *connection, sess *session.Session, userText string) {
	stream, err := h.dialogues.Stream(ctx, sess.Dialogue, userText)
	if err != nil {
		log.Printf("[ws] ai stream failed conn=%s: %v", conn.id, err)
		conn.sendError(eventConversationError, "failed to generate reply")
		return
	}

	merged, err := relay.Forward(stream, connSink{conn: conn})
	if err != nil {
		log.Printf("[ws] relay stopped conn=%s: %v", conn.id, err)
		return
	}

	sess.Dialogue.Extend(userText, merged)
}

func (h *Handler) replyTurn(ctx context.Context, conn *connection, sess *session.Session, userText string) {
	reply, err := h.dialogues.Reply(ctx, sess.Dialogue, userText)
	if err != nil {
		log.Printf("[ws] ai reply failed conn=%s: %v", conn.id, err)
		conn.sendError(eventConversationError, "failed to generate reply")
		return
	}

	sink := connSink{conn: conn}
	if err := sink.Chunk(reply.Content); err != nil {
		return
	}
	if err := sink.End(); err != nil {
		return
	}

	sess.Dialogue.Extend(userText, reply)
}

// recordCompletion re-fetches the profile before incrementing so a counter
// reset by another login since the session started is not compounded. Two
// sessions of the same user completing at once can still both pass the read;
// that race is accepted.
func (h *Handler) recordCompletion(ctx context.Context, conn *connection, sess *session.Session) {
	fresh, err := h.profiles.Get(ctx, sess.UserID)
	if err != nil {
		log.Printf("[ws] completion fetch failed user=%s: %v", sess.UserID, err)
		return
	}
	if fresh.IsPremium {
		return
	}

	update := h.engine.RecordCompletion(fresh, clock.Today(h.now()))
	updated, err := h.profiles.Update(ctx, sess.UserID, update)
	if err != nil {
		log.Printf("[ws] completion write failed user=%s: %v", sess.UserID, err)
		return
	}

	if err := conn.send(outboundEvent{Type: eventQuotaUpdated, Payload: quotaPayload{DailyConversations: updated.DailyConversations}}); err != nil {
		log.Printf("[ws] write quotaUpdated failed conn=%s: %v", conn.id, err)
	}
}

// connSink adapts a connection to the relay's outbound sink.
type connSink struct {
	conn *connection
}

func (s connSink) Chunk(text string) error {
	return s.conn.send(outboundEvent{Type: eventDialogueChunk, Payload: textPayload{Text: text}})
}

func (s connSink) End() error {
	return s.conn.send(outboundEvent{Type: eventDialogueEnd})
}

func (s connSink) Fail(message string) {
	s.conn.sendError(eventConversationError, message)
}

func (h *Handler) pingLoop(ctx context.Context, conn *connection) {
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}
