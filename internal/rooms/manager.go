// Package rooms keeps per-room conversation logs in step with the
// backend.
//
// Every load records the room it targets and a per-room token. A result
// is applied only if that token is still current and, for loads aimed at
// the active room, the room is still active. Switching rooms or closing
// the manager invalidates outstanding loads.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/station-console/station/internal/dispatch"
)

var (
	// ErrEmptyText rejects appends whose text is blank.
	ErrEmptyText = errors.New("rooms: message text is empty")

	// ErrNoActiveRoom is returned when an operation needs a room id.
	ErrNoActiveRoom = errors.New("rooms: no active room")

	// ErrStale marks a load result that was not applied because its room
	// was switched away from.
	ErrStale = errors.New("rooms: result discarded")

	ErrClosed = errors.New("rooms: manager closed")
)

// DefaultLimit is how many messages a load requests.
const DefaultLimit = 80

// Caller issues dispatch actions. *dispatch.Session satisfies it.
type Caller interface {
	Call(ctx context.Context, action string, params dispatch.Params) dispatch.Result
}

type roomState struct {
	phase    Phase
	messages []Message
	token    uint64
	lastErr  string
	loadedAt time.Time
	// appends counts posts still in flight.
	appends int
}

type Manager struct {
	caller Caller
	log    logrus.FieldLogger
	limit  int
	now    func() time.Time

	mu     sync.Mutex
	rooms  []Room
	active string
	logs   map[string]*roomState
	closed bool
}

type Option func(*Manager)

func WithLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.limit = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(m *Manager) { m.log = log.WithField("component", "rooms") }
}

// NewManager starts with def as the active room.
func NewManager(caller Caller, def Room, opts ...Option) *Manager {
	m := &Manager{
		caller: caller,
		log:    logrus.StandardLogger().WithField("component", "rooms"),
		limit:  DefaultLimit,
		now:    time.Now,
		active: def.ID,
		logs:   map[string]*roomState{},
	}
	if def.ID != "" {
		m.rooms = []Room{def}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Limit() int { return m.limit }

// Active returns the active room id.
func (m *Manager) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// ActiveRoom returns the active room, with its cached title when known.
func (m *Manager) ActiveRoom() Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		if r.ID == m.active {
			return r
		}
	}
	return Room{ID: m.active}
}

// Rooms returns a copy of the cached room list.
func (m *Manager) Rooms() []Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Room, len(m.rooms))
	copy(out, m.rooms)
	return out
}

// View returns a copy of one room's log.
func (m *Manager) View(roomID string) Log {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.logs[roomID]
	if !ok {
		return Log{RoomID: roomID, Phase: Unloaded}
	}
	msgs := make([]Message, len(st.messages))
	copy(msgs, st.messages)
	return Log{RoomID: roomID, Phase: st.phase, Messages: msgs, LastErr: st.lastErr, LoadedAt: st.loadedAt}
}

func (m *Manager) state(roomID string) *roomState {
	st, ok := m.logs[roomID]
	if !ok {
		st = &roomState{}
		m.logs[roomID] = st
	}
	return st
}

// ListRooms refreshes the cached room list.
func (m *Manager) ListRooms(ctx context.Context) ([]Room, error) {
	res := m.caller.Call(ctx, "rooms_list", nil)
	if err := res.Err(); err != nil {
		return nil, err
	}
	var payload struct {
		Rooms []wireRoom `json:"rooms"`
	}
	if err := res.Decode(&payload); err != nil {
		return nil, fmt.Errorf("unexpected rooms payload: %w", err)
	}
	rooms := make([]Room, 0, len(payload.Rooms))
	for _, r := range payload.Rooms {
		id := idString(r.ID)
		if id == "" {
			continue
		}
		rooms = append(rooms, Room{ID: id, Title: r.Title})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.rooms = rooms
	out := make([]Room, len(rooms))
	copy(out, rooms)
	return out, nil
}

// Activate makes roomID active without loading it. Outstanding loads for
// the room being left are invalidated.
func (m *Manager) Activate(roomID string) {
	roomID = strings.TrimSpace(roomID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if roomID == m.active {
		return
	}
	if prev, ok := m.logs[m.active]; ok {
		prev.token++
		if prev.phase == Loading || prev.phase == Appending {
			prev.phase = settledPhase(prev)
		}
	}
	m.active = roomID
	m.log.WithField("room_id", roomID).Debug("room activated")
}

// Switch activates roomID and loads its log.
func (m *Manager) Switch(ctx context.Context, roomID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return ErrNoActiveRoom
	}
	m.Activate(roomID)
	_, err := m.LoadMessages(ctx, roomID, m.limit)
	return err
}

// LoadMessages fetches a room's log and, if the result is still wanted,
// replaces the cached log with it. A discarded result returns ErrStale.
func (m *Manager) LoadMessages(ctx context.Context, roomID string, limit int) ([]Message, error) {
	if roomID == "" {
		return nil, ErrNoActiveRoom
	}
	if limit <= 0 {
		limit = m.limit
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	st := m.state(roomID)
	st.token++
	token := st.token
	targetsActive := m.active == roomID
	if st.phase != Appending {
		st.phase = Loading
	}
	m.mu.Unlock()

	res := m.caller.Call(ctx, "room_messages", dispatch.Params{"room_id": roomID, "limit": limit})
	msgs, err := decodeMessages(res)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || st.token != token || (targetsActive && m.active != roomID) {
		m.log.WithField("room_id", roomID).Debug("discarding stale room load")
		return nil, ErrStale
	}
	if err != nil {
		st.lastErr = err.Error()
		st.phase = settledPhase(st)
		return nil, err
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	st.messages = append(msgs, unposted(st.messages)...)
	st.lastErr = ""
	st.loadedAt = m.now()
	st.phase = settledPhase(st)
	return out, nil
}

// unposted returns the pending entries whose post has not completed yet.
// A reload cannot contain them, so they outlive it.
func unposted(msgs []Message) []Message {
	var out []Message
	for _, msg := range msgs {
		if msg.Pending && !msg.Sent {
			out = append(out, msg)
		}
	}
	return out
}

func settledPhase(st *roomState) Phase {
	if st.appends > 0 {
		return Appending
	}
	if st.loadedAt.IsZero() {
		return Unloaded
	}
	return Loaded
}

func decodeMessages(res dispatch.Result) ([]Message, error) {
	if err := res.Err(); err != nil {
		return nil, err
	}
	var payload struct {
		Messages []wireMessage `json:"messages"`
	}
	if err := res.Decode(&payload); err != nil {
		return nil, fmt.Errorf("unexpected messages payload: %w", err)
	}
	msgs := make([]Message, 0, len(payload.Messages))
	for _, w := range payload.Messages {
		msgs = append(msgs, w.message())
	}
	sortMessages(msgs)
	return msgs, nil
}

// EnsureRoom creates the room on the backend if needed and refreshes the
// room list.
func (m *Manager) EnsureRoom(ctx context.Context, roomID, title string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return ErrNoActiveRoom
	}
	res := m.caller.Call(ctx, "room_ensure", dispatch.Params{"room_id": roomID, "title": strings.TrimSpace(title)})
	if err := res.Err(); err != nil {
		return err
	}
	_, err := m.ListRooms(ctx)
	return err
}

// RenameRoom retitles a room, updates the cached title and refreshes the
// room list.
func (m *Manager) RenameRoom(ctx context.Context, roomID, title string) error {
	roomID = strings.TrimSpace(roomID)
	title = strings.TrimSpace(title)
	if roomID == "" {
		return ErrNoActiveRoom
	}
	res := m.caller.Call(ctx, "room_rename", dispatch.Params{"room_id": roomID, "title": title})
	if err := res.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	for i := range m.rooms {
		if m.rooms[i].ID == roomID {
			m.rooms[i].Title = title
		}
	}
	m.mu.Unlock()
	_, err := m.ListRooms(ctx)
	return err
}

// AppendMessage posts text to a room and reloads its log. Blank text is
// rejected before any request. While the post is in flight the log holds
// a pending copy of the message and loads issued before the post are
// discarded. The reload replaces the copy. If the reload fails the copy
// stays, marked Sent, until a later load confirms it.
func (m *Manager) AppendMessage(ctx context.Context, roomID string, role Role, text string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return ErrNoActiveRoom
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	if role == "" {
		role = RoleUser
	}

	pending := Message{
		ID:        "pending-" + uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: m.now(),
		Pending:   true,
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	st := m.state(roomID)
	st.token++
	st.appends++
	st.messages = append(st.messages, pending)
	st.phase = Appending
	m.mu.Unlock()

	res := m.caller.Call(ctx, "room_append", dispatch.Params{"room_id": roomID, "role": string(role), "text": text})
	if err := res.Err(); err != nil {
		m.mu.Lock()
		st.appends--
		st.messages = removeMessage(st.messages, pending.ID)
		st.lastErr = err.Error()
		st.phase = settledPhase(st)
		m.mu.Unlock()
		m.log.WithField("room_id", roomID).WithError(err).Warn("append failed")
		return err
	}

	m.mu.Lock()
	st.appends--
	for i := range st.messages {
		if st.messages[i].ID == pending.ID {
			st.messages[i].Sent = true
		}
	}
	st.phase = settledPhase(st)
	m.mu.Unlock()

	_, err := m.LoadMessages(ctx, roomID, m.limit)
	if err == nil || errors.Is(err, ErrStale) {
		return nil
	}
	return fmt.Errorf("message sent but reload failed: %w", err)
}

func removeMessage(msgs []Message, id string) []Message {
	out := msgs[:0]
	for _, msg := range msgs {
		if msg.ID != id {
			out = append(out, msg)
		}
	}
	return out
}

// Close invalidates every outstanding load.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for _, st := range m.logs {
		st.token++
	}
}
