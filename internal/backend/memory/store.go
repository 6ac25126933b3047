// Package memory is an in-process backend used by tests and local demos.
// It records the calls it receives so callers can assert on ordering.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"swaft/internal/backend"
	"swaft/internal/model"

	"github.com/google/uuid"
)

// Store implements the profile, room and message stores and the change feed.
type Store struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]model.Profile
	rooms    []model.Room
	messages map[uuid.UUID]model.Message
	subs     map[uuid.UUID]map[*feedSub]bool
	failures map[string]error
	calls    []string
	clock    time.Time
}

type feedSub struct {
	roomID uuid.UUID
	fn     func(model.ChangeEvent)
}

var (
	_ backend.ProfileStore = (*Store)(nil)
	_ backend.RoomStore    = (*Store)(nil)
	_ backend.MessageStore = (*Store)(nil)
	_ backend.ChangeFeed   = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		profiles: make(map[uuid.UUID]model.Profile),
		messages: make(map[uuid.UUID]model.Message),
		subs:     make(map[uuid.UUID]map[*feedSub]bool),
		failures: make(map[string]error),
		clock:    time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

// tick returns strictly increasing timestamps so created_at ordering is total.
func (s *Store) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

// FailNext makes the next call of op return err. op is one of the names
// recorded by Calls (without arguments), e.g. "insert_message".
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *Store) record(op string, args ...any) error {
	call := op
	for _, a := range args {
		call += fmt.Sprintf(" %v", a)
	}
	s.calls = append(s.calls, call)
	if err, ok := s.failures[op]; ok {
		delete(s.failures, op)
		return err
	}
	return nil
}

// Calls returns the operations received so far, oldest first.
func (s *Store) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// ---------------------------------------------
// Seeding helpers
// ---------------------------------------------

func (s *Store) AddRoom(name string, t model.RoomType) model.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := model.Room{ID: uuid.New(), Name: name, Type: t, CreatedAt: s.tick()}
	s.rooms = append(s.rooms, r)
	return r
}

func (s *Store) PutProfile(p model.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
}

// Message returns the stored row, if any.
func (s *Store) Message(id uuid.UUID) (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	return m, ok
}

// Subscribers counts live change-feed subscriptions for roomID.
func (s *Store) Subscribers(roomID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[roomID])
}

// ---------------------------------------------
// ProfileStore
// ---------------------------------------------

func (s *Store) GetProfile(_ context.Context, id uuid.UUID) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("get_profile", id); err != nil {
		return nil, err
	}
	p, ok := s.profiles[id]
	if !ok {
		return nil, backend.ErrNotFound
	}
	return &p, nil
}

func (s *Store) UpsertProfile(_ context.Context, p model.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("upsert_profile", p.ID); err != nil {
		return err
	}
	s.profiles[p.ID] = p
	return nil
}

// ---------------------------------------------
// RoomStore
// ---------------------------------------------

func (s *Store) ListRooms(_ context.Context, t model.RoomType) ([]model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("list_rooms", t); err != nil {
		return nil, err
	}
	var out []model.Room
	for _, r := range s.rooms {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out, nil
}

// ---------------------------------------------
// MessageStore
// ---------------------------------------------

func (s *Store) ListMessages(_ context.Context, roomID uuid.UUID, private bool) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("list_messages", roomID, private); err != nil {
		return nil, err
	}
	var out []model.Message
	for _, m := range s.messages {
		if m.RoomID == roomID && m.Private == private {
			out = append(out, s.withAuthor(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) withAuthor(m model.Message) model.Message {
	if p, ok := s.profiles[m.UserID]; ok {
		m.Author = model.Author{Nickname: p.Nickname, AvatarURL: p.AvatarURL}
	}
	return m
}

func (s *Store) InsertMessage(_ context.Context, nm model.NewMessage) (*model.Message, error) {
	s.mu.Lock()
	if err := s.record("insert_message", nm.RoomID, nm.Private); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if !s.hasRoomLocked(nm.RoomID) {
		s.mu.Unlock()
		return nil, fmt.Errorf("room %s: %w", nm.RoomID, backend.ErrNotFound)
	}
	m := model.Message{
		ID:        uuid.New(),
		RoomID:    nm.RoomID,
		UserID:    nm.UserID,
		Content:   nm.Content,
		Private:   nm.Private,
		CreatedAt: s.tick(),
	}
	s.messages[m.ID] = m
	m = s.withAuthor(m)
	fns := s.subscribersLocked(m.RoomID)
	s.mu.Unlock()

	notify(fns, model.ChangeEvent{Kind: model.ChangeInsert, RoomID: m.RoomID, MessageID: m.ID, Private: m.Private, Message: &m})
	return &m, nil
}

func (s *Store) hasRoomLocked(id uuid.UUID) bool {
	for _, r := range s.rooms {
		if r.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) UpdateMessageContent(_ context.Context, id, authorID uuid.UUID, content string) (*model.Message, error) {
	s.mu.Lock()
	if err := s.record("update_message", id); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	m, ok := s.messages[id]
	if !ok || m.UserID != authorID {
		s.mu.Unlock()
		return nil, backend.ErrNotFound
	}
	m.Content = content
	s.messages[id] = m
	m = s.withAuthor(m)
	fns := s.subscribersLocked(m.RoomID)
	s.mu.Unlock()

	notify(fns, model.ChangeEvent{Kind: model.ChangeUpdate, RoomID: m.RoomID, MessageID: m.ID, Private: m.Private, Message: &m})
	return &m, nil
}

func (s *Store) DeleteMessage(_ context.Context, id, authorID uuid.UUID) error {
	s.mu.Lock()
	if err := s.record("delete_message", id); err != nil {
		s.mu.Unlock()
		return err
	}
	m, ok := s.messages[id]
	if !ok || m.UserID != authorID {
		s.mu.Unlock()
		return backend.ErrNotFound
	}
	delete(s.messages, id)
	fns := s.subscribersLocked(m.RoomID)
	s.mu.Unlock()

	notify(fns, model.ChangeEvent{Kind: model.ChangeDelete, RoomID: m.RoomID, MessageID: m.ID, Private: m.Private})
	return nil
}

// ---------------------------------------------
// ChangeFeed
// ---------------------------------------------

func (s *Store) Subscribe(_ context.Context, roomID uuid.UUID, fn func(model.ChangeEvent)) (backend.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("subscribe", roomID); err != nil {
		return nil, err
	}
	sub := &feedSub{roomID: roomID, fn: fn}
	if s.subs[roomID] == nil {
		s.subs[roomID] = make(map[*feedSub]bool)
	}
	s.subs[roomID][sub] = true

	var once sync.Once
	return backend.SubscriptionFunc(func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.calls = append(s.calls, fmt.Sprintf("unsubscribe %v", roomID))
			delete(s.subs[roomID], sub)
			if len(s.subs[roomID]) == 0 {
				delete(s.subs, roomID)
			}
		})
	}), nil
}

// Publish delivers ev to the room's subscribers, as an external writer would.
func (s *Store) Publish(ev model.ChangeEvent) {
	s.mu.Lock()
	fns := s.subscribersLocked(ev.RoomID)
	s.mu.Unlock()
	notify(fns, ev)
}

func (s *Store) subscribersLocked(roomID uuid.UUID) []func(model.ChangeEvent) {
	fns := make([]func(model.ChangeEvent), 0, len(s.subs[roomID]))
	for sub := range s.subs[roomID] {
		fns = append(fns, sub.fn)
	}
	return fns
}

func notify(fns []func(model.ChangeEvent), ev model.ChangeEvent) {
	for _, fn := range fns {
		fn(ev)
	}
}
