package chat

import (
	"bytes"
	"context"
	"errors"
	"log"
	"slices"
	"time"

	"swaft/internal/avatar"
	"swaft/internal/backend"
	"swaft/internal/model"

	"github.com/google/uuid"
)

// DefaultMountDelay gates auto-scroll until the widget has finished opening.
const DefaultMountDelay = 100 * time.Millisecond

const eventBuffer = 64

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNoActiveRoom     = errors.New("no active room")
	ErrNotAuthor        = errors.New("only the author can change this message")
	ErrNotEditing       = errors.New("no message is being edited")
	ErrUnknownTab       = errors.New("unknown tab")
	ErrUnknownCommand   = errors.New("unknown command")
)

type Tab string

const (
	TabPublic  Tab = "public"
	TabPrivate Tab = "private"
)

func (t Tab) private() bool { return t == TabPrivate }

func (t Tab) roomType() model.RoomType {
	if t == TabPrivate {
		return model.RoomPrivate
	}
	return model.RoomPublic
}

type Viewer struct {
	ID        uuid.UUID `json:"id"`
	Nickname  string    `json:"nickname"`
	AvatarURL string    `json:"avatar_url"`
}

type Editing struct {
	MessageID uuid.UUID `json:"message_id"`
	Content   string    `json:"content"`
}

// State is what the client renders.
type State struct {
	Open           bool            `json:"open"`
	Mounted        bool            `json:"mounted"`
	Tab            Tab             `json:"tab"`
	Rooms          []model.Room    `json:"rooms"`
	ActiveRoom     *model.Room     `json:"active_room"`
	Messages       []model.Message `json:"messages"`
	Editing        *Editing        `json:"editing,omitempty"`
	Draft          string          `json:"draft"`
	Error          string          `json:"error,omitempty"`
	Viewer         *Viewer         `json:"viewer,omitempty"`
	ScrollToBottom bool            `json:"scroll_to_bottom"`
}

// Command is one user action sent over the socket.
type Command struct {
	Type      string    `json:"type"`
	Tab       Tab       `json:"tab,omitempty"`
	RoomID    uuid.UUID `json:"room_id,omitempty"`
	MessageID uuid.UUID `json:"message_id,omitempty"`
	Content   string    `json:"content,omitempty"`
}

// Widget is the chat panel of one connection. Its state is owned by the
// goroutine running Run; the exported actions are meant to be called from
// that goroutine only.
type Widget struct {
	backend    *backend.Client
	avatars    *avatar.Resolver
	session    *model.Session
	mountDelay time.Duration

	state       State
	sub         backend.Subscription
	mountTimer  *time.Timer
	mountC      <-chan time.Time
	listChanged bool

	events chan model.ChangeEvent
	resync chan struct{}
}

func NewWidget(client *backend.Client, avatars *avatar.Resolver, session *model.Session, mountDelay time.Duration) *Widget {
	return &Widget{
		backend:    client,
		avatars:    avatars,
		session:    session,
		mountDelay: mountDelay,
		state:      State{Tab: TabPublic},
		events:     make(chan model.ChangeEvent, eventBuffer),
		resync:     make(chan struct{}, 1),
	}
}

// Run drives the widget until ctx ends or commands is closed. emit receives
// a frame after every transition.
func (w *Widget) Run(ctx context.Context, commands <-chan Command, emit func(State)) error {
	defer w.Shutdown()

	w.Start(ctx)
	emit(w.Frame())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case cmd, ok := <-commands:
			if !ok {
				return nil
			}
			w.Apply(ctx, cmd)

		case ev := <-w.events:
			w.HandleEvent(ctx, ev)

		case <-w.resync:
			w.Refresh(ctx)

		case <-w.mountC:
			w.mountC = nil
			w.state.Mounted = true
		}
		emit(w.Frame())
	}
}

// Start loads the viewer and the rooms of the current tab.
func (w *Widget) Start(ctx context.Context) error {
	viewerErr := w.loadViewer(ctx)
	roomsErr := w.loadRooms(ctx)
	if viewerErr != nil {
		w.fail("load viewer", viewerErr)
		return viewerErr
	}
	return roomsErr
}

func (w *Widget) loadViewer(ctx context.Context) error {
	if w.session == nil {
		return nil
	}
	user, err := w.backend.Identity.GetUser(ctx, w.session)
	if err != nil {
		return err
	}
	v := &Viewer{ID: user.ID}

	p, err := w.backend.Profiles.GetProfile(ctx, user.ID)
	switch {
	case err == nil:
		v.Nickname = p.Nickname
		v.AvatarURL = w.avatars.Resolve(p.AvatarURL, user.AvatarURL)
	case errors.Is(err, backend.ErrNotFound):
		v.AvatarURL = w.avatars.Resolve(user.AvatarURL)
	default:
		return err
	}
	if v.Nickname == "" {
		v.Nickname = model.AnonymousNickname
	}
	w.state.Viewer = v
	return nil
}

// Apply dispatches a socket command. Failures are also reported in the
// state's error field.
func (w *Widget) Apply(ctx context.Context, cmd Command) error {
	switch cmd.Type {
	case "open":
		w.Open()
		return nil
	case "close":
		w.Close()
		return nil
	case "tab":
		return w.SwitchTab(ctx, cmd.Tab)
	case "room":
		return w.SelectRoom(ctx, cmd.RoomID)
	case "send":
		return w.Send(ctx, cmd.Content)
	case "edit_start":
		return w.BeginEdit(cmd.MessageID)
	case "edit_cancel":
		w.CancelEdit()
		return nil
	case "edit":
		return w.SubmitEdit(ctx, cmd.Content)
	case "delete":
		return w.Delete(ctx, cmd.MessageID)
	case "refresh":
		return w.Refresh(ctx)
	default:
		w.fail("apply "+cmd.Type, ErrUnknownCommand)
		return ErrUnknownCommand
	}
}

func (w *Widget) Open() {
	if w.state.Open {
		return
	}
	w.state.Open = true
	w.stopMountTimer()
	w.mountTimer = time.NewTimer(w.mountDelay)
	w.mountC = w.mountTimer.C
}

func (w *Widget) Close() {
	w.stopMountTimer()
	w.state.Open = false
	w.state.Mounted = false
}

func (w *Widget) stopMountTimer() {
	if w.mountTimer != nil {
		w.mountTimer.Stop()
		w.mountTimer = nil
	}
	w.mountC = nil
}

// SwitchTab re-queries the rooms of the new tab and refetches messages with
// the new privacy flag. An active room stays active.
func (w *Widget) SwitchTab(ctx context.Context, tab Tab) error {
	if tab != TabPublic && tab != TabPrivate {
		w.fail("switch tab", ErrUnknownTab)
		return ErrUnknownTab
	}
	w.state.Tab = tab
	w.state.Editing = nil
	return w.loadRooms(ctx)
}

func (w *Widget) loadRooms(ctx context.Context) error {
	rooms, err := w.backend.Rooms.ListRooms(ctx, w.state.Tab.roomType())
	if err != nil {
		w.fail("list rooms", err)
		return err
	}
	w.state.Rooms = rooms

	if w.state.ActiveRoom == nil && len(rooms) > 0 {
		return w.activate(ctx, rooms[0])
	}
	return w.Refresh(ctx)
}

func (w *Widget) SelectRoom(ctx context.Context, roomID uuid.UUID) error {
	i := slices.IndexFunc(w.state.Rooms, func(r model.Room) bool { return r.ID == roomID })
	if i < 0 {
		w.fail("select room", backend.ErrNotFound)
		return backend.ErrNotFound
	}
	return w.activate(ctx, w.state.Rooms[i])
}

// activate moves the single feed subscription to room before fetching its
// messages, so no change can fall between the fetch and the subscription.
func (w *Widget) activate(ctx context.Context, room model.Room) error {
	if w.sub != nil {
		w.sub.Unsubscribe()
		w.sub = nil
	}
	w.drainEvents()
	w.state.ActiveRoom = &room
	w.state.Editing = nil
	w.state.Messages = nil
	w.listChanged = true

	sub, subErr := w.backend.Feed.Subscribe(ctx, room.ID, w.onChange)
	if subErr == nil {
		w.sub = sub
	}

	if err := w.Refresh(ctx); err != nil {
		return err
	}
	if subErr != nil {
		// Messages are still shown, only live updates are lost.
		w.fail("subscribe room", subErr)
	}
	return subErr
}

// onChange runs on the feed's goroutine and must not block. When the buffer
// is full the widget falls back to a full refetch.
func (w *Widget) onChange(ev model.ChangeEvent) {
	select {
	case w.events <- ev:
	default:
		select {
		case w.resync <- struct{}{}:
		default:
		}
	}
}

// drainEvents drops notifications queued for a previous room.
func (w *Widget) drainEvents() {
	for {
		select {
		case <-w.events:
		case <-w.resync:
		default:
			return
		}
	}
}

// Refresh replaces the message list with the store's rows for the active
// room and tab.
func (w *Widget) Refresh(ctx context.Context) error {
	room := w.state.ActiveRoom
	if room == nil {
		if w.state.Messages != nil {
			w.listChanged = true
		}
		w.state.Messages = nil
		return nil
	}

	msgs, err := w.backend.Messages.ListMessages(ctx, room.ID, w.state.Tab.private())
	if err != nil {
		w.fail("list messages", err)
		return err
	}
	for i := range msgs {
		msgs[i] = w.present(msgs[i])
	}
	w.state.Messages = msgs
	w.state.Error = ""
	w.listChanged = true
	return nil
}

// HandleEvent merges a change notification into the message list. Events
// for another room or the other tab are ignored.
func (w *Widget) HandleEvent(ctx context.Context, ev model.ChangeEvent) {
	room := w.state.ActiveRoom
	if room == nil || ev.RoomID != room.ID || ev.Private != w.state.Tab.private() {
		return
	}

	switch ev.Kind {
	case model.ChangeInsert, model.ChangeUpdate:
		if ev.Message == nil || ev.Message.ID != ev.MessageID {
			w.Refresh(ctx)
			return
		}
		w.state.Messages = upsertMessage(w.state.Messages, w.present(*ev.Message))
	case model.ChangeDelete:
		w.state.Messages = slices.DeleteFunc(w.state.Messages, func(m model.Message) bool {
			return m.ID == ev.MessageID
		})
	default:
		w.Refresh(ctx)
		return
	}
	w.listChanged = true
}

// upsertMessage keeps msgs ordered by creation time, then id, with at most
// one entry per id.
func upsertMessage(msgs []model.Message, m model.Message) []model.Message {
	if i := slices.IndexFunc(msgs, func(x model.Message) bool { return x.ID == m.ID }); i >= 0 {
		msgs[i] = m
	} else {
		msgs = append(msgs, m)
	}
	slices.SortStableFunc(msgs, compareMessages)
	return msgs
}

func compareMessages(a, b model.Message) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return bytes.Compare(a.ID[:], b.ID[:])
}

func (w *Widget) present(m model.Message) model.Message {
	return presentMessage(w.avatars, m)
}

// presentMessage fills in the display fallbacks for the author.
func presentMessage(avatars *avatar.Resolver, m model.Message) model.Message {
	if m.Author.Nickname == "" {
		m.Author.Nickname = model.AnonymousNickname
	}
	m.Author.AvatarURL = avatars.Resolve(m.Author.AvatarURL)
	return m
}

// Send inserts a message into the active room. The draft is only cleared on
// success; the message itself shows up through the change feed.
func (w *Widget) Send(ctx context.Context, content string) error {
	w.state.Draft = content
	trimmed, err := model.NormalizeContent(content)
	if err != nil {
		w.fail("send", err)
		return err
	}
	if w.state.Viewer == nil {
		w.fail("send", ErrNotAuthenticated)
		return ErrNotAuthenticated
	}
	if w.state.ActiveRoom == nil {
		w.fail("send", ErrNoActiveRoom)
		return ErrNoActiveRoom
	}

	_, err = w.backend.Messages.InsertMessage(ctx, model.NewMessage{
		RoomID:  w.state.ActiveRoom.ID,
		UserID:  w.state.Viewer.ID,
		Content: trimmed,
		Private: w.state.Tab.private(),
	})
	if err != nil {
		w.fail("send", err)
		return err
	}
	w.state.Draft = ""
	w.state.Error = ""
	return nil
}

func (w *Widget) ownMessage(id uuid.UUID) (model.Message, error) {
	i := slices.IndexFunc(w.state.Messages, func(m model.Message) bool { return m.ID == id })
	if i < 0 {
		return model.Message{}, backend.ErrNotFound
	}
	if w.state.Viewer == nil {
		return model.Message{}, ErrNotAuthenticated
	}
	m := w.state.Messages[i]
	if m.UserID != w.state.Viewer.ID {
		return model.Message{}, ErrNotAuthor
	}
	return m, nil
}

func (w *Widget) BeginEdit(id uuid.UUID) error {
	m, err := w.ownMessage(id)
	if err != nil {
		w.fail("edit", err)
		return err
	}
	w.state.Editing = &Editing{MessageID: m.ID, Content: m.Content}
	w.state.Error = ""
	return nil
}

func (w *Widget) CancelEdit() {
	w.state.Editing = nil
}

// SubmitEdit stores the new content of the message being edited, then leaves
// edit mode and refetches.
func (w *Widget) SubmitEdit(ctx context.Context, content string) error {
	if w.state.Editing == nil {
		w.fail("edit", ErrNotEditing)
		return ErrNotEditing
	}
	w.state.Editing.Content = content
	trimmed, err := model.NormalizeContent(content)
	if err != nil {
		w.fail("edit", err)
		return err
	}
	m, err := w.ownMessage(w.state.Editing.MessageID)
	if err != nil {
		w.fail("edit", err)
		return err
	}

	if _, err := w.backend.Messages.UpdateMessageContent(ctx, m.ID, m.UserID, trimmed); err != nil {
		w.fail("edit", err)
		return err
	}
	w.state.Editing = nil
	return w.Refresh(ctx)
}

func (w *Widget) Delete(ctx context.Context, id uuid.UUID) error {
	m, err := w.ownMessage(id)
	if err != nil {
		w.fail("delete", err)
		return err
	}
	if err := w.backend.Messages.DeleteMessage(ctx, m.ID, m.UserID); err != nil {
		w.fail("delete", err)
		return err
	}
	if w.state.Editing != nil && w.state.Editing.MessageID == id {
		w.state.Editing = nil
	}
	return w.Refresh(ctx)
}

// Frame returns the state to render. ScrollToBottom is set once per change
// of the message list, and only after the widget has mounted.
func (w *Widget) Frame() State {
	s := w.state
	s.Rooms = slices.Clone(w.state.Rooms)
	s.Messages = slices.Clone(w.state.Messages)
	if s.Editing != nil {
		e := *s.Editing
		s.Editing = &e
	}
	s.ScrollToBottom = w.listChanged && w.state.Mounted
	if s.ScrollToBottom {
		w.listChanged = false
	}
	return s
}

// Shutdown releases the feed subscription and the mount timer.
func (w *Widget) Shutdown() {
	w.stopMountTimer()
	if w.sub != nil {
		w.sub.Unsubscribe()
		w.sub = nil
	}
}

func (w *Widget) fail(op string, err error) {
	log.Printf("❌ chat %s: %v", op, err)
	w.state.Error = err.Error()
}
