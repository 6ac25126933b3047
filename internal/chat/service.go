package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"swaft/internal/backend"
	"swaft/internal/model"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// listTimeout bounds a shared list query once it no longer belongs to any
// one caller.
const listTimeout = 10 * time.Second

// Publisher fans change events out to every instance.
type Publisher interface {
	Publish(ctx context.Context, ev model.ChangeEvent) error
}

// Service is the room and message store handed to widgets and handlers.
type Service struct {
	repo      *Repository
	publisher Publisher
	lists     singleflight.Group
}

var (
	_ backend.RoomStore    = (*Service)(nil)
	_ backend.MessageStore = (*Service)(nil)
)

func NewService(repo *Repository, publisher Publisher) *Service {
	return &Service{repo: repo, publisher: publisher}
}

func (s *Service) ListRooms(ctx context.Context, t model.RoomType) ([]model.Room, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("list rooms: unknown type %q", t)
	}
	return s.repo.ListRooms(ctx, t)
}

// ListMessages collapses concurrent identical queries, which is what a burst
// of change notifications in a busy room turns into. The shared query is
// detached from the caller that started it; each caller only waits on its
// own ctx.
func (s *Service) ListMessages(ctx context.Context, roomID uuid.UUID, private bool) ([]model.Message, error) {
	key := fmt.Sprintf("%s:%t", roomID, private)
	ch := s.lists.DoChan(key, func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), listTimeout)
		defer cancel()
		return s.repo.ListMessages(qctx, roomID, private)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// Callers own their slice.
		shared := res.Val.([]model.Message)
		return append([]model.Message(nil), shared...), nil
	}
}

func (s *Service) InsertMessage(ctx context.Context, nm model.NewMessage) (*model.Message, error) {
	content, err := model.NormalizeContent(nm.Content)
	if err != nil {
		return nil, err
	}
	nm.Content = content

	msg, err := s.repo.InsertMessage(ctx, nm)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, model.ChangeEvent{
		Kind:      model.ChangeInsert,
		RoomID:    msg.RoomID,
		MessageID: msg.ID,
		Private:   msg.Private,
		Message:   msg,
	})
	return msg, nil
}

func (s *Service) UpdateMessageContent(ctx context.Context, id, authorID uuid.UUID, content string) (*model.Message, error) {
	content, err := model.NormalizeContent(content)
	if err != nil {
		return nil, err
	}

	msg, err := s.repo.UpdateMessageContent(ctx, id, authorID, content)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, model.ChangeEvent{
		Kind:      model.ChangeUpdate,
		RoomID:    msg.RoomID,
		MessageID: msg.ID,
		Private:   msg.Private,
		Message:   msg,
	})
	return msg, nil
}

func (s *Service) DeleteMessage(ctx context.Context, id, authorID uuid.UUID) error {
	roomID, private, err := s.repo.DeleteMessage(ctx, id, authorID)
	if err != nil {
		return err
	}
	s.publish(ctx, model.ChangeEvent{
		Kind:      model.ChangeDelete,
		RoomID:    roomID,
		MessageID: id,
		Private:   private,
	})
	return nil
}

// The row is already committed, so a failed publish only delays other
// viewers until their next refresh.
func (s *Service) publish(ctx context.Context, ev model.ChangeEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Printf("❌ publish %s for room %s: %v", ev.Kind, ev.RoomID, err)
	}
}
