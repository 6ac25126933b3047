package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"swaft/internal/backend"
	"swaft/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "chat:room:"

// RoomChannel is the Redis channel carrying change events for roomID.
func RoomChannel(roomID uuid.UUID) string {
	return channelPrefix + roomID.String()
}

type subscriber struct {
	roomID uuid.UUID
	fn     func(model.ChangeEvent)
}

// Hub is the change feed. Events published by any instance reach Redis, come
// back through one pattern subscription and are fanned out to the local
// subscribers of that room.
type Hub struct {
	rooms      map[uuid.UUID]map[*subscriber]bool
	broadcast  chan model.ChangeEvent // From Redis -> subscribers
	Register   chan *subscriber
	Unregister chan *subscriber
	done       chan struct{}
	redis      *redis.Client
}

var (
	_ backend.ChangeFeed = (*Hub)(nil)
	_ Publisher          = (*Hub)(nil)
)

func NewHub(redisClient *redis.Client) *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*subscriber]bool),
		broadcast:  make(chan model.ChangeEvent, 256),
		Register:   make(chan *subscriber),
		Unregister: make(chan *subscriber),
		done:       make(chan struct{}),
		redis:      redisClient,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return

		case sub := <-h.Register:
			if h.rooms[sub.roomID] == nil {
				h.rooms[sub.roomID] = make(map[*subscriber]bool)
			}
			h.rooms[sub.roomID][sub] = true

		case sub := <-h.Unregister:
			if subs, ok := h.rooms[sub.roomID]; ok {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(h.rooms, sub.roomID)
				}
			}

		case ev := <-h.broadcast:
			// Subscriber callbacks never block.
			for sub := range h.rooms[ev.RoomID] {
				sub.fn(ev)
			}
		}
	}
}

// SubscribeToRedis listens for events from every instance, this one
// included. It returns once the pattern subscription is confirmed and keeps
// forwarding in the background until ctx ends.
func (h *Hub) SubscribeToRedis(ctx context.Context) error {
	pubsub := h.redis.PSubscribe(ctx, channelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s*: %w", channelPrefix, err)
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ev, err := decodeEvent(msg.Channel, msg.Payload)
				if err != nil {
					log.Printf("❌ Bad change event on %s: %v", msg.Channel, err)
					continue
				}
				select {
				case h.broadcast <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return nil
}

func decodeEvent(channel, payload string) (model.ChangeEvent, error) {
	var ev model.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, err
	}
	roomID, err := uuid.Parse(strings.TrimPrefix(channel, channelPrefix))
	if err != nil {
		return ev, err
	}
	if ev.RoomID != roomID {
		return ev, fmt.Errorf("event for room %s on channel of room %s", ev.RoomID, roomID)
	}
	return ev, nil
}

func (h *Hub) Publish(ctx context.Context, ev model.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return h.redis.Publish(ctx, RoomChannel(ev.RoomID), payload).Err()
}

// Subscribe registers fn for roomID. Once it returns, every event the hub
// receives for the room reaches fn.
func (h *Hub) Subscribe(ctx context.Context, roomID uuid.UUID, fn func(model.ChangeEvent)) (backend.Subscription, error) {
	sub := &subscriber{roomID: roomID, fn: fn}
	select {
	case h.Register <- sub:
	case <-h.done:
		return nil, fmt.Errorf("subscribe room %s: hub stopped", roomID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return backend.SubscriptionFunc(func() {
		once.Do(func() {
			select {
			case h.Unregister <- sub:
			case <-h.done:
			}
		})
	}), nil
}
