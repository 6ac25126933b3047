package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"swaft/internal/auth"
	"swaft/internal/chat"
	"swaft/internal/db"
	"swaft/internal/model"
	"swaft/internal/profile"
	"swaft/internal/user"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

var (
	baseURL   = flag.String("url", "http://localhost:8080", "server base URL")
	userCount = flag.Int("users", 100, "concurrent chat users") // ⚠️ Start small, the DB chokes on 1000 immediately.
	msgCount  = flag.Int("messages", 20, "messages per user")
	parallel  = flag.Int("parallel", 50, "users connecting at once")
)

var (
	sent     atomic.Int64
	received atomic.Int64
)

func main() {
	flag.Parse()

	// Sessions are minted directly: sign-in is OAuth only.
	dsn, secret := os.Getenv("DB_DSN"), os.Getenv("JWT_SECRET")
	if dsn == "" || secret == "" {
		log.Fatal("❌ DB_DSN and JWT_SECRET must be set")
	}
	database, err := db.NewDatabase(dsn)
	if err != nil {
		log.Fatalf("❌ Failed to connect to DB: %v", err)
	}
	defer database.Close()

	users := user.NewRepository(database.Conn)
	profiles := profile.NewRepository(database.Conn)
	sessions := auth.NewSessionManager(secret, time.Hour)

	log.Printf("🔥 STARTING STRESS TEST: %d Users, %d Messages each...", *userCount, *msgCount)
	start := time.Now()

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(*parallel)
	for i := 0; i < *userCount; i++ {
		i := i
		g.Go(func() error {
			token, err := mintSession(ctx, users, profiles, sessions, i)
			if err != nil {
				log.Printf("❌ Session Failed [%d]: %v", i, err)
				return nil
			}
			spamChat(token, i)
			return nil
		})
	}
	g.Wait()

	log.Printf("✅ LOAD TEST COMPLETE in %s: %d sent, %d state frames received",
		time.Since(start).Round(time.Millisecond), sent.Load(), received.Load())
}

func mintSession(ctx context.Context, users *user.Repository, profiles *profile.Repository, sessions *auth.SessionManager, i int) (string, error) {
	u, err := users.UpsertIdentity(ctx, user.Identity{
		Provider:   "loadtest",
		ProviderID: fmt.Sprintf("u_%d", i),
		FullName:   fmt.Sprintf("Load Test %d", i),
	})
	if err != nil {
		return "", err
	}
	if err := profiles.UpsertProfile(ctx, model.Profile{ID: u.ID, Nickname: fmt.Sprintf("load_%d", i)}); err != nil {
		return "", err
	}
	s, err := sessions.Issue(u.ID)
	if err != nil {
		return "", err
	}
	return s.Token, nil
}

func spamChat(token string, i int) {
	wsURL := "ws" + (*baseURL)[len("http"):] + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%d]: %v", i, err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			// Frames queued together arrive newline-separated.
			for _, line := range bytes.Split(data, []byte{'\n'}) {
				var f chat.Frame
				if json.Unmarshal(line, &f) == nil && f.Type == "state" {
					received.Add(1)
				}
			}
		}
	}()

	if err := conn.WriteJSON(chat.Command{Type: "open"}); err != nil {
		log.Printf("❌ Send Fail [%d]: %v", i, err)
		return
	}
	for n := 0; n < *msgCount; n++ {
		cmd := chat.Command{Type: "send", Content: fmt.Sprintf("LoadTest Msg %d from %d", n, i)}
		if err := conn.WriteJSON(cmd); err != nil {
			log.Printf("❌ Send Fail [%d]: %v", i, err)
			break
		}
		sent.Add(1)
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}

	// Give the feed a moment to echo the last messages back.
	time.Sleep(500 * time.Millisecond)
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}
