package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go-notify/client"
	"go-notify/internal/notify"
)

var (
	baseURL   = flag.String("url", "http://localhost:8080", "server base URL")
	userCount = flag.Int("users", 50, "number of recipient users")
	msgCount  = flag.Int("messages", 20, "broadcasts to dispatch")
)

type authResponse struct {
	Token string `json:"access_token"`
	ID    int    `json:"id"`
}

func main() {
	flag.Parse()
	log.Printf("🔥 STARTING STRESS TEST: %d users, %d broadcasts...", *userCount, *msgCount)

	admin := authenticate("loadtest_admin", "password123")
	if admin == nil {
		log.Fatal("❌ admin auth failed")
	}

	// 1. Register recipients and connect each over the push channel.
	var received atomic.Int64
	recipients := make([]int, 0, *userCount)
	clients := make([]*client.Client, 0, *userCount)
	for i := 0; i < *userCount; i++ {
		auth := authenticate(fmt.Sprintf("loadtest_u%d", i), "password123")
		if auth == nil {
			log.Fatalf("❌ auth failed for user %d", i)
		}
		recipients = append(recipients, auth.ID)

		c := client.New(*baseURL, auth.Token, client.Options{})
		c.Bus.Subscribe(notify.EventNotificationNew, func(json.RawMessage) {
			received.Add(1)
		})
		if err := c.Start(auth.Token); err != nil {
			log.Fatalf("❌ connect failed for user %d: %v", i, err)
		}
		clients = append(clients, c)
	}
	log.Printf("✅ %d clients connected", len(clients))

	// 2. Broadcast from the admin, concurrently.
	var wg sync.WaitGroup
	for i := 0; i < *msgCount; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			dispatch(admin.Token, recipients, fmt.Sprintf("broadcast %d", n))
		}(i)
	}
	wg.Wait()

	// 3. Give delivery a moment, then compare with the durable truth.
	deadline := time.Now().Add(10 * time.Second)
	want := int64(*userCount) * int64(*msgCount)
	for received.Load() < want && time.Now().Before(deadline) {
		time.Sleep(200 * time.Millisecond)
	}
	log.Printf("pushed frames received: %d / %d", received.Load(), want)

	ctx := context.Background()
	for i, c := range clients {
		count, err := c.API.UnreadCount(ctx)
		if err != nil {
			log.Printf("❌ unread count for user %d: %v", i, err)
			continue
		}
		if count != *msgCount {
			log.Printf("❌ user %d unread=%d want %d", i, count, *msgCount)
		}
	}

	for _, c := range clients {
		c.Close()
	}
	log.Println("✅ LOAD TEST COMPLETE")
}

// authenticate registers (ignores error if exists) and logs in.
func authenticate(username, password string) *authResponse {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	http.Post(*baseURL+"/register", "application/json", bytes.NewReader(body))

	resp, err := http.Post(*baseURL+"/login", "application/json", bytes.NewReader(body))
	if err != nil || resp.StatusCode != http.StatusOK {
		return nil
	}
	defer resp.Body.Close()

	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return nil
	}
	return &auth
}

func dispatch(token string, recipients []int, body string) {
	payload, _ := json.Marshal(notify.DispatchRequest{
		RecipientIDs: recipients,
		Body:         body,
		Type:         notify.TypeSystemNotification,
	})
	req, _ := http.NewRequest(http.MethodPost, *baseURL+"/api/dispatch", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("❌ dispatch: %v", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		log.Printf("❌ dispatch: status %d", resp.StatusCode)
	}
}
