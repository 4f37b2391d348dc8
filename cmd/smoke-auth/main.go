package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"
)

// Exercises the full session lifecycle against a running API: register a
// throwaway user, log in, hit an authenticated endpoint, log out, and confirm
// the token is dead afterwards.
func main() {
	base := os.Getenv("FORGEBOARD_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	client := &http.Client{Timeout: 5 * time.Second}
	suffix := rand.New(rand.NewSource(time.Now().UnixNano())).Int()
	username := fmt.Sprintf("smoke-%d", suffix)
	password := fmt.Sprintf("smoke-pass-%d", suffix)

	status, _, err := call(client, http.MethodPost, base+"/v1/auth/register", "", map[string]any{
		"username": username,
		"email":    username + "@example.com",
		"password": password,
	})
	if err != nil || status != http.StatusCreated {
		log.Fatalf("register: status=%d err=%v", status, err)
	}

	var login struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	status, body, err := call(client, http.MethodPost, base+"/v1/auth/login", "", map[string]any{
		"identifier": username,
		"password":   password,
	})
	if err != nil || status != http.StatusOK {
		log.Fatalf("login: status=%d err=%v", status, err)
	}
	if err := json.Unmarshal(body, &login); err != nil {
		log.Fatalf("login decode: %v", err)
	}
	if login.Token == "" {
		log.Fatal("login returned no token")
	}
	if !login.ExpiresAt.After(time.Now()) {
		log.Fatalf("session already expired at %s", login.ExpiresAt)
	}

	status, _, err = call(client, http.MethodGet, base+"/v1/auth/me", login.Token, nil)
	if err != nil || status != http.StatusOK {
		log.Fatalf("me: status=%d err=%v", status, err)
	}

	status, _, err = call(client, http.MethodPost, base+"/v1/auth/logout", login.Token, nil)
	if err != nil || status != http.StatusNoContent {
		log.Fatalf("logout: status=%d err=%v", status, err)
	}

	status, _, err = call(client, http.MethodGet, base+"/v1/auth/me", login.Token, nil)
	if err != nil {
		log.Fatalf("me after logout: %v", err)
	}
	if status != http.StatusUnauthorized {
		log.Fatalf("revoked token still accepted: status=%d", status)
	}

	fmt.Printf("✅ auth smoke test passed: user=%s\n", username)
}

func call(client *http.Client, method, url, token string, payload any) (int, []byte, error) {
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes(), nil
}
