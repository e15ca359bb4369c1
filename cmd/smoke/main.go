// Command smoke drives the session lifecycle against a running API:
// register, login, refresh, replay of the old refresh token, logout.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

const password = "Smoke-Test-Pass-1"

type client struct {
	base string
	http *http.Client
}

func main() {
	base := os.Getenv("NOTEBOOK_BASE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	c := &client{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: 5 * time.Second}}

	tag := uuid.NewString()[:8]
	email := "smoke-" + tag + "@example.com"
	resp := c.call(http.MethodPost, "/users/register", map[string]string{
		"username": "smoke_" + tag,
		"email":    email,
		"password": password,
	})
	expect(resp, http.StatusCreated, "register")

	resp = c.call(http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password})
	expect(resp, http.StatusOK, "login")
	access, refresh := cookies(resp)
	if access == nil || refresh == nil || !access.HttpOnly || !refresh.HttpOnly {
		log.Fatalf("login: expected two HttpOnly cookies, got %v", resp.Cookies())
	}

	resp = c.call(http.MethodGet, "/users/me", nil, access)
	expect(resp, http.StatusOK, "me")

	resp = c.call(http.MethodPost, "/auth/refresh", nil, refresh)
	expect(resp, http.StatusOK, "refresh")
	newAccess, rotated := cookies(resp)
	if rotated == nil || rotated.Value == refresh.Value {
		log.Fatal("refresh: token was not rotated")
	}

	resp = c.call(http.MethodPost, "/auth/refresh", nil, refresh)
	expect(resp, http.StatusUnauthorized, "replay of rotated refresh token")

	resp = c.call(http.MethodPost, "/auth/logout", nil, newAccess)
	expect(resp, http.StatusOK, "logout")
	for _, ck := range resp.Cookies() {
		if ck.MaxAge >= 0 {
			log.Fatalf("logout: cookie %s not expired", ck.Name)
		}
	}

	resp = c.call(http.MethodPost, "/auth/refresh", nil, rotated)
	expect(resp, http.StatusUnauthorized, "refresh after logout")

	fmt.Println("smoke ok:", email)
}

// call sends cookies by hand: the session cookies are Secure and a jar
// would drop them over plain http.
func (c *client) call(method, path string, body any, cks ...*http.Cookie) *http.Response {
	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("marshal: %v", err)
		}
		payload = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, payload)
	if err != nil {
		log.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, ck := range cks {
		if ck != nil {
			req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp
}

func cookies(resp *http.Response) (access, refresh *http.Cookie) {
	for _, ck := range resp.Cookies() {
		switch ck.Name {
		case "accessToken":
			access = ck
		case "refreshToken":
			refresh = ck
		}
	}
	return access, refresh
}

func expect(resp *http.Response, code int, step string) {
	if resp.StatusCode != code {
		log.Fatalf("%s: expected %d, got %d", step, code, resp.StatusCode)
	}
}
