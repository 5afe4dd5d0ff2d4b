package controllers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRegisterValidation(t *testing.T) {
	r, _ := newTestApp(t)

	w := doRequest(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "has space", "password": "secret",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for username with space, got %d", w.Code)
	}

	w = doRequest(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "alice", "password": "bad pass",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for password with whitespace, got %d", w.Code)
	}

	registerUser(t, r, "alice")

	// Conflicts are case-insensitive.
	w = doRequest(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "ALICE", "password": "secret",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for case-insensitive conflict, got %d", w.Code)
	}
}

func TestLoginAndMe(t *testing.T) {
	r, _ := newTestApp(t)
	registerUser(t, r, "alice")

	w := doRequest(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "alice", "password": "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", w.Code)
	}

	w = doRequest(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "alice", "password": "hunter2",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", w.Code, w.Body.String())
	}
	env := decodeEnvelope(t, w)
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Token == "" {
		t.Fatalf("expected token in login response: %s", env.Data)
	}

	w = doRequest(t, r, http.MethodGet, "/api/v1/auth/me", data.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("me failed: %d", w.Code)
	}
	var me struct {
		Username string `json:"username"`
		Filter   string `json:"filter"`
	}
	env = decodeEnvelope(t, w)
	if err := json.Unmarshal(env.Data, &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.Username != "alice" || me.Filter != "default" {
		t.Fatalf("unexpected me payload: %+v", me)
	}
}

func TestUsernameLookupsCaseInsensitive(t *testing.T) {
	r, _ := newTestApp(t)
	registerUser(t, r, "alice")
	bobToken, _ := registerUser(t, r, "bob")

	w := doRequest(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "ALICE", "password": "hunter2",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login with different casing failed: %d %s", w.Code, w.Body.String())
	}

	w = doRequest(t, r, http.MethodGet, "/api/v1/users/ALICE", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("profile lookup with different casing failed: %d", w.Code)
	}
	var profile struct {
		Username string `json:"username"`
	}
	env := decodeEnvelope(t, w)
	if err := json.Unmarshal(env.Data, &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.Username != "alice" {
		t.Fatalf("expected canonical username, got %q", profile.Username)
	}

	w = doRequest(t, r, http.MethodPost, "/api/v1/users/follow", bobToken, gin.H{"username": "Alice"})
	if w.Code != http.StatusOK {
		t.Fatalf("follow with different casing failed: %d %s", w.Code, w.Body.String())
	}

	w = doRequest(t, r, http.MethodGet, "/api/v1/freets?author=ALICE", bobToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("author listing with different casing failed: %d %s", w.Code, w.Body.String())
	}

	w = doRequest(t, r, http.MethodDelete, "/api/v1/users/follow/ALICE", bobToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unfollow with different casing failed: %d %s", w.Code, w.Body.String())
	}
}

func TestProfileCommands(t *testing.T) {
	r, _ := newTestApp(t)
	token, _ := registerUser(t, r, "alice")
	registerUser(t, r, "bob")

	w := doRequest(t, r, http.MethodPatch, "/api/v1/auth/profile", token, gin.H{
		"commands": []gin.H{
			{"field": "bio", "value": "hello there"},
			{"field": "filter", "value": "original"},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("profile update failed: %d %s", w.Code, w.Body.String())
	}
	var data struct {
		Bio    string `json:"bio"`
		Filter string `json:"filter"`
	}
	env := decodeEnvelope(t, w)
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if data.Bio != "hello there" || data.Filter != "original" {
		t.Fatalf("unexpected profile after update: %+v", data)
	}

	w = doRequest(t, r, http.MethodPatch, "/api/v1/auth/profile", token, gin.H{
		"commands": []gin.H{{"field": "filter", "value": "weekly"}},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid filter, got %d", w.Code)
	}

	w = doRequest(t, r, http.MethodPatch, "/api/v1/auth/profile", token, gin.H{
		"commands": []gin.H{{"field": "username", "value": "BOB"}},
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for username conflict, got %d", w.Code)
	}

	w = doRequest(t, r, http.MethodPatch, "/api/v1/auth/profile", token, gin.H{
		"commands": []gin.H{{"field": "avatar", "value": "x"}},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", w.Code)
	}
}

func TestFollowUnfollow(t *testing.T) {
	r, _ := newTestApp(t)
	aliceToken, _ := registerUser(t, r, "alice")
	registerUser(t, r, "bob")

	w := doRequest(t, r, http.MethodPost, "/api/v1/users/follow", aliceToken, gin.H{"username": "alice"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for self-follow, got %d", w.Code)
	}

	w = doRequest(t, r, http.MethodPost, "/api/v1/users/follow", aliceToken, gin.H{"username": "bob"})
	if w.Code != http.StatusOK {
		t.Fatalf("follow failed: %d %s", w.Code, w.Body.String())
	}

	w = doRequest(t, r, http.MethodPost, "/api/v1/users/follow", aliceToken, gin.H{"username": "bob"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate follow, got %d", w.Code)
	}

	w = doRequest(t, r, http.MethodGet, "/api/v1/users/bob", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("profile failed: %d", w.Code)
	}
	var profile struct {
		Followers int64 `json:"followers"`
		Following int64 `json:"following"`
	}
	env := decodeEnvelope(t, w)
	if err := json.Unmarshal(env.Data, &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.Followers != 1 || profile.Following != 0 {
		t.Fatalf("unexpected follow counts: %+v", profile)
	}

	w = doRequest(t, r, http.MethodDelete, "/api/v1/users/follow/bob", aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unfollow failed: %d", w.Code)
	}
	w = doRequest(t, r, http.MethodDelete, "/api/v1/users/follow/bob", aliceToken, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for unfollow when not following, got %d", w.Code)
	}
}
