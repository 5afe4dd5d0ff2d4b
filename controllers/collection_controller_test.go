package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/freetapp/freet/models"
)

func TestCollectionLifecycle(t *testing.T) {
	r, db := newTestApp(t)
	aliceToken, _ := registerUser(t, r, "alice")
	bobToken, _ := registerUser(t, r, "bob")

	w := doRequest(t, r, http.MethodPost, "/api/v1/collections", aliceToken, gin.H{"name": "   "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank name, got %d", w.Code)
	}
	w = doRequest(t, r, http.MethodPost, "/api/v1/collections", aliceToken, gin.H{
		"name": strings.Repeat("x", models.MaxCollectionNameLen+1),
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized name, got %d", w.Code)
	}

	w = doRequest(t, r, http.MethodPost, "/api/v1/collections", aliceToken, gin.H{"name": "reading"})
	if w.Code != http.StatusOK {
		t.Fatalf("create failed: %d %s", w.Code, w.Body.String())
	}
	env := decodeEnvelope(t, w)
	var created struct {
		ID uint `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode collection: %v", err)
	}

	w = doRequest(t, r, http.MethodPost, "/api/v1/collections", aliceToken, gin.H{"name": "reading"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate name, got %d", w.Code)
	}
	// The same name is fine for a different owner.
	w = doRequest(t, r, http.MethodPost, "/api/v1/collections", bobToken, gin.H{"name": "reading"})
	if w.Code != http.StatusOK {
		t.Fatalf("other owner create failed: %d", w.Code)
	}

	freetID := createFreet(t, r, aliceToken, gin.H{"content": "keeper"})

	path := fmt.Sprintf("/api/v1/collections/%d", created.ID)

	// Only the owner may touch the collection.
	w = doRequest(t, r, http.MethodPut, path, bobToken, gin.H{"command": "add", "freet_id": freetID})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner update, got %d", w.Code)
	}

	w = doRequest(t, r, http.MethodPut, path, aliceToken, gin.H{"command": "add", "freet_id": freetID})
	if w.Code != http.StatusOK {
		t.Fatalf("add failed: %d %s", w.Code, w.Body.String())
	}
	w = doRequest(t, r, http.MethodPut, path, aliceToken, gin.H{"command": "add", "freet_id": freetID})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 adding twice, got %d", w.Code)
	}

	w = doRequest(t, r, http.MethodGet, "/api/v1/collections", aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list failed: %d", w.Code)
	}
	env = decodeEnvelope(t, w)
	var list struct {
		Items []struct {
			Name   string `json:"name"`
			Freets []struct {
				ID uint `json:"id"`
			} `json:"freets"`
		} `json:"items"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Items) != 1 || len(list.Items[0].Freets) != 1 || list.Items[0].Freets[0].ID != freetID {
		t.Fatalf("unexpected collections listing: %+v", list.Items)
	}

	w = doRequest(t, r, http.MethodPut, path, aliceToken, gin.H{"name": "archive"})
	if w.Code != http.StatusOK {
		t.Fatalf("rename failed: %d", w.Code)
	}
	var coll models.Collection
	if err := db.First(&coll, created.ID).Error; err != nil {
		t.Fatalf("load collection: %v", err)
	}
	if coll.Name != "archive" {
		t.Fatalf("expected renamed collection, got %q", coll.Name)
	}

	w = doRequest(t, r, http.MethodPut, path, aliceToken, gin.H{"command": "remove", "freet_id": freetID})
	if w.Code != http.StatusOK {
		t.Fatalf("remove failed: %d", w.Code)
	}
	w = doRequest(t, r, http.MethodPut, path, aliceToken, gin.H{"command": "remove", "freet_id": freetID})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 removing absent freet, got %d", w.Code)
	}

	w = doRequest(t, r, http.MethodDelete, path, aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete failed: %d", w.Code)
	}
	var count int64
	db.Model(&models.Collection{}).Where("id = ?", created.ID).Count(&count)
	if count != 0 {
		t.Fatal("collection should be gone")
	}
}

func TestCollectionUpdateAllOrNothing(t *testing.T) {
	r, db := newTestApp(t)
	token, _ := registerUser(t, r, "alice")

	w := doRequest(t, r, http.MethodPost, "/api/v1/collections", token, gin.H{"name": "reading"})
	if w.Code != http.StatusOK {
		t.Fatalf("create failed: %d %s", w.Code, w.Body.String())
	}
	env := decodeEnvelope(t, w)
	var created struct {
		ID uint `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode collection: %v", err)
	}
	path := fmt.Sprintf("/api/v1/collections/%d", created.ID)

	freetID := createFreet(t, r, token, gin.H{"content": "keeper"})

	// A rename bundled with a failing membership command must not apply.
	w = doRequest(t, r, http.MethodPut, path, token, gin.H{
		"name": "archive", "command": "remove", "freet_id": freetID,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 removing absent freet, got %d %s", w.Code, w.Body.String())
	}
	var coll models.Collection
	if err := db.First(&coll, created.ID).Error; err != nil {
		t.Fatalf("load collection: %v", err)
	}
	if coll.Name != "reading" {
		t.Fatalf("rename should not apply when the command fails, got %q", coll.Name)
	}

	// Likewise for an add of a missing freet.
	w = doRequest(t, r, http.MethodPut, path, token, gin.H{
		"name": "archive", "command": "add", "freet_id": freetID + 100,
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 adding missing freet, got %d", w.Code)
	}
	if err := db.First(&coll, created.ID).Error; err != nil {
		t.Fatalf("reload collection: %v", err)
	}
	if coll.Name != "reading" {
		t.Fatalf("rename should not apply when the command fails, got %q", coll.Name)
	}

	// Both halves land together when the command succeeds.
	w = doRequest(t, r, http.MethodPut, path, token, gin.H{
		"name": "archive", "command": "add", "freet_id": freetID,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("combined update failed: %d %s", w.Code, w.Body.String())
	}
	if err := db.First(&coll, created.ID).Error; err != nil {
		t.Fatalf("reload collection: %v", err)
	}
	var members int64
	db.Table("collection_freets").
		Where("collection_id = ? AND freet_id = ?", created.ID, freetID).Count(&members)
	if coll.Name != "archive" || members != 1 {
		t.Fatalf("expected rename and membership together, got name=%q members=%d", coll.Name, members)
	}
}
