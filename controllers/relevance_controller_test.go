package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/freetapp/freet/models"
)

func TestVoteAndScore(t *testing.T) {
	r, db := newTestApp(t)
	aliceToken, _ := registerUser(t, r, "alice")
	bobToken, _ := registerUser(t, r, "bob")
	carolToken, _ := registerUser(t, r, "carol")

	freetID := createFreet(t, r, aliceToken, gin.H{"content": "tagged", "categories": "go"})

	var entry models.Relevance
	if err := db.Where("freet_id = ? AND category = ?", freetID, "go").First(&entry).Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if entry.Score != 0 || entry.TotalVotes != 0 {
		t.Fatalf("fresh entry should have zero votes and score, got %+v", entry)
	}

	w := doRequest(t, r, http.MethodPost, "/api/v1/relevance", bobToken, gin.H{
		"relevance_id": entry.ID, "vote": "relevant",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("vote failed: %d %s", w.Code, w.Body.String())
	}

	w = doRequest(t, r, http.MethodPost, "/api/v1/relevance", bobToken, gin.H{
		"relevance_id": entry.ID, "vote": "irrelevant",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for double vote, got %d", w.Code)
	}

	w = doRequest(t, r, http.MethodPost, "/api/v1/relevance", carolToken, gin.H{
		"relevance_id": entry.ID, "vote": "irrelevant",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("second voter failed: %d", w.Code)
	}

	if err := db.First(&entry, entry.ID).Error; err != nil {
		t.Fatalf("reload entry: %v", err)
	}
	if entry.TotalVotes != 2 || entry.RelevantVotes != 1 || entry.Score != 0.5 {
		t.Fatalf("expected 1/2 votes score 0.5, got %+v", entry)
	}

	w = doRequest(t, r, http.MethodPost, "/api/v1/relevance", aliceToken, gin.H{
		"relevance_id": entry.ID, "vote": "sideways",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad vote value, got %d", w.Code)
	}
}

func TestRetractRestoresState(t *testing.T) {
	r, db := newTestApp(t)
	aliceToken, _ := registerUser(t, r, "alice")
	bobToken, _ := registerUser(t, r, "bob")

	freetID := createFreet(t, r, aliceToken, gin.H{"content": "tagged", "categories": "go"})
	var entry models.Relevance
	if err := db.Where("freet_id = ?", freetID).First(&entry).Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}

	w := doRequest(t, r, http.MethodDelete, fmt.Sprintf("/api/v1/relevance/%d/vote", entry.ID), bobToken, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 retracting without a vote, got %d", w.Code)
	}

	w = doRequest(t, r, http.MethodPost, "/api/v1/relevance", bobToken, gin.H{
		"relevance_id": entry.ID, "vote": "relevant",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("vote failed: %d", w.Code)
	}

	w = doRequest(t, r, http.MethodDelete, fmt.Sprintf("/api/v1/relevance/%d/vote", entry.ID), bobToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("retract failed: %d %s", w.Code, w.Body.String())
	}

	if err := db.First(&entry, entry.ID).Error; err != nil {
		t.Fatalf("reload entry: %v", err)
	}
	if entry.TotalVotes != 0 || entry.RelevantVotes != 0 || entry.Score != 0 {
		t.Fatalf("retract should restore pre-vote state, got %+v", entry)
	}

	// The voter may vote again after retracting.
	w = doRequest(t, r, http.MethodPost, "/api/v1/relevance", bobToken, gin.H{
		"relevance_id": entry.ID, "vote": "irrelevant",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("re-vote failed: %d", w.Code)
	}
}

func TestRetractInactiveEntry(t *testing.T) {
	r, db := newTestApp(t)
	aliceToken, _ := registerUser(t, r, "alice")
	bobToken, _ := registerUser(t, r, "bob")

	freetID := createFreet(t, r, aliceToken, gin.H{"content": "tagged", "categories": "go"})
	var entry models.Relevance
	if err := db.Where("freet_id = ?", freetID).First(&entry).Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}

	w := doRequest(t, r, http.MethodPost, "/api/v1/relevance", bobToken, gin.H{
		"relevance_id": entry.ID, "vote": "relevant",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("vote failed: %d", w.Code)
	}

	w = doRequest(t, r, http.MethodPut, fmt.Sprintf("/api/v1/freets/%d", freetID), aliceToken, gin.H{"categories": ""})
	if w.Code != http.StatusOK {
		t.Fatalf("untag failed: %d %s", w.Code, w.Body.String())
	}

	// Retracting a vote on an inactive entry is rejected, same as voting.
	w = doRequest(t, r, http.MethodDelete, fmt.Sprintf("/api/v1/relevance/%d/vote", entry.ID), bobToken, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 retracting on inactive entry, got %d %s", w.Code, w.Body.String())
	}

	if err := db.First(&entry, entry.ID).Error; err != nil {
		t.Fatalf("reload entry: %v", err)
	}
	if entry.TotalVotes != 1 || entry.RelevantVotes != 1 {
		t.Fatalf("vote history should survive while inactive, got %+v", entry)
	}

	// Once re-tagged the voter may retract normally.
	w = doRequest(t, r, http.MethodPut, fmt.Sprintf("/api/v1/freets/%d", freetID), aliceToken, gin.H{"categories": "go"})
	if w.Code != http.StatusOK {
		t.Fatalf("re-tag failed: %d", w.Code)
	}
	w = doRequest(t, r, http.MethodDelete, fmt.Sprintf("/api/v1/relevance/%d/vote", entry.ID), bobToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("retract after re-tag failed: %d %s", w.Code, w.Body.String())
	}
}

func TestRankOrderingAndActivation(t *testing.T) {
	r, db := newTestApp(t)
	aliceToken, _ := registerUser(t, r, "alice")
	bobToken, _ := registerUser(t, r, "bob")
	carolToken, _ := registerUser(t, r, "carol")

	first := createFreet(t, r, aliceToken, gin.H{"content": "one", "categories": "go"})
	second := createFreet(t, r, aliceToken, gin.H{"content": "two", "categories": "go"})
	third := createFreet(t, r, aliceToken, gin.H{"content": "three", "categories": "go"})

	var e1, e2, e3 models.Relevance
	for id, e := range map[uint]*models.Relevance{first: &e1, second: &e2, third: &e3} {
		if err := db.Where("freet_id = ?", id).First(e).Error; err != nil {
			t.Fatalf("load entry for %d: %v", id, err)
		}
	}

	// e1: score 1.0 with one vote. e2: score 1.0 with two votes. e3: 0.5.
	vote := func(token string, entry uint, choice string) {
		w := doRequest(t, r, http.MethodPost, "/api/v1/relevance", token, gin.H{
			"relevance_id": entry, "vote": choice,
		})
		if w.Code != http.StatusOK {
			t.Fatalf("vote on %d failed: %d %s", entry, w.Code, w.Body.String())
		}
	}
	vote(bobToken, e1.ID, "relevant")
	vote(bobToken, e2.ID, "relevant")
	vote(carolToken, e2.ID, "relevant")
	vote(bobToken, e3.ID, "relevant")
	vote(carolToken, e3.ID, "irrelevant")

	rank := func() []struct {
		ID    uint    `json:"id"`
		Score float64 `json:"score"`
	} {
		w := doRequest(t, r, http.MethodGet, "/api/v1/relevance?category=go", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("rank failed: %d", w.Code)
		}
		env := decodeEnvelope(t, w)
		var data struct {
			Entries []struct {
				ID    uint    `json:"id"`
				Score float64 `json:"score"`
			} `json:"entries"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("decode rank: %v", err)
		}
		return data.Entries
	}

	entries := rank()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	// Ties on score break by total votes, then entry id.
	if entries[0].ID != e2.ID || entries[1].ID != e1.ID || entries[2].ID != e3.ID {
		t.Fatalf("unexpected ranking order: %+v", entries)
	}

	// Untagging hides the entry from the ranking without deleting it.
	w := doRequest(t, r, http.MethodPut, fmt.Sprintf("/api/v1/freets/%d", second), aliceToken, gin.H{"categories": ""})
	if w.Code != http.StatusOK {
		t.Fatalf("untag failed: %d %s", w.Code, w.Body.String())
	}
	entries = rank()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after untag, got %d", len(entries))
	}

	// Voting on an inactive entry is rejected.
	w = doRequest(t, r, http.MethodPost, "/api/v1/relevance", aliceToken, gin.H{
		"relevance_id": e2.ID, "vote": "relevant",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 voting on inactive entry, got %d", w.Code)
	}

	// Re-tagging reuses the same row with its vote history.
	w = doRequest(t, r, http.MethodPut, fmt.Sprintf("/api/v1/freets/%d", second), aliceToken, gin.H{"categories": "go"})
	if w.Code != http.StatusOK {
		t.Fatalf("re-tag failed: %d", w.Code)
	}
	var reborn models.Relevance
	if err := db.Where("freet_id = ? AND category = ?", second, "go").First(&reborn).Error; err != nil {
		t.Fatalf("reload entry: %v", err)
	}
	if reborn.ID != e2.ID || reborn.TotalVotes != 2 || !reborn.Active {
		t.Fatalf("re-tag should reactivate the original row, got %+v", reborn)
	}
}
