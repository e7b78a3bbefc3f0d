package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/brightdoor/brokerchat/internal/model/chat"
	"github.com/brightdoor/brokerchat/internal/model/entity"
	"github.com/brightdoor/brokerchat/internal/service/session"
)

func TestMemoryStoreGetSession(t *testing.T) {
	store := session.NewMemoryStore()
	ctx := context.Background()

	created, err := store.CreateSession(ctx, "Marina search")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	got, err := store.GetSession(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}

	if got.ID != created.ID {
		t.Fatalf("unexpected session ID: got %s want %s", got.ID, created.ID)
	}
	if got.Title != "Marina search" {
		t.Fatalf("unexpected title: got %s", got.Title)
	}
	if !got.Active {
		t.Fatal("expected new session to be active")
	}
}

func TestMemoryStoreGetSessionNotFound(t *testing.T) {
	store := session.NewMemoryStore()

	if _, err := store.GetSession(context.Background(), "missing"); err != session.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemoryStoreAppendToMissingSession(t *testing.T) {
	store := session.NewMemoryStore()

	_, err := store.AppendMessage(context.Background(), chat.Message{
		SessionID: "missing",
		Role:      chat.RoleUser,
		Content:   "hello",
	})
	if err != session.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemoryStoreHistoryOrdering(t *testing.T) {
	store := session.NewMemoryStore()
	ctx := context.Background()

	created, err := store.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	base := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	// Appended out of order, with a timestamp tie broken by ID.
	rows := []chat.Message{
		{ID: "m3", SessionID: created.ID, Role: chat.RoleUser, Content: "third", CreatedAt: base.Add(2 * time.Second)},
		{ID: "m2", SessionID: created.ID, Role: chat.RoleAI, Content: "second", CreatedAt: base.Add(time.Second)},
		{ID: "m1", SessionID: created.ID, Role: chat.RoleUser, Content: "tie-low", CreatedAt: base},
		{ID: "m0", SessionID: created.ID, Role: chat.RoleAI, Content: "tie-lower", CreatedAt: base},
	}
	for _, m := range rows {
		if _, err := store.AppendMessage(ctx, m); err != nil {
			t.Fatalf("AppendMessage err: %v", err)
		}
	}

	first, err := store.History(ctx, created.ID)
	if err != nil {
		t.Fatalf("History err: %v", err)
	}

	wantOrder := []string{"m0", "m1", "m2", "m3"}
	for i, want := range wantOrder {
		if first[i].ID != want {
			t.Fatalf("position %d: got %s want %s", i, first[i].ID, want)
		}
	}

	// Loading twice returns the same order.
	second, err := store.History(ctx, created.ID)
	if err != nil {
		t.Fatalf("History err: %v", err)
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("history order not deterministic at %d: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestMemoryStoreHistoryNormalization(t *testing.T) {
	store := session.NewMemoryStore()
	ctx := context.Background()

	created, err := store.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	if _, err := store.AppendMessage(ctx, chat.Message{
		SessionID: created.ID,
		Role:      "assistant",
		Content:   "legacy role label",
	}); err != nil {
		t.Fatalf("AppendMessage err: %v", err)
	}

	history, err := store.History(ctx, created.ID)
	if err != nil {
		t.Fatalf("History err: %v", err)
	}

	if history[0].Role != chat.RoleAI {
		t.Fatalf("expected normalized role %q, got %q", chat.RoleAI, history[0].Role)
	}
	if history[0].Entities == nil {
		t.Fatal("expected entities defaulted to empty slice")
	}
	if history[0].Suggestions == nil {
		t.Fatal("expected suggestions defaulted to empty slice")
	}
}

func TestMemoryStoreHistoryKeepsEntities(t *testing.T) {
	store := session.NewMemoryStore()
	ctx := context.Background()

	created, err := store.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	stored, err := store.AppendMessage(ctx, chat.Message{
		SessionID: created.ID,
		Role:      chat.RoleAI,
		Content:   "Marina View 2BR is available",
		Entities: []entity.Detected{
			{ID: "p1", Type: entity.TypeProperty, Name: "Marina View 2BR", Confidence: 0.93},
		},
	})
	if err != nil {
		t.Fatalf("AppendMessage err: %v", err)
	}

	history, err := store.History(ctx, created.ID)
	if err != nil {
		t.Fatalf("History err: %v", err)
	}

	if len(history) != 1 || history[0].ID != stored.ID {
		t.Fatalf("unexpected history: %+v", history)
	}
	if len(history[0].Entities) != 1 || history[0].Entities[0].ID != "p1" {
		t.Fatalf("entities not preserved: %+v", history[0].Entities)
	}
}
