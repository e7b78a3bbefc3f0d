package detect

import (
	"testing"

	"github.com/brightdoor/brokerchat/internal/model/entity"
)

func TestParseEntities(t *testing.T) {
	raw := `[
		{"id": "p1", "type": "property", "name": "Marina View 2BR", "confidence": 0.9},
		{"id": "dubai-marina", "type": "location", "name": "Dubai Marina", "confidence": 1.4},
		{"id": "x", "type": "spaceship", "name": "bad"},
		{"id": "", "type": "client"}
	]`

	got, err := parseEntities(raw)
	if err != nil {
		t.Fatalf("parseEntities err: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 valid entities, got %d", len(got))
	}
	if got[0].Key() != "property:p1" {
		t.Fatalf("unexpected first entity: %+v", got[0])
	}
	if got[1].Confidence != 1 {
		t.Fatalf("confidence must clamp to 1, got %f", got[1].Confidence)
	}
}

func TestParseEntitiesEmptyAndFenced(t *testing.T) {
	if got, err := parseEntities("[]"); err != nil || len(got) != 0 {
		t.Fatalf("empty array: got %v, %v", got, err)
	}
	if got, err := parseEntities(""); err != nil || got != nil {
		t.Fatalf("empty output: got %v, %v", got, err)
	}

	fenced := "```json\n[{\"id\": \"c1\", \"type\": \"client\", \"name\": \"Amira\", \"confidence\": 0.8}]\n```"
	got, err := parseEntities(fenced)
	if err != nil {
		t.Fatalf("fenced output err: %v", err)
	}
	if len(got) != 1 || got[0].Type != entity.TypeClient {
		t.Fatalf("fenced output not parsed: %+v", got)
	}
}

func TestParseEntitiesMalformed(t *testing.T) {
	if _, err := parseEntities("the model replied with prose"); err == nil {
		t.Fatal("expected error for non-JSON output")
	}
}
