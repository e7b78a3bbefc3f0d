package entity

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type enumerates the entity kinds the detector may emit.
type Type string

const (
	TypeProperty Type = "property"
	TypeClient   Type = "client"
	TypeLocation Type = "location"
	TypeDocument Type = "document"
	TypeCompany  Type = "company"
)

// Known reports whether t is one of the supported entity types.
func (t Type) Known() bool {
	switch t {
	case TypeProperty, TypeClient, TypeLocation, TypeDocument, TypeCompany:
		return true
	}
	return false
}

// Detected is a typed reference mentioned in or implied by a chat message.
// Identifiers are scoped per type, so the dedup key combines both.
type Detected struct {
	ID         string  `json:"id"`
	Type       Type    `json:"type"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Key returns the type-scoped identifier used for session-wide deduplication.
func (d Detected) Key() string {
	return string(d.Type) + ":" + d.ID
}

// ParseKey splits a panel key back into its type and identifier.
func ParseKey(key string) (Type, string, error) {
	typ, id, ok := strings.Cut(key, ":")
	if !ok || typ == "" || id == "" {
		return "", "", fmt.Errorf("malformed entity key %q", key)
	}
	t := Type(typ)
	if !t.Known() {
		return "", "", fmt.Errorf("unknown entity type %q", typ)
	}
	return t, id, nil
}

// ClampConfidence forces the score into [0,1]; detectors occasionally return
// values slightly outside the range.
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Context payload lifecycle states.
const (
	StatusLoading = "loading"
	StatusReady   = "ready"
	StatusFailed  = "failed"
)

// Payload holds the resolved side-panel record for one entity, or the reason
// resolution failed. Fetched at most once per entity unless refreshed.
type Payload struct {
	Entity    Detected        `json:"entity"`
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	FetchedAt time.Time       `json:"fetchedAt,omitempty"`
}
