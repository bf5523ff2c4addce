// Package audit is the append-only ledger of every mutation in the
// directory. Entries carry before/after snapshots and are never updated or
// deleted; a failed ledger write must never fail the mutation it describes.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Action classifies a mutation.
type Action string

const (
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionTransfer Action = "transfer"
)

// Entry is one immutable ledger record.
type Entry struct {
	ID         uuid.UUID       `json:"id"`
	Action     Action          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	ActorID    string          `json:"actor_id,omitempty"`
	OldValue   json.RawMessage `json:"old_value,omitempty"`
	NewValue   json.RawMessage `json:"new_value,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	ClientIP   string          `json:"client_ip,omitempty"`
	UserAgent  string          `json:"user_agent,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
}

// Filter narrows a ledger query. Zero values mean "any".
type Filter struct {
	EntityType string
	EntityID   string
	ActorID    string
	Actions    []Action
	Start      time.Time
	End        time.Time
}

// Page is a pagination request. Page numbers start at 1.
type Page struct {
	Page  int
	Limit int
}

// Normalize clamps a page request into sane bounds.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 20
	}
	if p.Limit > 200 {
		p.Limit = 200
	}
	return p
}

// Offset is the number of entries to skip for this page.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// PageResult is one page of entries, newest first, with pagination metadata.
type PageResult struct {
	Entries []Entry `json:"entries"`
	Page    int     `json:"page"`
	Limit   int     `json:"limit"`
	Total   int     `json:"total"`
	Pages   int     `json:"pages"`
}
