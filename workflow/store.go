package workflow

import (
	"context"
	"time"
)

// Mutation rewrites a private copy of the stored request. A non-nil
// publication is upserted in the same atomic write.
type Mutation func(r *Request) (*Publication, error)

// Store persists requests, one collection per kind. Only Service calls the
// write methods.
type Store interface {
	Create(ctx context.Context, r *Request) error
	Get(ctx context.Context, kind Kind, id string) (*Request, error)
	// ConditionalUpdate applies m only while the stored status still equals
	// expected; otherwise it returns ErrConflict and writes nothing.
	ConditionalUpdate(ctx context.Context, kind Kind, id string, expected State, m Mutation) (*Request, error)
	// Upsert writes the Active rate record for p's key, creating it if absent.
	Upsert(ctx context.Context, p *Publication) (*Request, error)
	Query(ctx context.Context, kind Kind, f Filter) ([]*Request, error)
}

// Filter selects requests for history and export. Zero fields match all.
type Filter struct {
	Status        State
	From          *time.Time // created at or after
	To            *time.Time // created before
	RequestedBy   string
	Category      string // rate updates only
	EffectiveDate string // rate updates only
	Limit         int
	Offset        int
}

// Match reports whether r satisfies every set field except paging.
func (f Filter) Match(r *Request) bool {
	if f.Status != nil && r.Status != f.Status {
		return false
	}
	if f.From != nil && r.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !r.CreatedAt.Before(*f.To) {
		return false
	}
	if f.RequestedBy != "" && r.RequestedBy.ID != f.RequestedBy {
		return false
	}
	if f.Category != "" || f.EffectiveDate != "" {
		rate, ok := r.Rate()
		if !ok {
			return false
		}
		if f.Category != "" && rate.Category != f.Category {
			return false
		}
		if f.EffectiveDate != "" && rate.EffectiveDate != f.EffectiveDate {
			return false
		}
	}
	return true
}

// Publication is a write of rate values into the Active record of their key.
type Publication struct {
	// NewID is used only when no Active record exists yet.
	NewID  string
	Values RatePayload
	Actor  Actor
	At     time.Time
	Note   string
	// SourceID is the approved proposal, empty for direct writes.
	SourceID string
}

// Key is the (category, effective date) being written.
func (p *Publication) Key() RateKey { return p.Values.Key() }

// Apply returns the Active record after the publication: a new record when
// existing is nil, otherwise a copy of existing holding the new values.
func (p *Publication) Apply(existing *Request) *Request {
	at := p.At.UTC()
	var r *Request
	if existing == nil {
		r = &Request{
			ID:          p.NewID,
			Kind:        KindRateUpdate,
			RequestedBy: p.Actor,
			CreatedAt:   at,
		}
	} else {
		r = existing.Clone()
	}
	values := p.Values
	r.Payload = &values
	r.Status = RateActive
	r.DecidedBy = p.Actor.ID
	r.DecidedAt = &at
	if p.SourceID != "" {
		r.ApprovedBy = p.Actor.ID
		r.ApprovedAt = &at
	}
	r.UpdatedAt = at
	note := p.Note
	if p.SourceID != "" && note == "" {
		note = "published from proposal " + p.SourceID
	}
	r.StageNotes = AppendStageNote(r.StageNotes, StageNote{
		Stage:     RateActive.String(),
		Note:      note,
		ActorRole: p.Actor.Role,
		ActorID:   p.Actor.ID,
		At:        at,
	})
	return r
}

// Notifier is told about every committed write. Its failures never undo the
// write.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Event describes a committed write.
type Event struct {
	Kind      Kind   `json:"kind"`
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	ActorID   string `json:"actor_id"`
	ActorRole Role   `json:"actor_role"`
}
