package workflow

import "time"

// Request is the single entity moved through every workflow. Its status only
// changes through Service.
type Request struct {
	ID          string      `json:"id"`
	Kind        Kind        `json:"kind"`
	Payload     Payload     `json:"payload"`
	Status      State       `json:"status"`
	RequestedBy Actor       `json:"requested_by"`
	StageNotes  []StageNote `json:"stage_notes"`
	DecidedBy   string      `json:"decided_by,omitempty"`
	DecidedAt   *time.Time  `json:"decided_at,omitempty"`
	ApprovedBy  string      `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time  `json:"approved_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// StageNote is one audit trail entry.
type StageNote struct {
	Stage     string    `json:"stage"`
	Note      string    `json:"note,omitempty"`
	ActorRole Role      `json:"actor_role"`
	ActorID   string    `json:"actor_id"`
	At        time.Time `json:"at"`
}

// Clone returns a deep copy.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	if r.Payload != nil {
		c.Payload = r.Payload.clone()
	}
	if r.StageNotes != nil {
		c.StageNotes = make([]StageNote, len(r.StageNotes))
		copy(c.StageNotes, r.StageNotes)
	}
	if r.DecidedAt != nil {
		t := *r.DecidedAt
		c.DecidedAt = &t
	}
	if r.ApprovedAt != nil {
		t := *r.ApprovedAt
		c.ApprovedAt = &t
	}
	return &c
}

func (r *Request) Bill() (*BillPayload, bool) {
	p, ok := r.Payload.(*BillPayload)
	return p, ok
}

func (r *Request) Chemical() (*ChemicalPayload, bool) {
	p, ok := r.Payload.(*ChemicalPayload)
	return p, ok
}

func (r *Request) Rate() (*RatePayload, bool) {
	p, ok := r.Payload.(*RatePayload)
	return p, ok
}
