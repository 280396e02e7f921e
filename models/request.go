package models

import (
	"time"

	"gorm.io/datatypes"
)

// Request is the row shape shared by bill_requests, chemical_requests and
// rate_updates. The table is chosen per kind with db.Table.
// Timestamps come from the workflow clock, never from GORM.
type Request struct {
	ID            string         `json:"id" gorm:"primaryKey;size:36"`
	Status        string         `json:"status" gorm:"size:32;not null"`
	RequestedBy   string         `json:"requested_by" gorm:"size:128;not null"`
	RequestedRole string         `json:"requested_role" gorm:"size:16;not null"`
	Payload       datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	// rate_updates only; backs the (category, effective_date) uniqueness of Active records
	Category      *string    `json:"category,omitempty" gorm:"size:64"`
	EffectiveDate *string    `json:"effective_date,omitempty" gorm:"size:10"`
	DecidedBy     string     `json:"decided_by" gorm:"size:128"`
	DecidedAt     *time.Time `json:"decided_at"`
	ApprovedBy    string     `json:"approved_by" gorm:"size:128"`
	ApprovedAt    *time.Time `json:"approved_at"`
	CreatedAt     time.Time  `json:"created_at" gorm:"autoCreateTime:false;not null"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"autoUpdateTime:false;not null"`
}

// StageNote is one insert-only audit row. Seq orders the notes of a request.
type StageNote struct {
	RequestKind string    `json:"request_kind" gorm:"primaryKey;size:16"`
	RequestID   string    `json:"request_id" gorm:"primaryKey;size:36"`
	Seq         int       `json:"seq" gorm:"primaryKey;autoIncrement:false"`
	Stage       string    `json:"stage" gorm:"size:32;not null"`
	Note        string    `json:"note" gorm:"type:text"`
	ActorRole   string    `json:"actor_role" gorm:"size:16;not null"`
	ActorID     string    `json:"actor_id" gorm:"size:128;not null"`
	At          time.Time `json:"at" gorm:"not null"`
}

func (StageNote) TableName() string { return "stage_notes" }
