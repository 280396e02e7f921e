package database

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"opsconsole-backend/models"
	"opsconsole-backend/workflow"
)

var tables = map[workflow.Kind]string{
	workflow.KindBill:       "bill_requests",
	workflow.KindChemical:   "chemical_requests",
	workflow.KindRateUpdate: "rate_updates",
}

func tableFor(kind workflow.Kind) (string, error) {
	t, ok := tables[kind]
	if !ok {
		return "", fmt.Errorf("no table for kind %q", kind)
	}
	return t, nil
}

func toRow(r *workflow.Request) (models.Request, error) {
	raw, err := json.Marshal(r.Payload)
	if err != nil {
		return models.Request{}, fmt.Errorf("encode %s payload: %w", r.Kind, err)
	}
	row := models.Request{
		ID:            r.ID,
		Status:        r.Status.String(),
		RequestedBy:   r.RequestedBy.ID,
		RequestedRole: string(r.RequestedBy.Role),
		Payload:       datatypes.JSON(raw),
		DecidedBy:     r.DecidedBy,
		DecidedAt:     r.DecidedAt,
		ApprovedBy:    r.ApprovedBy,
		ApprovedAt:    r.ApprovedAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if rate, ok := r.Rate(); ok {
		category, date := rate.Category, rate.EffectiveDate
		row.Category = &category
		row.EffectiveDate = &date
	}
	return row, nil
}

// updateColumns lists every column a transition or publication may change.
func updateColumns(row models.Request) map[string]any {
	return map[string]any{
		"status":         row.Status,
		"payload":        row.Payload,
		"category":       row.Category,
		"effective_date": row.EffectiveDate,
		"decided_by":     row.DecidedBy,
		"decided_at":     row.DecidedAt,
		"approved_by":    row.ApprovedBy,
		"approved_at":    row.ApprovedAt,
		"updated_at":     row.UpdatedAt,
	}
}

func fromRow(kind workflow.Kind, row models.Request, notes []models.StageNote) (*workflow.Request, error) {
	status, err := workflow.ParseState(kind, row.Status)
	if err != nil {
		return nil, fmt.Errorf("corrupt %s row %s: %v", kind, row.ID, err)
	}
	payload := workflow.NewPayload(kind)
	if err := json.Unmarshal(row.Payload, payload); err != nil {
		return nil, fmt.Errorf("decode %s payload %s: %w", kind, row.ID, err)
	}
	r := &workflow.Request{
		ID:          row.ID,
		Kind:        kind,
		Payload:     payload,
		Status:      status,
		RequestedBy: workflow.Actor{ID: row.RequestedBy, Role: workflow.Role(row.RequestedRole)},
		StageNotes:  make([]workflow.StageNote, 0, len(notes)),
		DecidedBy:   row.DecidedBy,
		DecidedAt:   utcPtr(row.DecidedAt),
		ApprovedBy:  row.ApprovedBy,
		ApprovedAt:  utcPtr(row.ApprovedAt),
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
	for _, n := range notes {
		r.StageNotes = append(r.StageNotes, workflow.StageNote{
			Stage:     n.Stage,
			Note:      n.Note,
			ActorRole: workflow.Role(n.ActorRole),
			ActorID:   n.ActorID,
			At:        n.At.UTC(),
		})
	}
	return r, nil
}

// noteRows converts notes[from:] into rows numbered from their position.
func noteRows(kind workflow.Kind, id string, notes []workflow.StageNote, from int) []models.StageNote {
	if from >= len(notes) {
		return nil
	}
	out := make([]models.StageNote, 0, len(notes)-from)
	for i := from; i < len(notes); i++ {
		n := notes[i]
		out = append(out, models.StageNote{
			RequestKind: string(kind),
			RequestID:   id,
			Seq:         i + 1,
			Stage:       n.Stage,
			Note:        n.Note,
			ActorRole:   string(n.ActorRole),
			ActorID:     n.ActorID,
			At:          n.At,
		})
	}
	return out
}
