package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"opsconsole-backend/models"
	"opsconsole-backend/workflow"
)

// GormStore keeps requests in Postgres. Conditional updates lock the row,
// compare the status and write with a status-guarded UPDATE, all in one
// transaction together with the new stage notes.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(ctx context.Context, r *workflow.Request) error {
	table, err := tableFor(r.Kind)
	if err != nil {
		return err
	}
	row, err := toRow(r)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(table).Create(&row).Error; err != nil {
			return fmt.Errorf("create %s request: %w", r.Kind, err)
		}
		return insertNotes(tx, noteRows(r.Kind, r.ID, r.StageNotes, 0))
	})
}

func (s *GormStore) Get(ctx context.Context, kind workflow.Kind, id string) (*workflow.Request, error) {
	return s.load(s.db.WithContext(ctx), kind, id, false)
}

func (s *GormStore) ConditionalUpdate(ctx context.Context, kind workflow.Kind, id string, expected workflow.State, m workflow.Mutation) (*workflow.Request, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	var out *workflow.Request
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.load(tx, kind, id, true)
		if err != nil {
			return err
		}
		if current.Status != expected {
			return fmt.Errorf("%w: %s request %s is %s, expected %s", workflow.ErrConflict, kind, id, current.Status, expected)
		}
		next := current.Clone()
		pub, err := m(next)
		if err != nil {
			return err
		}
		row, err := toRow(next)
		if err != nil {
			return err
		}
		res := tx.Table(table).
			Where("id = ? AND status = ?", id, expected.String()).
			Updates(updateColumns(row))
		if res.Error != nil {
			return fmt.Errorf("update %s request %s: %w", kind, id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s request %s changed concurrently", workflow.ErrConflict, kind, id)
		}
		if err := insertNotes(tx, noteRows(kind, id, next.StageNotes, len(current.StageNotes))); err != nil {
			return err
		}
		if pub != nil {
			if _, err := s.upsert(tx, pub); err != nil {
				return err
			}
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) Upsert(ctx context.Context, p *workflow.Publication) (*workflow.Request, error) {
	var out *workflow.Request
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.upsert(tx, p)
		out = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// upsert relies on the partial unique index over Active rate records. A
// concurrent insert for the same key turns this insert into a no-op, after
// which the existing record is updated instead.
func (s *GormStore) upsert(tx *gorm.DB, p *workflow.Publication) (*workflow.Request, error) {
	table := tables[workflow.KindRateUpdate]
	key := p.Key()
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.loadActive(tx, key)
		if err != nil && !errors.Is(err, workflow.ErrNotFound) {
			return nil, err
		}
		next := p.Apply(existing)
		row, err := toRow(next)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			res := tx.Table(table).Where("id = ?", existing.ID).Updates(updateColumns(row))
			if res.Error != nil {
				return nil, fmt.Errorf("update rate %s/%s: %w", key.Category, key.EffectiveDate, res.Error)
			}
			if err := insertNotes(tx, noteRows(workflow.KindRateUpdate, next.ID, next.StageNotes, len(existing.StageNotes))); err != nil {
				return nil, err
			}
			return next, nil
		}
		res := tx.Table(table).Clauses(clause.OnConflict{
			Columns:     []clause.Column{{Name: "category"}, {Name: "effective_date"}},
			TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: activeRatePredicate}}},
			DoNothing:   true,
		}).Create(&row)
		if res.Error != nil {
			return nil, fmt.Errorf("insert rate %s/%s: %w", key.Category, key.EffectiveDate, res.Error)
		}
		if res.RowsAffected == 1 {
			if err := insertNotes(tx, noteRows(workflow.KindRateUpdate, next.ID, next.StageNotes, 0)); err != nil {
				return nil, err
			}
			return next, nil
		}
	}
	return nil, fmt.Errorf("%w: rate %s/%s written concurrently", workflow.ErrConflict, key.Category, key.EffectiveDate)
}

func (s *GormStore) Query(ctx context.Context, kind workflow.Kind, f workflow.Filter) ([]*workflow.Request, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Table(table)
	if f.Status != nil {
		q = q.Where("status = ?", f.Status.String())
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("created_at < ?", f.To.UTC())
	}
	if f.RequestedBy != "" {
		q = q.Where("requested_by = ?", f.RequestedBy)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.EffectiveDate != "" {
		q = q.Where("effective_date = ?", f.EffectiveDate)
	}
	q = q.Order("created_at DESC").Order("id DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	var rows []models.Request
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query %s requests: %w", kind, err)
	}
	if len(rows) == 0 {
		return []*workflow.Request{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	var notes []models.StageNote
	if err := s.db.WithContext(ctx).
		Where("request_kind = ? AND request_id IN ?", string(kind), ids).
		Order("request_id").Order("seq").
		Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("query %s stage notes: %w", kind, err)
	}
	byID := make(map[string][]models.StageNote, len(rows))
	for _, n := range notes {
		byID[n.RequestID] = append(byID[n.RequestID], n)
	}

	out := make([]*workflow.Request, 0, len(rows))
	for _, row := range rows {
		r, err := fromRow(kind, row, byID[row.ID])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *GormStore) load(tx *gorm.DB, kind workflow.Kind, id string, lock bool) (*workflow.Request, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	q := tx.Table(table)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row models.Request
	if err := q.Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s %s", workflow.ErrNotFound, kind, id)
		}
		return nil, fmt.Errorf("load %s request %s: %w", kind, id, err)
	}
	return s.withNotes(tx, kind, row)
}

func (s *GormStore) loadActive(tx *gorm.DB, key workflow.RateKey) (*workflow.Request, error) {
	var row models.Request
	err := tx.Table(tables[workflow.KindRateUpdate]).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("category = ? AND effective_date = ? AND status = ?", key.Category, key.EffectiveDate, workflow.RateActive.String()).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.ErrNotFound
		}
		return nil, fmt.Errorf("load active rate %s/%s: %w", key.Category, key.EffectiveDate, err)
	}
	return s.withNotes(tx, workflow.KindRateUpdate, row)
}

func (s *GormStore) withNotes(tx *gorm.DB, kind workflow.Kind, row models.Request) (*workflow.Request, error) {
	var notes []models.StageNote
	if err := tx.
		Where("request_kind = ? AND request_id = ?", string(kind), row.ID).
		Order("seq").
		Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("load stage notes of %s: %w", row.ID, err)
	}
	return fromRow(kind, row, notes)
}

func insertNotes(tx *gorm.DB, notes []models.StageNote) error {
	if len(notes) == 0 {
		return nil
	}
	if err := tx.Create(&notes).Error; err != nil {
		return fmt.Errorf("append stage notes: %w", err)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

var _ workflow.Store = (*GormStore)(nil)
