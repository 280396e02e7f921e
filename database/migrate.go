package database

import (
	"fmt"
	"strings"

	"opsconsole-backend/models"
	"opsconsole-backend/workflow"

	"gorm.io/gorm"
)

const activeRatePredicate = "status = 'Active'"

// Migrate applies (idempotent) schema migrations:
// - one request table per kind plus stage_notes and idempotency_keys
// - per-table indexes for history queries
// - the unique (category, effective_date) index over Active rate records
// - CHECK constraints on status values
func Migrate(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			if err := tx.Table(table).AutoMigrate(&models.Request{}); err != nil {
				return fmt.Errorf("automigrate %s failed: %w", table, err)
			}
		}
		if err := tx.AutoMigrate(&models.StageNote{}, &models.IdempotencyKey{}); err != nil {
			return fmt.Errorf("automigrate failed: %w", err)
		}

		indexes := []string{
			`CREATE INDEX IF NOT EXISTS idx_bill_requests_created ON bill_requests (created_at DESC, id DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_bill_requests_status ON bill_requests (status)`,
			`CREATE INDEX IF NOT EXISTS idx_bill_requests_requested_by ON bill_requests (requested_by)`,
			`CREATE INDEX IF NOT EXISTS idx_chemical_requests_created ON chemical_requests (created_at DESC, id DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_chemical_requests_status ON chemical_requests (status)`,
			`CREATE INDEX IF NOT EXISTS idx_chemical_requests_requested_by ON chemical_requests (requested_by)`,
			`CREATE INDEX IF NOT EXISTS idx_rate_updates_created ON rate_updates (created_at DESC, id DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_rate_updates_status ON rate_updates (status)`,
			`CREATE INDEX IF NOT EXISTS idx_rate_updates_key ON rate_updates (category, effective_date)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_rate_updates_active_key ON rate_updates (category, effective_date) WHERE ` + activeRatePredicate,
			`DROP INDEX IF EXISTS idx_idempotency_keys_key`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_idempotency_keys_user_key ON idempotency_keys (user_id, key)`,
		}
		for _, stmt := range indexes {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("index migration failed on: %s - %w", stmt, err)
			}
		}

		for kind, table := range tables {
			names := make([]string, 0, len(workflow.StatesOf(kind)))
			for _, st := range workflow.StatesOf(kind) {
				names = append(names, "'"+st.String()+"'")
			}
			states := strings.Join(names, ",")
			stmt := fmt.Sprintf(`DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM pg_constraint
					WHERE conrelid = '%[1]s'::regclass
					  AND conname  = 'chk_%[1]s_status'
				) THEN
					ALTER TABLE %[1]s
					ADD CONSTRAINT chk_%[1]s_status
					CHECK (status IN (%[2]s));
				END IF;
			END $$;`, table, states)
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("check constraint migration failed on %s: %w", table, err)
			}
		}
		return nil
	})
}
