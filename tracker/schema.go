package tracker

import (
	"database/sql"

	"github.com/hazyhaar/sahaf/tracker/internal/store"
)

// ApplySchema creates the tracker tables if they don't exist. Idempotent.
func ApplySchema(db *sql.DB) error {
	return store.ApplySchema(db)
}
