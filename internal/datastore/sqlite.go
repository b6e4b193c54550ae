package datastore

import (
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/lensnet-go/internal/observability/metrics"
)

// NewSQLite returns a store backed by the SQLite file at dbPath. Images are
// written under outputDir.
func NewSQLite(dbPath, outputDir string, m *metrics.DatastoreMetrics) *DataStore {
	return &DataStore{
		files:   imageFiles{root: outputDir},
		metrics: m,
		log:     GetLogger(),
		dbType:  "SQLite",
		dialect: func() (gorm.Dialector, string) {
			if dir := filepath.Dir(dbPath); dir != "" {
				_ = os.MkdirAll(dir, 0o755)
			}
			// Foreign keys are off by default in SQLite; session deletes cascade.
			return sqlite.Open(dbPath + "?_foreign_keys=on&_busy_timeout=5000"), dbPath
		},
	}
}
