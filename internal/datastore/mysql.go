package datastore

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tphakala/lensnet-go/internal/conf"
	"github.com/tphakala/lensnet-go/internal/observability/metrics"
	"github.com/tphakala/lensnet-go/internal/privacy"
)

// NewMySQL returns a store backed by a MySQL server.
func NewMySQL(s conf.MySQLSettings, outputDir string, m *metrics.DatastoreMetrics) *DataStore {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		s.Username, s.Password, s.Host, s.Port, s.Database)
	return newMySQLDSN(dsn, privacy.RedactEndpoint(s.Host+":"+s.Port), outputDir, m)
}

func newMySQLDSN(dsn, display, outputDir string, m *metrics.DatastoreMetrics) *DataStore {
	return &DataStore{
		files:   imageFiles{root: outputDir},
		metrics: m,
		log:     GetLogger(),
		dbType:  "MySQL",
		dialect: func() (gorm.Dialector, string) {
			return mysql.Open(dsn), display
		},
	}
}
