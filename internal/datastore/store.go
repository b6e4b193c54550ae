// Package datastore persists best shot sessions and captured photos. Rows
// live in SQLite or MySQL through GORM; image bytes live on disk.
package datastore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/lensnet-go/internal/bestshot"
	"github.com/tphakala/lensnet-go/internal/conf"
	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/logger"
	"github.com/tphakala/lensnet-go/internal/observability/metrics"
)

var (
	ErrNotFound  = errors.NewStd("capture not found")
	ErrNotOpen   = errors.NewStd("database connection is not initialized")
	ErrNoBackend = errors.NewStd("no datastore backend enabled")
)

// Photo is a manually captured still to persist.
type Photo struct {
	ID           string
	Data         []byte
	FacesBlurred int
	CapturedAt   time.Time
}

// Filter narrows ListCaptures.
type Filter struct {
	SessionID string
	Label     string // display label, case insensitive
	Source    string
	Since     time.Time
	Limit     int
	Offset    int
}

// Interface is the datastore contract used by the API and event consumer.
type Interface interface {
	Open() error
	Close() error
	SaveSession(ctx context.Context, c bestshot.Completion) error
	SavePhoto(ctx context.Context, p Photo) error
	GetCapture(ctx context.Context, publicID string) (*Capture, error)
	ListCaptures(ctx context.Context, f Filter) ([]Capture, error)
	ListSessions(ctx context.Context, limit int) ([]Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	ReadImage(c *Capture, thumbnail bool) ([]byte, error)
	DeleteCapture(ctx context.Context, publicID string) error
	CountCaptures(ctx context.Context) (int64, error)
}

// DataStore implements Interface over a GORM connection.
type DataStore struct {
	DB      *gorm.DB
	files   imageFiles
	metrics *metrics.DatastoreMetrics
	log     logger.Logger
	dialect func() (gorm.Dialector, string)
	dbType  string
}

// New selects the enabled backend from settings, SQLite first.
func New(settings *conf.Settings, m *metrics.DatastoreMetrics) (*DataStore, error) {
	switch {
	case settings.Output.SQLite.Enabled:
		return NewSQLite(settings.Output.SQLite.Path, settings.Output.Path, m), nil
	case settings.Output.MySQL.Enabled:
		return NewMySQL(settings.Output.MySQL, settings.Output.Path, m), nil
	default:
		return nil, ErrNoBackend
	}
}

// Open connects and migrates the schema.
func (ds *DataStore) Open() error {
	dialector, info := ds.dialect()
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(DefaultSlowQueryThreshold, gormlogger.Warn, ds.metrics),
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("db_type", ds.dbType).
			Build()
	}
	ds.DB = db
	return ds.performAutoMigration(info)
}

func (ds *DataStore) performAutoMigration(info string) error {
	start := time.Now()
	if err := ds.DB.AutoMigrate(&Session{}, &Capture{}); err != nil {
		return errors.New(fmt.Errorf("failed to auto-migrate %s database: %w", ds.dbType, err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	ds.log.Info("database ready",
		logger.String("db_type", ds.dbType),
		logger.String("location", info),
		logger.Duration("migration", time.Since(start)))
	ds.refreshCount(context.Background())
	return nil
}

// Close releases the connection pool.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return ErrNotOpen
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (ds *DataStore) observe(op string, start time.Time, err error) {
	ds.metrics.RecordOperation(op, time.Since(start), err)
}

// SaveSession stores a finished session with its ranked candidates. Image
// files are written before the transaction; on failure they are removed.
func (ds *DataStore) SaveSession(ctx context.Context, c bestshot.Completion) (err error) {
	if ds.DB == nil {
		return ErrNotOpen
	}
	start := time.Now()
	defer func() { ds.observe("save_session", start, err) }()

	sess := Session{
		ID:          c.SessionID,
		TargetLabel: c.Params.TargetLabel,
		Threshold:   c.Params.Threshold,
		DurationMs:  c.Params.Duration.Milliseconds(),
		Outcome:     c.Outcome,
		Captured:    c.Captured,
		Failed:      c.Failed,
		StartedAt:   c.StartedAt,
		EndedAt:     c.EndedAt,
	}
	var written []string
	defer func() {
		if err != nil {
			for _, p := range written {
				_ = ds.files.remove(p)
			}
		}
	}()

	for i, cand := range c.Candidates {
		img, thumb := ds.files.paths(cand.ID, cand.CapturedAt)
		if err := ds.files.write(img, cand.ImageData); err != nil {
			return ds.fileError(err, cand.ID)
		}
		written = append(written, img)
		if len(cand.Thumbnail) == 0 {
			thumb = ""
		} else {
			if err := ds.files.write(thumb, cand.Thumbnail); err != nil {
				return ds.fileError(err, cand.ID)
			}
			written = append(written, thumb)
		}

		sid := c.SessionID
		row := Capture{
			PublicID:     cand.ID,
			SessionID:    &sid,
			Source:       SourceBestShot,
			Rank:         i + 1,
			Label:        cand.TriggeringResult.Label,
			Display:      cand.TriggeringResult.DisplayLabel(),
			Confidence:   cand.TriggeringResult.Confidence,
			ImagePath:    img,
			ThumbPath:    thumb,
			ImageSize:    len(cand.ImageData),
			Light:        string(cand.Light),
			FacesBlurred: cand.FacesBlurred,
			CapturedAt:   cand.CapturedAt,
		}
		if cand.Location != nil {
			lat, lon := cand.Location.Latitude, cand.Location.Longitude
			row.Latitude, row.Longitude = &lat, &lon
		}
		sess.Captures = append(sess.Captures, row)
	}

	err = ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&sess).Error
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_session").
			Context("session_id", c.SessionID).
			Build()
	}
	ds.refreshCount(ctx)
	return nil
}

// SavePhoto stores a manual capture.
func (ds *DataStore) SavePhoto(ctx context.Context, p Photo) (err error) {
	if ds.DB == nil {
		return ErrNotOpen
	}
	start := time.Now()
	defer func() { ds.observe("save_photo", start, err) }()

	img, _ := ds.files.paths(p.ID, p.CapturedAt)
	if err := ds.files.write(img, p.Data); err != nil {
		return ds.fileError(err, p.ID)
	}
	row := Capture{
		PublicID:     p.ID,
		Source:       SourceManual,
		ImagePath:    img,
		ImageSize:    len(p.Data),
		FacesBlurred: p.FacesBlurred,
		CapturedAt:   p.CapturedAt,
	}
	if err := ds.DB.WithContext(ctx).Create(&row).Error; err != nil {
		_ = ds.files.remove(img)
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_photo").
			Build()
	}
	ds.refreshCount(ctx)
	return nil
}

func (ds *DataStore) fileError(err error, id string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryFileIO).
		Context("capture_id", id).
		Build()
}

// GetCapture returns the capture with publicID.
func (ds *DataStore) GetCapture(ctx context.Context, publicID string) (*Capture, error) {
	if ds.DB == nil {
		return nil, ErrNotOpen
	}
	var c Capture
	err := ds.DB.WithContext(ctx).Where("public_id = ?", publicID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCaptures returns captures newest first.
func (ds *DataStore) ListCaptures(ctx context.Context, f Filter) ([]Capture, error) {
	if ds.DB == nil {
		return nil, ErrNotOpen
	}
	q := ds.DB.WithContext(ctx).Model(&Capture{})
	if f.SessionID != "" {
		q = q.Where("session_id = ?", f.SessionID).Order("session_rank ASC")
	}
	if f.Label != "" {
		q = q.Where("LOWER(display) = LOWER(?)", f.Label)
	}
	if f.Source != "" {
		q = q.Where("source = ?", f.Source)
	}
	if !f.Since.IsZero() {
		q = q.Where("captured_at >= ?", f.Since)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []Capture
	err := q.Order("captured_at DESC").Order("id DESC").Limit(limit).Offset(f.Offset).Find(&out).Error
	return out, err
}

// ListSessions returns the most recent sessions.
func (ds *DataStore) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if ds.DB == nil {
		return nil, ErrNotOpen
	}
	if limit <= 0 {
		limit = 50
	}
	var out []Session
	err := ds.DB.WithContext(ctx).Order("ended_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// GetSession returns a session with its captures in rank order.
func (ds *DataStore) GetSession(ctx context.Context, id string) (*Session, error) {
	if ds.DB == nil {
		return nil, ErrNotOpen
	}
	var s Session
	err := ds.DB.WithContext(ctx).
		Preload("Captures", func(db *gorm.DB) *gorm.DB { return db.Order("session_rank ASC") }).
		First(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ReadImage loads the image or thumbnail bytes of c.
func (ds *DataStore) ReadImage(c *Capture, thumbnail bool) ([]byte, error) {
	rel := c.ImagePath
	if thumbnail && c.ThumbPath != "" {
		rel = c.ThumbPath
	}
	data, err := ds.files.read(rel)
	if err != nil {
		return nil, ds.fileError(err, c.PublicID)
	}
	return data, nil
}

// DeleteCapture removes the row and its files.
func (ds *DataStore) DeleteCapture(ctx context.Context, publicID string) error {
	c, err := ds.GetCapture(ctx, publicID)
	if err != nil {
		return err
	}
	if err := ds.DB.WithContext(ctx).Delete(&Capture{}, c.ID).Error; err != nil {
		return err
	}
	for _, p := range []string{c.ImagePath, c.ThumbPath} {
		if err := ds.files.remove(p); err != nil {
			ds.log.Warn("failed to remove capture file", logger.String("path", p), logger.Error(err))
		}
	}
	ds.refreshCount(ctx)
	return nil
}

// CountCaptures returns the number of stored captures.
func (ds *DataStore) CountCaptures(ctx context.Context) (int64, error) {
	if ds.DB == nil {
		return 0, ErrNotOpen
	}
	var n int64
	err := ds.DB.WithContext(ctx).Model(&Capture{}).Count(&n).Error
	return n, err
}

func (ds *DataStore) refreshCount(ctx context.Context) {
	if n, err := ds.CountCaptures(ctx); err == nil {
		ds.metrics.SetStoredCaptures(n)
	}
}
