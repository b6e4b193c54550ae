package datastore

import "time"

// Capture sources.
const (
	SourceBestShot = "bestshot"
	SourceManual   = "manual"
)

// Session is a finished best shot session.
type Session struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	TargetLabel string    `gorm:"size:128;index" json:"target_label"`
	Threshold   float32   `json:"threshold"`
	DurationMs  int64     `json:"duration_ms"`
	Outcome     string    `gorm:"size:16" json:"outcome"`
	Captured    int       `json:"captured"`
	Failed      int       `json:"failed"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `gorm:"index" json:"ended_at"`
	Captures    []Capture `gorm:"foreignKey:SessionID;references:ID;constraint:OnDelete:CASCADE" json:"captures,omitempty"`
}

// Capture is a saved photo. Image bytes live on disk; the row keeps paths
// relative to the output directory.
type Capture struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	PublicID     string    `gorm:"uniqueIndex;size:36" json:"public_id"`
	SessionID    *string   `gorm:"index;size:36" json:"session_id,omitempty"`
	Source       string    `gorm:"size:16;index" json:"source"`
	Rank         int       `gorm:"column:session_rank" json:"rank"` // position within the session, 0 for manual photos
	Label        string    `gorm:"size:255" json:"label"`
	Display      string    `gorm:"size:128;index" json:"display"`
	Confidence   float32   `json:"confidence"`
	ImagePath    string    `gorm:"size:512" json:"-"`
	ThumbPath    string    `gorm:"size:512" json:"-"`
	ImageSize    int       `json:"image_size"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	Light        string    `gorm:"size:16" json:"light"`
	FacesBlurred int       `json:"faces_blurred"`
	CapturedAt   time.Time `gorm:"index" json:"captured_at"`
	CreatedAt    time.Time `json:"created_at"`
}
