package mqtt

import (
	"time"

	"github.com/tphakala/lensnet-go/internal/bestshot"
	"github.com/tphakala/lensnet-go/internal/detection"
	"github.com/tphakala/lensnet-go/internal/events"
)

// Field names are consumed by Home Assistant value templates; keep them
// stable.

// LiveDTO is the payload published on <topic>/live.
type LiveDTO struct {
	Seq         uint64          `json:"seq"`
	Timestamp   string          `json:"timestamp"`
	Highlighted bool            `json:"highlighted"`
	Highlight   string          `json:"highlight,omitempty"` // display label of the highlighted result
	Top         string          `json:"top,omitempty"`       // display label of the highest ranked result
	Confidence  float32         `json:"confidence"`          // confidence of Top
	Results     []LiveResultDTO `json:"results"`
}

// LiveResultDTO is a single ranked live result.
type LiveResultDTO struct {
	Label      string  `json:"label"`
	Display    string  `json:"display"`
	Confidence float32 `json:"confidence"`
	Opacity    float64 `json:"opacity"`
	ObservedAt string  `json:"observedAt"`
}

// NewLiveDTO converts a live update event.
func NewLiveDTO(e events.LiveUpdate) LiveDTO {
	dto := LiveDTO{
		Results:     make([]LiveResultDTO, 0),
		Highlighted: e.Highlight.ShouldHighlight,
		Highlight:   e.Highlight.Label,
	}
	if e.Snapshot == nil {
		return dto
	}
	dto.Seq = e.Snapshot.Seq
	dto.Timestamp = e.Snapshot.UpdatedAt.Format(time.RFC3339Nano)
	for _, r := range e.Snapshot.Results {
		dto.Results = append(dto.Results, newLiveResultDTO(r))
	}
	if len(e.Snapshot.Results) > 0 {
		dto.Top = e.Snapshot.Results[0].Display
		dto.Confidence = e.Snapshot.Results[0].Confidence
	}
	return dto
}

func newLiveResultDTO(r detection.LiveResult) LiveResultDTO {
	return LiveResultDTO{
		Label:      r.Label,
		Display:    r.Display,
		Confidence: r.Confidence,
		Opacity:    r.Opacity,
		ObservedAt: r.ObservedAt.Format(time.RFC3339Nano),
	}
}

// BestShotDTO summarizes a finished best shot session. Image bytes are not
// published; consumers fetch them through the API by candidate id.
type BestShotDTO struct {
	SessionID   string         `json:"sessionId"`
	TargetLabel string         `json:"targetLabel"`
	Threshold   float32        `json:"threshold"`
	Outcome     string         `json:"outcome"`
	Captured    int            `json:"captured"`
	Failed      int            `json:"failed"`
	StartedAt   string         `json:"startedAt"`
	EndedAt     string         `json:"endedAt"`
	Candidates  []CandidateDTO `json:"candidates"`
}

// CandidateDTO is one ranked best shot photo.
type CandidateDTO struct {
	ID           string   `json:"id"`
	Label        string   `json:"label"`
	Confidence   float32  `json:"confidence"`
	CapturedAt   string   `json:"capturedAt"`
	Light        string   `json:"light,omitempty"`
	FacesBlurred int      `json:"facesBlurred,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
}

// NewBestShotDTO converts a session completion.
func NewBestShotDTO(c bestshot.Completion) BestShotDTO {
	dto := BestShotDTO{
		SessionID:   c.SessionID,
		TargetLabel: c.Params.TargetLabel,
		Threshold:   c.Params.Threshold,
		Outcome:     c.Outcome,
		Captured:    c.Captured,
		Failed:      c.Failed,
		StartedAt:   c.StartedAt.Format(time.RFC3339),
		EndedAt:     c.EndedAt.Format(time.RFC3339),
		Candidates:  make([]CandidateDTO, 0, len(c.Candidates)),
	}
	for _, cand := range c.Candidates {
		cd := CandidateDTO{
			ID:           cand.ID,
			Label:        cand.TriggeringResult.DisplayLabel(),
			Confidence:   cand.TriggeringResult.Confidence,
			CapturedAt:   cand.CapturedAt.Format(time.RFC3339Nano),
			Light:        string(cand.Light),
			FacesBlurred: cand.FacesBlurred,
		}
		if cand.Location != nil {
			lat, lon := cand.Location.Latitude, cand.Location.Longitude
			cd.Latitude, cd.Longitude = &lat, &lon
		}
		dto.Candidates = append(dto.Candidates, cd)
	}
	return dto
}

// ModelDTO is published on <topic>/model after a model switch attempt.
type ModelDTO struct {
	Model     string `json:"model"`
	Previous  string `json:"previous,omitempty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewModelDTO converts a model change event.
func NewModelDTO(e events.ModelChanged) ModelDTO {
	dto := ModelDTO{
		Model:     e.Model,
		Previous:  e.Previous,
		Success:   e.Err == nil,
		Timestamp: e.At.Format(time.RFC3339),
	}
	if e.Err != nil {
		dto.Error = e.Err.Error()
	}
	return dto
}
