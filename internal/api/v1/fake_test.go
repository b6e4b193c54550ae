package v1

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/lensnet-go/internal/bestshot"
	"github.com/tphakala/lensnet-go/internal/capture"
	"github.com/tphakala/lensnet-go/internal/datastore"
	"github.com/tphakala/lensnet-go/internal/detection"
	"github.com/tphakala/lensnet-go/internal/highlight"
	"github.com/tphakala/lensnet-go/internal/inference"
	"github.com/tphakala/lensnet-go/internal/pipeline"
	"github.com/tphakala/lensnet-go/internal/privacy/faceblur"
)

type fakeCamera struct {
	mu sync.Mutex

	status      pipeline.Status
	devices     []capture.Device
	model       inference.ModelType
	minInterval time.Duration
	rules       highlight.RuleSet
	assisted    bool
	faceBlur    bool
	style       faceblur.Style
	photo       pipeline.Photo
	err         error // returned by fallible operations
	params      bestshot.Params
	finalize    *bool
	candidates  []bestshot.Candidate
}

func (f *fakeCamera) Status() pipeline.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.status
	st.Model = f.model
	return st
}

func (f *fakeCamera) Snapshot() *detection.LiveSnapshot { return f.status.Live }

func (f *fakeCamera) SwitchModel(t inference.ModelType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.model = t
	return nil
}

func (f *fakeCamera) SwitchLens(id string) error {
	for _, d := range f.devices {
		if d.ID == id {
			f.status.Device = &d
			return nil
		}
	}
	return capture.ErrUnknownDevice
}

func (f *fakeCamera) SwitchFrontBack() error         { return f.err }
func (f *fakeCamera) Devices() []capture.Device      { return f.devices }
func (f *fakeCamera) SetMinInterval(d time.Duration) { f.minInterval = d }

func (f *fakeCamera) SetHighlightRules(rules map[string]float64) {
	f.rules = highlight.NewRuleSet(rules)
}

func (f *fakeCamera) HighlightRules() highlight.RuleSet { return f.rules.Clone() }
func (f *fakeCamera) SetAssistedCapture(enabled bool)   { f.assisted = enabled }
func (f *fakeCamera) SetFaceBlur(enabled bool)          { f.faceBlur = enabled }
func (f *fakeCamera) SetBlurStyle(style faceblur.Style) { f.style = style }

func (f *fakeCamera) CapturePhoto(context.Context) (pipeline.Photo, error) {
	return f.photo, f.err
}

func (f *fakeCamera) StartBestShot(_ context.Context, p bestshot.Params) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.params = p
	return "session-1", nil
}

func (f *fakeCamera) StopBestShot(finalize bool) ([]bestshot.Candidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.finalize = &finalize
	if !finalize {
		return nil, nil
	}
	return f.candidates, nil
}

func (f *fakeCamera) BestShotProgress() bestshot.Progress {
	return bestshot.Progress{StateName: "active", SessionID: "session-1"}
}

type fakeStore struct {
	datastore.Interface
	captures map[string]datastore.Capture
	images   map[string][]byte
	filter   datastore.Filter
	deleted  []string
}

func (s *fakeStore) GetCapture(_ context.Context, id string) (*datastore.Capture, error) {
	c, ok := s.captures[id]
	if !ok {
		return nil, datastore.ErrNotFound
	}
	return &c, nil
}

func (s *fakeStore) ListCaptures(_ context.Context, f datastore.Filter) ([]datastore.Capture, error) {
	s.filter = f
	out := []datastore.Capture{}
	for _, c := range s.captures {
		out = append(out, c)
	}
	return out, nil
}

func (s *fakeStore) ReadImage(c *datastore.Capture, thumb bool) ([]byte, error) {
	key := c.PublicID
	if thumb {
		key += "_thumb"
	}
	return s.images[key], nil
}

func (s *fakeStore) DeleteCapture(_ context.Context, id string) error {
	if _, ok := s.captures[id]; !ok {
		return datastore.ErrNotFound
	}
	s.deleted = append(s.deleted, id)
	return nil
}
