package notification

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/tphakala/lensnet-go/internal/bestshot"
)

// Default best shot templates. Fields come from TemplateData.
const (
	DefaultBestShotTitle   = `{{.Node}}: best shot of {{.Target}}`
	DefaultBestShotMessage = `{{if .Count}}Kept {{.Count}} of {{.Captured}} photos of {{.Target}}, best at {{.BestPercent}}%{{if .Light}} in {{.Light}}{{end}}{{if .Location}} near {{.Location}}{{end}}.{{else}}No photo of {{.Target}} reached {{.ThresholdPercent}}% in {{.Duration}}.{{end}}`
)

// TemplateData is the data best shot templates are rendered with.
type TemplateData struct {
	Node             string
	SessionID        string
	Target           string
	Count            int // candidates kept
	Captured         int
	Failed           int
	BestPercent      string
	ThresholdPercent string
	Duration         string
	Light            string
	Location         string
	EndedAt          string
}

// NewTemplateData builds template data from a finished session.
func NewTemplateData(node string, c bestshot.Completion) TemplateData {
	d := TemplateData{
		Node:             node,
		SessionID:        c.SessionID,
		Target:           c.Params.TargetLabel,
		Count:            len(c.Candidates),
		Captured:         c.Captured,
		Failed:           c.Failed,
		ThresholdPercent: fmt.Sprintf("%.0f", c.Params.Threshold*100),
		Duration:         c.Params.Duration.Round(time.Second).String(),
		EndedAt:          c.EndedAt.Format(time.RFC3339),
	}
	if len(c.Candidates) > 0 {
		best := c.Candidates[0]
		d.BestPercent = fmt.Sprintf("%.0f", best.TriggeringResult.Confidence*100)
		d.Light = humanLight(string(best.Light))
		if best.Location != nil {
			d.Location = best.Location.String()
		}
	}
	return d
}

func humanLight(l string) string {
	switch l {
	case "golden_hour":
		return "golden hour light"
	case "daylight":
		return "daylight"
	case "":
		return ""
	default:
		return l
	}
}

// Templates renders notification text.
type Templates struct {
	title   *template.Template
	message *template.Template
}

// ParseTemplates compiles title and message templates. Empty strings select
// the defaults.
func ParseTemplates(title, message string) (*Templates, error) {
	if title == "" {
		title = DefaultBestShotTitle
	}
	if message == "" {
		message = DefaultBestShotMessage
	}
	t, err := template.New("title").Option("missingkey=error").Parse(title)
	if err != nil {
		return nil, fmt.Errorf("parse title template: %w", err)
	}
	m, err := template.New("message").Option("missingkey=error").Parse(message)
	if err != nil {
		return nil, fmt.Errorf("parse message template: %w", err)
	}
	return &Templates{title: t, message: m}, nil
}

// Render executes both templates.
func (t *Templates) Render(d TemplateData) (title, message string, err error) {
	var buf bytes.Buffer
	if err := t.title.Execute(&buf, d); err != nil {
		return "", "", err
	}
	title = buf.String()
	buf.Reset()
	if err := t.message.Execute(&buf, d); err != nil {
		return "", "", err
	}
	return title, buf.String(), nil
}
