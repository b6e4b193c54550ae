package detection

import (
	"regexp"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Label holds a parsed classifier label.
//
// Supported formats:
//   - "n02123045 tabby, tabby cat" (ImageNet synset id, comma separated synonyms)
//   - "golden_retriever" (underscore separated)
//   - "laptop, notebook"
//   - "Cat"
type Label struct {
	Raw     string   // as produced by the model
	Synset  string   // WordNet id if present
	Display string   // first synonym, humanized
	Terms   []string // lowercased synonyms, first one equals Key()
}

var (
	synsetPattern = regexp.MustCompile(`^n\d{8}\s+`)
	titleCaser    = cases.Title(language.English)
	titleMu       sync.Mutex

	labelCache sync.Map // raw label -> Label
)

// ParseLabel parses and caches a raw classifier label.
func ParseLabel(raw string) Label {
	if v, ok := labelCache.Load(raw); ok {
		return v.(Label)
	}
	l := parseLabel(raw)
	labelCache.Store(raw, l)
	return l
}

func parseLabel(raw string) Label {
	l := Label{Raw: raw}

	s := strings.TrimSpace(strings.ReplaceAll(raw, "\r", ""))
	if m := synsetPattern.FindString(s); m != "" {
		l.Synset = strings.TrimSpace(m)
		s = s[len(m):]
	}
	s = strings.ReplaceAll(s, "_", " ")

	for part := range strings.SplitSeq(s, ",") {
		term := NormalizeLabel(part)
		if term == "" || slices.Contains(l.Terms, term) {
			continue
		}
		l.Terms = append(l.Terms, term)
	}
	if len(l.Terms) == 0 {
		l.Display = strings.TrimSpace(raw)
		if n := NormalizeLabel(raw); n != "" {
			l.Terms = []string{n}
		}
		return l
	}

	titleMu.Lock()
	l.Display = titleCaser.String(l.Terms[0])
	titleMu.Unlock()
	return l
}

// Key returns the lowercased display label.
func (l Label) Key() string {
	if len(l.Terms) == 0 {
		return ""
	}
	return l.Terms[0]
}

// NormalizeLabel lowercases, trims, turns underscores into spaces and collapses whitespace.
func NormalizeLabel(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
