package search

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/majoor/assetindex/pkg/assetdb"
)

var validKindFilters = map[string]assetdb.Kind{
	"image":   assetdb.KindImage,
	"video":   assetdb.KindVideo,
	"audio":   assetdb.KindAudio,
	"model3d": assetdb.KindModel3D,
}

var leadingDigits = regexp.MustCompile(`^(\d+)`)

// InlineFilters accumulates the filters consumed out of query tokens.
type InlineFilters struct {
	Extensions   []string
	Kind         string
	HasMinRating bool
	MinRating    int
	HasWorkflow  *bool
	WorkflowType string
}

// normalizeExtension strips a leading dot and trailing punctuation,
// matching the original normalize_extension.
func normalizeExtension(value string) string {
	text := strings.TrimSpace(value)
	if text == "" {
		return ""
	}
	text = strings.TrimLeft(text, ".")
	text = strings.Trim(text, ",;")
	return strings.ToLower(text)
}

func consumeExtension(value string, f *InlineFilters) bool {
	ext := normalizeExtension(value)
	if ext == "" {
		return false
	}
	for _, e := range f.Extensions {
		if e == ext {
			return true
		}
	}
	f.Extensions = append(f.Extensions, ext)
	return true
}

func consumeKind(value string, f *InlineFilters) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	if _, ok := validKindFilters[v]; !ok {
		return false
	}
	f.Kind = v
	return true
}

func consumeRating(value string, f *InlineFilters) bool {
	m := leadingDigits.FindStringSubmatch(value)
	if m == nil {
		return false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return false
	}
	if n < 0 {
		n = 0
	}
	if n > 5 {
		n = 5
	}
	f.HasMinRating = true
	f.MinRating = n
	return true
}

func consumeHasWorkflow(value string, f *InlineFilters) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	var b bool
	switch v {
	case "1", "true", "yes":
		b = true
	case "0", "false", "no":
		b = false
	default:
		return false
	}
	f.HasWorkflow = &b
	return true
}

func consumeWorkflowType(value string, f *InlineFilters) bool {
	v := strings.TrimSpace(value)
	if v == "" {
		return false
	}
	f.WorkflowType = v
	return true
}

// consumeFilterToken consumes one "key:value" token, reporting whether
// it was recognized as a filter (and thus should not remain in the
// free-text query).
func consumeFilterToken(token string, f *InlineFilters) bool {
	key, value, ok := strings.Cut(token, ":")
	if !ok {
		return false
	}
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.Trim(strings.TrimSpace(value), ",;")
	if key == "" || value == "" {
		return false
	}
	switch key {
	case "ext", "extension":
		return consumeExtension(value, f)
	case "kind":
		return consumeKind(value, f)
	case "rating":
		return consumeRating(value, f)
	case "has_workflow":
		return consumeHasWorkflow(value, f)
	case "workflow_type":
		return consumeWorkflowType(value, f)
	default:
		return false
	}
}

// ParseInlineFilters splits rawQuery into its free-text remainder and
// the inline key:value filters it carried.
func ParseInlineFilters(rawQuery string) (text string, filters InlineFilters) {
	rawQuery = strings.TrimSpace(rawQuery)
	if rawQuery == "" {
		return "", InlineFilters{}
	}
	tokens := strings.Fields(rawQuery)
	cleaned := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if consumeFilterToken(tok, &filters) {
			continue
		}
		cleaned = append(cleaned, tok)
	}
	return strings.TrimSpace(strings.Join(cleaned, " ")), filters
}

// ApplyInline merges inline-parsed filters into an explicit Filters
// struct, inline tokens losing to an already-set explicit value.
func (f Filters) ApplyInline(in InlineFilters) Filters {
	for _, ext := range in.Extensions {
		found := false
		for _, e := range f.Extensions {
			if e == ext {
				found = true
				break
			}
		}
		if !found {
			f.Extensions = append(f.Extensions, ext)
		}
	}
	if in.Kind != "" && len(f.Kind) == 0 {
		f.Kind = []assetdb.Kind{validKindFilters[in.Kind]}
	}
	if in.HasMinRating && !f.HasMinRating {
		f.HasMinRating = true
		f.MinRating = in.MinRating
	}
	if in.HasWorkflow != nil && f.HasWorkflow == nil {
		f.HasWorkflow = in.HasWorkflow
	}
	if in.WorkflowType != "" && f.WorkflowType == "" {
		f.WorkflowType = in.WorkflowType
	}
	return f
}

// DateRangeBounds computes [start, end) unix-second bounds for the
// named relative range ("today", "this_week", "this_month"), in UTC
// relative to reference (or time.Now() if zero).
func DateRangeBounds(rangeName string, reference time.Time) (start, end int64, ok bool) {
	if rangeName == "" {
		return 0, 0, false
	}
	if reference.IsZero() {
		reference = time.Now()
	}
	now := reference.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch rangeName {
	case "today":
		s := today
		e := s.AddDate(0, 0, 1)
		return s.Unix(), e.Unix(), true
	case "this_week":
		weekday := int(today.Weekday())
		// Go's Weekday is Sunday=0; the original is Python's
		// Monday=0 ISO convention, so convert.
		isoWeekday := (weekday + 6) % 7
		s := today.AddDate(0, 0, -isoWeekday)
		e := s.AddDate(0, 0, 7)
		return s.Unix(), e.Unix(), true
	case "this_month":
		s := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		e := s.AddDate(0, 1, 0)
		return s.Unix(), e.Unix(), true
	default:
		return 0, 0, false
	}
}

// DateExactBounds parses a YYYY-MM-DD value into [start, end) unix
// bounds for that calendar day in UTC.
func DateExactBounds(value string) (start, end int64, ok bool) {
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return 0, 0, false
	}
	s := time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
	e := s.AddDate(0, 0, 1)
	return s.Unix(), e.Unix(), true
}
