// Package filter narrows an already fetched item list by free text, status,
// category and an inclusive range of days. It performs no I/O.
package filter

import (
	"strings"
	"time"

	"github.com/erazemk/lostfound/internal/model"
)

// Criteria selects items. Zero fields do not constrain.
type Criteria struct {
	// Search is matched case-insensitively as a substring of title,
	// description and place.
	Search string
	// IncludeReporter extends Search to reporter name and phone.
	IncludeReporter bool

	Status   model.Status
	Category model.Category

	// DateStart and DateEnd bound occurred_at by calendar day, inclusive.
	DateStart *time.Time
	DateEnd   *time.Time
}

// Bounded reports whether either date bound is set.
func (c Criteria) Bounded() bool {
	return c.DateStart != nil || c.DateEnd != nil
}

// occurredLayouts are tried in order when reading occurred_at.
var occurredLayouts = []string{
	model.OccurredLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Apply returns the items matching every criterion, in input order. The
// result is never nil. A start bound after the end bound matches nothing.
func Apply(items []model.Item, c Criteria) []model.Item {
	out := make([]model.Item, 0, len(items))

	var start, end int
	if c.DateStart != nil {
		start = dayKey(*c.DateStart)
	}
	if c.DateEnd != nil {
		end = dayKey(*c.DateEnd)
	}
	if c.DateStart != nil && c.DateEnd != nil && start > end {
		return out
	}

	needle := strings.ToLower(strings.TrimSpace(c.Search))

	for _, item := range items {
		if c.Status != "" && item.Status != c.Status {
			continue
		}
		if c.Category != "" && item.Category != c.Category {
			continue
		}
		if needle != "" && !matchesText(&item, needle, c.IncludeReporter) {
			continue
		}
		if c.Bounded() {
			day, ok := occurredDay(item.OccurredAt)
			if !ok {
				continue
			}
			if c.DateStart != nil && day < start {
				continue
			}
			if c.DateEnd != nil && day > end {
				continue
			}
		}
		out = append(out, item)
	}
	return out
}

// ParseDay parses a YYYY-MM-DD bound. An empty string yields nil.
func ParseDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(model.OccurredLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func matchesText(item *model.Item, needle string, includeReporter bool) bool {
	fields := []string{item.Title, item.Description, item.Place}
	if includeReporter {
		fields = append(fields, item.ReporterName, item.ReporterPhone)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

func occurredDay(s string) (int, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range occurredLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dayKey(t), true
		}
	}
	return 0, false
}

// dayKey orders calendar days as yyyymmdd.
func dayKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}
