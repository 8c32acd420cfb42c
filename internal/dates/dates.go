// Package dates turns the configured processing window into the list of
// calendar dates whose partitions are synchronized in a cycle.
package dates

import (
	"log/slog"
	"strings"
	"time"
)

// DefaultPattern is used when no pattern is configured.
const DefaultPattern = "%Y-%m-%d"

var strftime = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'e': "_2",
	'b': "Jan",
	'B': "January",
	'j': "002",
	'%': "%",
}

var tokens = strings.NewReplacer(
	"YYYY", "2006",
	"YY", "06",
	"MM", "01",
	"DD", "02",
)

// Layout translates a date pattern into a Go time layout. Patterns may use
// strftime directives (%Y-%m-%d), tokens (YYYY-MM-DD) or a Go layout.
func Layout(pattern string) string {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if strings.Contains(pattern, "%") {
		var b strings.Builder
		for i := 0; i < len(pattern); i++ {
			c := pattern[i]
			if c == '%' && i+1 < len(pattern) {
				if repl, ok := strftime[pattern[i+1]]; ok {
					b.WriteString(repl)
					i++
					continue
				}
			}
			b.WriteByte(c)
		}
		return b.String()
	}
	if strings.Contains(pattern, "YY") || strings.Contains(pattern, "DD") {
		return tokens.Replace(pattern)
	}
	return pattern
}

// Generator parses, formats and enumerates processing dates.
type Generator struct {
	layout string
	now    func() time.Time
	log    *slog.Logger
}

// New returns a Generator for pattern using the wall clock.
func New(pattern string) *Generator {
	return &Generator{
		layout: Layout(pattern),
		now:    time.Now,
		log:    slog.With("component", "dates"),
	}
}

// WithClock replaces the clock used for today's date.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Today returns the current calendar date.
func (g *Generator) Today() time.Time {
	return Day(g.now())
}

// Day truncates t to its calendar date, expressed at midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Format renders a date with the configured pattern.
func (g *Generator) Format(t time.Time) string {
	return t.Format(g.layout)
}

// Parse reads a date written with the configured pattern.
func (g *Generator) Parse(s string) (time.Time, error) {
	t, err := time.Parse(g.layout, s)
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}

// Window returns the start and end date strings for a cycle that looks back
// historicalDays days.
func (g *Generator) Window(historicalDays int) (string, string) {
	today := g.Today()
	return g.Format(today.AddDate(0, 0, -historicalDays)), g.Format(today)
}

// Between returns every date from start (inclusive) to end (exclusive) when
// end is after start, and exactly [end] otherwise. Unparseable input is
// logged and replaced by today's date.
func (g *Generator) Between(start, end string) []time.Time {
	s := g.parseOrToday("start", start)
	e := g.parseOrToday("end", end)

	days := int(e.Sub(s).Hours() / 24)
	if days <= 0 {
		return []time.Time{e}
	}
	out := make([]time.Time, 0, days)
	for i := 0; i < days; i++ {
		out = append(out, s.AddDate(0, 0, i))
	}
	return out
}

func (g *Generator) parseOrToday(which, value string) time.Time {
	t, err := g.Parse(value)
	if err != nil {
		today := g.Today()
		g.log.Error("invalid date, using today",
			"which", which,
			"value", value,
			"layout", g.layout,
			"today", g.Format(today),
			"error", err,
		)
		return today
	}
	return t
}
