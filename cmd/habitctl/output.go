package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"habitcore/pkg/domain"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printWarnings(w io.Writer, res domain.Result) {
	for _, v := range res.Violations {
		fmt.Fprintf(w, "%s: %s (%s)\n", v.Severity, v.Message, v.Rule)
	}
}

func describeItem(item domain.ResolvedItem) string {
	if item.Time == nil {
		return item.Text
	}
	return item.Time.String() + " " + item.Text
}

var calendarGlyphs = map[domain.DayCategory]string{
	domain.DayNone:    ".",
	domain.DayLow:     "-",
	domain.DayMid:     "+",
	domain.DayHigh:    "*",
	domain.DayPerfect: "#",
}

// calendarStrip renders one glyph per day.
func calendarStrip(categories []domain.DayCategory) string {
	var b strings.Builder
	for _, c := range categories {
		glyph, ok := calendarGlyphs[c]
		if !ok {
			glyph = "?"
		}
		b.WriteString(glyph)
	}
	return b.String()
}

// nowIn is the current instant in the configured timezone.
func nowIn() time.Time {
	now := clock.Now()
	if loc, err := cfg.Location(); err == nil {
		now = now.In(loc)
	}
	return now
}
