package pagination

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

// Window is a half-open time range [From, To)
type Window struct {
	From time.Time
	To   time.Time
}

// ParseWindow reads ?from= and ?to= as RFC3339 timestamps or YYYY-MM-DD dates.
// A date-only "to" covers the whole day. Missing bounds default to the last
// fallback duration ending now.
func ParseWindow(c *gin.Context, now time.Time, fallback time.Duration) (Window, error) {
	w := Window{From: now.Add(-fallback), To: now}

	if raw := c.Query("from"); raw != "" {
		t, _, err := parseBound(raw)
		if err != nil {
			return Window{}, fmt.Errorf("invalid from: %w", err)
		}
		w.From = t
	}
	if raw := c.Query("to"); raw != "" {
		t, dateOnly, err := parseBound(raw)
		if err != nil {
			return Window{}, fmt.Errorf("invalid to: %w", err)
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1)
		}
		w.To = t
	}
	if !w.To.After(w.From) {
		return Window{}, fmt.Errorf("to must be after from")
	}
	return w, nil
}

// OptionalWindow is like ParseWindow but returns nil bounds when absent
func OptionalWindow(c *gin.Context) (from, to *time.Time, err error) {
	if raw := c.Query("from"); raw != "" {
		t, _, err := parseBound(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid from: %w", err)
		}
		from = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, dateOnly, err := parseBound(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid to: %w", err)
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1)
		}
		to = &t
	}
	if from != nil && to != nil && !to.After(*from) {
		return nil, nil, fmt.Errorf("to must be after from")
	}
	return from, to, nil
}

func parseBound(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, false, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("expected RFC3339 or YYYY-MM-DD, got %q", raw)
	}
	return t, true, nil
}
