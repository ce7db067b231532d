package workflows

import (
	"fmt"
	"strings"
	"time"

	"github.com/PolarWolf314/enseal/internal/audit"
	kerrors "github.com/PolarWolf314/enseal/internal/errors"
	"github.com/PolarWolf314/enseal/internal/payload"
)

const timestampLayout = "2006-01-02T15:04:05.000000Z"

// LogOptions configures the log workflow.
type LogOptions struct {
	// Limit is the maximum number of entries to return. 0 means no limit.
	Limit int

	// Reverse orders entries from most recent to oldest when true.
	Reverse bool

	// Peer keeps entries whose sender or recipients include this name.
	Peer string

	// Operations filters entries by operation types (comma-separated).
	Operations string

	// Since and Until bound entries by date (YYYY-MM-DD), inclusive.
	Since string
	Until string

	// FailedOnly keeps entries that recorded an error.
	FailedOnly bool
}

// LogResult contains the outcome of a log operation.
type LogResult struct {
	Entries []audit.Entry

	// TotalEntriesBeforeFilter is the count of entries before filtering.
	TotalEntriesBeforeFilter int
}

// Log reads and filters the local audit log. A missing log yields no
// entries.
//
// Returns ErrInvalidDateFormat if Since or Until is not YYYY-MM-DD.
func Log(opts LogOptions) (*LogResult, error) {
	var since, until time.Time
	if opts.Since != "" {
		t, err := time.Parse("2006-01-02", opts.Since)
		if err != nil {
			return nil, fmt.Errorf("%w: --since must be YYYY-MM-DD", kerrors.ErrInvalidDateFormat)
		}
		since = t
	}
	if opts.Until != "" {
		t, err := time.Parse("2006-01-02", opts.Until)
		if err != nil {
			return nil, fmt.Errorf("%w: --until must be YYYY-MM-DD", kerrors.ErrInvalidDateFormat)
		}
		// Include the entire day.
		until = t.Add(24*time.Hour - time.Nanosecond)
	}

	entries, err := audit.ReadEntries()
	if err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}
	result := &LogResult{TotalEntriesBeforeFilter: len(entries)}

	var ops map[string]bool
	if opts.Operations != "" {
		ops = make(map[string]bool)
		for _, op := range strings.Split(opts.Operations, ",") {
			ops[strings.ToLower(strings.TrimSpace(op))] = true
		}
	}

	filtered := make([]audit.Entry, 0, len(entries))
	for _, e := range entries {
		if ops != nil && !ops[strings.ToLower(e.Operation)] {
			continue
		}
		if opts.Peer != "" && !involves(e, opts.Peer) {
			continue
		}
		if opts.FailedOnly && e.Error == "" {
			continue
		}
		if !since.IsZero() || !until.IsZero() {
			t, ok := parseTimestamp(e.Timestamp)
			if !ok || (!since.IsZero() && t.Before(since)) || (!until.IsZero() && t.After(until)) {
				continue
			}
		}
		filtered = append(filtered, e)
	}

	if opts.Reverse {
		for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
			filtered[i], filtered[j] = filtered[j], filtered[i]
		}
	}

	// The limit always keeps the most recent entries.
	if opts.Limit > 0 && len(filtered) > opts.Limit {
		if opts.Reverse {
			filtered = filtered[:opts.Limit]
		} else {
			filtered = filtered[len(filtered)-opts.Limit:]
		}
	}

	result.Entries = filtered
	return result, nil
}

func involves(e audit.Entry, name string) bool {
	if strings.EqualFold(e.Sender, name) {
		return true
	}
	for _, r := range e.Recipients {
		if strings.EqualFold(r, name) {
			return true
		}
	}
	return false
}

func parseTimestamp(ts string) (time.Time, bool) {
	t, err := time.Parse(timestampLayout, ts)
	if err != nil {
		t, err = time.Parse(time.RFC3339, ts)
	}
	return t, err == nil
}

// FormatDateTime formats a timestamp as YYYY-MM-DD HH:MM:SS.
func FormatDateTime(ts string) string {
	t, ok := parseTimestamp(ts)
	if !ok {
		if len(ts) >= 19 {
			return ts[:19]
		}
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

// FormatDetails summarizes what an entry did, never including values.
func FormatDetails(e audit.Entry) string {
	var parts []string
	switch e.Operation {
	case audit.OpShare:
		if e.Transport != "" {
			parts = append(parts, "via "+e.Transport)
		}
		if len(e.Recipients) > 0 {
			parts = append(parts, "to "+strings.Join(e.Recipients, ", "))
		}
	case audit.OpReceive, audit.OpListen:
		if e.Sender != "" {
			parts = append(parts, "from "+e.Sender)
		}
		if e.OutputPath != "" {
			parts = append(parts, "-> "+e.OutputPath)
		}
	case audit.OpKeys:
		parts = append(parts, e.Action)
		if len(e.Recipients) > 0 {
			parts = append(parts, e.Recipients[0])
		}
	}
	if e.Count > 0 {
		parts = append(parts, fmt.Sprintf("%d vars", e.Count))
	} else if e.Kind == payload.KindRawSecret.String() {
		parts = append(parts, "raw secret")
	}
	if e.Error != "" {
		parts = append(parts, "FAILED: "+e.Error)
	}
	return strings.Join(parts, " ")
}
