package store

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
)

// exportRecord is the NDJSON shape of one exported event.
type exportRecord struct {
	ID        string `json:"id"`
	Instance  string `json:"instance"`
	Time      string `json:"time"`
	Facility  string `json:"facility"`
	Severity  string `json:"severity"`
	Seq       uint64 `json:"seq"`
	Subsystem string `json:"subsystem,omitempty"`
	Message   string `json:"message"`
	Truncated bool   `json:"truncated,omitempty"`
	Startup   bool   `json:"startup,omitempty"`
}

// Export writes events matching f to w as zstd-compressed NDJSON, oldest
// first, and returns how many were written.
func (d *DB) Export(w io.Writer, f QueryFilter) (int, error) {
	f.Ascending = true
	rows, err := d.query(f)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, fmt.Errorf("creating zstd writer: %w", err)
	}

	enc := json.NewEncoder(zw)
	n := 0
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			zw.Close()
			return n, err
		}
		rec := exportRecord{
			ID:        ev.ID,
			Instance:  ev.InstanceID,
			Time:      ev.Timestamp.UTC().Format(time.RFC3339Nano),
			Facility:  ev.Facility.Label(),
			Severity:  ev.Severity.Label(),
			Seq:       ev.Seq,
			Subsystem: ev.Subsystem,
			Message:   ev.Message,
			Truncated: ev.Truncated,
			Startup:   ev.Startup,
		}
		if err := enc.Encode(&rec); err != nil {
			zw.Close()
			return n, fmt.Errorf("encoding record %s: %w", ev.ID, err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		zw.Close()
		return n, fmt.Errorf("reading records: %w", err)
	}

	if err := zw.Close(); err != nil {
		return n, fmt.Errorf("finishing zstd stream: %w", err)
	}
	return n, nil
}
