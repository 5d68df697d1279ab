// Package export exposes monitor results as lazy, restartable sequences and
// renders them into CSV artifacts. Clearing results is a separate explicit
// operation, never a side effect of exporting.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"iter"
	"strings"

	"github.com/keywatch/keywatch/internal/database"
)

// MonitorResults returns the results of one monitor as a restartable
// sequence.
func MonitorResults(m *database.Monitor) iter.Seq[database.Result] {
	return func(yield func(database.Result) bool) {
		for _, r := range m.Results {
			if !yield(r) {
				return
			}
		}
	}
}

// TenantResults returns all results across the tenant's monitors, in monitor
// order, as a restartable sequence.
func TenantResults(t *database.Tenant) iter.Seq[database.Result] {
	return func(yield func(database.Result) bool) {
		for _, m := range t.Monitors {
			for _, r := range m.Results {
				if !yield(r) {
					return
				}
			}
		}
	}
}

// WriteCSV renders a result sequence into CSV with a header row. Newlines in
// the message text are flattened to keep one record per line in spreadsheet
// imports.
func WriteCSV(results iter.Seq[database.Result]) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"keyword", "chat", "sender", "datetime", "link", "text"}); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	for r := range results {
		record := []string{
			r.Keyword,
			r.Chat,
			r.Sender,
			r.DateTime,
			r.Link,
			strings.ReplaceAll(r.Text, "\n", " "),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ClearMonitor removes all accumulated results of one monitor.
func ClearMonitor(ctx context.Context, store database.Store, tenantID int64, monitorID int) error {
	return store.Update(ctx, tenantID, func(t *database.Tenant) error {
		m := t.Monitor(monitorID)
		if m == nil {
			return fmt.Errorf("monitor %d: %w", monitorID, database.ErrMonitorNotFound)
		}
		m.Results = []database.Result{}
		return nil
	})
}

// ClearTenant removes all accumulated results across the tenant's monitors.
func ClearTenant(ctx context.Context, store database.Store, tenantID int64) error {
	return store.Update(ctx, tenantID, func(t *database.Tenant) error {
		for _, m := range t.Monitors {
			m.Results = []database.Result{}
		}
		return nil
	})
}
