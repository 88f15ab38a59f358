// Package changelog defines the change-event contract: the row shape every
// source mutation appends to the raw log, and the validation the recording
// side applies before appending. The read-side views reconstruct latest state
// purely from this contract: append-only rows, globally unique event ids,
// and per-record non-decreasing timestamps.
package changelog

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operation tags what kind of source mutation a row records.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
	OpImport Operation = "IMPORT"
)

// knownOperations guards against typo'd operation tags reaching the log.
var knownOperations = map[Operation]bool{
	OpCreate: true,
	OpUpdate: true,
	OpDelete: true,
	OpImport: true,
}

// Row is one appended change event. DocumentName is the record key the
// latest-snapshot view partitions by; (Timestamp, EventID) totally orders a
// record's history. Data holds the document's full payload after the
// mutation and is absent for DELETE tombstones. PartitionValue optionally
// carries a payload field copied out for time-based partitioning of the raw
// table; the core never partitions on its own.
type Row struct {
	Timestamp      time.Time
	Operation      Operation
	DocumentName   string
	DocumentID     string
	EventID        string
	Data           json.RawMessage
	PartitionValue string
}

// ContractViolation reports a detected anomaly in recorded rows. Violations
// are warnings, not failures: the view layer resolves them deterministically,
// but they usually indicate a misbehaving writer worth investigating.
type ContractViolation struct {
	DocumentName string
	EventID      string
	Msg          string
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("changelog contract violation for record %q (event %q): %s", e.DocumentName, e.EventID, e.Msg)
}

// Validate checks the structural requirements a row must meet to be
// appendable at all. Softer contract anomalies are reported by
// ValidateBatch instead.
func (r *Row) Validate() error {
	if r.DocumentName == "" {
		return fmt.Errorf("changelog row has no document name")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("changelog row for record %q has no timestamp", r.DocumentName)
	}
	if !knownOperations[r.Operation] {
		return fmt.Errorf("changelog row for record %q has unknown operation %q", r.DocumentName, r.Operation)
	}
	if r.Operation != OpDelete && len(r.Data) == 0 {
		return fmt.Errorf("changelog row for record %q (%s) carries no payload", r.DocumentName, r.Operation)
	}
	return nil
}

// ValidateBatch checks contract properties across a batch of rows: event id
// uniqueness, non-decreasing timestamps per record, and tombstones carrying
// payloads. Returned violations are advisory; the caller logs them and the
// append proceeds, since the read-side tie-break stays deterministic either
// way.
func ValidateBatch(rows []Row) []*ContractViolation {
	var violations []*ContractViolation

	seenEvents := make(map[string]bool, len(rows))
	lastPerDoc := make(map[string]time.Time)

	for i := range rows {
		r := &rows[i]

		if r.EventID != "" {
			if seenEvents[r.EventID] {
				violations = append(violations, &ContractViolation{
					DocumentName: r.DocumentName,
					EventID:      r.EventID,
					Msg:          "duplicate event id in batch",
				})
			}
			seenEvents[r.EventID] = true
		}

		if last, ok := lastPerDoc[r.DocumentName]; ok && r.Timestamp.Before(last) {
			violations = append(violations, &ContractViolation{
				DocumentName: r.DocumentName,
				EventID:      r.EventID,
				Msg: fmt.Sprintf("timestamp %s regresses behind %s for the same record",
					r.Timestamp.Format(time.RFC3339Nano), last.Format(time.RFC3339Nano)),
			})
		}
		lastPerDoc[r.DocumentName] = r.Timestamp

		if r.Operation == OpDelete && len(r.Data) > 0 {
			violations = append(violations, &ContractViolation{
				DocumentName: r.DocumentName,
				EventID:      r.EventID,
				Msg:          "DELETE row carries a payload; tombstones must omit data",
			})
		}
	}

	return violations
}
