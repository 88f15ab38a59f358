package changelog

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/posiek07/extensions/internal/database"
	"github.com/posiek07/extensions/internal/sqlgen"
)

// Recorder is the narrow contract the core consumes: every source mutation
// becomes exactly one appended row. Implementations only ever append; rows
// are never read back, mutated, or deleted, which is what makes unbounded
// writer concurrency safe without coordination.
type Recorder interface {
	Record(ctx context.Context, rows []Row) error
}

// SQLRecorder is the reference Recorder backed by the raw changelog table.
// Rows without an event id get a ULID: ULIDs sort lexicographically in
// generation order, so the latest-view tie-break on equal timestamps favors
// the later-generated event.
type SQLRecorder struct {
	dbManager database.DatabaseManager
	names     sqlgen.Names
	logger    logrus.FieldLogger

	// entropy is monotonic so ids generated in the same millisecond still
	// order by generation; ulid.Monotonic is not safe for concurrent use.
	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// NewSQLRecorder creates a new SQLRecorder.
func NewSQLRecorder(dbManager database.DatabaseManager, names sqlgen.Names, logger logrus.FieldLogger) *SQLRecorder {
	return &SQLRecorder{
		dbManager: dbManager,
		names:     names,
		logger:    logger,
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}
}

// EnsureChangelogTable creates the raw changelog table if absent. The table
// is owned by the recording side; the view compiler only reads it.
func (r *SQLRecorder) EnsureChangelogTable(ctx context.Context) error {
	tmpl, err := r.dbManager.GetQuery("EnsureChangelogTable")
	if err != nil {
		return err
	}
	table := r.names.Qualify(r.names.RawChangelogTable())
	if _, err := r.dbManager.ExecuteSQL(ctx, fmt.Sprintf(tmpl, table)); err != nil {
		return fmt.Errorf("failed to ensure changelog table: %w", err)
	}
	return nil
}

// Record validates and appends a batch of rows in one transaction. Structural
// problems abort the batch before anything is written; softer contract
// anomalies are logged as warnings and the append proceeds. DELETE rows have
// their payload stripped so tombstones never carry data into the log.
func (r *SQLRecorder) Record(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	for i := range rows {
		if err := rows[i].Validate(); err != nil {
			return fmt.Errorf("refusing changelog batch: %w", err)
		}
		if rows[i].EventID == "" {
			rows[i].EventID = r.newEventID(rows[i])
		}
	}

	for _, v := range ValidateBatch(rows) {
		r.logger.WithFields(logrus.Fields{
			"document": v.DocumentName,
			"event_id": v.EventID,
		}).Warn(v.Msg)
	}

	tmpl, err := r.dbManager.GetQuery("AppendChangelogRow")
	if err != nil {
		return err
	}
	insert := fmt.Sprintf(tmpl, r.names.Qualify(r.names.RawChangelogTable()))

	err = r.dbManager.Transaction(ctx, func(tx *sql.Tx) error {
		for i := range rows {
			row := &rows[i]

			var data any
			if row.Operation != OpDelete && len(row.Data) > 0 {
				data = string(row.Data)
			}
			var partition any
			if row.PartitionValue != "" {
				partition = row.PartitionValue
			}

			if _, err := tx.ExecContext(ctx, insert,
				row.Timestamp.UTC(),
				row.EventID,
				row.DocumentName,
				row.DocumentID,
				string(row.Operation),
				data,
				partition,
			); err != nil {
				return fmt.Errorf("failed to append row for record %q: %w", row.DocumentName, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.WithField("rows", len(rows)).Debug("Changelog rows appended")
	return nil
}

func (r *SQLRecorder) newEventID(row Row) string {
	r.entropyMu.Lock()
	defer r.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(row.Timestamp), r.entropy).String()
}
