// Package record stores bridge activity in an SQLite database for offline
// inspection.
package record

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/diibridge/bridge"
	"github.com/sarchlab/diibridge/pipeline"
	"github.com/sarchlab/diibridge/rvfi"
)

// DefaultBatchSize is the number of buffered rows that triggers a flush.
const DefaultBatchSize = 10000

const schema = `
CREATE TABLE IF NOT EXISTS retirement (
	session   TEXT,
	trace     INTEGER,
	seq       INTEGER,
	time      REAL,
	ord       INTEGER,
	pc_rdata  INTEGER,
	pc_wdata  INTEGER,
	insn      INTEGER,
	rs1_addr  INTEGER,
	rs1_rdata INTEGER,
	rs2_addr  INTEGER,
	rs2_rdata INTEGER,
	rd_addr   INTEGER,
	rd_wdata  INTEGER,
	mem_addr  INTEGER,
	mem_rmask INTEGER,
	mem_wmask INTEGER,
	mem_rdata INTEGER,
	mem_wdata INTEGER,
	trap      INTEGER,
	halt      INTEGER,
	intr      INTEGER
);
CREATE TABLE IF NOT EXISTS reset_event (
	session TEXT,
	trace   INTEGER,
	time    REAL,
	retired INTEGER
);
CREATE TABLE IF NOT EXISTS rollback_event (
	session  TEXT,
	trace    INTEGER,
	time     REAL,
	kind     TEXT,
	received INTEGER,
	fed      INTEGER,
	retired  INTEGER
);
`

type retirementRow struct {
	trace  uint64
	seq    uint64
	time   sim.VTimeInSec
	packet rvfi.ExecutionPacket
}

type resetRow struct {
	trace   uint64
	time    sim.VTimeInSec
	retired uint64
}

type rollbackRow struct {
	trace    uint64
	time     sim.VTimeInSec
	kind     pipeline.Rollback
	counters pipeline.Counters
}

// Option is a functional option for configuring the SQLiteRecorder.
type Option func(*SQLiteRecorder)

// WithBatchSize sets the number of buffered rows that triggers a flush.
func WithBatchSize(n int) Option {
	return func(r *SQLiteRecorder) {
		r.batchSize = n
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(r *SQLiteRecorder) {
		r.log = log
	}
}

// SQLiteRecorder is a hook that records retirements, rollbacks and resets
// triggered by a bridge. Rows are buffered and written in one transaction
// per batch.
type SQLiteRecorder struct {
	db        *sql.DB
	session   string
	batchSize int
	log       logr.Logger

	trace uint64
	seq   uint64

	retirements []retirementRow
	resets      []resetRow
	rollbacks   []rollbackRow
}

// New creates a recorder writing to a new SQLite file. An empty path picks
// a unique file name in the working directory. The recorder flushes when
// the process exits through atexit.
func New(path string, opts ...Option) (*SQLiteRecorder, error) {
	if path == "" {
		path = "diibridge_" + xid.New().String() + ".sqlite3"
	}

	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("file %s already exists", path)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	r, err := NewWithDB(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}

	r.log.Info("recording to database", "path", path, "session", r.session)

	atexit.Register(func() {
		if err := r.Flush(); err != nil {
			r.log.Error(err, "failed to flush recorder at exit")
		}
	})

	return r, nil
}

// NewWithDB creates a recorder on an open database.
func NewWithDB(db *sql.DB, opts ...Option) (*SQLiteRecorder, error) {
	r := &SQLiteRecorder{
		db:        db,
		session:   xid.New().String(),
		batchSize: DefaultBatchSize,
		log:       logr.Discard(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return r, nil
}

// Session returns the identifier stored with every row of this recorder.
func (r *SQLiteRecorder) Session() string {
	return r.session
}

// Buffered returns the number of rows not written yet.
func (r *SQLiteRecorder) Buffered() int {
	return len(r.retirements) + len(r.resets) + len(r.rollbacks)
}

// Func records the hook context. Positions other than retire, rollback and
// reset are ignored.
func (r *SQLiteRecorder) Func(ctx sim.HookCtx) {
	now := timeOf(ctx.Domain)

	switch ctx.Pos {
	case bridge.HookPosRetire:
		r.retirements = append(r.retirements, retirementRow{
			trace:  r.trace,
			seq:    r.seq,
			time:   now,
			packet: ctx.Item.(rvfi.ExecutionPacket),
		})
		r.seq++
	case bridge.HookPosRollback:
		r.rollbacks = append(r.rollbacks, rollbackRow{
			trace:    r.trace,
			time:     now,
			kind:     ctx.Detail.(pipeline.Rollback),
			counters: ctx.Item.(pipeline.Counters),
		})
	case bridge.HookPosReset:
		r.resets = append(r.resets, resetRow{
			trace:   r.trace,
			time:    now,
			retired: r.seq,
		})
		r.trace++
		r.seq = 0
	default:
		return
	}

	if r.Buffered() >= r.batchSize {
		if err := r.Flush(); err != nil {
			r.log.Error(err, "failed to flush recorder")
		}
	}
}

// Flush writes every buffered row in a single transaction.
func (r *SQLiteRecorder) Flush() error {
	if r.Buffered() == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := r.insertAll(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.log.V(1).Info("recorder flushed",
		"retirements", len(r.retirements),
		"resets", len(r.resets),
		"rollbacks", len(r.rollbacks))

	r.retirements = nil
	r.resets = nil
	r.rollbacks = nil

	return nil
}

// Close flushes and closes the database.
func (r *SQLiteRecorder) Close() error {
	if err := r.Flush(); err != nil {
		return err
	}

	return r.db.Close()
}

func (r *SQLiteRecorder) insertAll(tx *sql.Tx) error {
	retire, err := tx.Prepare(`INSERT INTO retirement VALUES
		(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer retire.Close()

	for _, row := range r.retirements {
		p := row.packet
		_, err := retire.Exec(
			r.session, row.trace, row.seq, float64(row.time),
			int64(p.Order), int64(p.PCRData), int64(p.PCWData), int64(p.Insn),
			p.RS1Addr, int64(p.RS1Data), p.RS2Addr, int64(p.RS2Data),
			p.RDAddr, int64(p.RDWData),
			int64(p.MemAddr), p.MemRMask, p.MemWMask,
			int64(p.MemRData), int64(p.MemWData),
			p.Trap, p.Halt, p.Intr,
		)
		if err != nil {
			return fmt.Errorf("failed to insert retirement: %w", err)
		}
	}

	for _, row := range r.resets {
		_, err := tx.Exec(`INSERT INTO reset_event VALUES (?, ?, ?, ?)`,
			r.session, row.trace, float64(row.time), row.retired)
		if err != nil {
			return fmt.Errorf("failed to insert reset: %w", err)
		}
	}

	for _, row := range r.rollbacks {
		_, err := tx.Exec(`INSERT INTO rollback_event VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.session, row.trace, float64(row.time), row.kind.String(),
			row.counters.Received, row.counters.In, row.counters.Out)
		if err != nil {
			return fmt.Errorf("failed to insert rollback: %w", err)
		}
	}

	return nil
}

func timeOf(domain sim.Hookable) sim.VTimeInSec {
	if t, ok := domain.(sim.TimeTeller); ok {
		return t.CurrentTime()
	}

	return 0
}
