package remote

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/snapbox/snapbox/internal/utils"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS backups (
    ref TEXT PRIMARY KEY,
    snapshot_id TEXT NOT NULL,
    machine_id TEXT NOT NULL,
    pushed_at TEXT NOT NULL -- RFC3339
);

CREATE INDEX IF NOT EXISTS idx_backups_snapshot ON backups(snapshot_id);
`

// BackupRecord is one pushed remote ref and the snapshot it was cut from.
type BackupRecord struct {
	Ref        Ref       `db:"ref"`
	SnapshotID string    `db:"snapshot_id"`
	MachineID  string    `db:"machine_id"`
	PushedAt   time.Time `db:"-"`
}

// Journal is the persistent record of every ref this project has pushed.
// A remote head found in the journal was produced here, so seeing it on the
// mirror never counts as divergence.
type Journal struct {
	db *sqlx.DB
}

func OpenJournal(path string) (*Journal, error) {
	if err := utils.EnsureParent(path); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=rwc&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record remembers that ref was pushed from snapshotID on this machine.
func (j *Journal) Record(ref Ref, snapshotID string) error {
	_, err := j.db.Exec(
		"INSERT OR REPLACE INTO backups (ref, snapshot_id, machine_id, pushed_at) VALUES (?, ?, ?, ?)",
		string(ref), snapshotID, utils.HWID, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record backup %s: %w", ref, err)
	}
	return nil
}

// Has reports whether ref is part of this project's push lineage.
func (j *Journal) Has(ref Ref) (bool, error) {
	var one int
	err := j.db.QueryRow("SELECT 1 FROM backups WHERE ref = ?", string(ref)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query backup %s: %w", ref, err)
	}
	return true, nil
}

// Get returns the record for ref, or nil when unknown.
func (j *Journal) Get(ref Ref) (*BackupRecord, error) {
	var rec BackupRecord
	var pushedAt string
	err := j.db.QueryRow(
		"SELECT ref, snapshot_id, machine_id, pushed_at FROM backups WHERE ref = ?", string(ref),
	).Scan(&rec.Ref, &rec.SnapshotID, &rec.MachineID, &pushedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query backup %s: %w", ref, err)
	}
	if rec.PushedAt, err = time.Parse(time.RFC3339, pushedAt); err != nil {
		return nil, fmt.Errorf("parse pushed_at for %s: %w", ref, err)
	}
	return &rec, nil
}
