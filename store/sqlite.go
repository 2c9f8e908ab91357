package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/svpipe/assembly"
	"github.com/grailbio/svpipe/variant"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS status (
	sample_id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger (
	sample_id TEXT NOT NULL,
	stage TEXT NOT NULL,
	state TEXT NOT NULL,
	output TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (sample_id, stage)
);
CREATE TABLE IF NOT EXISTS datasets (
	sample_id TEXT NOT NULL,
	type TEXT NOT NULL,
	path TEXT NOT NULL,
	PRIMARY KEY (sample_id, type, path)
);
CREATE TABLE IF NOT EXISTS tracks (
	sample_id TEXT NOT NULL,
	name TEXT NOT NULL,
	path TEXT NOT NULL,
	PRIMARY KEY (sample_id, name)
);
CREATE TABLE IF NOT EXISTS contigs (
	uid TEXT PRIMARY KEY,
	sample_id TEXT NOT NULL,
	label TEXT NOT NULL,
	node_number INTEGER NOT NULL,
	coverage REAL NOT NULL,
	sequence TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	evidence_path TEXT NOT NULL,
	metadata TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS variants (
	uid TEXT PRIMARY KEY,
	sample_id TEXT NOT NULL,
	method TEXT NOT NULL,
	type TEXT NOT NULL,
	chrom TEXT NOT NULL,
	pos INTEGER NOT NULL,
	end_pos INTEGER NOT NULL,
	length INTEGER NOT NULL,
	mate_chrom TEXT NOT NULL,
	mate_pos INTEGER NOT NULL,
	contig_uid TEXT NOT NULL,
	imprecise INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contigs_sample ON contigs(sample_id, label);
CREATE INDEX IF NOT EXISTS idx_variants_sample ON variants(sample_id, method);
`

// SQLite is a Store backed by an SQLite database.
type SQLite struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.E(err, "open datastore", path)
	}
	// A single connection serializes writers and keeps ":memory:" databases
	// shared.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close() // nolint: errcheck
		return nil, errors.E(err, "init datastore schema", path)
	}
	return &SQLite{db: db}, nil
}

// Close implements Store.
func (s *SQLite) Close() error { return s.db.Close() }

// in returns " IN (?, ?, ...)" with n placeholders.
func in(n int) string {
	return " IN (" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}

func stringArgs(head []interface{}, vals []string) []interface{} {
	for _, v := range vals {
		head = append(head, v)
	}
	return head
}

func methodStrings(methods []variant.Method) []string {
	s := make([]string, len(methods))
	for i, m := range methods {
		s[i] = string(m)
	}
	return s
}

// Status implements Store.
func (s *SQLite) Status(ctx context.Context, sampleID string) (Status, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM status WHERE sample_id = ?`, sampleID).Scan(&v)
	if err == sql.ErrNoRows {
		return Queued, nil
	}
	if err != nil {
		return "", errors.E(err, "read status", sampleID)
	}
	return ParseStatus(v)
}

// SetStatus implements Store.
func (s *SQLite) SetStatus(ctx context.Context, sampleID string, next Status) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint: errcheck
	cur := Queued
	var v string
	switch err := tx.QueryRowContext(ctx, `SELECT status FROM status WHERE sample_id = ?`, sampleID).Scan(&v); {
	case err == sql.ErrNoRows:
	case err != nil:
		return errors.E(err, "read status", sampleID)
	default:
		if cur, err = ParseStatus(v); err != nil {
			return err
		}
	}
	if !cur.CanTransition(next) {
		return errors.E(errors.Precondition, sampleID, "status transition", string(cur), "->", string(next))
	}
	if err := putStatus(ctx, tx, sampleID, next); err != nil {
		return err
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func putStatus(ctx context.Context, db execer, sampleID string, st Status) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO status (sample_id, status, updated_at) VALUES (?, ?, ?)`,
		sampleID, string(st), time.Now().UTC())
	if err != nil {
		return errors.E(err, "write status", sampleID)
	}
	return nil
}

// ResetStatus implements Store.
func (s *SQLite) ResetStatus(ctx context.Context, sampleID string) error {
	return putStatus(ctx, s.db, sampleID, Queued)
}

// Stage implements Store.
func (s *SQLite) Stage(ctx context.Context, sampleID, stage string) (LedgerEntry, error) {
	e := LedgerEntry{Stage: stage, State: NotStarted}
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state, output FROM ledger WHERE sample_id = ? AND stage = ?`,
		sampleID, stage).Scan(&state, &e.Output)
	if err == sql.ErrNoRows {
		return e, nil
	}
	if err != nil {
		return e, errors.E(err, "read ledger", sampleID, stage)
	}
	e.State = StageState(state)
	return e, nil
}

// SetStage implements Store.
func (s *SQLite) SetStage(ctx context.Context, sampleID string, e LedgerEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO ledger (sample_id, stage, state, output) VALUES (?, ?, ?, ?)`,
		sampleID, e.Stage, string(e.State), e.Output)
	if err != nil {
		return errors.E(err, "write ledger", sampleID, e.Stage)
	}
	return nil
}

// ClearLedger implements Store.
func (s *SQLite) ClearLedger(ctx context.Context, sampleID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM ledger WHERE sample_id = ?`, sampleID)
	return err
}

// AddDataset implements Store.
func (s *SQLite) AddDataset(ctx context.Context, d Dataset) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO datasets (sample_id, type, path) VALUES (?, ?, ?)`,
		d.SampleID, d.Type, d.Path)
	if err != nil {
		return errors.E(err, "add dataset", d.Type, d.Path)
	}
	return nil
}

// Datasets implements Store.
func (s *SQLite) Datasets(ctx context.Context, sampleID string, types ...string) ([]Dataset, error) {
	q := `SELECT sample_id, type, path FROM datasets WHERE sample_id = ?`
	if len(types) > 0 {
		q += ` AND type` + in(len(types))
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY type, path`, stringArgs([]interface{}{sampleID}, types)...)
	if err != nil {
		return nil, errors.E(err, "list datasets", sampleID)
	}
	defer rows.Close() // nolint: errcheck
	var ds []Dataset
	for rows.Next() {
		var d Dataset
		if err := rows.Scan(&d.SampleID, &d.Type, &d.Path); err != nil {
			return nil, err
		}
		ds = append(ds, d)
	}
	return ds, rows.Err()
}

// DeleteDatasets implements Store.
func (s *SQLite) DeleteDatasets(ctx context.Context, sampleID string, types ...string) error {
	q := `DELETE FROM datasets WHERE sample_id = ?`
	if len(types) > 0 {
		q += ` AND type` + in(len(types))
	}
	_, err := s.db.ExecContext(ctx, q, stringArgs([]interface{}{sampleID}, types)...)
	return err
}

// AddTrack implements Store.
func (s *SQLite) AddTrack(ctx context.Context, t Track) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tracks (sample_id, name, path) VALUES (?, ?, ?)`,
		t.SampleID, t.Name, t.Path)
	if err != nil {
		return errors.E(err, "add track", t.Name)
	}
	return nil
}

// Tracks implements Store.
func (s *SQLite) Tracks(ctx context.Context, sampleID string) ([]Track, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sample_id, name, path FROM tracks WHERE sample_id = ? ORDER BY name`, sampleID)
	if err != nil {
		return nil, errors.E(err, "list tracks", sampleID)
	}
	defer rows.Close() // nolint: errcheck
	var ts []Track
	for rows.Next() {
		var t Track
		if err := rows.Scan(&t.SampleID, &t.Name, &t.Path); err != nil {
			return nil, err
		}
		ts = append(ts, t)
	}
	return ts, rows.Err()
}

// DeleteTracks implements Store.
func (s *SQLite) DeleteTracks(ctx context.Context, sampleID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tracks WHERE sample_id = ?`, sampleID)
	return err
}

// PutContigs implements Store.
func (s *SQLite) PutContigs(ctx context.Context, contigs []assembly.Contig) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint: errcheck
	for _, c := range contigs {
		md, err := json.Marshal(c.Metadata)
		if err != nil {
			return errors.E(err, "encode contig metadata", c.Label)
		}
		_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO contigs
			(uid, sample_id, label, node_number, coverage, sequence, timestamp, evidence_path, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.UID, c.SampleID, c.Label, c.NodeNumber, c.Coverage, c.Sequence,
			c.Timestamp.UTC(), c.EvidencePath, string(md))
		if err != nil {
			return errors.E(err, "write contig", c.Label)
		}
	}
	return tx.Commit()
}

// Contigs implements Store.
func (s *SQLite) Contigs(ctx context.Context, sampleID string) ([]assembly.Contig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		uid, sample_id, label, node_number, coverage, sequence, timestamp, evidence_path, metadata
		FROM contigs WHERE sample_id = ? ORDER BY label`, sampleID)
	if err != nil {
		return nil, errors.E(err, "list contigs", sampleID)
	}
	defer rows.Close() // nolint: errcheck
	var contigs []assembly.Contig
	for rows.Next() {
		var (
			c  assembly.Contig
			md string
		)
		if err := rows.Scan(&c.UID, &c.SampleID, &c.Label, &c.NodeNumber, &c.Coverage,
			&c.Sequence, &c.Timestamp, &c.EvidencePath, &md); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(md), &c.Metadata); err != nil {
			return nil, errors.E(errors.Integrity, "contig metadata", c.Label, err)
		}
		contigs = append(contigs, c)
	}
	return contigs, rows.Err()
}

// DeleteContigs implements Store.
func (s *SQLite) DeleteContigs(ctx context.Context, sampleID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM contigs WHERE sample_id = ?`, sampleID)
	return err
}

// PutVariants implements Store.
func (s *SQLite) PutVariants(ctx context.Context, cands []variant.Candidate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint: errcheck
	for _, c := range cands {
		_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO variants
			(uid, sample_id, method, type, chrom, pos, end_pos, length, mate_chrom, mate_pos, contig_uid, imprecise)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.UID, c.SampleID, string(c.Method), string(c.Type), c.Chrom, c.Pos, c.End,
			c.Length, c.MateChrom, c.MatePos, c.ContigUID, c.Imprecise)
		if err != nil {
			return errors.E(err, "write variant", c.UID)
		}
	}
	return tx.Commit()
}

// Variants implements Store.
func (s *SQLite) Variants(ctx context.Context, sampleID string, methods ...variant.Method) ([]variant.Candidate, error) {
	q := `SELECT uid, sample_id, method, type, chrom, pos, end_pos, length, mate_chrom, mate_pos, contig_uid, imprecise
		FROM variants WHERE sample_id = ?`
	if len(methods) > 0 {
		q += ` AND method` + in(len(methods))
	}
	q += ` ORDER BY chrom, pos, uid`
	rows, err := s.db.QueryContext(ctx, q, stringArgs([]interface{}{sampleID}, methodStrings(methods))...)
	if err != nil {
		return nil, errors.E(err, "list variants", sampleID)
	}
	defer rows.Close() // nolint: errcheck
	var cands []variant.Candidate
	for rows.Next() {
		var (
			c           variant.Candidate
			method, typ string
		)
		if err := rows.Scan(&c.UID, &c.SampleID, &method, &typ, &c.Chrom, &c.Pos, &c.End,
			&c.Length, &c.MateChrom, &c.MatePos, &c.ContigUID, &c.Imprecise); err != nil {
			return nil, err
		}
		c.Method, c.Type = variant.Method(method), variant.Type(typ)
		cands = append(cands, c)
	}
	return cands, rows.Err()
}

// DeleteVariants implements Store.
func (s *SQLite) DeleteVariants(ctx context.Context, sampleID string, methods ...variant.Method) error {
	q := `DELETE FROM variants WHERE sample_id = ?`
	if len(methods) > 0 {
		q += ` AND method` + in(len(methods))
	}
	_, err := s.db.ExecContext(ctx, q, stringArgs([]interface{}{sampleID}, methodStrings(methods))...)
	return err
}
