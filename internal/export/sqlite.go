// Package export writes reporting nodes and variables into a flat SQLite
// database, one row per object with its document path, and records which
// nodes belong to each configured sector.
package export

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/etfkit/internal/jsontree"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	uid TEXT,
	parent_uid TEXT,
	template_node_uid TEXT,
	name_prefix TEXT,
	name TEXT,
	path TEXT NOT NULL,
	record JSON
);
CREATE TABLE IF NOT EXISTS variables (
	uid TEXT,
	node_uid TEXT,
	template_var_uid TEXT,
	path TEXT NOT NULL,
	record JSON
);
CREATE TABLE IF NOT EXISTS sector_refs (
	sector TEXT PRIMARY KEY,
	bitmap BLOB
);
`

// compact JSON with UTF-8 kept as is
var recordOptions = jsontree.EncodeOptions{}

// Writer batches inserts into a SQLite database.
type Writer struct {
	db        *sql.DB
	tx        *sql.Tx
	stmtNode  *sql.Stmt
	stmtVar   *sql.Stmt
	batchSize int
	count     int
	log       *slog.Logger

	// sectors maps an alias to the uids belonging to it; members collects
	// the nodes rowids of those uids as they are written.
	sectors map[string]jsontree.UIDSet
	members map[string]*roaring.Bitmap
}

// NewWriter opens (or creates) the database at dbPath and its tables.
// Nodes whose uid is in one of the sectors sets are recorded in
// sector_refs under that sector.
func NewWriter(dbPath string, sectors map[string]jsontree.UIDSet, log *slog.Logger) (*Writer, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// bulk insert tuning
	for _, pragma := range []string{"PRAGMA synchronous = OFF", "PRAGMA journal_mode = MEMORY"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	w := &Writer{
		db:        db,
		batchSize: 10000,
		log:       log,
		sectors:   sectors,
		members:   make(map[string]*roaring.Bitmap, len(sectors)),
	}
	if err := w.beginTx(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) beginTx() error {
	var err error
	w.tx, err = w.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	w.stmtNode, err = w.tx.Prepare(`
		INSERT INTO nodes (uid, parent_uid, template_node_uid, name_prefix, name, path, record)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare nodes: %w", err)
	}
	w.stmtVar, err = w.tx.Prepare(`
		INSERT INTO variables (uid, node_uid, template_var_uid, path, record)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare variables: %w", err)
	}
	return nil
}

func (w *Writer) commitTx() error {
	if w.stmtNode != nil {
		_ = w.stmtNode.Close()
	}
	if w.stmtVar != nil {
		_ = w.stmtVar.Close()
	}
	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// flush commits every batchSize rows.
func (w *Writer) flush() error {
	w.count++
	if w.count < w.batchSize {
		return nil
	}
	w.count = 0
	if err := w.commitTx(); err != nil {
		return err
	}
	return w.beginTx()
}

// AddNode writes one reporting node. A node without parent_uid gets the uid
// of the closest enclosing object that has one.
func (w *Writer) AddNode(tree *jsontree.Tree, node *jsontree.Node) error {
	record, err := shallowRecord(node)
	if err != nil {
		return err
	}
	parent := column(node, "parent_uid")
	if parent == nil {
		parent = enclosingUID(tree, node)
	}
	uid := column(node, "uid")
	res, err := w.stmtNode.Exec(
		uid,
		parent,
		column(node, "template_node_uid"),
		column(node, "name_prefix"),
		column(node, "name"),
		tree.Path(node),
		record,
	)
	if err != nil {
		return fmt.Errorf("insert node %s: %w", tree.Path(node), err)
	}
	if uid, ok := uid.(string); ok && len(w.sectors) > 0 {
		rowid, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("rowid of node %s: %w", uid, err)
		}
		w.addMember(uid, rowid)
	}
	return w.flush()
}

func (w *Writer) addMember(uid string, rowid int64) {
	for sector, uids := range w.sectors {
		if !uids.Has(uid) {
			continue
		}
		bm, ok := w.members[sector]
		if !ok {
			bm = roaring.New()
			w.members[sector] = bm
		}
		bm.Add(uint32(rowid))
	}
}

// writeSectors merges the collected members into sector_refs.
func (w *Writer) writeSectors() error {
	for sector, bm := range w.members {
		var blob []byte
		err := w.tx.QueryRow(`SELECT bitmap FROM sector_refs WHERE sector = ?`, sector).Scan(&blob)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("read sector %s: %w", sector, err)
		default:
			old := roaring.New()
			if err := old.UnmarshalBinary(blob); err != nil {
				return fmt.Errorf("decode sector %s: %w", sector, err)
			}
			bm.Or(old)
		}
		bm.RunOptimize()
		data, err := bm.ToBytes()
		if err != nil {
			return fmt.Errorf("encode sector %s: %w", sector, err)
		}
		if _, err := w.tx.Exec(`INSERT OR REPLACE INTO sector_refs (sector, bitmap) VALUES (?, ?)`, sector, data); err != nil {
			return fmt.Errorf("write sector %s: %w", sector, err)
		}
		w.log.Debug("sector members written", "sector", sector, "nodes", bm.GetCardinality())
	}
	return nil
}

// AddVariable writes one variable.
func (w *Writer) AddVariable(tree *jsontree.Tree, v *jsontree.Node) error {
	record, err := shallowRecord(v)
	if err != nil {
		return err
	}
	_, err = w.stmtVar.Exec(
		column(v, "uid"),
		column(v, "node_uid"),
		column(v, "template_var_uid"),
		tree.Path(v),
		record,
	)
	if err != nil {
		return fmt.Errorf("insert variable %s: %w", tree.Path(v), err)
	}
	return w.flush()
}

// Close commits pending rows, adds the lookup indexes and closes the
// database.
func (w *Writer) Close() error {
	if err := w.writeSectors(); err != nil {
		_ = w.tx.Rollback()
		_ = w.db.Close()
		return err
	}
	if err := w.commitTx(); err != nil {
		_ = w.db.Close()
		return err
	}
	// indexes are cheaper after the bulk load
	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_nodes_uid ON nodes(uid)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_uid)`,
		`CREATE INDEX IF NOT EXISTS idx_variables_node ON variables(node_uid)`,
	} {
		if _, err := w.db.Exec(stmt); err != nil {
			w.log.Warn("index creation failed", "stmt", stmt, "err", err)
		}
	}
	return w.db.Close()
}

// Summary counts the exported rows.
type Summary struct {
	Nodes     int
	Variables int
}

// Export writes every object below nodes and every object of variables to
// a new or existing database at dbPath. Either list may be nil. sectors,
// which may be nil too, is recorded as for NewWriter.
func Export(dbPath string, tree *jsontree.Tree, nodes, variables *jsontree.Node, sectors map[string]jsontree.UIDSet, log *slog.Logger) (Summary, error) {
	var sum Summary
	w, err := NewWriter(dbPath, sectors, log)
	if err != nil {
		return sum, err
	}
	if nodes != nil {
		for node, err := range tree.Traverse(nodes) {
			if err != nil {
				_ = w.Close()
				return sum, err
			}
			if err := w.AddNode(tree, node); err != nil {
				_ = w.Close()
				return sum, err
			}
			sum.Nodes++
		}
	}
	if variables != nil {
		for _, v := range variables.Items() {
			if !v.IsObject() {
				continue
			}
			if err := w.AddVariable(tree, v); err != nil {
				_ = w.Close()
				return sum, err
			}
			sum.Variables++
		}
	}
	if err := w.Close(); err != nil {
		return sum, err
	}
	w.log.Info("exported", "db", dbPath, "nodes", sum.Nodes, "variables", sum.Variables)
	return sum, nil
}

// column returns a scalar field as text, or nil for absent, null and
// container values.
func column(obj *jsontree.Node, key string) any {
	v, ok := obj.Get(key)
	if !ok || v.IsNull() || v.IsContainer() {
		return nil
	}
	return v.Text()
}

// enclosingUID returns the uid of the nearest ancestor object carrying one.
func enclosingUID(tree *jsontree.Tree, n *jsontree.Node) any {
	chain, err := tree.Ancestors(n)
	if err != nil {
		return nil
	}
	for _, p := range slices.Backward(chain) {
		if p.IsObject() {
			if uid := column(p, "uid"); uid != nil {
				return uid
			}
		}
	}
	return nil
}

// shallowRecord encodes the scalar fields of obj.
func shallowRecord(obj *jsontree.Node) (string, error) {
	flat := jsontree.NewObject()
	for key, value := range obj.Fields() {
		if !value.IsContainer() {
			flat.Set(key, value.Clone())
		}
	}
	return jsontree.Marshal(flat, recordOptions)
}
