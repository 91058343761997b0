package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring"
	"modernc.org/sqlite/vtab"
)

const moduleName = "etf_sectors"

// modernc.org/sqlite registers modules with the driver, not per database,
// so there is one module for the process.
var (
	once      sync.Once
	singleton *SectorModule
	initErr   error
	nextID    atomic.Uint64
)

// SectorModule implements vtab.Module for the etf_sectors virtual table,
// which expands the sector_refs bitmaps of an exported database into
// (sector, uid, path) rows.
type SectorModule struct {
	mu sync.RWMutex
	// dbs maps the argument of CREATE VIRTUAL TABLE ... USING etf_sectors(id)
	// to the database holding sector_refs and nodes.
	dbs map[string]*sql.DB
}

// Register registers the etf_sectors module with the SQLite driver. Only
// the first call registers; later calls return the same module.
func Register() (*SectorModule, error) {
	once.Do(func() {
		singleton = &SectorModule{dbs: make(map[string]*sql.DB)}
		if err := vtab.RegisterModule(nil, moduleName, singleton); err != nil {
			initErr = fmt.Errorf("register %s module: %w", moduleName, err)
			singleton = nil
		}
	})
	return singleton, initErr
}

// RegisterDB makes db available to virtual tables created with id.
func (m *SectorModule) RegisterDB(id string, db *sql.DB) {
	m.mu.Lock()
	m.dbs[id] = db
	m.mu.Unlock()
}

// UnregisterDB forgets the database registered under id.
func (m *SectorModule) UnregisterDB(id string) {
	m.mu.Lock()
	delete(m.dbs, id)
	m.mu.Unlock()
}

func (m *SectorModule) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	// module name, database name, table name, then the USING arguments
	if len(args) < 4 {
		return nil, fmt.Errorf("%s: missing database id (expected USING %s(id))", moduleName, moduleName)
	}
	id := strings.Trim(args[3], " '\"")

	m.mu.RLock()
	db, ok := m.dbs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: unknown database id %q", moduleName, id)
	}

	if err := ctx.Declare("CREATE TABLE x(sector TEXT, uid TEXT, path TEXT)"); err != nil {
		return nil, err
	}
	return &sectorTable{db: db}, nil
}

func (m *SectorModule) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.Create(ctx, args)
}

type sectorTable struct {
	db *sql.DB
}

const (
	scanAll = iota
	scanSector
	scanLike
)

func (t *sectorTable) BestIndex(info *vtab.IndexInfo) error {
	for i := range info.Constraints {
		c := &info.Constraints[i]
		if !c.Usable || c.Column != 0 {
			continue
		}
		switch c.Op {
		case vtab.OpEQ:
			c.ArgIndex = 0
			c.Omit = true
			info.IdxNum = scanSector
			info.EstimatedCost = 1
			info.EstimatedRows = 1000
			return nil
		case vtab.OpLIKE:
			c.ArgIndex = 0
			c.Omit = true
			info.IdxNum = scanLike
			info.EstimatedCost = 100
			info.EstimatedRows = 10000
			return nil
		}
	}
	info.IdxNum = scanAll
	info.EstimatedCost = 1e6
	info.EstimatedRows = 1e6
	return nil
}

func (t *sectorTable) Open() (vtab.Cursor, error) {
	return &sectorCursor{table: t}, nil
}

func (t *sectorTable) Disconnect() error { return nil }
func (t *sectorTable) Destroy() error    { return nil }

type sectorRow struct {
	sector string
	uid    sql.NullString
	path   string
}

type sectorCursor struct {
	table *sectorTable
	rows  []sectorRow
	pos   int
}

func (c *sectorCursor) Filter(idxNum int, idxStr string, vals []vtab.Value) error {
	c.rows = c.rows[:0]
	c.pos = 0

	query := `SELECT sector, bitmap FROM sector_refs`
	var args []any
	switch idxNum {
	case scanSector, scanLike:
		sector, ok := vals[0].(string)
		if !ok {
			return nil
		}
		op := "="
		if idxNum == scanLike {
			op = "LIKE"
		}
		query += fmt.Sprintf(" WHERE sector %s ?", op)
		args = append(args, sector)
	}
	query += " ORDER BY sector"

	type entry struct {
		sector string
		blob   []byte
	}
	rows, err := c.table.db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("%s: scan sector_refs: %w", moduleName, err)
	}
	// the bitmaps are expanded after the scan is closed so both
	// statements do not hold a connection at once
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.sector, &e.blob); err != nil {
			_ = rows.Close()
			return fmt.Errorf("%s: scan sector_refs: %w", moduleName, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("%s: scan sector_refs: %w", moduleName, err)
	}
	_ = rows.Close()

	for _, e := range entries {
		if err := c.expand(e.sector, e.blob); err != nil {
			return err
		}
	}
	return nil
}

// expand resolves the nodes rowids of one sector bitmap.
func (c *sectorCursor) expand(sector string, blob []byte) error {
	bm := roaring.New()
	if err := bm.UnmarshalBinary(blob); err != nil {
		return fmt.Errorf("%s: decode bitmap of %s: %w", moduleName, sector, err)
	}
	if bm.IsEmpty() {
		return nil
	}
	ids := bm.ToArray()
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}
	query := fmt.Sprintf(`SELECT uid, path FROM nodes WHERE rowid IN (%s) ORDER BY rowid`,
		strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","))
	rows, err := c.table.db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("%s: resolve nodes of %s: %w", moduleName, sector, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		r := sectorRow{sector: sector}
		if err := rows.Scan(&r.uid, &r.path); err != nil {
			return fmt.Errorf("%s: resolve nodes of %s: %w", moduleName, sector, err)
		}
		c.rows = append(c.rows, r)
	}
	return rows.Err()
}

func (c *sectorCursor) Next() error {
	c.pos++
	return nil
}

func (c *sectorCursor) Eof() bool {
	return c.pos >= len(c.rows)
}

func (c *sectorCursor) Column(col int) (vtab.Value, error) {
	if c.pos >= len(c.rows) {
		return nil, nil
	}
	r := c.rows[c.pos]
	switch col {
	case 0:
		return r.sector, nil
	case 1:
		if !r.uid.Valid {
			return nil, nil
		}
		return r.uid.String, nil
	case 2:
		return r.path, nil
	}
	return nil, nil
}

func (c *sectorCursor) Rowid() (int64, error) {
	return int64(c.pos), nil
}

func (c *sectorCursor) Close() error {
	c.rows = nil
	return nil
}

// SectorNode is one exported node belonging to a sector.
type SectorNode struct {
	Sector string
	UID    string
	Path   string
}

// Reader queries an exported database through the etf_sectors table.
type Reader struct {
	db   *sql.DB
	conn *sql.Conn
	id   string
}

// Open opens an exported database for sector queries. The virtual table
// lives in the temp schema of a connection held by the Reader; a second
// connection serves the table's own lookups.
func Open(ctx context.Context, dbPath string) (*Reader, error) {
	mod, err := Register()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(2)

	var tables int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('nodes', 'sector_refs')`).Scan(&tables); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("inspect %s: %w", dbPath, err)
	}
	if tables != 2 {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", dbPath, ErrNotExported)
	}

	id := fmt.Sprintf("db%d", nextID.Add(1))
	mod.RegisterDB(id, db)
	conn, err := db.Conn(ctx)
	if err == nil {
		_, err = conn.ExecContext(ctx, fmt.Sprintf(`CREATE VIRTUAL TABLE temp.sectors USING %s(%s)`, moduleName, id))
		if err != nil {
			_ = conn.Close()
		}
	}
	if err != nil {
		mod.UnregisterDB(id)
		_ = db.Close()
		return nil, fmt.Errorf("create %s table: %w", moduleName, err)
	}
	return &Reader{db: db, conn: conn, id: id}, nil
}

// ErrNotExported reports a database without the export tables.
var ErrNotExported = errors.New("not an exported database")

// SectorNodes lists the nodes of the sectors matching pattern, a SQL LIKE
// pattern; an empty pattern lists every sector.
func (r *Reader) SectorNodes(ctx context.Context, pattern string) ([]SectorNode, error) {
	query := `SELECT sector, uid, path FROM temp.sectors`
	var args []any
	if pattern != "" {
		query += ` WHERE sector LIKE ?`
		args = append(args, pattern)
	}
	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SectorNode
	for rows.Next() {
		var (
			n   SectorNode
			uid sql.NullString
		)
		if err := rows.Scan(&n.Sector, &uid, &n.Path); err != nil {
			return nil, fmt.Errorf("query sectors: %w", err)
		}
		n.UID = uid.String
		out = append(out, n)
	}
	return out, rows.Err()
}

// Close releases the connection and the module registration.
func (r *Reader) Close() error {
	if mod, err := Register(); err == nil && mod != nil {
		mod.UnregisterDB(r.id)
	}
	err := r.conn.Close()
	if err2 := r.db.Close(); err == nil {
		err = err2
	}
	return err
}
