// Package etf implements the ETF reporting documents: the metadata
// taxonomy and country data files, and the tree surgery applied to them
// (sector filtering, reparenting, grid repair, statistics).
package etf

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/agentic-research/etfkit/api"
	"github.com/agentic-research/etfkit/internal/catalog"
	"github.com/agentic-research/etfkit/internal/jsontree"
)

var (
	// ErrMissingSection is returned when a required document section is absent.
	ErrMissingSection = errors.New("missing document section")
	// ErrDanglingReference marks a uid reference that cannot be resolved.
	ErrDanglingReference = errors.New("dangling reference")
)

// Attribute names indexed by the node catalogs.
var NodeAttributes = []string{"uid", "parent_uid", "template_node_uid", "name_prefix", "name"}

type options struct {
	log *slog.Logger
	cfg *api.Config
}

// Option configures Metadata and CountryData.
type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithConfig(c *api.Config) Option {
	return func(o *options) { o.cfg = c }
}

func buildOptions(opts []Option) options {
	o := options{log: slog.Default(), cfg: api.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// field returns obj[key] when it has the wanted kind.
func field(obj *jsontree.Node, key string, kind jsontree.Kind) (*jsontree.Node, error) {
	v, ok := obj.Get(key)
	if !ok || v.Kind() != kind {
		return nil, fmt.Errorf("%w: %q (%s expected)", ErrMissingSection, key, kind)
	}
	return v, nil
}

// fieldOrCreate returns obj[key], adding an empty array when absent.
func fieldOrCreate(obj *jsontree.Node, key string) (*jsontree.Node, error) {
	if _, ok := obj.Get(key); !ok {
		obj.Set(key, jsontree.NewArray())
	}
	return field(obj, key, jsontree.Array)
}

// lookup returns the first item matching criteria. Only ErrNotFound is an
// expected outcome; any other catalog error is a programming error.
func lookup(c *catalog.Catalog, criteria catalog.Criteria) (*jsontree.Node, bool) {
	n, err := c.First(criteria)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, false
		}
		panic(err)
	}
	return n, true
}

// uidOf returns the "uid" field, or "" when it is absent.
func uidOf(n *jsontree.Node) string {
	uid, _ := n.Str("uid")
	return uid
}
