package ingest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"unicode/utf8"

	"github.com/agentic-research/etfkit/internal/jsontree"
	"github.com/dustin/go-humanize"
	"github.com/go-git/go-billy/v5"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/encoding/charmap"
)

var (
	utf8BOM   = []byte{0xef, 0xbb, 0xbf}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	gzipMagic = []byte{0x1f, 0x8b}

	errInvalidUTF8 = errors.New("input is not valid UTF-8")
)

// Loader reads JSON documents from a file system or a stream.
type Loader struct {
	FS  billy.Filesystem
	Log *slog.Logger
}

// NewLoader returns a Loader reading from fs.
func NewLoader(fs billy.Filesystem, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{FS: fs, Log: log}
}

// Load opens name on the loader's file system and decodes it.
func (l *Loader) Load(name string) (*jsontree.Tree, error) {
	if info, err := l.FS.Stat(name); err == nil {
		l.Log.Info("loading", "file", name, "size", humanize.IBytes(uint64(info.Size())))
	}
	f, err := l.FS.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer func() { _ = f.Close() }() // read-only
	return l.Read(f, name)
}

// Read decodes a document from r. zstd and gzip input is detected by its
// magic bytes. name is used in log and error messages only.
func (l *Loader) Read(r io.Reader, name string) (*jsontree.Tree, error) {
	defer l.Log.Debug("(meta)data loading complete", "file", name)

	br := bufio.NewReader(r)
	head, _ := br.Peek(len(zstdMagic))
	var src io.Reader = br
	switch {
	case bytes.HasPrefix(head, zstdMagic):
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("zstd %s: %w", name, err)
		}
		defer dec.Close()
		src = dec
		l.Log.Debug("decompressing zstd input", "file", name)
	case bytes.HasPrefix(head, gzipMagic):
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gzip %s: %w", name, err)
		}
		defer func() { _ = gz.Close() }()
		src = gz
		l.Log.Debug("decompressing gzip input", "file", name)
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	root, err := l.decode(data, name)
	if err != nil {
		return nil, err
	}
	return jsontree.New(root, jsontree.WithLogger(l.Log)), nil
}

// decode parses data as UTF-8 JSON. On failure it retries once with a
// leading byte order mark removed and, for input that is not UTF-8,
// after transcoding from Windows-1252.
func (l *Loader) decode(data []byte, name string) (*jsontree.Node, error) {
	var firstErr error
	if utf8.Valid(data) {
		root, err := jsontree.Parse(data)
		if err == nil {
			return root, nil
		}
		firstErr = err
	} else {
		firstErr = errInvalidUTF8
	}

	fallback := bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(fallback) {
		converted, err := charmap.Windows1252.NewDecoder().Bytes(fallback)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		fallback = converted
	}
	l.Log.Debug("retrying decode after encoding fallback", "file", name, "reason", firstErr)
	root, err := jsontree.Parse(fallback)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, firstErr)
	}
	return root, nil
}
