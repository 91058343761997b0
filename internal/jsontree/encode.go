package jsontree

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// EncodeOptions controls Encode output.
type EncodeOptions struct {
	// Indent is the number of spaces per nesting level; 0 writes compact
	// output.
	Indent int
	// ASCII escapes every non-ASCII rune as \uXXXX.
	ASCII bool
}

// DefaultEncodeOptions matches the layout the ETF tooling has always
// produced: four spaces, ASCII-only.
var DefaultEncodeOptions = EncodeOptions{Indent: 4, ASCII: true}

// Encode writes n as JSON. Field order is the document order.
func Encode(w io.Writer, n *Node, opts EncodeOptions) error {
	bw := bufio.NewWriter(w)
	e := &encoder{w: bw, opts: opts}
	if err := e.value(n, 0); err != nil {
		return err
	}
	return bw.Flush()
}

// Marshal is Encode into a string.
func Marshal(n *Node, opts EncodeOptions) (string, error) {
	var b strings.Builder
	if err := Encode(&b, n, opts); err != nil {
		return "", err
	}
	return b.String(), nil
}

type encoder struct {
	w    *bufio.Writer
	opts EncodeOptions
}

func (e *encoder) newline(depth int) {
	if e.opts.Indent <= 0 {
		return
	}
	e.w.WriteByte('\n')
	for i := 0; i < depth*e.opts.Indent; i++ {
		e.w.WriteByte(' ')
	}
}

func (e *encoder) value(n *Node, depth int) error {
	if n == nil {
		return fmt.Errorf("%w: nil node", ErrMalformedContainer)
	}
	switch n.kind {
	case Null:
		e.w.WriteString("null")
	case Bool, Number:
		e.w.WriteString(n.text)
	case String:
		e.str(n.text)
	case Object:
		if n.fields.Len() == 0 {
			e.w.WriteString("{}")
			return nil
		}
		e.w.WriteByte('{')
		first := true
		for p := n.fields.Oldest(); p != nil; p = p.Next() {
			if !first {
				e.w.WriteByte(',')
			}
			first = false
			e.newline(depth + 1)
			e.str(p.Key)
			e.w.WriteByte(':')
			if e.opts.Indent > 0 {
				e.w.WriteByte(' ')
			}
			if err := e.value(p.Value, depth+1); err != nil {
				return err
			}
		}
		e.newline(depth)
		e.w.WriteByte('}')
	case Array:
		if len(n.items) == 0 {
			e.w.WriteString("[]")
			return nil
		}
		e.w.WriteByte('[')
		for i, item := range n.items {
			if i > 0 {
				e.w.WriteByte(',')
			}
			e.newline(depth + 1)
			if err := e.value(item, depth+1); err != nil {
				return err
			}
		}
		e.newline(depth)
		e.w.WriteByte(']')
	default:
		return fmt.Errorf("%w: kind %s", ErrMalformedContainer, n.kind)
	}
	return nil
}

const hexDigits = "0123456789abcdef"

func (e *encoder) unicodeEscape(r rune) {
	e.w.WriteString(`\u`)
	e.w.WriteByte(hexDigits[r>>12&0xf])
	e.w.WriteByte(hexDigits[r>>8&0xf])
	e.w.WriteByte(hexDigits[r>>4&0xf])
	e.w.WriteByte(hexDigits[r&0xf])
}

func (e *encoder) str(s string) {
	e.w.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			e.w.WriteString(`\"`)
		case '\\':
			e.w.WriteString(`\\`)
		case '\n':
			e.w.WriteString(`\n`)
		case '\r':
			e.w.WriteString(`\r`)
		case '\t':
			e.w.WriteString(`\t`)
		case '\b':
			e.w.WriteString(`\b`)
		case '\f':
			e.w.WriteString(`\f`)
		default:
			switch {
			case r < 0x20:
				e.unicodeEscape(r)
			case r < utf8.RuneSelf || !e.opts.ASCII:
				e.w.WriteRune(r)
			case r > 0xffff:
				r1, r2 := utf16.EncodeRune(r)
				e.unicodeEscape(r1)
				e.unicodeEscape(r2)
			default:
				e.unicodeEscape(r)
			}
		}
	}
	e.w.WriteByte('"')
}
