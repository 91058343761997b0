package jsontree

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
	"github.com/ohler55/ojg/oj"
)

// ErrSyntax wraps every decoding failure.
var ErrSyntax = errors.New("invalid json")

// Parse decodes a JSON document keeping field order and number literals.
// The input must hold exactly one strictly valid value.
func Parse(data []byte) (*Node, error) {
	value, dataType, end, err := jsonparser.Get(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	if rest := bytes.TrimSpace(data[end:]); len(rest) > 0 {
		return nil, fmt.Errorf("%w: unexpected data after value at offset %d", ErrSyntax, end)
	}
	// jsonparser skips over trailing commas
	v := oj.Validator{OnlyOne: true}
	if err := v.Validate(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	return decodeValue(value, dataType)
}

func decodeValue(value []byte, dataType jsonparser.ValueType) (*Node, error) {
	switch dataType {
	case jsonparser.Object:
		obj := NewObject()
		err := jsonparser.ObjectEach(value, func(key, v []byte, t jsonparser.ValueType, _ int) error {
			child, err := decodeValue(v, t)
			if err != nil {
				return err
			}
			obj.fields.Set(string(key), child)
			return nil
		})
		if err != nil {
			return nil, wrapSyntax(err)
		}
		return obj, nil
	case jsonparser.Array:
		arr := NewArray()
		var itemErr error
		_, err := jsonparser.ArrayEach(value, func(v []byte, t jsonparser.ValueType, _ int, err error) {
			if itemErr != nil {
				return
			}
			if err != nil {
				itemErr = err
				return
			}
			child, err := decodeValue(v, t)
			if err != nil {
				itemErr = err
				return
			}
			arr.items = append(arr.items, child)
		})
		if itemErr != nil {
			return nil, wrapSyntax(itemErr)
		}
		if err != nil {
			return nil, wrapSyntax(err)
		}
		return arr, nil
	case jsonparser.String:
		s, err := jsonparser.ParseString(value)
		if err != nil {
			return nil, wrapSyntax(err)
		}
		return NewString(s), nil
	case jsonparser.Number:
		return NewNumber(string(value)), nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(value)
		if err != nil {
			return nil, wrapSyntax(err)
		}
		return NewBool(b), nil
	case jsonparser.Null:
		return NewNull(), nil
	}
	return nil, fmt.Errorf("%w: unexpected value %q", ErrSyntax, value)
}

func wrapSyntax(err error) error {
	if errors.Is(err, ErrSyntax) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrSyntax, err)
}
