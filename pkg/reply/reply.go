// Package reply extracts the single text field a pipeline stage needs from
// a structured (JSON) reply returned by a remote model.
//
// Field paths are dot separated. Numeric segments index into arrays, so
// "choices.0.message.content" reads the content of the first chat choice.
package reply

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

var (
	// ErrParse is returned for replies that are not well-formed JSON or whose
	// value at the field path is not a string.
	ErrParse = errors.New("reply: malformed reply")

	// ErrMissingField is returned for well-formed replies that do not carry
	// the expected field: the field is absent, null or blank, or the reply
	// sequence is empty.
	ErrMissingField = errors.New("reply: missing field")
)

// Reply is a raw remote reply together with the location of its text.
type Reply struct {
	// Body is the raw reply payload.
	Body []byte

	// Field is the dot-separated path of the text field.
	Field string

	// Sequence is true when Body is an array of reply objects of which the
	// first one carries Field.
	Sequence bool
}

// Text extracts the reply text. See [ExtractField].
func (r Reply) Text() (string, error) {
	return ExtractField(r.Body, r.Field, r.Sequence)
}

// ExtractField returns the string at fieldPath in raw.
//
// raw must be exactly one well-formed JSON value. When wrapInArray is true
// that value must be an array and fieldPath is resolved against its first
// item; an empty array yields [ErrMissingField].
func ExtractField(raw []byte, fieldPath string, wrapInArray bool) (string, error) {
	if !sonic.Valid(raw) {
		return "", fmt.Errorf("%w: not a single JSON value", ErrParse)
	}
	var root any
	if wrapInArray {
		var items []any
		if err := sonic.Unmarshal(raw, &items); err != nil {
			return "", fmt.Errorf("%w: %w", ErrParse, err)
		}
		if items == nil {
			return "", fmt.Errorf("%w: reply is not a sequence", ErrParse)
		}
		if len(items) == 0 {
			return "", fmt.Errorf("%w: %q: empty reply sequence", ErrMissingField, fieldPath)
		}
		root = items[0]
	} else {
		if err := sonic.Unmarshal(raw, &root); err != nil {
			return "", fmt.Errorf("%w: %w", ErrParse, err)
		}
	}

	v, err := lookup(root, fieldPath)
	if err != nil {
		return "", err
	}
	switch s := v.(type) {
	case nil:
		return "", fmt.Errorf("%w: %q is null", ErrMissingField, fieldPath)
	case string:
		if strings.TrimSpace(s) == "" {
			return "", fmt.Errorf("%w: %q is blank", ErrMissingField, fieldPath)
		}
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q is %T, not a string", ErrParse, fieldPath, v)
	}
}

// lookup walks path through decoded JSON. Absent keys and out of range
// indexes are [ErrMissingField]; stepping into a scalar is [ErrParse].
func lookup(v any, path string) (any, error) {
	if path == "" {
		return v, nil
	}
	for seg := range strings.SplitSeq(path, ".") {
		switch node := v.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, fmt.Errorf("%w: %q has no key %q", ErrMissingField, path, seg)
			}
			v = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil {
				return nil, fmt.Errorf("%w: %q: segment %q indexes an array", ErrParse, path, seg)
			}
			if i < 0 || i >= len(node) {
				return nil, fmt.Errorf("%w: %q: index %d out of range (len %d)", ErrMissingField, path, i, len(node))
			}
			v = node[i]
		case nil:
			return nil, fmt.Errorf("%w: %q: %q is null", ErrMissingField, path, seg)
		default:
			return nil, fmt.Errorf("%w: %q: cannot select %q from %T", ErrParse, path, seg, v)
		}
	}
	return v, nil
}
