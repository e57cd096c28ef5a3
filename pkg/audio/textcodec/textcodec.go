// Package textcodec carries binary audio containers inside text protocols
// (JSON string fields) as standard, padded base64 without line breaks.
package textcodec

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrDecode is returned by [FromText] for payloads that are not valid
// standard base64.
var ErrDecode = errors.New("textcodec: invalid base64 payload")

// ToText encodes c as standard base64 with padding and no line wrapping.
func ToText(c []byte) string {
	return base64.StdEncoding.EncodeToString(c)
}

// FromText decodes a payload produced by [ToText]. Invalid characters or
// padding yield [ErrDecode].
func FromText(payload string) ([]byte, error) {
	c, err := base64.StdEncoding.Strict().DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return c, nil
}
