// Package uid manages the bidirectional mapping between metric, tag key and
// tag value strings and the fixed-width numeric identifiers stored in row
// keys. New identifiers are assigned through a four-phase state machine that
// is safe under concurrent writers racing for the same name.
package uid

import (
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
)

// Type identifies which of the three UID namespaces a name or id belongs to.
type Type int

const (
	// Metric is the namespace for metric names.
	Metric Type = iota
	// TagKey is the namespace for tag keys.
	TagKey
	// TagValue is the namespace for tag values.
	TagValue
)

// Types lists all namespaces in a stable order.
var Types = []Type{Metric, TagKey, TagValue}

// String returns the qualifier string stored on disk for the type. These
// values appear in the UID table and must not change.
func (t Type) String() string {
	switch t {
	case Metric:
		return "metrics"
	case TagKey:
		return "tagk"
	case TagValue:
		return "tagv"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType maps a qualifier string back to its Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "metrics", "metric":
		return Metric, nil
	case "tagk":
		return TagKey, nil
	case "tagv":
		return TagValue, nil
	default:
		return 0, errors.Errorf("uid: unknown UID type %q", s)
	}
}

// NotFoundError reports that a name or id has no mapping. It carries the
// namespace and the offending key for diagnostics and is never retried.
type NotFoundError struct {
	Type Type
	// Name is set when a forward lookup missed.
	Name string
	// ID is set when a reverse lookup missed.
	ID []byte
}

func (e *NotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("no such unique id: %s name %q", e.Type, e.Name)
	}
	return fmt.Sprintf("no such unique id: %s id 0x%s", e.Type, hex.EncodeToString(e.ID))
}

// IsNotFound returns true if err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ToLong decodes a fixed-width big-endian id into an unsigned integer.
func ToLong(id []byte, width int) (uint64, error) {
	if len(id) != width {
		return 0, errors.Errorf("uid: id 0x%s is %d bytes, want %d", hex.EncodeToString(id), len(id), width)
	}
	var v uint64
	for _, b := range id {
		v = v<<8 | uint64(b)
	}
	return v, nil
}

// FromLong encodes v as a fixed-width big-endian id. It fails if v does not
// fit in width bytes.
func FromLong(v uint64, width int) ([]byte, error) {
	if width <= 0 || width > 8 {
		return nil, errors.Errorf("uid: invalid width %d", width)
	}
	if width < 8 && v >= 1<<(uint(width)*8) {
		return nil, errors.Errorf("uid: value %d overflows %d byte(s); all IDs in this namespace are exhausted", v, width)
	}
	id := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		id[i] = byte(v)
		v >>= 8
	}
	return id, nil
}

// IsZero reports whether every byte of the id is zero. The all-zero metric id
// is reserved for global annotation rows and is never assigned.
func IsZero(id []byte) bool {
	for _, b := range id {
		if b != 0 {
			return false
		}
	}
	return true
}

// Charset names accepted by Config.
const (
	CharsetISO88591 = "iso-8859-1"
	CharsetASCII    = "ascii"
	CharsetUTF8     = "utf-8"
)

// ValidateName checks that a name is non-empty and representable in the
// configured character set for its namespace.
func ValidateName(t Type, name, charset string) error {
	if name == "" {
		return errors.Errorf("uid: empty %s name", t)
	}
	switch charset {
	case CharsetUTF8:
		return nil
	case CharsetASCII:
		for _, r := range name {
			if r > 0x7F {
				return errors.Errorf("uid: %s name %q contains non-ASCII character %q", t, name, r)
			}
		}
		return nil
	case CharsetISO88591, "":
		for _, r := range name {
			if r > 0xFF {
				return errors.Errorf("uid: %s name %q contains character %q outside ISO-8859-1", t, name, r)
			}
		}
		return nil
	default:
		return errors.Errorf("uid: unknown charset %q", charset)
	}
}
