package rollup

import (
	"github.com/pkg/errors"
)

// Legacy rollup columns spell the aggregator out in the qualifier instead of
// using an aggregation id: a leading 's'/'S' means sum, 'c'/'C' count, and
// 'm'/'M' max or min depending on the second byte ('a'/'A' selects max). The
// value payload begins 4 bytes in for sum/max/min ("sum:", "max:", "min:")
// and 6 bytes in for count ("count:").
//
// This is a historical wire format shared with data already on disk. Decode
// it exactly as written; do not clean it up.

// LegacyQualifier is the decoded prefix of a legacy rollup column qualifier.
type LegacyQualifier struct {
	// Aggregator is the canonical function name: sum, count, max or min.
	Aggregator string

	// ID is the aggregation id the catalog maps Aggregator to.
	ID byte

	// PayloadOffset is where the encoded offset/value bytes begin within the
	// qualifier.
	PayloadOffset int
}

// DecodeLegacyQualifier sniffs the first byte(s) of a stored column qualifier.
// It fails on qualifiers that do not carry a legacy prefix.
func (c *Config) DecodeLegacyQualifier(qualifier []byte) (LegacyQualifier, error) {
	if len(qualifier) == 0 {
		return LegacyQualifier{}, errors.New("rollup: empty qualifier")
	}

	var out LegacyQualifier
	switch qualifier[0] {
	case 's', 'S':
		out.Aggregator = "sum"
		out.PayloadOffset = 4
	case 'c', 'C':
		out.Aggregator = "count"
		out.PayloadOffset = 6
	case 'm', 'M':
		if len(qualifier) < 2 {
			return LegacyQualifier{}, errors.New("rollup: truncated m/M qualifier")
		}
		if qualifier[1] == 'a' || qualifier[1] == 'A' {
			out.Aggregator = "max"
		} else {
			out.Aggregator = "min"
		}
		out.PayloadOffset = 4
	default:
		return LegacyQualifier{}, errors.Errorf("rollup: unrecognized legacy qualifier prefix 0x%02x", qualifier[0])
	}

	if len(qualifier) < out.PayloadOffset {
		return LegacyQualifier{}, errors.Errorf("rollup: qualifier shorter than %s payload offset %d",
			out.Aggregator, out.PayloadOffset)
	}

	id, err := c.IDForAggregator(out.Aggregator)
	if err != nil {
		return LegacyQualifier{}, err
	}
	out.ID = id
	return out, nil
}
