package scan

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/tesseradb/tessera/pkg/bytesutil"
	"github.com/tesseradb/tessera/schema"
	"github.com/tesseradb/tessera/uid"
)

// keyPlan is the storage-level constraint derived for one tag key.
type keyPlan struct {
	key    string
	keyUID []byte

	// values holds the sorted, deduplicated tag value UIDs acceptable for
	// this key. Empty when the key is scan-only.
	values [][]byte

	// scanOnly marks a key that cannot be pre-filtered at the storage layer
	// and must be evaluated after fetch.
	scanOnly bool
}

// plan is a query's filter translated into storage terms.
type plan struct {
	metricUID []byte
	keys      []keyPlan

	// needsPostFilter forces re-evaluation of the full filter tree against
	// resolved tag strings after fetch. Set for scan-only keys and for
	// anything behind a NOT.
	needsPostFilter bool

	// matchesNothing short-circuits the query: some literal constraint
	// resolved to no existing UIDs, so no stored row can match.
	matchesNothing bool

	// cardinality is the product of the literal value counts, or 0 when any
	// key is scan-only. It drives the multi-get decision.
	cardinality int
}

// buildPlan resolves a query's metric and filters into UID space.
func buildPlan(ctx context.Context, sc *schema.Schema, q *Query, config Config) (*plan, error) {
	uids := sc.UidStore()

	metricUID, err := uids.GetId(ctx, uid.Metric, q.Metric)
	if err != nil {
		return nil, err
	}
	p := &plan{metricUID: metricUID, cardinality: 1}

	perKey := make(map[string][]Filter)
	collectLeaves(q.Filter, false, p, perKey)

	for key, leaves := range perKey {
		kp := keyPlan{key: key}

		keyUID, err := uids.GetId(ctx, uid.TagKey, key)
		if err != nil {
			if uid.IsNotFound(err) {
				// No series carries this tag key at all.
				p.matchesNothing = true
				continue
			}
			return nil, err
		}
		kp.keyUID = keyUID

		// Exactly one literal-or leaf under the expansion limit can be
		// translated to a storage-level value set. Anything else on this key
		// is evaluated after fetch.
		var literal *LiteralOr
		demote := false
		for _, leaf := range leaves {
			lit, ok := leaf.(*LiteralOr)
			if !ok || literal != nil || len(lit.Values) > config.TagLiteralExpansionLimit {
				demote = true
				continue
			}
			literal = lit
		}

		if literal == nil || demote {
			kp.scanOnly = true
			p.needsPostFilter = true
			p.cardinality = 0
			p.keys = append(p.keys, kp)
			continue
		}

		for _, v := range literal.Values {
			vu, err := uids.GetId(ctx, uid.TagValue, v)
			if err != nil {
				if uid.IsNotFound(err) {
					// A value that was never written cannot match any row.
					continue
				}
				return nil, err
			}
			kp.values = append(kp.values, vu)
		}
		kp.values = bytesutil.SortDedup(kp.values)
		if len(kp.values) == 0 {
			p.matchesNothing = true
		}
		if p.cardinality > 0 {
			p.cardinality *= len(kp.values)
		}
		p.keys = append(p.keys, kp)
	}

	sortKeyPlans(p.keys)
	return p, nil
}

// collectLeaves walks the filter tree gathering leaves per tag key. Leaves
// behind a NOT are never pushed down: the conservative choice is to fetch and
// re-check, since storage-level exclusion could drop rows a sibling branch
// still wants.
func collectLeaves(f Filter, underNot bool, p *plan, perKey map[string][]Filter) {
	switch node := f.(type) {
	case nil:
	case *Chain:
		for _, c := range node.Filters {
			collectLeaves(c, underNot, p, perKey)
		}
	case *Not:
		p.needsPostFilter = true
		p.cardinality = 0
		collectLeaves(node.Filter, true, p, perKey)
	case *Wildcard:
		if node.MatchesAll() {
			return // no-op for pre-filtering
		}
		markScanOnly(node, underNot, perKey)
	case *Regex:
		if node.MatchesAll() {
			return
		}
		markScanOnly(node, underNot, perKey)
	default:
		markScanOnly(f, underNot, perKey)
	}
}

func markScanOnly(f Filter, underNot bool, perKey map[string][]Filter) {
	key := f.TagKey()
	if key == "" || underNot {
		// A key reachable only under a NOT places no row constraint at all:
		// a series missing the tag still satisfies the inverted filter, and
		// an unknown tag key must not empty the result. The NOT branch is
		// evaluated against resolved strings after fetch.
		return
	}
	perKey[key] = append(perKey[key], f)
}

func sortKeyPlans(keys []keyPlan) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && string(keys[j-1].keyUID) > string(keys[j].keyUID); j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
}

// canMultiGet reports whether the whole query can be answered by direct point
// lookups: the caller asserted the filter names every tag of the series, all
// keys are literal, and the expansion stays under the ceiling.
func (p *plan) canMultiGet(q *Query, config Config) bool {
	if !q.ExplicitTags || p.needsPostFilter || p.matchesNothing {
		return false
	}
	if p.cardinality < 1 || p.cardinality > config.MultiGetCardinalityCeiling {
		return false
	}
	return len(p.keys) > 0
}

// tsuids enumerates the cartesian product of the literal value sets as
// series identities (metric + sorted tag pairs). Only valid under canMultiGet.
func (p *plan) tsuids() [][]byte {
	combos := [][]byte{append([]byte(nil), p.metricUID...)}
	for _, kp := range p.keys {
		next := make([][]byte, 0, len(combos)*len(kp.values))
		for _, prefix := range combos {
			for _, v := range kp.values {
				id := make([]byte, 0, len(prefix)+len(kp.keyUID)+len(v))
				id = append(id, prefix...)
				id = append(id, kp.keyUID...)
				id = append(id, v...)
				next = append(next, id)
			}
		}
		combos = next
	}
	return combos
}

// keyRegexp builds the storage-level row-key regular expression for the
// literal constraints, or "" when there are none. The contract matches the
// pattern against the key decoded as ISO-8859-1, one rune per byte, so the
// fixed-width wildcard regions count raw bytes no matter their values and
// UID bytes embed as plain literal runes.
func (p *plan) keyRegexp(sc *schema.Schema) string {
	pairW := sc.UidWidth(uid.TagKey) + sc.UidWidth(uid.TagValue)
	pre := sc.SaltWidth() + sc.UidWidth(uid.Metric) + 4

	var b strings.Builder
	b.WriteString("(?s)^.{" + strconv.Itoa(pre) + "}")
	wrote := false
	for _, kp := range p.keys {
		if kp.scanOnly || len(kp.values) == 0 {
			continue
		}
		b.WriteString("(?:.{" + strconv.Itoa(pairW) + "})*")
		b.WriteString(regexp.QuoteMeta(latin1(kp.keyUID)))
		b.WriteString("(?:")
		for i, v := range kp.values {
			if i > 0 {
				b.WriteByte('|')
			}
			b.WriteString(regexp.QuoteMeta(latin1(v)))
		}
		b.WriteString(")")
		wrote = true
	}
	if !wrote {
		return ""
	}
	b.WriteString("(?:.{" + strconv.Itoa(pairW) + "})*$")
	return b.String()
}

// latin1 widens every byte to its equivalent rune, so a regexp sees exactly
// one rune per key byte.
func latin1(b []byte) string {
	rs := make([]rune, len(b))
	for i, c := range b {
		rs[i] = rune(c)
	}
	return string(rs)
}

// matchesRow evaluates the literal constraints against a parsed row key.
// Returns false when a required tag key is absent or carries an unacceptable
// value. Scan-only keys must still be present on the row.
func (p *plan) matchesRow(rk schema.RowKey, explicitTags bool) bool {
	if explicitTags && len(rk.Tags) != len(p.keys) {
		return false
	}
	for _, kp := range p.keys {
		var found *schema.TagPair
		for i := range rk.Tags {
			if string(rk.Tags[i].Key) == string(kp.keyUID) {
				found = &rk.Tags[i]
				break
			}
		}
		if found == nil {
			return false
		}
		if kp.scanOnly {
			continue
		}
		if !bytesutil.Contains(kp.values, found.Value) {
			return false
		}
	}
	return true
}

// errQueryLimit distinguishes resource-limit aborts from storage failures.
var errQueryLimit = errors.New("scan: query limit exceeded")
