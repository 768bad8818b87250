package retrieval

import (
	"fmt"
	"strings"
)

// Filters maps chunk metadata fields to conditions. A value may be a scalar
// (equality) or a map {"operator": op, "value": v} with one of: eq, ne, lt,
// lte, gt, gte, in, nin.
type Filters map[string]interface{}

var supportedOperators = map[string]struct{}{
	"eq": {}, "ne": {}, "lt": {}, "lte": {}, "gt": {}, "gte": {}, "in": {}, "nin": {},
}

// ValidateFilters rejects malformed filter specs up front so the caller gets
// an explicit configuration error instead of a silently empty result.
func ValidateFilters(filters Filters) error {
	for key, raw := range filters {
		spec, ok := raw.(map[string]interface{})
		if !ok {
			continue // scalar equality
		}
		opRaw, hasOp := spec["operator"]
		if !hasOp {
			return fmt.Errorf("filter %q: operator missing", key)
		}
		op, ok := opRaw.(string)
		if !ok {
			return fmt.Errorf("filter %q: operator must be a string", key)
		}
		if _, supported := supportedOperators[strings.ToLower(op)]; !supported {
			return fmt.Errorf("filter %q: unsupported operator %q", key, op)
		}
		if _, hasValue := spec["value"]; !hasValue {
			return fmt.Errorf("filter %q: value missing", key)
		}
	}
	return nil
}

// ApplyFilters excludes any node that does not match every condition. A
// filter key absent from a node's metadata excludes that node: failing
// closed beats silently returning data outside the caller's scope.
func ApplyFilters(nodes []RetrievedNode, filters Filters) []RetrievedNode {
	if len(filters) == 0 {
		return nodes
	}

	out := make([]RetrievedNode, 0, len(nodes))
	for _, node := range nodes {
		if nodeMatches(node, filters) {
			out = append(out, node)
		}
	}
	return out
}

func nodeMatches(node RetrievedNode, filters Filters) bool {
	for key, raw := range filters {
		value, ok := fieldValue(node, key)
		if !ok {
			return false
		}

		spec, isSpec := raw.(map[string]interface{})
		if !isSpec {
			if !equals(value, raw) {
				return false
			}
			continue
		}

		op, _ := spec["operator"].(string)
		expected := spec["value"]
		if !matchesOperator(value, strings.ToLower(op), expected) {
			return false
		}
	}
	return true
}

// fieldValue resolves a filter key against the node's metadata first, then
// the chunk's intrinsic fields.
func fieldValue(node RetrievedNode, key string) (interface{}, bool) {
	if node.Chunk.Metadata != nil {
		if v, ok := node.Chunk.Metadata[key]; ok {
			return v, true
		}
	}
	switch key {
	case payloadDocID:
		return node.Chunk.DocID, true
	case payloadChunkID:
		return node.Chunk.ChunkID, true
	case payloadChunkIndex:
		return node.Chunk.ChunkIndex, true
	case payloadLanguage:
		if node.Chunk.Language != "" {
			return node.Chunk.Language, true
		}
	}
	return nil, false
}

func matchesOperator(value interface{}, op string, expected interface{}) bool {
	switch op {
	case "eq":
		return equals(value, expected)
	case "ne":
		return !equals(value, expected)
	case "lt", "lte", "gt", "gte":
		a, aok := toFloat(value)
		b, bok := toFloat(expected)
		if !aok || !bok {
			return false
		}
		switch op {
		case "lt":
			return a < b
		case "lte":
			return a <= b
		case "gt":
			return a > b
		default:
			return a >= b
		}
	case "in", "nin":
		members, ok := expected.([]interface{})
		if !ok {
			return false
		}
		found := false
		for _, member := range members {
			if equals(value, member) {
				found = true
				break
			}
		}
		if op == "in" {
			return found
		}
		return !found
	}
	// Unsupported operator excludes the node.
	return false
}

func equals(a, b interface{}) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
