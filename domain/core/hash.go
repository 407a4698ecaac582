package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"sort"
)

// Hash represents a cryptographic hash, hex-encoded.
type Hash string

// NewHash creates a new hash from data.
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation.
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty.
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal.
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// StagePlanHash identifies a set of stage names run together, independent of order.
type StagePlanHash Hash

func (h StagePlanHash) String() string { return Hash(h).String() }

// ComputeStagePlanHash hashes a sorted, deduplicated stage-name list so that
// two invocations naming the same stages in a different order agree.
func ComputeStagePlanHash(stageNames []string) StagePlanHash {
	sorted := append([]string(nil), stageNames...)
	sort.Strings(sorted)
	sorted = slices.Compact(sorted)
	data, _ := CanonicalJSON(sorted)
	return StagePlanHash(NewHash(data))
}

// CanonicalJSON renders v with map keys sorted so the same logical value
// always hashes and serializes identically regardless of map iteration
// order.
func CanonicalJSON(v interface{}) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(intermediate, &generic); err != nil {
		return nil, err
	}
	return marshalCanonical(generic)
}

func marshalCanonical(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf := []byte("{")
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, keyJSON...)
			buf = append(buf, ':')
			valJSON, err := marshalCanonical(val[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, valJSON...)
		}
		buf = append(buf, '}')
		return buf, nil
	case []interface{}:
		buf := []byte("[")
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			itemJSON, err := marshalCanonical(item)
			if err != nil {
				return nil, err
			}
			buf = append(buf, itemJSON...)
		}
		buf = append(buf, ']')
		return buf, nil
	default:
		return json.Marshal(val)
	}
}

// HashCanonicalJSON hashes v's canonical JSON encoding. Used by every stage
// that derives a deterministic digest from a struct or map (JSX hashes,
// type signature strict/loose hashes, sequence and chain-pattern hashes,
// BFS neighborhood hashes).
func HashCanonicalJSON(v interface{}) (Hash, error) {
	data, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	return NewHash(data), nil
}
