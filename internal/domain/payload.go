package domain

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Payload is a content-addressed blob of JSON data handed to an executor
// alongside a run. Two payloads with the same canonicalized data collapse
// to the same Checksum, so store-layer inserts can dedup on conflict
// instead of growing unboundedly.
type Payload struct {
	Checksum string
	Data     map[string]interface{}
}

// NewPayload canonicalizes data (recursively sorting map keys before
// marshaling) and computes its checksum. Canonicalization is required for
// the checksum to be stable across Go map iteration order and across
// equivalent-but-differently-ordered JSON produced elsewhere.
func NewPayload(data map[string]interface{}) (Payload, error) {
	canon, err := canonicalize(data)
	if err != nil {
		return Payload{}, fmt.Errorf("domain: canonicalize payload: %w", err)
	}
	sum := md5.Sum(canon)
	return Payload{
		Checksum: hex.EncodeToString(sum[:]),
		Data:     data,
	}, nil
}

// canonicalize produces deterministic JSON bytes for v by sorting all map
// keys at every nesting level before encoding.
func canonicalize(v interface{}) ([]byte, error) {
	ordered, err := order(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ordered)
}

func order(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(orderedMap, 0, len(keys))
		for _, k := range keys {
			child, err := order(t[k])
			if err != nil {
				return nil, err
			}
			out = append(out, orderedEntry{key: k, value: child})
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			child, err := order(e)
			if err != nil {
				return nil, err
			}
			out[i] = child
		}
		return out, nil
	default:
		return t, nil
	}
}

type orderedEntry struct {
	key   string
	value interface{}
}

type orderedMap []orderedEntry

// MarshalJSON emits entries in insertion order, which order() has already
// sorted by key.
func (m orderedMap) MarshalJSON() ([]byte, error) {
	var buf []byte
	buf = append(buf, '{')
	for i, e := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		k, err := json.Marshal(e.key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, k...)
		buf = append(buf, ':')
		buf = append(buf, v...)
	}
	buf = append(buf, '}')
	return buf, nil
}
