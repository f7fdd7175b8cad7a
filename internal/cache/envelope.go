package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// MetadataField is the top-level field merged into every cached JSON object.
const MetadataField = "_cache_metadata"

// Metadata describes when and why a value was cached. It is visible to anyone reading
// the store directly and removed before values reach application code.
type Metadata struct {
	CachedAt       time.Time `json:"cached_at"`
	Operation      string    `json:"operation"`
	OrganizationID string    `json:"organization_id"`
	TTL            int       `json:"ttl"`
}

// encodeValue marshals value and, when it is a JSON object, merges meta into it.
// Arrays and scalars are stored without an envelope.
func encodeValue(value any, meta *Metadata) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: value: %v", ErrSerialization, err)
	}
	if meta == nil || !isObject(raw) {
		return raw, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: value: %v", ErrSerialization, err)
	}
	if obj == nil {
		return raw, nil
	}

	metaRaw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrSerialization, err)
	}
	obj[MetadataField] = metaRaw

	out, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: value: %v", ErrSerialization, err)
	}
	return out, nil
}

// StripMetadata removes the envelope from a stored value. The returned metadata is nil
// when the value carried none.
func StripMetadata(raw json.RawMessage) (json.RawMessage, *Metadata, error) {
	if !isObject(raw) {
		return raw, nil, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, nil, fmt.Errorf("%w: stored value: %v", ErrSerialization, err)
	}
	metaRaw, ok := obj[MetadataField]
	if !ok {
		return raw, nil, nil
	}

	var meta Metadata
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return nil, nil, fmt.Errorf("%w: metadata: %v", ErrSerialization, err)
	}
	delete(obj, MetadataField)

	out, err := json.Marshal(obj)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: stored value: %v", ErrSerialization, err)
	}
	return out, &meta, nil
}

func isObject(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
