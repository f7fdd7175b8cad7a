package cache

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const (
	keyPrefix    = "analytics"
	digestLength = 12
)

var operationName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// DeriveKey builds analytics:<operation>:org:<tenant>:params:<digest>. Parameter
// insertion order does not matter; any change in a value changes the digest.
func DeriveKey(operation, tenantID string, params map[string]any) (string, error) {
	if err := validateOperation(operation); err != nil {
		return "", err
	}
	if err := validateTenant(tenantID); err != nil {
		return "", err
	}

	digest, err := ParamsDigest(params)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s:%s:org:%s:params:%s", keyPrefix, operation, tenantID, digest), nil
}

// ParamsDigest hashes the canonical JSON form of params and keeps the first 12 hex chars.
func ParamsDigest(params map[string]any) (string, error) {
	canonical, err := canonicalJSON(params)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(canonical)
	return hex.EncodeToString(sum[:])[:digestLength], nil
}

// TenantPattern matches every analytics key of a tenant.
func TenantPattern(tenantID string) string {
	return fmt.Sprintf("%s:*:org:%s:*", keyPrefix, tenantID)
}

// OperationPattern matches every parameter variant of one operation for a tenant.
func OperationPattern(operation, tenantID string) string {
	return fmt.Sprintf("%s:%s:org:%s:*", keyPrefix, operation, tenantID)
}

// ParseOperation extracts the operation segment from a derived key.
func ParseOperation(key string) (string, bool) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 3 || parts[0] != keyPrefix || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func validateOperation(operation string) error {
	if !operationName.MatchString(operation) {
		return fmt.Errorf("%w: operation %q", ErrInvalidKeyPart, operation)
	}
	return nil
}

func validateTenant(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: empty tenant id", ErrInvalidKeyPart)
	}
	if strings.ContainsAny(tenantID, ":*?[]\\ \t\r\n") {
		return fmt.Errorf("%w: tenant id %q", ErrInvalidKeyPart, tenantID)
	}
	return nil
}

// canonicalJSON serializes params with sorted keys at every depth. Structs and maps with
// the same JSON shape produce the same bytes because both go through a generic decode.
func canonicalJSON(params map[string]any) ([]byte, error) {
	if params == nil {
		params = map[string]any{}
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("%w: params: %v", ErrSerialization, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("%w: params: %v", ErrSerialization, err)
	}

	// encoding/json writes map keys in sorted order
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("%w: params: %v", ErrSerialization, err)
	}
	return out, nil
}
