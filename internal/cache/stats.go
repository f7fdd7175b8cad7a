package cache

import (
	"bufio"
	"math"
	"strconv"
	"strings"
)

// Stats is the store-level view exposed on the statistics endpoint.
type Stats struct {
	Available              bool         `json:"available"`
	MemoryUsedMB           float64      `json:"memory_used_mb"`
	ConnectedClients       int64        `json:"connected_clients"`
	TotalCommandsProcessed int64        `json:"total_commands_processed"`
	KeyspaceHits           int64        `json:"keyspace_hits"`
	KeyspaceMisses         int64        `json:"keyspace_misses"`
	HitRate                float64      `json:"hit_rate"`
	Tenant                 *TenantStats `json:"tenant,omitempty"`
}

// TenantStats counts a tenant's keys, grouped by operation.
type TenantStats struct {
	OrganizationID string         `json:"organization_id"`
	TotalKeys      int            `json:"total_keys"`
	ByOperation    map[string]int `json:"by_operation"`
}

// parseInfo turns the INFO text reply into key/value pairs, skipping section headers.
func parseInfo(info string) map[string]string {
	fields := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields[k] = v
	}
	return fields
}

func statsFromInfo(fields map[string]string) *Stats {
	usedMemory := infoInt(fields, "used_memory")
	hits := infoInt(fields, "keyspace_hits")
	misses := infoInt(fields, "keyspace_misses")

	return &Stats{
		MemoryUsedMB:           round2(float64(usedMemory) / 1024 / 1024),
		ConnectedClients:       infoInt(fields, "connected_clients"),
		TotalCommandsProcessed: infoInt(fields, "total_commands_processed"),
		KeyspaceHits:           hits,
		KeyspaceMisses:         misses,
		HitRate:                hitRate(hits, misses),
	}
}

func tenantStats(tenantID string, keys []string) *TenantStats {
	ts := &TenantStats{
		OrganizationID: tenantID,
		TotalKeys:      len(keys),
		ByOperation:    make(map[string]int),
	}
	for _, key := range keys {
		if op, ok := ParseOperation(key); ok {
			ts.ByOperation[op]++
		}
	}
	return ts
}

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return round2(float64(hits) / float64(total) * 100)
}

func infoInt(fields map[string]string, key string) int64 {
	n, err := strconv.ParseInt(fields[key], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
