package graph

import (
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"fritter/backend/internal/model"
)

// ============================================================================
// Record Helpers
// ============================================================================

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getBoolFromRecord(record *neo4j.Record, key string) bool {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return false
	}
	if b, ok := val.(bool); ok {
		return b
	}
	return false
}

func getInt64FromRecord(record *neo4j.Record, key string) int64 {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	if i, ok := val.(int64); ok {
		return i
	}
	if i, ok := val.(int); ok {
		return int64(i)
	}
	return 0
}

func getStringSliceFromRecord(record *neo4j.Record, key string) []string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return []string{}
	}
	if slice, ok := val.([]interface{}); ok {
		result := make([]string, 0, len(slice))
		for _, v := range slice {
			if str, ok := v.(string); ok && str != "" {
				result = append(result, str)
			}
		}
		return result
	}
	return []string{}
}

// getUserIDsFromRecord materializes a collected id list. collect() over an
// OPTIONAL MATCH yields an empty list, never index keys.
func getUserIDsFromRecord(record *neo4j.Record, key string) []model.UserID {
	raw := getStringSliceFromRecord(record, key)
	ids := make([]model.UserID, 0, len(raw))
	for _, s := range raw {
		ids = append(ids, model.UserID(s))
	}
	return model.SortedIDs(ids)
}
