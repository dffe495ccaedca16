package logger

import (
	"time"
)

// Field keys used across scribe log lines.
const (
	FieldComponent = "component"
	FieldUserID    = "user_id"
	FieldItemID    = "item_id"
	FieldState     = "state"
	FieldModel     = "model"
	FieldProvider  = "provider"
	FieldKey       = "key"
	FieldCount     = "count"
	FieldOperation = "operation"
	FieldError     = "error"
	FieldDuration  = "duration_ms"
)

// Fields builds a map[string]interface{} from alternating key-value pairs.
//
//	log.Info("saved", logger.Fields("key", key, "items", n))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// ErrorFields creates fields for an operation that failed.
func ErrorFields(op string, err error) map[string]interface{} {
	return map[string]interface{}{
		FieldOperation: op,
		FieldError:     err.Error(),
	}
}

// ItemFields creates fields identifying an item and its state.
func ItemFields(id, state string) map[string]interface{} {
	return map[string]interface{}{
		FieldItemID: id,
		FieldState:  state,
	}
}

// MergeWithError adds an error field to an existing map.
func MergeWithError(fields map[string]interface{}, err error) map[string]interface{} {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields[FieldError] = err.Error()
	return fields
}

// MergeWithDuration adds a duration field to an existing map.
func MergeWithDuration(fields map[string]interface{}, d time.Duration) map[string]interface{} {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields[FieldDuration] = d.Milliseconds()
	return fields
}
