package queue

import (
	"encoding/json"
	"fmt"
	"strconv"

	"snapfeed/internal/pipeline"
)

const (
	fieldPayload = "payload"
	fieldAttempt = "attempt"
)

func encodeEntry(job pipeline.DerivationJob, attempt int) (map[string]any, error) {
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	return map[string]any{
		fieldPayload: string(raw),
		fieldAttempt: attempt,
	}, nil
}

func decodeEntry(values map[string]any) (pipeline.DerivationJob, int, error) {
	raw, ok := values[fieldPayload].(string)
	if !ok {
		return pipeline.DerivationJob{}, 0, fmt.Errorf("entry missing %s field", fieldPayload)
	}

	var job pipeline.DerivationJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return pipeline.DerivationJob{}, 0, fmt.Errorf("unmarshal job: %w", err)
	}
	if job.RecordID == "" || job.OriginalKey == "" {
		return pipeline.DerivationJob{}, 0, fmt.Errorf("incomplete job payload: %q", raw)
	}

	return job, toInt(values[fieldAttempt]), nil
}

func toInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}
