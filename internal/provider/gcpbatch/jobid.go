package gcpbatch

import "strings"

const (
	jobIDPrefix = "hal-"
	jobIDMaxLen = 63
)

// generateProviderJobID produces a GCP Batch-compatible job ID (<= 63 chars,
// lowercase alphanumeric + hyphens), derived from the given string.
// ExecuteBatch passes a nanosecond timestamp and the task count, not HAL's
// job_id.
func generateProviderJobID(jobID string) string {
	suffix := sanitiseLabel(jobID)
	if suffix == "" {
		suffix = "job"
	}
	id := jobIDPrefix + suffix
	if len(id) > jobIDMaxLen {
		id = id[:jobIDMaxLen]
	}
	return strings.TrimRight(id, "-")
}

// sanitiseLabel lowercases s and replaces any character that is not
// alphanumeric with a hyphen, collapsing consecutive hyphens.
func sanitiseLabel(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	prevHyphen := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			prevHyphen = false
		} else if !prevHyphen {
			b.WriteRune('-')
			prevHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}
