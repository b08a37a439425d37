package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"casare-orchestrator/internal/models"
)

// fingerprint hashes (workflowID, canonicalized variables) for the
// submission-time deduplication rule in spec §4.1. No hashing library
// appears anywhere in the example pack for this kind of opaque content
// fingerprint, so this is one of the few stdlib-only corners of the
// codebase — crypto/sha256 is the obvious, dependency-free choice here.
func fingerprint(workflowID string, variables models.Variables) string {
	canonical := canonicalize(variables)
	payload, _ := json.Marshal(struct {
		WorkflowID string      `json:"workflow_id"`
		Variables  interface{} `json:"variables"`
	}{WorkflowID: workflowID, Variables: canonical})

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// canonicalize produces a deterministically ordered representation of a
// variable map so that key insertion order never affects the fingerprint.
func canonicalize(v models.Variables) []keyValue {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]keyValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, keyValue{Key: k, Value: v[k]})
	}
	return out
}

type keyValue struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}
