package ingest

import (
	"encoding/json"
	"fmt"
)

// DedupKey derives the family-specific occurrence key used for the event
// uniqueness invariant. It is computed from the raw payload, before
// normalization, because some identity fields never reach the normalized
// shape. An empty key means no identity material was available and
// deduplication is skipped for that delivery.
func DedupKey(family string, rawPayload []byte) string {
	switch family {
	case "push":
		var payload struct {
			After string `json:"after"`
		}
		if err := json.Unmarshal(rawPayload, &payload); err != nil {
			return ""
		}
		// The head SHA identifies the push; distinct pushes to the same
		// branch always have distinct heads.
		return payload.After
	case "release":
		var payload struct {
			Release struct {
				ID      int64  `json:"id"`
				TagName string `json:"tag_name"`
			} `json:"release"`
		}
		if err := json.Unmarshal(rawPayload, &payload); err != nil {
			return ""
		}
		if payload.Release.ID != 0 {
			return fmt.Sprintf("release-%d", payload.Release.ID)
		}
		if payload.Release.TagName != "" {
			return "release-tag-" + payload.Release.TagName
		}
		return ""
	case "pull_request":
		var payload struct {
			Action      string `json:"action"`
			PullRequest struct {
				ID int64 `json:"id"`
			} `json:"pull_request"`
		}
		if err := json.Unmarshal(rawPayload, &payload); err != nil {
			return ""
		}
		if payload.PullRequest.ID == 0 {
			return ""
		}
		return fmt.Sprintf("pr-%d-%s", payload.PullRequest.ID, payload.Action)
	case "issues":
		var payload struct {
			Action string `json:"action"`
			Issue  struct {
				ID int64 `json:"id"`
			} `json:"issue"`
		}
		if err := json.Unmarshal(rawPayload, &payload); err != nil {
			return ""
		}
		if payload.Issue.ID == 0 {
			return ""
		}
		return fmt.Sprintf("issue-%d-%s", payload.Issue.ID, payload.Action)
	default:
		return ""
	}
}
