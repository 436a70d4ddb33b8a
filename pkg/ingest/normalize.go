package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Event types produced by ingestion. The pr_closed, repo_update and
// issue_closed types exist in the timeline enum but are only ever set by
// admin edits, never by the webhook path.
const (
	TypeCommit      = "commit"
	TypeRelease     = "release"
	TypePRMerge     = "pr_merge"
	TypePRClosed    = "pr_closed"
	TypeRepoUpdate  = "repo_update"
	TypeIssue       = "issue"
	TypeIssueClosed = "issue_closed"
)

// Event lifecycle statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// NormalizedEvent is the uniform internal shape every supported webhook
// family maps onto.
type NormalizedEvent struct {
	Type      string
	Title     string
	Summary   string
	Body      string
	Timestamp time.Time
	SourceURL string
	Tags      []string
	Status    string
	Pinned    bool
}

type pushCommit struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	URL     string `json:"url"`
	Author  struct {
		Name string `json:"name"`
	} `json:"author"`
}

type pushPayload struct {
	Ref     string       `json:"ref"`
	After   string       `json:"after"`
	Compare string       `json:"compare"`
	Commits []pushCommit `json:"commits"`
}

type releasePayload struct {
	Action  string `json:"action"`
	Release struct {
		ID          int64      `json:"id"`
		TagName     string     `json:"tag_name"`
		Name        string     `json:"name"`
		Body        string     `json:"body"`
		HTMLURL     string     `json:"html_url"`
		PublishedAt *time.Time `json:"published_at"`
	} `json:"release"`
}

type pullRequestPayload struct {
	Action      string `json:"action"`
	PullRequest struct {
		ID       int64      `json:"id"`
		Number   int        `json:"number"`
		Title    string     `json:"title"`
		Body     string     `json:"body"`
		HTMLURL  string     `json:"html_url"`
		Merged   bool       `json:"merged"`
		MergedAt *time.Time `json:"merged_at"`
	} `json:"pull_request"`
}

type issuesPayload struct {
	Action string `json:"action"`
	Issue  struct {
		ID        int64      `json:"id"`
		Number    int        `json:"number"`
		Title     string     `json:"title"`
		Body      string     `json:"body"`
		HTMLURL   string     `json:"html_url"`
		CreatedAt *time.Time `json:"created_at"`
	} `json:"issue"`
}

// Normalize maps one webhook delivery onto the internal event shape.
// It returns (nil, nil) for families and actions the timeline does not
// surface; that is an expected outcome, not an error.
func Normalize(family string, rawPayload []byte, now time.Time) (*NormalizedEvent, error) {
	switch family {
	case "push":
		return normalizePush(rawPayload, now)
	case "release":
		return normalizeRelease(rawPayload, now)
	case "pull_request":
		return normalizePullRequest(rawPayload, now)
	case "issues":
		return normalizeIssues(rawPayload, now)
	default:
		return nil, nil
	}
}

func normalizePush(rawPayload []byte, now time.Time) (*NormalizedEvent, error) {
	var payload pushPayload
	if err := json.Unmarshal(rawPayload, &payload); err != nil {
		return nil, fmt.Errorf("parse push payload: %w", err)
	}
	// A branch delete is delivered as a push with zero commits.
	if len(payload.Commits) == 0 {
		return nil, nil
	}

	branch := strings.TrimPrefix(payload.Ref, "refs/heads/")
	messages := make([]string, 0, len(payload.Commits))
	firstLines := make([]string, 0, len(payload.Commits))
	for _, commit := range payload.Commits {
		messages = append(messages, commit.Message)
		firstLines = append(firstLines, "• "+firstLine(commit.Message))
	}

	title := fmt.Sprintf("%d new commits to %s", len(payload.Commits), branch)
	summary := truncate(strings.Join(firstLines, "\n"), 500)
	if len(payload.Commits) == 1 {
		title = firstLine(payload.Commits[0].Message)
		summary = payload.Commits[0].Message
	}

	return &NormalizedEvent{
		Type:    TypeCommit,
		Title:   title,
		Summary: summary,
		Body:    strings.Join(messages, "\n\n"),
		// Push payloads carry no reliable single occurrence time, so the
		// timeline orders commit events by delivery time.
		Timestamp: now,
		SourceURL: payload.Compare,
		Tags:      ExtractTags(strings.Join(messages, " ")),
		Status:    StatusApproved,
		Pinned:    false,
	}, nil
}

func normalizeRelease(rawPayload []byte, now time.Time) (*NormalizedEvent, error) {
	var payload releasePayload
	if err := json.Unmarshal(rawPayload, &payload); err != nil {
		return nil, fmt.Errorf("parse release payload: %w", err)
	}
	release := payload.Release

	name := release.Name
	if name == "" {
		name = release.TagName
	}
	summary := truncate(release.Body, 300)
	if summary == "" {
		summary = "New release published"
	}
	timestamp := now
	if release.PublishedAt != nil {
		timestamp = *release.PublishedAt
	}

	return &NormalizedEvent{
		Type:      TypeRelease,
		Title:     fmt.Sprintf("Release %s: %s", release.TagName, name),
		Summary:   summary,
		Body:      release.Body,
		Timestamp: timestamp,
		SourceURL: release.HTMLURL,
		Tags:      append([]string{"release"}, ExtractTags(release.Body)...),
		Status:    StatusApproved,
		Pinned:    true,
	}, nil
}

func normalizePullRequest(rawPayload []byte, now time.Time) (*NormalizedEvent, error) {
	var payload pullRequestPayload
	if err := json.Unmarshal(rawPayload, &payload); err != nil {
		return nil, fmt.Errorf("parse pull_request payload: %w", err)
	}
	// Only a merged close becomes an event. A close without a merge is
	// deliberately dropped rather than guessed at.
	if payload.Action != "closed" || !payload.PullRequest.Merged {
		return nil, nil
	}
	pr := payload.PullRequest

	summary := truncate(pr.Body, 300)
	if summary == "" {
		summary = "Pull request merged"
	}
	timestamp := now
	if pr.MergedAt != nil {
		timestamp = *pr.MergedAt
	}

	return &NormalizedEvent{
		Type:      TypePRMerge,
		Title:     fmt.Sprintf("PR #%d: %s", pr.Number, pr.Title),
		Summary:   summary,
		Body:      pr.Body,
		Timestamp: timestamp,
		SourceURL: pr.HTMLURL,
		Tags:      ExtractTags(pr.Title + " " + pr.Body),
		Status:    StatusApproved,
		Pinned:    false,
	}, nil
}

func normalizeIssues(rawPayload []byte, now time.Time) (*NormalizedEvent, error) {
	var payload issuesPayload
	if err := json.Unmarshal(rawPayload, &payload); err != nil {
		return nil, fmt.Errorf("parse issues payload: %w", err)
	}
	if payload.Action != "opened" {
		return nil, nil
	}
	issue := payload.Issue

	summary := truncate(issue.Body, 300)
	if summary == "" {
		summary = "New issue opened"
	}
	timestamp := now
	if issue.CreatedAt != nil {
		timestamp = *issue.CreatedAt
	}

	return &NormalizedEvent{
		Type:      TypeIssue,
		Title:     fmt.Sprintf("Issue #%d: %s", issue.Number, issue.Title),
		Summary:   summary,
		Body:      issue.Body,
		Timestamp: timestamp,
		SourceURL: issue.HTMLURL,
		Tags:      append([]string{"issue"}, ExtractTags(issue.Title+" "+issue.Body)...),
		Status:    StatusApproved,
		Pinned:    false,
	}, nil
}

func firstLine(message string) string {
	if idx := strings.IndexByte(message, '\n'); idx >= 0 {
		return message[:idx]
	}
	return message
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
