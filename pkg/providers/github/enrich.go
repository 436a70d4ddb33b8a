package github

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gittimeline/internal"

	gh "github.com/google/go-github/v57/github"
)

// Detail is the supplementary information fetched for a stored event.
type Detail struct {
	Commits []DetailCommit `json:"commits"`
	Files   []DetailFile   `json:"files"`
	Stats   DetailStats    `json:"stats"`
}

// DetailCommit describes one commit in an enrichment result.
type DetailCommit struct {
	SHA     string       `json:"sha"`
	Message string       `json:"message"`
	Author  DetailAuthor `json:"author"`
	URL     string       `json:"url"`
}

// DetailAuthor describes a commit author.
type DetailAuthor struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Date  time.Time `json:"date"`
}

// DetailFile describes one changed file.
type DetailFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Changes   int    `json:"changes"`
	Patch     string `json:"patch,omitempty"`
}

// DetailStats aggregates an enrichment result.
type DetailStats struct {
	TotalCommits int `json:"total_commits"`
	FilesChanged int `json:"files_changed"`
	Additions    int `json:"additions"`
	Deletions    int `json:"deletions"`
}

var (
	comparePattern    = regexp.MustCompile(`compare/([^.]+)\.\.\.([^/?#]+)`)
	pullPattern       = regexp.MustCompile(`/pull/(\d+)`)
	releaseTagPattern = regexp.MustCompile(`/releases/tag/([^/?#]+)`)
	commitPattern     = regexp.MustCompile(`/commit/([0-9a-f]+)`)
)

// Enricher fetches commit/file/stat detail for stored events from the
// GitHub REST API. It is best-effort: every failure degrades to a nil
// Detail, never an error.
type Enricher struct {
	client  *gh.Client
	timeout time.Duration
	logger  *log.Logger
}

// NewEnricher creates an Enricher. A nil client disables enrichment
// entirely (no credential configured); Enrich then always returns nil.
func NewEnricher(client *gh.Client, timeout time.Duration, logger *log.Logger) *Enricher {
	if logger == nil {
		logger = log.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Enricher{client: client, timeout: timeout, logger: logger}
}

// Enrich dispatches on the shape of the stored source URL and fetches the
// matching upstream detail. The URL, not the stored event type, is the
// signal: it is the only field that says which upstream object the event
// points at.
func (e *Enricher) Enrich(ctx context.Context, sourceURL string) *Detail {
	if e == nil || e.client == nil || sourceURL == "" {
		return nil
	}
	owner, repo, ok := splitRepoPath(sourceURL)
	if !ok {
		return nil
	}

	var (
		detail *Detail
		kind   string
		err    error
	)
	switch {
	case strings.Contains(sourceURL, "/compare/"):
		kind = "compare"
		detail, err = e.enrichCompare(ctx, owner, repo, sourceURL)
	case strings.Contains(sourceURL, "/pull/"):
		kind = "pull"
		detail, err = e.enrichPull(ctx, owner, repo, sourceURL)
	case strings.Contains(sourceURL, "/releases/tag/"):
		kind = "release"
		detail, err = e.enrichReleaseTag(ctx, owner, repo, sourceURL)
	case strings.Contains(sourceURL, "/commit/"):
		kind = "commit"
		detail, err = e.enrichCommit(ctx, owner, repo, sourceURL)
	default:
		return nil
	}
	if err != nil {
		internal.IncEnrichFailure(kind)
		e.logger.Printf("enrich %s %s/%s failed: %v", kind, owner, repo, err)
		return nil
	}
	return detail
}

func (e *Enricher) enrichCompare(ctx context.Context, owner, repo, sourceURL string) (*Detail, error) {
	match := comparePattern.FindStringSubmatch(sourceURL)
	if match == nil {
		return nil, fmt.Errorf("no compare range in %q", sourceURL)
	}
	base, head := match[1], match[2]

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	comparison, _, err := e.client.Repositories.CompareCommits(callCtx, owner, repo, base, head, nil)
	if err != nil {
		return nil, err
	}

	detail := &Detail{
		Commits: mapCommits(comparison.Commits),
		Files:   mapFiles(comparison.Files),
	}
	detail.Stats = DetailStats{
		TotalCommits: len(detail.Commits),
		FilesChanged: len(detail.Files),
		Additions:    sumAdditions(detail.Files),
		Deletions:    sumDeletions(detail.Files),
	}
	return detail, nil
}

// enrichPull needs two calls: PR payloads, unlike compare payloads, carry
// no aggregate stats, so files are fetched and summed separately.
func (e *Enricher) enrichPull(ctx context.Context, owner, repo, sourceURL string) (*Detail, error) {
	match := pullPattern.FindStringSubmatch(sourceURL)
	if match == nil {
		return nil, fmt.Errorf("no pull number in %q", sourceURL)
	}
	number, err := strconv.Atoi(match[1])
	if err != nil {
		return nil, err
	}

	commitsCtx, cancelCommits := context.WithTimeout(ctx, e.timeout)
	defer cancelCommits()
	commits, _, err := e.client.PullRequests.ListCommits(commitsCtx, owner, repo, number, &gh.ListOptions{PerPage: 100})
	if err != nil {
		return nil, err
	}

	filesCtx, cancelFiles := context.WithTimeout(ctx, e.timeout)
	defer cancelFiles()
	files, _, err := e.client.PullRequests.ListFiles(filesCtx, owner, repo, number, &gh.ListOptions{PerPage: 100})
	if err != nil {
		return nil, err
	}

	detail := &Detail{
		Commits: mapCommits(commits),
		Files:   mapFiles(files),
	}
	detail.Stats = DetailStats{
		TotalCommits: len(detail.Commits),
		FilesChanged: len(detail.Files),
		Additions:    sumAdditions(detail.Files),
		Deletions:    sumDeletions(detail.Files),
	}
	return detail, nil
}

func (e *Enricher) enrichReleaseTag(ctx context.Context, owner, repo, sourceURL string) (*Detail, error) {
	match := releaseTagPattern.FindStringSubmatch(sourceURL)
	if match == nil {
		return nil, fmt.Errorf("no release tag in %q", sourceURL)
	}
	tag, err := url.PathUnescape(match[1])
	if err != nil {
		tag = match[1]
	}

	refCtx, cancelRef := context.WithTimeout(ctx, e.timeout)
	defer cancelRef()
	ref, _, err := e.client.Git.GetRef(refCtx, owner, repo, "tags/"+tag)
	if err != nil {
		return nil, err
	}
	sha := ref.GetObject().GetSHA()
	if sha == "" {
		return nil, fmt.Errorf("tag %q has no target commit", tag)
	}
	return e.fetchSingleCommit(ctx, owner, repo, sha)
}

func (e *Enricher) enrichCommit(ctx context.Context, owner, repo, sourceURL string) (*Detail, error) {
	match := commitPattern.FindStringSubmatch(sourceURL)
	if match == nil {
		return nil, fmt.Errorf("no commit sha in %q", sourceURL)
	}
	return e.fetchSingleCommit(ctx, owner, repo, match[1])
}

func (e *Enricher) fetchSingleCommit(ctx context.Context, owner, repo, sha string) (*Detail, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	commit, _, err := e.client.Repositories.GetCommit(callCtx, owner, repo, sha, nil)
	if err != nil {
		return nil, err
	}

	detail := &Detail{
		Commits: mapCommits([]*gh.RepositoryCommit{commit}),
		Files:   mapFiles(commit.Files),
	}
	detail.Stats = DetailStats{
		TotalCommits: 1,
		FilesChanged: len(detail.Files),
		Additions:    commit.GetStats().GetAdditions(),
		Deletions:    commit.GetStats().GetDeletions(),
	}
	return detail, nil
}

// splitRepoPath extracts owner and repository from the first two path
// segments of the source URL. Host-agnostic so enterprise URLs work too.
func splitRepoPath(sourceURL string) (string, string, bool) {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func mapCommits(commits []*gh.RepositoryCommit) []DetailCommit {
	out := make([]DetailCommit, 0, len(commits))
	for _, commit := range commits {
		author := commit.GetCommit().GetAuthor()
		out = append(out, DetailCommit{
			SHA:     commit.GetSHA(),
			Message: commit.GetCommit().GetMessage(),
			Author: DetailAuthor{
				Name:  author.GetName(),
				Email: author.GetEmail(),
				Date:  author.GetDate().Time,
			},
			URL: commit.GetHTMLURL(),
		})
	}
	return out
}

func mapFiles(files []*gh.CommitFile) []DetailFile {
	out := make([]DetailFile, 0, len(files))
	for _, file := range files {
		out = append(out, DetailFile{
			Filename:  file.GetFilename(),
			Status:    file.GetStatus(),
			Additions: file.GetAdditions(),
			Deletions: file.GetDeletions(),
			Changes:   file.GetChanges(),
			Patch:     file.GetPatch(),
		})
	}
	return out
}

func sumAdditions(files []DetailFile) int {
	total := 0
	for _, file := range files {
		total += file.Additions
	}
	return total
}

func sumDeletions(files []DetailFile) int {
	total := 0
	for _, file := range files {
		total += file.Deletions
	}
	return total
}
