package ingest

import "regexp"

const maxTags = 3

// tagRules is the classification table. Order matters: rules are evaluated
// top to bottom and the first three matches win.
var tagRules = []struct {
	tag     string
	pattern *regexp.Regexp
}{
	{"fix", regexp.MustCompile(`(?i)\bfix(es|ed)?\b|\bbug\b`)},
	{"feature", regexp.MustCompile(`(?i)\bfeat(ure)?\b`)},
	{"docs", regexp.MustCompile(`(?i)\bdocs?\b|\bdocumentation\b`)},
	{"refactor", regexp.MustCompile(`(?i)\brefactor\b`)},
	{"test", regexp.MustCompile(`(?i)\btest(s|ing)?\b`)},
	{"chore", regexp.MustCompile(`(?i)\bchore\b`)},
	{"performance", regexp.MustCompile(`(?i)\bperf(ormance)?\b`)},
	{"style", regexp.MustCompile(`(?i)\bstyle\b`)},
	{"security", regexp.MustCompile(`(?i)\bsecurity\b`)},
}

// ExtractTags classifies free text into at most three distinct tags.
// Deterministic: evaluation order is the rule table order.
func ExtractTags(text string) []string {
	tags := make([]string, 0, maxTags)
	for _, rule := range tagRules {
		if len(tags) == maxTags {
			break
		}
		if !rule.pattern.MatchString(text) {
			continue
		}
		if contains(tags, rule.tag) {
			continue
		}
		tags = append(tags, rule.tag)
	}
	return tags
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
