// Package parser turns the LLM's XML-ish completion text into the structured
// Observation and SessionSummary shapes the workers persist. Both exported
// functions are pure and total: malformed or absent tags are skipped rather
// than erroring, since an empty parse is a valid, expected outcome.
package parser

import (
	"regexp"
	"strings"

	"github.com/pitimon/claude-mem-plugin/pkg/models"
)

var (
	observationBlockRe = regexp.MustCompile(`(?is)<observation>(.*?)</observation>`)
	summaryBlockRe     = regexp.MustCompile(`(?is)<summary>(.*?)</summary>`)
	listItemRe         = regexp.MustCompile(`(?is)<(?:fact|concept|file|item)>(.*?)</(?:fact|concept|file|item)>`)
)

// tag returns the trimmed text inside the first <name>...</name> occurrence
// in block, or "" if absent.
func tag(block, name string) string {
	re := regexp.MustCompile(`(?is)<` + name + `>(.*?)</` + name + `>`)
	m := re.FindStringSubmatch(block)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// listTag returns the trimmed text of every <fact>/<concept>/<file>/<item> item
// nested inside <name>...</name> in block.
func listTag(block, name string) []string {
	re := regexp.MustCompile(`(?is)<` + name + `>(.*?)</` + name + `>`)
	m := re.FindStringSubmatch(block)
	if m == nil {
		return nil
	}
	items := listItemRe.FindAllStringSubmatch(m[1], -1)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if v := strings.TrimSpace(it[1]); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ParseObservations extracts zero or more <observation> blocks from xml.
// contentSessionID is accepted for parity with the documented parser
// contract; observation attribution to a session happens at persistence
// time via the raw event, not inside the observation body itself. An empty
// or unparseable response yields a nil slice, not an error: the worker
// treats that as a legitimate "no observation produced" outcome.
func ParseObservations(xml, contentSessionID string) []models.Observation {
	_ = contentSessionID
	blocks := observationBlockRe.FindAllStringSubmatch(xml, -1)
	if len(blocks) == 0 {
		return nil
	}

	observations := make([]models.Observation, 0, len(blocks))
	for _, b := range blocks {
		body := b[1]
		obs := models.Observation{
			Type:          tag(body, "type"),
			Title:         tag(body, "title"),
			Subtitle:      tag(body, "subtitle"),
			Narrative:     tag(body, "narrative"),
			Facts:         listTag(body, "facts"),
			Concepts:      listTag(body, "concepts"),
			FilesRead:     listTag(body, "files_read"),
			FilesModified: listTag(body, "files_modified"),
		}
		if obs.Title == "" && obs.Narrative == "" {
			continue
		}
		observations = append(observations, obs)
	}
	if len(observations) == 0 {
		return nil
	}
	return observations
}

// ParseSummary extracts the single <summary> block from xml, if present.
// Returns nil when absent or empty, matching the "summary optional" contract
// the Summary Summarizer Worker relies on.
func ParseSummary(xml string, sessionDBID int64) *models.SessionSummary {
	m := summaryBlockRe.FindStringSubmatch(xml)
	if m == nil {
		return nil
	}
	body := m[1]

	summary := &models.SessionSummary{
		Request:      tag(body, "request"),
		Investigated: tag(body, "investigated"),
		Learned:      tag(body, "learned"),
		Completed:    listTag(body, "completed"),
		NextSteps:    listTag(body, "next_steps"),
		Notes:        tag(body, "notes"),
	}
	if summary.Request == "" && summary.Learned == "" && len(summary.Completed) == 0 {
		return nil
	}
	return summary
}
