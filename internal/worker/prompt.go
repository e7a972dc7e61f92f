package worker

import (
	"fmt"
	"strings"

	"github.com/pitimon/claude-mem-plugin/pkg/models"
)

// lengthGuidance is appended to every event-summarization prompt so the
// model constrains its own output instead of the worker post-validating and
// rejecting overlong fields (spec §9 Open Question: guidance, not a filter).
const lengthGuidance = `Keep <title> under 80 characters, <subtitle> under 120,
each <fact> under 160, and <narrative> under 600. Omit any tag you have
nothing to say for rather than leaving it empty.`

// BuildEventPrompt renders the system preamble plus one XML-ish block per
// raw event in a per-session batch, and the recent-activity context block
// when available.
func BuildEventPrompt(modePreamble string, events []*models.RawToolEvent, recent []models.RecentObservation) (system, user string) {
	var b strings.Builder
	b.WriteString(modePreamble)
	b.WriteString("\n\n")
	b.WriteString(lengthGuidance)
	b.WriteString("\n")

	if len(recent) > 0 {
		b.WriteString("\n<recent_activity>\n")
		for _, r := range recent {
			fmt.Fprintf(&b, "  <item type=%q>%s</item>\n", r.Type, escapeText(r.Text))
		}
		b.WriteString("</recent_activity>\n")
	}

	var u strings.Builder
	for _, e := range events {
		fmt.Fprintf(&u, "<tool_event>\n")
		fmt.Fprintf(&u, "  <tool_name>%s</tool_name>\n", escapeText(e.ToolName))
		fmt.Fprintf(&u, "  <cwd>%s</cwd>\n", escapeText(e.CWD))
		fmt.Fprintf(&u, "  <prompt_number>%d</prompt_number>\n", e.PromptNumber)
		fmt.Fprintf(&u, "  <input>%s</input>\n", escapeText(e.ToolInput))
		fmt.Fprintf(&u, "  <output>%s</output>\n", escapeText(e.ToolResponse))
		u.WriteString("</tool_event>\n")
	}

	return b.String(), u.String()
}

// BuildSummaryPrompt renders the system preamble plus the single end-of-turn
// request/response pair a summary request carries, with recent-activity context.
func BuildSummaryPrompt(modePreamble string, req *models.RawSummaryRequest, recent []models.RecentObservation) (system, user string) {
	var b strings.Builder
	b.WriteString(modePreamble)
	b.WriteString("\n\n")
	b.WriteString(lengthGuidance)
	b.WriteString("\n")

	if len(recent) > 0 {
		b.WriteString("\n<recent_activity>\n")
		for _, r := range recent {
			fmt.Fprintf(&b, "  <item type=%q>%s</item>\n", r.Type, escapeText(r.Text))
		}
		b.WriteString("</recent_activity>\n")
	}

	var u strings.Builder
	fmt.Fprintf(&u, "<turn>\n  <user_prompt>%s</user_prompt>\n  <last_assistant_message>%s</last_assistant_message>\n</turn>\n",
		escapeText(req.UserPrompt), escapeText(req.LastAssistantMsg))

	return b.String(), u.String()
}

// escapeText neutralizes the handful of characters that would break the
// XML-ish block structure if they appeared verbatim in event payloads.
func escapeText(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
