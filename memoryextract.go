package agentcore

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// currentTimeContext renders the runtime's local-timezone date/time
// alongside UTC, for the system prompt and the deterministic router's
// date/time intent.
func currentTimeContext() string {
	now := time.Now()
	return fmt.Sprintf("Current time: %s (UTC: %s)",
		now.Format("Monday, 2006-01-02 15:04:05 MST"),
		now.UTC().Format("2006-01-02 15:04:05 UTC"))
}

// goalTriggerPatterns detect a fixed set of goal/mission phrases in
// user turns. Each capture group is the goal title candidate.
var goalTriggerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bwe need to (.+?)[.!?]?$`),
	regexp.MustCompile(`(?i)\bi want to (.+?)[.!?]?$`),
	regexp.MustCompile(`(?i)\blet'?s (.+?)[.!?]?$`),
	regexp.MustCompile(`(?i)\bgoal:\s*(.+?)[.!?]?$`),
	regexp.MustCompile(`(?i)\bmission:\s*(.+?)[.!?]?$`),
	regexp.MustCompile(`(?i)\bpriority:\s*(.+?)[.!?]?$`),
}

var prioritiesListHeader = regexp.MustCompile(`(?i)\bpriorities\b\s*:?\s*$`)

// preferencePatterns mine a fixed set of declarative facts into
// semantic memory's User Preferences / Known Facts sections.
var preferencePatterns = []struct {
	pattern *regexp.Regexp
	section string
}{
	{regexp.MustCompile(`(?i)\bprefers? (.+?)[.!?]?$`), sectionUserPreferences},
	{regexp.MustCompile(`(?i)\bdislikes? (.+?)[.!?]?$`), sectionUserPreferences},
	{regexp.MustCompile(`(?i)\blocation:\s*(.+?)[.!?]?$`), sectionKnownFacts},
	{regexp.MustCompile(`(?i)\btimezone:\s*(.+?)[.!?]?$`), sectionKnownFacts},
}

// ruleVocabulary flags sentences carrying normative vocabulary for
// procedural-memory extraction.
var ruleVocabulary = []string{"always", "never", "should", "must", "don't", "do not"}

// ExtractTurn runs the full per-turn deterministic extraction pass
// against one user/assistant exchange: goal upserts, preference/fact
// mining, rule mining, goal progress matching, and (every
// extractEveryNTurns turns) an episodic summary line. Errors from
// individual sub-extractions are recorded against the health metrics
// but never abort the pass — extraction is best-effort and must never
// block the conversation turn it rides on.
func (m *MemoryManager) ExtractTurn(ctx context.Context, userText, assistantText string) {
	m.extractGoals(userText)
	m.extractPreferences(userText)
	m.extractRules(userText)

	transition := transitionWord(assistantText)
	if err := m.goals.recordProgress(userText+" "+assistantText, firstSentence(assistantText), ProgressAssistant, transition, time.Now()); err != nil {
		m.recordError("goals")
	}

	m.mu.Lock()
	m.turn++
	turn := m.turn
	m.mu.Unlock()
	if turn%extractEveryNTurns == 0 {
		summary := fmt.Sprintf("Task: conversation | Approach: turn %d | Outcome: %s", turn, truncateStr(firstSentence(assistantText), 160))
		if err := m.appendEpisodic(summary); err != nil {
			m.recordError("episodic")
		}
	}
}

func (m *MemoryManager) extractGoals(userText string) {
	for _, p := range goalTriggerPatterns {
		match := p.FindStringSubmatch(userText)
		if len(match) < 2 {
			continue
		}
		title := strings.TrimSpace(match[1])
		if title == "" {
			continue
		}
		if _, err := m.goals.upsertGoal(title, "mentioned by user", ProgressUser, time.Now()); err != nil {
			m.recordError("goals")
		}
		return
	}

	for _, item := range bulletedPrioritiesList(userText) {
		if _, err := m.goals.upsertGoal(item, "listed as a priority", ProgressUser, time.Now()); err != nil {
			m.recordError("goals")
		}
	}
}

// bulletedPrioritiesList extracts the items of a "Priorities:" list
// followed by "-" or "*" bullet lines, if userText contains one.
func bulletedPrioritiesList(userText string) []string {
	lines := strings.Split(userText, "\n")
	var items []string
	inList := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !inList {
			if prioritiesListHeader.MatchString(trimmed) {
				inList = true
			}
			continue
		}
		if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "*") {
			item := strings.TrimSpace(strings.TrimLeft(trimmed, "-*"))
			if item != "" {
				items = append(items, item)
			}
			continue
		}
		if trimmed == "" {
			continue
		}
		break
	}
	return items
}

func (m *MemoryManager) extractPreferences(userText string) {
	for _, p := range preferencePatterns {
		match := p.pattern.FindStringSubmatch(userText)
		if len(match) < 2 {
			continue
		}
		content := strings.TrimSpace(match[0])
		if content == "" {
			continue
		}
		if _, err := m.appendBulletTracked("semantic", m.semanticPath(), p.section, content); err != nil {
			m.recordError("semantic")
		}
	}
}

func (m *MemoryManager) extractRules(userText string) {
	sentences := splitSentences(userText)
	written := 0
	for _, s := range sentences {
		if written >= maxRulesPerTurn {
			break
		}
		lower := strings.ToLower(s)
		if !containsAny(lower, ruleVocabulary...) {
			continue
		}
		if _, err := m.appendBulletTracked("procedural", m.proceduralPath(), sectionOperatingRules, strings.TrimSpace(s)); err != nil {
			m.recordError("procedural")
			continue
		}
		written++
	}
}

func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(text[start : i+1]); s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// FlushBeforeCompaction applies the same per-turn extraction
// (goals/preferences/rules/progress) ExtractTurn runs on the live
// conversation to every user/assistant pair about to be dropped by
// compaction, so a goal or rule mentioned far back in the history
// still lands in memory, then summarizes the last turns (capped at 40
// pairs) via the provider, falling back to a deterministic
// concatenation if the provider call fails, and atomically replaces
// session_context.md with the result.
func (m *MemoryManager) FlushBeforeCompaction(ctx context.Context, turns []ChatMessage) error {
	if len(turns) > 80 {
		turns = turns[len(turns)-80:]
	}

	m.extractFlushedTurns(turns)

	summary, err := m.summarizeTurns(ctx, turns)
	if err != nil || strings.TrimSpace(summary) == "" {
		summary = deterministicSessionSummary(turns)
	}

	path := m.sessionContextPath()
	doc := newMarkdownDoc()
	doc.appendBullet("Session Summary", summary)
	if err := writeMarkdownDocAtomic(path, doc); err != nil {
		m.recordError("session_context")
		return err
	}
	m.recordWrite("session_context")
	return nil
}

// extractFlushedTurns pairs each user message with the assistant reply
// that follows it and runs the same goal/preference/rule/progress
// extraction ExtractTurn applies per-turn, without the periodic
// episodic-summary cadence (that's a live-conversation concern, not a
// bulk-backfill one).
func (m *MemoryManager) extractFlushedTurns(turns []ChatMessage) {
	for i, t := range turns {
		if t.Role != "user" {
			continue
		}
		assistantText := ""
		if i+1 < len(turns) && turns[i+1].Role == "assistant" {
			assistantText = turns[i+1].Content
		}
		m.extractGoals(t.Content)
		m.extractPreferences(t.Content)
		m.extractRules(t.Content)
		if assistantText == "" {
			continue
		}
		transition := transitionWord(assistantText)
		if err := m.goals.recordProgress(t.Content+" "+assistantText, firstSentence(assistantText), ProgressAssistant, transition, time.Now()); err != nil {
			m.recordError("goals")
		}
	}
}

func (m *MemoryManager) summarizeTurns(ctx context.Context, turns []ChatMessage) (string, error) {
	if m.provider == nil || len(turns) == 0 {
		return "", fmt.Errorf("no provider configured")
	}
	prompt := "Summarize the conversation below into exactly three sections: " +
		"\"Current Goal\", \"Important Facts About User\", and \"Progress and Next Steps\". " +
		"Keep each section to 1-3 terse, factual bullet points.\n\n"
	var sb strings.Builder
	sb.WriteString(prompt)
	for _, t := range turns {
		fmt.Fprintf(&sb, "%s: %s\n", t.Role, t.Content)
	}
	resp, err := m.provider.Chat(ctx, ChatRequest{
		Messages: []ChatMessage{SystemMessage("You produce terse, factual session summaries."), {Role: "user", Content: sb.String()}},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// deterministicSessionSummary is the no-provider fallback: the first
// sentence of the last few assistant turns, concatenated.
func deterministicSessionSummary(turns []ChatMessage) string {
	var parts []string
	count := 0
	for i := len(turns) - 1; i >= 0 && count < 5; i-- {
		if turns[i].Role != "assistant" {
			continue
		}
		if s := firstSentence(turns[i].Content); s != "" {
			parts = append([]string{s}, parts...)
			count++
		}
	}
	if len(parts) == 0 {
		return "No summary available."
	}
	return strings.Join(parts, " ")
}
