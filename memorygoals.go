package agentcore

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// goalStore persists GoalRecords as sections of goals/goals.md, one
// level-2 heading per goal: a metadata bullet followed by the
// progress log. Identity is the goal's id (not its title — titles are
// only used to decide whether a new candidate is the same goal).
type goalStore struct {
	path string
	mu   sync.Mutex
}

func newGoalStore(baseDir string) *goalStore {
	return &goalStore{path: filepath.Join(baseDir, "goals", "goals.md")}
}

const goalMetaPrefix = "meta"

// load reads and parses every goal currently on disk, in file order.
func (s *goalStore) load() ([]GoalRecord, error) {
	doc, err := readMarkdownDoc(s.path)
	if err != nil {
		return nil, err
	}
	goals := make([]GoalRecord, 0, len(doc.order))
	for _, title := range doc.order {
		g, ok := parseGoalSection(title, doc.bullets(title))
		if ok {
			goals = append(goals, g)
		}
	}
	return goals, nil
}

// save atomically replaces goals.md with the given goal set, each
// rendered back to its section form.
func (s *goalStore) save(goals []GoalRecord) error {
	doc := newMarkdownDoc()
	for _, g := range goals {
		title, bullets := renderGoalSection(g)
		for _, b := range bullets {
			doc.appendBullet(title, b)
		}
	}
	return writeMarkdownDocAtomic(s.path, doc)
}

// findByTitle returns the index of the goal whose title is the same
// goal as candidate per the equivalence rule (normalized equal,
// containment, or Jaccard overlap ≥ 0.72), or -1 if none matches.
func findByTitle(goals []GoalRecord, candidate string) int {
	for i, g := range goals {
		if textEquivalent(g.Title, candidate) {
			return i
		}
	}
	return -1
}

// upsertGoal reuses an existing goal matching title (reaffirming it
// active and bumping updatedAt) or creates a new one, then appends a
// progress note from source. Returns the mutated/created goal's id.
func (s *goalStore) upsertGoal(title, note string, source ProgressSource, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	goals, err := s.load()
	if err != nil {
		return "", err
	}

	iso := now.UTC().Format(time.RFC3339)
	idx := findByTitle(goals, title)
	if idx < 0 {
		g := GoalRecord{
			ID:        NewID(),
			Title:     title,
			Status:    GoalActive,
			CreatedAt: iso,
			UpdatedAt: iso,
		}
		g.Progress = appendProgress(g.Progress, note, source, iso)
		goals = append(goals, g)
		return g.ID, s.save(goals)
	}

	g := &goals[idx]
	g.Status = GoalActive
	g.UpdatedAt = iso
	g.Progress = appendProgress(g.Progress, note, source, iso)
	return g.ID, s.save(goals)
}

// recordProgress appends a progress note to every active goal whose
// title Jaccard-overlaps turnText at or above the overlap threshold,
// applying any status transition implied by transitionWord (detected
// by the caller from completion/pause/cancel vocabulary).
func (s *goalStore) recordProgress(turnText, note string, source ProgressSource, transition GoalStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	goals, err := s.load()
	if err != nil {
		return err
	}

	iso := now.UTC().Format(time.RFC3339)
	changed := false
	normTurn := normalizeText(turnText)
	for i := range goals {
		g := &goals[i]
		if g.Status != GoalActive {
			continue
		}
		if jaccardOverlap(normalizeText(g.Title), normTurn) < goalProgressOverlapThreshold {
			continue
		}
		g.Progress = appendProgress(g.Progress, note, source, iso)
		g.UpdatedAt = iso
		if transition != "" {
			g.Status = transition
		}
		changed = true
	}
	if !changed {
		return nil
	}
	return s.save(goals)
}

// goalProgressOverlapThreshold is the minimum title/turn-text Jaccard
// overlap for a turn to count as progress on an active goal.
const goalProgressOverlapThreshold = 0.12

// appendProgress appends note to progress, capped at maxGoalProgress
// entries (oldest dropped first), trimmed to 180 characters.
func appendProgress(progress []GoalProgress, note string, source ProgressSource, iso string) []GoalProgress {
	note = truncateStr(strings.TrimSpace(note), 180)
	progress = append(progress, GoalProgress{At: iso, Source: source, Note: note})
	if len(progress) > maxGoalProgress {
		progress = progress[len(progress)-maxGoalProgress:]
	}
	return progress
}

// parseGoalSection reconstructs a GoalRecord from a goals.md section:
// title is the heading text, bullets[0] is the pipe-delimited
// metadata line, and any remaining bullets are progress entries of
// the form "[iso] (source) note".
func parseGoalSection(title string, bullets []string) (GoalRecord, bool) {
	if len(bullets) == 0 {
		return GoalRecord{}, false
	}
	meta, ok := parseGoalMeta(bullets[0])
	if !ok {
		return GoalRecord{}, false
	}
	g := GoalRecord{
		ID:        meta["id"],
		Title:     title,
		Status:    GoalStatus(meta["status"]),
		CreatedAt: meta["created"],
		UpdatedAt: meta["updated"],
	}
	if tags := meta["tags"]; tags != "" {
		g.Tags = strings.Split(tags, ",")
	}
	for _, line := range bullets[1:] {
		if p, ok := parseProgressLine(line); ok {
			g.Progress = append(g.Progress, p)
		}
	}
	return g, g.ID != ""
}

func parseGoalMeta(line string) (map[string]string, bool) {
	fields := strings.Split(line, "|")
	if len(fields) == 0 || strings.TrimSpace(fields[0]) != goalMetaPrefix {
		return nil, false
	}
	meta := make(map[string]string)
	for _, f := range fields[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(f), "=")
		if ok {
			meta[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return meta, true
}

// parseProgressLine parses "[iso] (source) note" bullets written by
// renderGoalSection.
func parseProgressLine(line string) (GoalProgress, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[") {
		return GoalProgress{}, false
	}
	end := strings.Index(line, "]")
	if end < 0 {
		return GoalProgress{}, false
	}
	at := line[1:end]
	rest := strings.TrimSpace(line[end+1:])
	if !strings.HasPrefix(rest, "(") {
		return GoalProgress{}, false
	}
	closeParen := strings.Index(rest, ")")
	if closeParen < 0 {
		return GoalProgress{}, false
	}
	source := ProgressSource(rest[1:closeParen])
	note := strings.TrimSpace(rest[closeParen+1:])
	return GoalProgress{At: at, Source: source, Note: note}, true
}

// renderGoalSection produces the heading title and bullet list for g,
// in the format parseGoalSection expects.
func renderGoalSection(g GoalRecord) (string, []string) {
	tags := strings.Join(g.Tags, ",")
	meta := fmt.Sprintf("%s | id=%s | status=%s | tags=%s | created=%s | updated=%s",
		goalMetaPrefix, g.ID, g.Status, tags, g.CreatedAt, g.UpdatedAt)
	bullets := []string{meta}
	for _, p := range g.Progress {
		note := strings.ReplaceAll(p.Note, "|", "/")
		bullets = append(bullets, fmt.Sprintf("[%s] (%s) %s", p.At, p.Source, note))
	}
	return g.Title, bullets
}

// transitionWord maps completion/pause/cancel vocabulary in an
// assistant reply to the GoalStatus it implies, or "" if none of the
// watched words appear.
func transitionWord(text string) GoalStatus {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "completed", "done", "finished", "wrapped up"):
		return GoalCompleted
	case containsAny(lower, "pause", "paused", "on hold", "pausing"):
		return GoalPaused
	case containsAny(lower, "cancelled", "canceled", "cancelling", "abandoned", "dropping"):
		return GoalCancelled
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// firstSentence returns the first sentence of text (up to the first
// '.', '!', or '?'), trimmed.
func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	idx := strings.IndexAny(text, ".!?")
	if idx < 0 {
		return text
	}
	return strings.TrimSpace(text[:idx+1])
}
