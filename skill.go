package agentcore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Skill is one entry of the read-only skill catalogue: a markdown file
// with YAML frontmatter, loaded once at startup.
type Skill struct {
	ID          string
	Name        string
	Description string
	Triggers    []string
	Priority    int
	Body        string
}

// skillFrontmatter is the YAML header of a skill markdown file.
type skillFrontmatter struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Triggers    []string `yaml:"triggers"`
	Priority    int      `yaml:"priority"`
}

// SkillCatalogue holds every skill loaded at startup and computes
// match scores against user text with a deterministic rule:
// +20 substring name match, +10 per trigger-phrase hit, +1 per
// description word (length >= 3) also present in the user text.
// Selection picks the highest score >= minSkillScore, tie-broken by
// higher priority then lexicographic id.
type SkillCatalogue struct {
	skills []Skill
}

const minSkillScore = 10

// LoadSkillCatalogue reads every *.md file under dir as a
// frontmatter-delimited skill definition. A directory that does not
// exist yields an empty catalogue rather than an error — skills are an
// optional collaborator.
func LoadSkillCatalogue(dir string) (*SkillCatalogue, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return &SkillCatalogue{}, nil
	}
	if err != nil {
		return nil, err
	}

	var skills []Skill
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read skill %s: %w", e.Name(), err)
		}
		s, err := parseSkillFile(data)
		if err != nil {
			return nil, fmt.Errorf("parse skill %s: %w", e.Name(), err)
		}
		skills = append(skills, s)
	}

	sort.Slice(skills, func(i, j int) bool { return skills[i].ID < skills[j].ID })
	return &SkillCatalogue{skills: skills}, nil
}

// parseSkillFile splits a "---\nyaml\n---\nbody" document into its
// frontmatter and body.
func parseSkillFile(data []byte) (Skill, error) {
	text := string(data)
	if !strings.HasPrefix(text, "---") {
		return Skill{}, fmt.Errorf("missing frontmatter delimiter")
	}
	rest := text[3:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return Skill{}, fmt.Errorf("unterminated frontmatter")
	}
	header := rest[:end]
	body := strings.TrimLeft(rest[end+4:], "\n")

	var fm skillFrontmatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return Skill{}, err
	}
	if fm.ID == "" || fm.Name == "" {
		return Skill{}, fmt.Errorf("skill is missing id or name")
	}
	return Skill{
		ID:          fm.ID,
		Name:        fm.Name,
		Description: fm.Description,
		Triggers:    fm.Triggers,
		Priority:    fm.Priority,
		Body:        strings.TrimSpace(body),
	}, nil
}

// Match scores every skill against userText and returns the
// highest-scoring skill at or above minSkillScore, or (nil, false) if
// none qualifies.
func (c *SkillCatalogue) Match(userText string) (*Skill, bool) {
	if c == nil || len(c.skills) == 0 {
		return nil, false
	}
	normUser := normalizeText(userText)

	var best *Skill
	bestScore := 0
	for i := range c.skills {
		s := &c.skills[i]
		score := scoreSkill(s, normUser)
		if score < minSkillScore {
			continue
		}
		if best == nil || score > bestScore ||
			(score == bestScore && (s.Priority > best.Priority ||
				(s.Priority == best.Priority && s.ID < best.ID))) {
			best = s
			bestScore = score
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

func scoreSkill(s *Skill, normUser string) int {
	score := 0
	if strings.Contains(normUser, normalizeText(s.Name)) {
		score += 20
	}
	for _, trigger := range s.Triggers {
		if strings.Contains(normUser, normalizeText(trigger)) {
			score += 10
		}
	}
	for _, word := range strings.Fields(normalizeText(s.Description)) {
		if len(word) >= 3 && strings.Contains(normUser, word) {
			score++
		}
	}
	return score
}

// Catalogue renders a compact "id: name — description" summary of
// every loaded skill, for the system prompt's skill catalogue block.
func (c *SkillCatalogue) Catalogue() string {
	if c == nil || len(c.skills) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, s := range c.skills {
		fmt.Fprintf(&sb, "- %s: %s — %s\n", s.ID, s.Name, s.Description)
	}
	return strings.TrimRight(sb.String(), "\n")
}
