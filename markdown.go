package agentcore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/unicode/norm"
)

// markdownDoc is a round-trippable parse of a memory file: an ordered
// list of level-2-heading section titles, each with its bullet-list
// children's raw text. This is the shape every memory store (semantic,
// procedural, goals) persists as, per the memory manager's markdown
// file format.
type markdownDoc struct {
	order    []string
	sections map[string][]string
}

func newMarkdownDoc() *markdownDoc {
	return &markdownDoc{sections: make(map[string][]string)}
}

// bullets returns section's bullet list, or nil if the section does
// not exist.
func (d *markdownDoc) bullets(section string) []string {
	return d.sections[section]
}

// appendBullet adds bullet to section, creating the section if absent.
// Callers are responsible for checking equivalence before calling
// appendBullet — this method always appends.
func (d *markdownDoc) appendBullet(section, bullet string) {
	if _, ok := d.sections[section]; !ok {
		d.order = append(d.order, section)
	}
	d.sections[section] = append(d.sections[section], bullet)
}

// hasEquivalentBullet reports whether any section already contains a
// bullet normalized-equivalent to candidate, per the memory manager's
// dedup invariant: append is a no-op if an equivalent normalized
// bullet already exists in any section of the same file.
func (d *markdownDoc) hasEquivalentBullet(candidate string) bool {
	for _, bullets := range d.sections {
		for _, b := range bullets {
			if textEquivalent(b, candidate) {
				return true
			}
		}
	}
	return false
}

// parseMarkdownDoc walks a goldmark AST looking for level-2 headings
// followed by list blocks, collecting each list item's raw text as a
// section bullet. Anything outside that shape (other heading levels,
// bare paragraphs) is ignored — the memory manager never writes
// anything else.
func parseMarkdownDoc(data []byte) *markdownDoc {
	doc := newMarkdownDoc()
	if len(data) == 0 {
		return doc
	}

	root := goldmark.DefaultParser().Parse(text.NewReader(data))
	var currentSection string
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			if node.Level == 2 {
				currentSection = strings.TrimSpace(nodeText(node, data))
				if _, ok := doc.sections[currentSection]; !ok {
					doc.order = append(doc.order, currentSection)
					doc.sections[currentSection] = nil
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			if currentSection != "" {
				line := strings.TrimSpace(nodeText(node, data))
				if line != "" {
					doc.sections[currentSection] = append(doc.sections[currentSection], line)
				}
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return doc
}

// nodeText concatenates the raw source text of every text-bearing
// inline descendant of n, collapsing soft line breaks to spaces.
func nodeText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

// render serializes the document back to markdown: one "## Title"
// heading per section in order, followed by its bullets.
func (d *markdownDoc) render() []byte {
	var buf bytes.Buffer
	for _, section := range d.order {
		fmt.Fprintf(&buf, "## %s\n\n", section)
		for _, b := range d.sections[section] {
			fmt.Fprintf(&buf, "- %s\n", b)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// --- normalization & equivalence ---

// normalizeText lowercases, strips punctuation, and collapses
// whitespace for equivalence comparisons (bullets, goal titles).
func normalizeText(s string) string {
	s = norm.NFKC.String(s)
	var sb strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				sb.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

// textEquivalent reports whether a and b are the same statement:
// normalized forms equal, one contains the other, or token-level
// Jaccard overlap is at or above the equivalence threshold. Used both
// for goal-title identity and memory-bullet dedup.
func textEquivalent(a, b string) bool {
	na, nb := normalizeText(a), normalizeText(b)
	if na == "" || nb == "" {
		return na == nb
	}
	if na == nb || strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	return jaccardOverlap(na, nb) >= titleEquivalenceThreshold
}

// titleEquivalenceThreshold is the Jaccard-token-overlap cutoff above
// which two titles/bullets are treated as the same entry rather than
// distinct ones.
const titleEquivalenceThreshold = 0.72

// jaccardOverlap computes the Jaccard index of the whitespace-tokenized
// word sets of two already-normalized strings.
func jaccardOverlap(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for tok := range setA {
		if setB[tok] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}

// --- atomic file I/O ---

// readMarkdownDoc loads and parses path, returning an empty doc if the
// file does not yet exist.
func readMarkdownDoc(path string) (*markdownDoc, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return newMarkdownDoc(), nil
	}
	if err != nil {
		return nil, err
	}
	return parseMarkdownDoc(data), nil
}

// writeMarkdownDocAtomic renders doc and atomically replaces path:
// write a temp file in the same directory, then rename over the
// target so readers never observe a partial write.
func writeMarkdownDocAtomic(path string, doc *markdownDoc) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(doc.render()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// sortedDateFiles lists the basenames of the .md files under dir in
// reverse name order, so YYYY-MM-DD.md episodic files come
// most-recent-first. Names are not checked against the date pattern.
func sortedDateFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}
