package agentcore

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSkillFile(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644); err != nil {
		t.Fatalf("write skill file: %v", err)
	}
}

const walletSkillDoc = `---
id: wallet-helper
name: Wallet Helper
description: answer wallet balance and address questions
triggers:
  - wallet balance
  - wallet address
priority: 5
---
Use the wallet tools to answer questions about balances and addresses.
`

func TestLoadSkillCatalogue_ParsesFrontmatterAndBody(t *testing.T) {
	dir := t.TempDir()
	writeSkillFile(t, dir, "wallet.md", walletSkillDoc)

	cat, err := LoadSkillCatalogue(dir)
	if err != nil {
		t.Fatalf("LoadSkillCatalogue: %v", err)
	}
	if len(cat.skills) != 1 {
		t.Fatalf("expected 1 skill, got %d", len(cat.skills))
	}
	s := cat.skills[0]
	if s.ID != "wallet-helper" || s.Name != "Wallet Helper" {
		t.Errorf("skill = %+v", s)
	}
	if len(s.Triggers) != 2 {
		t.Errorf("triggers = %v", s.Triggers)
	}
	if s.Body == "" {
		t.Error("expected a non-empty body")
	}
}

func TestLoadSkillCatalogue_MissingDirIsEmptyNotError(t *testing.T) {
	cat, err := LoadSkillCatalogue(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("expected no error for a missing skills dir, got %v", err)
	}
	if len(cat.skills) != 0 {
		t.Errorf("expected an empty catalogue, got %d skills", len(cat.skills))
	}
}

func TestLoadSkillCatalogue_RejectsMissingFrontmatterDelimiter(t *testing.T) {
	dir := t.TempDir()
	writeSkillFile(t, dir, "broken.md", "no frontmatter here")

	if _, err := LoadSkillCatalogue(dir); err == nil {
		t.Fatal("expected an error for a skill file without frontmatter")
	}
}

func TestLoadSkillCatalogue_RejectsMissingIDOrName(t *testing.T) {
	dir := t.TempDir()
	writeSkillFile(t, dir, "broken.md", "---\ndescription: missing id and name\n---\nbody\n")

	if _, err := LoadSkillCatalogue(dir); err == nil {
		t.Fatal("expected an error for a skill missing id/name")
	}
}

func TestSkillCatalogue_MatchPicksHighestScore(t *testing.T) {
	dir := t.TempDir()
	writeSkillFile(t, dir, "wallet.md", walletSkillDoc)
	writeSkillFile(t, dir, "social.md", `---
id: social-helper
name: Social Helper
description: post updates to social media
triggers:
  - post this
priority: 1
---
Use the social tool to post updates.
`)

	cat, err := LoadSkillCatalogue(dir)
	if err != nil {
		t.Fatalf("LoadSkillCatalogue: %v", err)
	}

	skill, ok := cat.Match("what's my wallet balance right now?")
	if !ok {
		t.Fatal("expected a matching skill")
	}
	if skill.ID != "wallet-helper" {
		t.Errorf("matched skill = %q, want wallet-helper", skill.ID)
	}
}

func TestSkillCatalogue_MatchReturnsFalseBelowThreshold(t *testing.T) {
	dir := t.TempDir()
	writeSkillFile(t, dir, "wallet.md", walletSkillDoc)

	cat, err := LoadSkillCatalogue(dir)
	if err != nil {
		t.Fatalf("LoadSkillCatalogue: %v", err)
	}

	if _, ok := cat.Match("tell me a joke about clouds"); ok {
		t.Error("expected no match for unrelated text")
	}
}

func TestSkillCatalogue_MatchOnNilCatalogue(t *testing.T) {
	var cat *SkillCatalogue
	if _, ok := cat.Match("anything"); ok {
		t.Error("expected a nil catalogue to never match")
	}
}

func TestSkillCatalogue_Catalogue(t *testing.T) {
	dir := t.TempDir()
	writeSkillFile(t, dir, "wallet.md", walletSkillDoc)

	cat, err := LoadSkillCatalogue(dir)
	if err != nil {
		t.Fatalf("LoadSkillCatalogue: %v", err)
	}

	summary := cat.Catalogue()
	if summary == "" {
		t.Fatal("expected a non-empty catalogue summary")
	}
}
