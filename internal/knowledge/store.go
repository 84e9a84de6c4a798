// Package knowledge is the read-only lookup of Roblox templates and
// conventions used to ground generated code.
package knowledge

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/PabloGalante/robovibe-agent/internal/domain"
)

//go:embed templates.yaml
var defaultTemplates []byte

type topic struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Text     string   `yaml:"text"`
}

type scaffoldDoc struct {
	GameType    string   `yaml:"game_type"`
	Description string   `yaml:"description"`
	Folders     []string `yaml:"folders"`
	Scripts     []struct {
		Path string `yaml:"path"`
		Type string `yaml:"type"`
	} `yaml:"scripts"`
}

type document struct {
	System    string        `yaml:"system"`
	Topics    []topic       `yaml:"topics"`
	Scaffolds []scaffoldDoc `yaml:"scaffolds"`
}

// Store implements domain.KnowledgeBase over a YAML document.
type Store struct {
	system    string
	topics    []topic
	byName    map[string]int
	scaffolds map[string]domain.Scaffold
}

// NewStore loads the embedded templates.
func NewStore() (*Store, error) {
	return Parse(defaultTemplates)
}

// Parse builds a Store from a YAML document.
func Parse(data []byte) (*Store, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse knowledge templates: %w", err)
	}

	s := &Store{
		system:    strings.TrimSpace(doc.System),
		topics:    doc.Topics,
		byName:    make(map[string]int, len(doc.Topics)),
		scaffolds: make(map[string]domain.Scaffold, len(doc.Scaffolds)),
	}
	for i, t := range doc.Topics {
		s.byName[strings.ToLower(t.Name)] = i
	}
	for _, sc := range doc.Scaffolds {
		out := domain.Scaffold{
			GameType:    sc.GameType,
			Description: sc.Description,
			Folders:     sc.Folders,
		}
		for _, script := range sc.Scripts {
			out.Scripts = append(out.Scripts, domain.ScaffoldScript{Path: script.Path, Type: script.Type})
		}
		s.scaffolds[strings.ToLower(sc.GameType)] = out
	}
	return s, nil
}

// Lookup returns the template text of a topic.
func (s *Store) Lookup(name string) (string, bool) {
	i, ok := s.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", false
	}
	return s.topics[i].Text, true
}

// Snippets returns up to max topic texts whose keywords appear in text,
// in document order.
func (s *Store) Snippets(text string, max int) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, t := range s.topics {
		if max > 0 && len(out) >= max {
			break
		}
		for _, kw := range t.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				out = append(out, fmt.Sprintf("Template %q:\n%s", t.Name, strings.TrimRight(t.Text, "\n")))
				break
			}
		}
	}
	return out
}

func (s *Store) SystemContext() string {
	return s.system
}

func (s *Store) Scaffold(gameType string) (domain.Scaffold, bool) {
	sc, ok := s.scaffolds[strings.ToLower(strings.TrimSpace(gameType))]
	return sc, ok
}

var _ domain.KnowledgeBase = (*Store)(nil)
