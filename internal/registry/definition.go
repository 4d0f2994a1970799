// Package registry loads agent definitions from Markdown files with YAML
// frontmatter (spec.md §4.7) and keeps them current via a directory watch.
package registry

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is one agent's frontmatter plus its Markdown body, the
// system prompt the executor is given verbatim.
type Definition struct {
	Name             string   `yaml:"name"`
	Description      string   `yaml:"description"`
	Tools            []string `yaml:"tools,omitempty"`
	MaxIterations    int      `yaml:"max_iterations,omitempty"`
	ConversationMode bool     `yaml:"conversation_mode,omitempty"`

	// SystemPrompt is the Markdown body following the frontmatter block.
	SystemPrompt string `yaml:"-"`

	// SourcePath is the file the definition was loaded from, kept for
	// reload diagnostics and collision logging.
	SourcePath string `yaml:"-"`
}

// ParseDefinition parses one agent definition file's contents.
func ParseDefinition(data []byte) (Definition, error) {
	yamlBytes, body, err := extractFrontmatter(data)
	if err != nil {
		return Definition{}, err
	}
	if len(yamlBytes) == 0 {
		return Definition{}, fmt.Errorf("missing frontmatter block")
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(yamlBytes, &doc); err != nil {
		return Definition{}, fmt.Errorf("parse frontmatter yaml: %w", err)
	}
	// tools is either a YAML list or one comma-separated string ("tools: a, b").
	for i := 0; len(doc.Content) == 1 && i+1 < len(doc.Content[0].Content); i += 2 {
		if k, v := doc.Content[0].Content[i], doc.Content[0].Content[i+1]; k.Value == "tools" && v.Kind == yaml.ScalarNode {
			seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			for _, name := range strings.Split(v.Value, ",") {
				if name = strings.TrimSpace(name); name != "" {
					seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name})
				}
			}
			doc.Content[0].Content[i+1] = seq
		}
	}
	var def Definition
	if err := doc.Decode(&def); err != nil {
		return Definition{}, fmt.Errorf("parse frontmatter yaml: %w", err)
	}
	def.Name = strings.TrimSpace(def.Name)
	def.Description = strings.TrimSpace(def.Description)
	def.SystemPrompt = strings.TrimSpace(body)

	if def.Name == "" {
		return Definition{}, fmt.Errorf("missing agent name")
	}
	if def.MaxIterations <= 0 {
		def.MaxIterations = 10
	}
	return def, nil
}

// extractFrontmatter splits data into its leading `---`-delimited YAML
// block and the Markdown body that follows it.
func extractFrontmatter(data []byte) (yamlBytes []byte, body string, err error) {
	s := string(data)
	if s == "" {
		return nil, "", nil
	}

	firstLineEnd := strings.IndexByte(s, '\n')
	firstLine := s
	restStart := len(s)
	if firstLineEnd >= 0 {
		firstLine = s[:firstLineEnd]
		restStart = firstLineEnd + 1
	}
	firstLine = strings.TrimSpace(strings.TrimSuffix(firstLine, "\r"))
	if firstLine != "---" {
		return nil, "", nil
	}

	i := restStart
	for i <= len(s) {
		nextNL := strings.IndexByte(s[i:], '\n')
		var line string
		var next int
		if nextNL >= 0 {
			line = s[i : i+nextNL]
			next = i + nextNL + 1
		} else {
			line = s[i:]
			next = len(s)
		}
		if strings.TrimSpace(strings.TrimSuffix(line, "\r")) == "---" {
			return []byte(s[restStart:i]), s[next:], nil
		}
		if next == len(s) {
			break
		}
		i = next
	}

	return nil, "", fmt.Errorf("unclosed frontmatter: opening --- found but no closing ---")
}
