// Package classify tags newsletter segments with topics and companies by
// keyword matching against a fixed vocabulary.
package classify

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// GeneralTopic is assigned when no topic keyword matches.
const GeneralTopic = "general"

// Vocabulary validation errors.
var (
	ErrEmptyRuleName     = errors.New("rule name is required")
	ErrDuplicateRuleName = errors.New("duplicate rule name")
	ErrNoKeywords        = errors.New("topic needs at least one keyword")
	ErrEmptyKeyword      = errors.New("keywords and aliases must not be blank")
)

// TopicRule maps a topic to the substrings that indicate it.
type TopicRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// CompanyRule maps a canonical company name to the aliases that mention it.
// A rule without aliases matches its own name.
type CompanyRule struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// Vocabulary is the ordered keyword configuration used by a Classifier.
// Rule order is the order of tags in the output.
type Vocabulary struct {
	Topics    []TopicRule   `yaml:"topics"`
	Companies []CompanyRule `yaml:"companies"`
}

// DefaultVocabulary returns the built-in topic and company tables.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Topics: []TopicRule{
			{Name: "hardware", Keywords: []string{"nvidia", "gpu", "chip"}},
			{Name: "llms", Keywords: []string{"openai", "gpt", "chatgpt", "anthropic", "claude", "google", "gemini", "deepmind"}},
			{Name: "regulation", Keywords: []string{"china", "regulation", "policy"}},
			{Name: "startups", Keywords: []string{"startup", "funding", "raise", "valuation"}},
			{Name: "big_tech", Keywords: []string{"meta", "microsoft", "apple"}},
			{Name: "tools", Keywords: []string{"agent", "tool"}},
			{Name: "robotics", Keywords: []string{"robot"}},
		},
		Companies: []CompanyRule{
			{Name: "OpenAI", Aliases: []string{"openai", "open ai", "chatgpt"}},
			{Name: "Anthropic", Aliases: []string{"anthropic"}},
			{Name: "Google", Aliases: []string{"google", "deepmind", "gemini"}},
			{Name: "Microsoft", Aliases: []string{"microsoft", "copilot"}},
			{Name: "Meta", Aliases: []string{"meta", "llama"}},
			{Name: "Nvidia", Aliases: []string{"nvidia", "jensen"}},
			{Name: "Apple", Aliases: []string{"apple"}},
			{Name: "Amazon", Aliases: []string{"amazon", "aws", "alexa"}},
			{Name: "ByteDance", Aliases: []string{"bytedance", "tiktok"}},
			{Name: "Alibaba", Aliases: []string{"alibaba", "qwen"}},
			{Name: "Tencent", Aliases: []string{"tencent"}},
			{Name: "Baidu", Aliases: []string{"baidu"}},
			{Name: "Moonshot AI", Aliases: []string{"moonshot", "kimi"}},
			{Name: "Mistral", Aliases: []string{"mistral"}},
			{Name: "Cohere", Aliases: []string{"cohere"}},
			{Name: "Stability AI", Aliases: []string{"stability", "stable diffusion"}},
			{Name: "Midjourney", Aliases: []string{"midjourney"}},
			{Name: "xAI", Aliases: []string{"xai", "grok"}},
			{Name: "Perplexity", Aliases: []string{"perplexity"}},
			{Name: "Runway", Aliases: []string{"runway"}},
			{Name: "Character.AI", Aliases: []string{"character.ai", "character ai"}},
			{Name: "Inflection", Aliases: []string{"inflection"}},
			{Name: "CoreWeave", Aliases: []string{"coreweave"}},
			{Name: "Synthesia", Aliases: []string{"synthesia"}},
		},
	}
}

// LoadVocabulary reads a vocabulary from a YAML file.
func LoadVocabulary(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("failed to read vocabulary file: %w", err)
	}
	return ParseVocabulary(data)
}

// ParseVocabulary decodes and validates a YAML vocabulary.
func ParseVocabulary(data []byte) (Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Vocabulary{}, fmt.Errorf("failed to parse vocabulary: %w", err)
	}
	if err := v.Validate(); err != nil {
		return Vocabulary{}, fmt.Errorf("invalid vocabulary: %w", err)
	}
	return v, nil
}

// Validate checks rule names and keywords.
func (v Vocabulary) Validate() error {
	seen := make(map[string]bool)
	for _, t := range v.Topics {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("topic: %w", ErrEmptyRuleName)
		}
		if seen[t.Name] {
			return fmt.Errorf("topic %q: %w", t.Name, ErrDuplicateRuleName)
		}
		seen[t.Name] = true
		if len(t.Keywords) == 0 {
			return fmt.Errorf("topic %q: %w", t.Name, ErrNoKeywords)
		}
		if err := checkBlank(t.Keywords); err != nil {
			return fmt.Errorf("topic %q: %w", t.Name, err)
		}
	}

	seen = make(map[string]bool)
	for _, c := range v.Companies {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("company: %w", ErrEmptyRuleName)
		}
		if seen[c.Name] {
			return fmt.Errorf("company %q: %w", c.Name, ErrDuplicateRuleName)
		}
		seen[c.Name] = true
		if err := checkBlank(c.Aliases); err != nil {
			return fmt.Errorf("company %q: %w", c.Name, err)
		}
	}
	return nil
}

func checkBlank(words []string) error {
	for _, w := range words {
		if strings.TrimSpace(w) == "" {
			return ErrEmptyKeyword
		}
	}
	return nil
}
