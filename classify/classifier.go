package classify

import (
	"strings"

	"github.com/robertmeta/ainews/model"
)

type matcher struct {
	name  string
	words []string
}

// Classifier derives topic and company tags from text. Matching is
// case-insensitive substring search, so "deepmind" inside "googledeepmind"
// counts. A Classifier is immutable and safe for concurrent use.
type Classifier struct {
	topics    []matcher
	companies []matcher
}

// New creates a Classifier that owns a copy of v. The vocabulary should be
// validated beforehand; blank keywords are ignored.
func New(v Vocabulary) *Classifier {
	c := &Classifier{}
	for _, t := range v.Topics {
		c.topics = append(c.topics, matcher{name: t.Name, words: normalize(t.Keywords)})
	}
	for _, co := range v.Companies {
		aliases := co.Aliases
		if len(aliases) == 0 {
			aliases = []string{co.Name}
		}
		c.companies = append(c.companies, matcher{name: co.Name, words: normalize(aliases)})
	}
	return c
}

// NewDefault creates a Classifier with the built-in vocabulary.
func NewDefault() *Classifier {
	return New(DefaultVocabulary())
}

// Topics returns the topics whose keywords occur in text, in vocabulary
// order. It returns exactly ["general"] when nothing matches.
func (c *Classifier) Topics(text string) []string {
	topics := match(c.topics, strings.ToLower(text))
	if len(topics) == 0 {
		return []string{GeneralTopic}
	}
	return topics
}

// Companies returns the canonical names of companies mentioned in text, in
// vocabulary order. The result is empty, never nil, when nothing matches.
func (c *Classifier) Companies(text string) []string {
	return match(c.companies, strings.ToLower(text))
}

// Tag classifies the combined title and content of a segment.
func (c *Classifier) Tag(title, content string) model.TagSet {
	text := title + " " + content
	return model.TagSet{
		Topics:    c.Topics(text),
		Companies: c.Companies(text),
	}
}

func match(matchers []matcher, lower string) []string {
	found := []string{}
	seen := make(map[string]bool)
	for _, m := range matchers {
		if seen[m.name] {
			continue
		}
		for _, w := range m.words {
			if strings.Contains(lower, w) {
				found = append(found, m.name)
				seen[m.name] = true
				break
			}
		}
	}
	return found
}

func normalize(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
