package pipeline

import (
	_ "embed"
	"strings"
	"sync"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Bounds on what is worth sending to the model. Below the floor there is
// no extractable signal; above the ceiling the message is unlikely to be
// single-topic feedback and the call is too expensive.
const (
	minPrefilterChars = 10
	maxPrefilterChars = 10000
)

//go:embed keywords.yaml
var keywordsYAML []byte

var (
	keywordsOnce sync.Once
	keywordList  []string
)

func loadKeywords() []string {
	keywordsOnce.Do(func() {
		var byCategory map[string][]string
		if err := yaml.Unmarshal(keywordsYAML, &byCategory); err != nil {
			// Embedded file is compiled in; a parse failure is a build
			// defect, not a runtime condition.
			panic("pipeline: invalid embedded keywords.yaml: " + err.Error())
		}
		seen := make(map[string]struct{})
		for _, terms := range byCategory {
			for _, t := range terms {
				t = strings.ToLower(strings.TrimSpace(t))
				if t == "" {
					continue
				}
				if _, ok := seen[t]; ok {
					continue
				}
				seen[t] = struct{}{}
				keywordList = append(keywordList, t)
			}
		}
	})
	return keywordList
}

// ShouldProcess is the cheap heuristic gate in front of model inference.
// Deterministic, no side effects. False negatives (missed feedback) are
// acceptable; a false positive costs one wasted extraction call.
func ShouldProcess(text string) bool {
	trimmed := strings.TrimSpace(text)
	if n := utf8.RuneCountInString(trimmed); n < minPrefilterChars || n > maxPrefilterChars {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, term := range loadKeywords() {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
