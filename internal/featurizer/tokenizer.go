// Package featurizer provides the upstream collaborators of the classifier:
// a whitespace tokenizer and a count-vectors featurizer that attaches
// per-token and pooled sentence features to examples.
package featurizer

import (
	"unicode"

	"github.com/happyhackingspace/diet/nlu"
)

// Tokenize splits text on whitespace into tokens with byte offsets into the
// original string.
func Tokenize(text string) []nlu.Token {
	var out []nlu.Token
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				out = append(out, nlu.Token{Text: text[start:i], Start: start, End: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, nlu.Token{Text: text[start:], Start: start, End: len(text)})
	}
	return out
}
