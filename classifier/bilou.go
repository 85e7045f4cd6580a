package classifier

import (
	"strings"

	"github.com/happyhackingspace/diet/nlu"
)

// outsideTag marks tokens that belong to no entity. It always occupies id 0
// in the tag vocabulary.
const outsideTag = "O"

// entityKey encodes an entity's type plus its optional role and group into
// one tag string, so composite entities survive the round trip through the
// tag vocabulary.
func entityKey(e nlu.Entity) string {
	key := e.Type
	if e.Role != "" {
		key += "@" + e.Role
	}
	if e.Group != "" {
		key += "#" + e.Group
	}
	return key
}

// splitEntityKey is the inverse of entityKey.
func splitEntityKey(key string) (typ, role, group string) {
	typ = key
	if i := strings.IndexByte(typ, '#'); i >= 0 {
		typ, group = typ[:i], typ[i+1:]
	}
	if i := strings.IndexByte(typ, '@'); i >= 0 {
		typ, role = typ[:i], typ[i+1:]
	}
	return typ, role, group
}

// tokenTags assigns an entity tag to every token. A token belongs to an
// entity when its character span lies inside the annotated span. With bilou
// enabled the entity key is prefixed with the token's position in the span:
// U- for a single-token entity, otherwise B-, I-, L-.
func tokenTags(tokens []nlu.Token, entities []nlu.Entity, bilou bool) []string {
	tags := make([]string, len(tokens))
	for i := range tags {
		tags[i] = outsideTag
	}
	for _, e := range entities {
		first, last := -1, -1
		for i, tok := range tokens {
			if tok.Start >= e.Start && tok.End <= e.End {
				if first < 0 {
					first = i
				}
				last = i
			}
		}
		if first < 0 {
			continue
		}
		key := entityKey(e)
		for i := first; i <= last; i++ {
			if !bilou {
				tags[i] = key
				continue
			}
			switch {
			case first == last:
				tags[i] = "U-" + key
			case i == first:
				tags[i] = "B-" + key
			case i == last:
				tags[i] = "L-" + key
			default:
				tags[i] = "I-" + key
			}
		}
	}
	return tags
}

// bilouType strips a positional prefix from a tag, returning the bare entity
// type and whether the tag starts a new span.
func bilouType(tag string) (string, bool) {
	if len(tag) > 2 && tag[1] == '-' {
		switch tag[0] {
		case 'B', 'U':
			return tag[2:], true
		case 'I', 'L':
			return tag[2:], false
		}
	}
	return tag, false
}

// entitiesFromTags converts a decoded tag sequence back into character-level
// entity spans. Consecutive tokens with the same entity type merge into one
// span unless a B- or U- tag starts a new one; span confidence is the mean
// of the per-token tag confidences.
func entitiesFromTags(text string, tokens []nlu.Token, tags []string, confidences []float64) []EntityPrediction {
	var out []EntityPrediction
	var cur *EntityPrediction
	var confSum float64
	var confN int

	flush := func() {
		if cur == nil {
			return
		}
		if confN > 0 {
			cur.Confidence = confSum / float64(confN)
		}
		cur.Value = text[cur.Start:cur.End]
		cur.Entity, cur.Role, cur.Group = splitEntityKey(cur.Entity)
		out = append(out, *cur)
		cur, confSum, confN = nil, 0, 0
	}

	for i, tag := range tags {
		typ, starts := bilouType(tag)
		if typ == outsideTag || typ == "" {
			flush()
			continue
		}
		if cur != nil && cur.Entity == typ && !starts {
			cur.End = tokens[i].End
		} else {
			flush()
			cur = &EntityPrediction{Start: tokens[i].Start, End: tokens[i].End, Entity: typ}
		}
		if confidences != nil {
			confSum += confidences[i]
			confN++
		}
	}
	flush()
	return out
}

// tagVocabulary builds the entity tag vocabulary from training examples,
// with the outside tag at id 0 and the remaining tags in example order.
func tagVocabulary(examples []*nlu.Example, bilou bool) *nlu.Vocabulary {
	v := nlu.NewVocabulary()
	v.Add(outsideTag)
	for _, e := range examples {
		if !e.HasAnnotatedEntities() {
			continue
		}
		for _, tag := range tokenTags(e.Tokens, e.Entities, bilou) {
			v.Add(tag)
		}
	}
	return v
}
