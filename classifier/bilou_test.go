package classifier

import (
	"reflect"
	"strings"
	"testing"

	"github.com/happyhackingspace/diet/nlu"
)

// hasPrefix reports whether the tag carries any BILOU positional prefix.
func hasPrefix(tag string) bool {
	return strings.HasPrefix(tag, "B-") || strings.HasPrefix(tag, "I-") ||
		strings.HasPrefix(tag, "L-") || strings.HasPrefix(tag, "U-")
}

func tokensFor(text string) []nlu.Token {
	var out []nlu.Token
	start := -1
	for i, r := range text {
		if r == ' ' {
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

func TestTokenTagsBILOU(t *testing.T) {
	text := "fly to new york city today"
	tokens := tokensFor(text)
	entities := []nlu.Entity{
		{Start: 7, End: 20, Value: "new york city", Type: "city"},
	}

	got := tokenTags(tokens, entities, true)
	want := []string{"O", "O", "B-city", "I-city", "L-city", "O"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tags = %v, want %v", got, want)
	}
	for _, tag := range got {
		if tag != outsideTag && !hasPrefix(tag) {
			t.Errorf("tag %q has no positional prefix", tag)
		}
	}
}

func TestTokenTagsUnitEntity(t *testing.T) {
	text := "fly to paris"
	tokens := tokensFor(text)
	entities := []nlu.Entity{{Start: 7, End: 12, Value: "paris", Type: "city"}}

	got := tokenTags(tokens, entities, true)
	want := []string{"O", "O", "U-city"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tags = %v, want %v", got, want)
	}
}

func TestTokenTagsPlain(t *testing.T) {
	text := "fly to new york"
	tokens := tokensFor(text)
	entities := []nlu.Entity{{Start: 7, End: 15, Value: "new york", Type: "city"}}

	got := tokenTags(tokens, entities, false)
	want := []string{"O", "O", "city", "city"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tags = %v, want %v", got, want)
	}
}

func TestEntitiesFromTagsRoundTrip(t *testing.T) {
	text := "fly to new york city today"
	tokens := tokensFor(text)
	tags := []string{"O", "O", "B-city", "I-city", "L-city", "O"}
	conf := []float64{0.9, 0.9, 0.8, 0.6, 0.7, 0.9}

	got := entitiesFromTags(text, tokens, tags, conf)
	if len(got) != 1 {
		t.Fatalf("entities = %v, want one", got)
	}
	e := got[0]
	if e.Entity != "city" || e.Value != "new york city" || e.Start != 7 || e.End != 20 {
		t.Errorf("entity = %+v", e)
	}
	wantConf := (0.8 + 0.6 + 0.7) / 3
	if diff := e.Confidence - wantConf; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("confidence = %g, want %g", e.Confidence, wantConf)
	}
}

func TestEntitiesFromTagsSplitsOnBeginTag(t *testing.T) {
	text := "paris london"
	tokens := tokensFor(text)
	// two adjacent single-token entities of the same type must not merge
	tags := []string{"U-city", "U-city"}

	got := entitiesFromTags(text, tokens, tags, nil)
	if len(got) != 2 {
		t.Fatalf("entities = %v, want two", got)
	}
	if got[0].Value != "paris" || got[1].Value != "london" {
		t.Errorf("values = %q, %q", got[0].Value, got[1].Value)
	}
}

func TestEntitiesFromTagsPlainMerges(t *testing.T) {
	text := "new york here"
	tokens := tokensFor(text)
	tags := []string{"city", "city", "O"}

	got := entitiesFromTags(text, tokens, tags, nil)
	if len(got) != 1 || got[0].Value != "new york" {
		t.Errorf("entities = %v, want one spanning new york", got)
	}
}

func TestCompositeEntityRoundTrip(t *testing.T) {
	text := "from paris to london"
	tokens := tokensFor(text)
	entities := []nlu.Entity{
		{Start: 5, End: 10, Value: "paris", Type: "city", Role: "origin"},
		{Start: 14, End: 20, Value: "london", Type: "city", Role: "destination", Group: "trip1"},
	}

	tags := tokenTags(tokens, entities, true)
	got := entitiesFromTags(text, tokens, tags, nil)
	if len(got) != 2 {
		t.Fatalf("entities = %v, want two", got)
	}
	if got[0].Entity != "city" || got[0].Role != "origin" || got[0].Group != "" {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Entity != "city" || got[1].Role != "destination" || got[1].Group != "trip1" {
		t.Errorf("second = %+v", got[1])
	}
}

func TestTagVocabularyOutsideFirst(t *testing.T) {
	e := &nlu.Example{
		Text:     "fly to paris",
		Tokens:   tokensFor("fly to paris"),
		Entities: []nlu.Entity{{Start: 7, End: 12, Value: "paris", Type: "city"}},
	}
	v := tagVocabulary([]*nlu.Example{e}, true)
	if v.ID(outsideTag) != 0 {
		t.Errorf("outside tag id = %d, want 0", v.ID(outsideTag))
	}
	if v.ID("U-city") < 0 {
		t.Errorf("U-city missing from vocabulary %v", v.Labels())
	}
}
