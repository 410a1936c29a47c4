package slides

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func deckOf(texts ...string) []Slide {
	deck := make([]Slide, len(texts))
	for i, t := range texts {
		deck[i] = Slide{ID: string(rune('a' + i)), SlideNumber: i + 1, ExtractedText: t, ImageURL: "img.png"}
	}
	return deck
}

func TestNumber(t *testing.T) {
	assert.Equal(t, 7, Number(Slide{SlideNumber: 7}, 0))
	assert.Equal(t, 3, Number(Slide{}, 2))
}

func TestSortDeck(t *testing.T) {
	deck := []Slide{{ID: "c", SlideNumber: 3}, {ID: "a", SlideNumber: 1}, {ID: "b", SlideNumber: 2}}
	SortDeck(deck)
	assert.Equal(t, "a", deck[0].ID)
	assert.Equal(t, "c", deck[2].ID)
}

func TestResolveImageURL(t *testing.T) {
	const base = "https://proj.supabase.co/"

	assert.Equal(t, "https://cdn.example.com/x.png",
		ResolveImageURL(base, "decks", "https://cdn.example.com/x.png"))
	assert.Equal(t, "HTTP://cdn.example.com/x.png",
		ResolveImageURL(base, "decks", "HTTP://cdn.example.com/x.png"))
	assert.Equal(t, "https://proj.supabase.co/storage/v1/object/public/decks/p1/1.png",
		ResolveImageURL(base, "decks", "/p1/1.png"))
	assert.Equal(t, "https://proj.supabase.co/storage/v1/object/public/slide-images/1.png",
		ResolveImageURL(base, "", "1.png"))
	assert.Empty(t, ResolveImageURL(base, "decks", "  "))
}

func TestImageResolver_ApplyWithoutBase(t *testing.T) {
	deck := []Slide{{ImageURL: "p/1.png"}}
	ImageResolver{}.Apply(deck)
	assert.Equal(t, "p/1.png", deck[0].ImageURL)
}

func TestContentStats(t *testing.T) {
	st := ContentStats(deckOf("intro", "  ", "", "end"))
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 2, st.WithText)
	assert.Equal(t, []int{2, 3}, st.MissingText)
}

func TestSlideContext(t *testing.T) {
	long := strings.Repeat("x", 150)
	deck := deckOf("first slide", long, "", "last")

	got := SlideContext(deck, 1, 1)
	assert.Equal(t,
		"Previous Slide 1: first slide...\n\n"+
			"===== CURRENT SLIDE 2 (PRESENT THIS) =====\n"+long+"\n\n"+
			"Next Slide 3: ...\n",
		got)

	got = SlideContext(deck, 2, 1)
	assert.Contains(t, got, "Previous Slide 2: "+strings.Repeat("x", 100)+"...\n\n")
	assert.Contains(t, got, "===== CURRENT SLIDE 3 (PRESENT THIS) =====\nNo content available\n\n")

	assert.Equal(t, "===== CURRENT SLIDE 1 (PRESENT THIS) =====\nfirst slide\n\n", SlideContext(deck, 0, 0))
	assert.Empty(t, SlideContext(deck, 9, 1))
}

func TestProperty_TruncateKeepsValidPrefix(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("truncate returns a valid rune prefix of at most n runes", prop.ForAll(
		func(s string, n int) bool {
			if !utf8.ValidString(s) {
				return true
			}
			out := Truncate(s, n)
			if !strings.HasPrefix(s, out) {
				return false
			}
			count := utf8.RuneCountInString(out)
			if count > n {
				return false
			}
			return count == min(n, utf8.RuneCountInString(s))
		},
		gen.AnyString(),
		gen.IntRange(0, 64),
	))

	properties.TestingRun(t)
}

func TestProperty_SlideContextAlwaysMarksCurrent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("context contains exactly one current marker and bounded neighbours", prop.ForAll(
		func(texts []string, idx, window int) bool {
			if len(texts) == 0 {
				return true
			}
			deck := deckOf(texts...)
			idx = idx % len(deck)
			out := SlideContext(deck, idx, window)

			if strings.Count(out, "(PRESENT THIS)") != 1 {
				return false
			}
			prev := strings.Count(out, "Previous Slide ")
			next := strings.Count(out, "Next Slide ")
			return prev == min(window, idx) && next == min(window, len(deck)-1-idx)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.IntRange(0, 50),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}
