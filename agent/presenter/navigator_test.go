package presenter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/pptagent/config"
	"github.com/BaSui01/pptagent/internal/slides"
	"github.com/BaSui01/pptagent/llm/tokenizer"
	"github.com/BaSui01/pptagent/llm/tools"
	"github.com/BaSui01/pptagent/types"
)

func recordingDisplay(views *[]View) Display {
	return DisplayFunc(func(_ context.Context, v View) error {
		*views = append(*views, v)
		return nil
	})
}

// ---------------------------------------------------------------------------
// Navigator
// ---------------------------------------------------------------------------

func TestNavigator_Boundaries(t *testing.T) {
	ctx := context.Background()
	var views []View
	nav := NewNavigator(testDeck(), recordingDisplay(&views), false, nil)

	assert.Equal(t, "Already on the first slide", nav.Previous(ctx))
	assert.Equal(t, "Now on slide 2 of 3. Agenda", nav.Next(ctx))
	assert.Equal(t, "Now on slide 3 of 3. Revenue grew 20%", nav.Next(ctx))
	assert.Equal(t, "Already on the last slide", nav.Next(ctx))
	assert.Equal(t, "Now on slide 2 of 3. Agenda", nav.Previous(ctx))
	assert.Equal(t, "Invalid slide number. Please choose between 1 and 3", nav.Goto(ctx, 0))
	assert.Equal(t, "Invalid slide number. Please choose between 1 and 3", nav.Goto(ctx, 4))
	assert.Equal(t, 1, nav.Index())
	assert.Equal(t, "Now on slide 1 of 3. Welcome to the quarterly review", nav.Goto(ctx, 1))

	require.Len(t, views, 4)
	assert.Equal(t, View{URL: "https://cdn/1.png", Number: 1, Total: 3}, views[3])
	assert.Equal(t, map[string]string{
		AttrSlideURL:    "https://cdn/1.png",
		AttrSlideNumber: "1",
		AttrTotalSlides: "3",
	}, views[3].Attributes())
}

func TestNavigator_CompactAndTruncatedReplies(t *testing.T) {
	deck := testDeck()
	deck[1].ExtractedText = strings.Repeat("é", 150)

	nav := NewNavigator(deck, nil, true, nil)
	assert.Equal(t, "Slide 2/3", nav.Next(context.Background()))

	nav = NewNavigator(deck, nil, false, nil)
	assert.Equal(t, "Now on slide 2 of 3. "+strings.Repeat("é", 100), nav.Next(context.Background()))
}

func TestNavigator_DisplayFailureStillMoves(t *testing.T) {
	nav := NewNavigator(testDeck(), DisplayFunc(func(context.Context, View) error {
		return errors.New("livekit down")
	}), false, nil)

	assert.Equal(t, "Now on slide 2 of 3. Agenda", nav.Next(context.Background()))
	assert.Equal(t, 1, nav.Index())
}

func TestNavigator_AdvanceFrom(t *testing.T) {
	nav := NewNavigator(testDeck(), nil, false, nil)
	assert.Equal(t, 1, nav.AdvanceFrom(0))
	// 用户已经翻到别处时保持用户位置
	nav.Goto(context.Background(), 3)
	assert.Equal(t, 2, nav.AdvanceFrom(1))
	assert.Equal(t, 3, nav.AdvanceFrom(2))
	assert.Equal(t, 3, nav.AdvanceFrom(3))

	_, idx, ok := nav.Current()
	assert.False(t, ok)
	assert.Equal(t, 3, idx)
	// 讲完后 previous 回到最后一页
	assert.Equal(t, "Now on slide 3 of 3. Revenue grew 20%", nav.Previous(context.Background()))
}

func TestNavigator_IndexStaysInRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(t, "slides")
		deck := make([]slides.Slide, n)
		for i := range deck {
			deck[i] = slides.Slide{SlideNumber: i + 1, ImageURL: fmt.Sprintf("u%d", i+1), ExtractedText: fmt.Sprintf("text %d", i+1)}
		}
		var published []View
		nav := NewNavigator(deck, recordingDisplay(&published), false, nil)
		ctx := context.Background()

		ops := rapid.SliceOfN(rapid.IntRange(0, 2), 1, 50).Draw(t, "ops")
		for _, op := range ops {
			before := nav.Index()
			var msg string
			switch op {
			case 0:
				msg = nav.Next(ctx)
			case 1:
				msg = nav.Previous(ctx)
			default:
				msg = nav.Goto(ctx, rapid.IntRange(-2, n+2).Draw(t, "target"))
			}
			idx := nav.Index()
			if idx < 0 || idx >= n {
				t.Fatalf("index %d out of range [0,%d)", idx, n)
			}
			if strings.HasPrefix(msg, "Now on slide") {
				want := fmt.Sprintf("Now on slide %d of %d. text %d", idx+1, n, idx+1)
				if msg != want {
					t.Fatalf("got %q, want %q", msg, want)
				}
				last := published[len(published)-1]
				if last.Number != idx+1 || last.URL != deck[idx].ImageURL {
					t.Fatalf("published %+v for index %d", last, idx)
				}
			} else if idx != before {
				t.Fatalf("index moved from %d to %d on %q", before, idx, msg)
			}
		}
	})
}

// ---------------------------------------------------------------------------
// 工具
// ---------------------------------------------------------------------------

func TestRegisterTools(t *testing.T) {
	var views []View
	nav := NewNavigator(testDeck(), recordingDisplay(&views), false, nil)
	reg := tools.NewDefaultRegistry(nil)
	require.NoError(t, RegisterTools(reg, nav))

	schemas := reg.List()
	require.Len(t, schemas, 3)
	names := []string{schemas[0].Name, schemas[1].Name, schemas[2].Name}
	assert.ElementsMatch(t, []string{ToolNextSlide, ToolPreviousSlide, ToolGotoSlide}, names)

	var gotoSchema types.ToolSchema
	for _, s := range schemas {
		if s.Name == ToolGotoSlide {
			gotoSchema = s
		}
	}
	assert.Equal(t, "Jump to a specific slide number when user says 'go to slide X' or 'show slide X'", gotoSchema.Description)
	var params map[string]any
	require.NoError(t, json.Unmarshal(gotoSchema.Parameters, &params))
	assert.Equal(t, []any{"slide_number"}, params["required"])

	exec := tools.NewDefaultExecutor(reg, nil)
	ctx := context.Background()

	res := exec.ExecuteOne(ctx, types.ToolCall{ID: "c1", Name: ToolGotoSlide, Arguments: json.RawMessage(`{"slide_number":3}`)})
	assert.Equal(t, "Now on slide 3 of 3. Revenue grew 20%", res.Output())

	res = exec.ExecuteOne(ctx, types.ToolCall{ID: "c2", Name: ToolPreviousSlide, Arguments: json.RawMessage(`{}`)})
	assert.Equal(t, "Now on slide 2 of 3. Agenda", res.Output())

	res = exec.ExecuteOne(ctx, types.ToolCall{ID: "c3", Name: ToolGotoSlide, Arguments: json.RawMessage(`{}`)})
	assert.True(t, res.IsError())

	assert.Len(t, views, 2)
}

// ---------------------------------------------------------------------------
// 指令
// ---------------------------------------------------------------------------

func TestBuildInstructions(t *testing.T) {
	deck := testDeck()
	deck[1].ExtractedText = "  "

	full := BuildInstructions("PERSONA", deck, ModeFull)
	assert.True(t, strings.HasPrefix(full, "# System instructions\nPERSONA\n\n# Context\n"))
	assert.Contains(t, full, "- Slide 1: Welcome to the quarterly review\n")
	assert.Contains(t, full, "- Slide 2: No text content.\n")
	assert.Contains(t, full, "#Output Rules\nROLE: You are presenting a slide deck to an audience.")
	assert.Contains(t, full, "- goto_slide(N): Jump to slide number N")
	assert.True(t, strings.HasSuffix(full, "TONE: Professional, clear, and engaging."))

	overview := BuildInstructions("PERSONA", deck, ModeOverview)
	assert.True(t, strings.HasPrefix(overview, "# CRITICAL LANGUAGE REQUIREMENT\n"))
	assert.Contains(t, overview, "You are presenting a 3-slide presentation.")
	assert.NotContains(t, overview, "Welcome to the quarterly review")
}

func TestResolveMode(t *testing.T) {
	deck := testDeck()
	est := tokenizer.NewEstimator(0)

	mode, n := ResolveMode(ModeFull, DefaultPersona, deck, est, 0)
	assert.Equal(t, ModeFull, mode)
	assert.Positive(t, n)

	mode, _ = ResolveMode(ModeFull, DefaultPersona, deck, est, n)
	assert.Equal(t, ModeFull, mode)

	mode, _ = ResolveMode(ModeFull, DefaultPersona, deck, est, n-1)
	assert.Equal(t, ModeOverview, mode)

	mode, _ = ResolveMode(ModeOverview, DefaultPersona, deck, est, 0)
	assert.Equal(t, ModeOverview, mode)
}

func TestSlideInstruction(t *testing.T) {
	deck := testDeck()
	deck[0].SlideNumber = 0

	assert.Equal(t, "Slide 1: Welcome to the quarterly review\n\nPresent this slide's key points clearly in 3-4 sentences.",
		SlideInstruction(deck, 0, ModeFull, 2))

	ov := SlideInstruction(deck, 1, ModeOverview, 1)
	assert.Contains(t, ov, "Previous Slide 1: Welcome to the quarterly review...")
	assert.Contains(t, ov, "===== CURRENT SLIDE 2 (PRESENT THIS) =====\nAgenda")
	assert.Contains(t, ov, "Next Slide 3: Revenue grew 20%...")
	assert.True(t, strings.HasSuffix(ov, "6. Stay focused on THIS presentation"))
}

func TestLoadPersona(t *testing.T) {
	p, err := LoadPersona(config.PresenterConfig{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPersona, p)

	p, err = LoadPersona(config.PresenterConfig{Persona: "  Be brief.  "})
	require.NoError(t, err)
	assert.Equal(t, "Be brief.", p)

	file := filepath.Join(t.TempDir(), "persona.txt")
	require.NoError(t, os.WriteFile(file, []byte("From file\n"), 0o644))
	p, err = LoadPersona(config.PresenterConfig{Persona: "inline", PersonaFile: file})
	require.NoError(t, err)
	assert.Equal(t, "From file", p)

	_, err = LoadPersona(config.PresenterConfig{PersonaFile: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}
