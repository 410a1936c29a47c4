package presenter

import (
	"fmt"
	"strings"

	"github.com/BaSui01/pptagent/internal/slides"
	"github.com/BaSui01/pptagent/llm/tokenizer"
)

// 上下文模式
const (
	// ModeFull 系统指令中包含全部幻灯片文本
	ModeFull = "full"
	// ModeOverview 系统指令只给出概要，每页讲解时附带上下文窗口
	ModeOverview = "overview"
)

// ThankYouMessage 全部讲完后的结束语
const ThankYouMessage = "Thank you for your attention! I'd be happy to answer questions or navigate to any slide you'd like to review."

const outputRules = "ROLE: You are presenting a slide deck to an audience.\n" +
	"GOAL: Present each slide's content clearly and engagingly.\n" +
	navigationRules +
	"STRICT LIMIT: Maximum 4 sentences per response.\n" +
	"TONE: Professional, clear, and engaging."

const navigationRules = "NAVIGATION: You can control slides using these tools:\n" +
	"- next_slide(): Move to the next slide\n" +
	"- previous_slide(): Move to the previous slide\n" +
	"- goto_slide(N): Jump to slide number N\n" +
	"Listen for user commands like 'next', 'previous', 'go to slide 3', etc.\n"

const languageRequirement = "# CRITICAL LANGUAGE REQUIREMENT\n" +
	"YOU MUST ALWAYS SPEAK IN ENGLISH ONLY. NEVER USE CHINESE, SPANISH, OR ANY OTHER LANGUAGE.\n" +
	"IF YOU DETECT YOURSELF SPEAKING IN ANOTHER LANGUAGE, IMMEDIATELY STOP AND SWITCH TO ENGLISH.\n\n"

const overviewRules = "# STRICT BEHAVIORAL RULES\n" +
	"1. LANGUAGE: English only - no exceptions\n" +
	"2. SCOPE: Only discuss content from the current slide provided\n" +
	"3. ACCURACY: Never make up information not in the slide\n" +
	"4. FOCUS: Never discuss topics outside this specific presentation\n" +
	"5. BREVITY: Keep responses to 3-4 sentences maximum\n" +
	"6. TONE: Professional, clear, and engaging\n\n" +
	"# NAVIGATION TOOLS\n" +
	"You can control slides using:\n" +
	"- next_slide(): Move to next slide\n" +
	"- previous_slide(): Move to previous slide\n" +
	"- goto_slide(N): Jump to slide N\n" +
	"Listen for commands like 'next', 'previous', 'go to slide 3'."

const overviewTask = "===== YOUR TASK =====\n" +
	"1. Present ONLY the content from the CURRENT SLIDE marked above\n" +
	"2. Speak ONLY in English - no other languages allowed\n" +
	"3. Cover the key points in 3-4 sentences\n" +
	"4. Do NOT add information not present in the slide\n" +
	"5. Do NOT discuss unrelated topics\n" +
	"6. Stay focused on THIS presentation"

// PresentationContext 全部幻灯片文本，每页一行
func PresentationContext(deck []slides.Slide) string {
	var b strings.Builder
	b.WriteString("HERE IS THE FULL PRESENTATION CONTENT YOU ARE PRESENTING:\n")
	for i, s := range deck {
		text := s.Text()
		if text == "" {
			text = "No text content."
		}
		fmt.Fprintf(&b, "- Slide %d: %s\n", slides.Number(s, i), text)
	}
	return b.String()
}

// BuildInstructions 生成会话级系统指令
func BuildInstructions(persona string, deck []slides.Slide, mode string) string {
	if mode == ModeOverview {
		total := len(deck)
		return languageRequirement +
			persona + "\n\n" +
			"# PRESENTATION CONTEXT\n" +
			fmt.Sprintf("You are presenting a %d-slide presentation. ", total) +
			"Context for each slide will be provided when needed. " +
			"Listen for navigation commands.\n\n" +
			overviewRules
	}
	return "# System instructions\n" +
		persona + "\n\n" +
		"# Context\n" +
		PresentationContext(deck) + "\n\n" +
		"#Output Rules\n" +
		outputRules
}

// ResolveMode 确定实际使用的上下文模式。
// full 模式的指令超出 budget 个 token 时退化为 overview。
func ResolveMode(mode, persona string, deck []slides.Slide, tok tokenizer.Tokenizer, budget int) (string, int) {
	if mode == ModeOverview {
		return ModeOverview, tokenizer.Count(tok, BuildInstructions(persona, deck, ModeOverview))
	}
	n, ok := tokenizer.Fits(tok, BuildInstructions(persona, deck, ModeFull), budget)
	if !ok {
		return ModeOverview, n
	}
	return ModeFull, n
}

// SlideInstruction 自动讲解第 idx 页时发送给模型的指令
func SlideInstruction(deck []slides.Slide, idx int, mode string, window int) string {
	s := deck[idx]
	if mode == ModeOverview {
		return slides.SlideContext(deck, idx, window) + "\n\n" + overviewTask
	}
	return fmt.Sprintf("Slide %d: %s\n\nPresent this slide's key points clearly in 3-4 sentences.",
		slides.Number(s, idx), s.Text())
}
