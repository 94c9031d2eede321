package models

import "strings"

// ContextualClues records the signals that led to a language guess. The
// backend uses them to refine its own detection.
type ContextualClues struct {
	HinglishPatterns        int      `json:"hinglishPatterns"`
	HasDevanagari           bool     `json:"hasDevanagari"`
	HasArabicScript         bool     `json:"hasArabicScript"`
	ConversationConsistency []string `json:"conversationConsistency,omitempty"`
}

// LanguageInfo is the language hint attached to outbound chat requests.
type LanguageInfo struct {
	Language        string           `json:"language"`
	Confidence      float64          `json:"confidence"`
	Script          string           `json:"script,omitempty"`
	ContextualClues *ContextualClues `json:"contextualClues,omitempty"`
}

var hinglishPatterns = []string{
	"tuu", "kasa", "kon", "kaya", "saktaa", "hoon", "hai", "hain", "hun",
	"kar", "koo", "maa", "yaar", "bhai", "dude", "yahan", "wahan", "kahan",
	"kya", "kaun", "kaise", "kyun", "kab", "aur", "main", "mera", "tera",
	"uska", "humara", "tumhara", "unka", "isme", "usme", "jisme",
}

// DetectLanguage guesses the language of a message using keyword and script
// heuristics, boosting confidence when the guess is consistent with recent
// user messages in the conversation.
func DetectLanguage(message string, recent []Message) LanguageInfo {
	if message == "" {
		return LanguageInfo{Language: "english", Confidence: 0.5}
	}

	text := strings.ToLower(message)
	language := "english"
	confidence := 0.5

	hinglishCount := 0
	for _, p := range hinglishPatterns {
		if strings.Contains(text, p) {
			hinglishCount++
		}
	}

	switch {
	case hinglishCount >= 2:
		language = "hinglish"
		confidence = min(0.95, 0.7+float64(hinglishCount)*0.05)
	case hasDevanagari(message):
		language = "hindi"
		confidence = 0.9
	case hasArabicScript(message):
		language = "urdu"
		confidence = 0.9
	default:
		englishWords := 0
		for _, w := range strings.Fields(text) {
			if len(w) > 2 && isASCIILetters(w) {
				englishWords++
			}
		}
		if englishWords > 3 {
			confidence = 0.8
		}
	}

	// Recent user messages that agree with the guess raise confidence.
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	var recentLanguages []string
	for _, m := range recent {
		if m.IsUser {
			recentLanguages = append(recentLanguages, detectSimpleLanguage(m.Content))
		}
	}
	consistent := 0
	for _, lang := range recentLanguages {
		if lang == language {
			consistent++
		}
	}
	if consistent >= 2 {
		confidence = min(0.95, confidence+0.1)
	}

	return LanguageInfo{
		Language:   language,
		Confidence: confidence,
		Script:     language,
		ContextualClues: &ContextualClues{
			HinglishPatterns:        hinglishCount,
			HasDevanagari:           hasDevanagari(message),
			HasArabicScript:         hasArabicScript(message),
			ConversationConsistency: recentLanguages,
		},
	}
}

func detectSimpleLanguage(text string) string {
	if text == "" {
		return "english"
	}
	if hasDevanagari(text) {
		return "hindi"
	}
	if hasArabicScript(text) {
		return "urdu"
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "hai") || strings.Contains(lower, "kar") || strings.Contains(lower, "kya") {
		return "hinglish"
	}
	return "english"
}

func hasDevanagari(s string) bool {
	for _, r := range s {
		if r >= 0x0900 && r <= 0x097F {
			return true
		}
	}
	return false
}

func hasArabicScript(s string) bool {
	for _, r := range s {
		switch {
		case r >= 0x0600 && r <= 0x06FF,
			r >= 0x0750 && r <= 0x077F,
			r >= 0x08A0 && r <= 0x08FF,
			r >= 0xFB50 && r <= 0xFDFF,
			r >= 0xFE70 && r <= 0xFEFF:
			return true
		}
	}
	return false
}

func isASCIILetters(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return s != ""
}
