package usecase

import (
	"strings"
	"unicode"

	"nsfas-assistant/internal/domain"
)

const (
	detectLanguageInstruction = "Identify the language of this text. Just return the name of this language"
	translateInstruction      = "Translate this to English, but keep any NSFAS terms unchanged:"
	fallbackPersona           = "You are an NSFAS chatbot. Answer in exactly two sentences."
	maxFallbackSentences      = 2
)

// baseOptions mirrors the generation settings the assistant has always used.
var baseOptions = domain.GenerateOptions{
	Temperature:     1,
	TopP:            0.95,
	TopK:            40,
	MaxOutputTokens: 100,
}

func detectLanguageParts(text string) []string {
	return []string{detectLanguageInstruction, text}
}

func translateParts(text string) []string {
	return []string{translateInstruction, text}
}

// translateOptions leaves room for the whole message; the fallback budget is
// too small for long inputs.
func translateOptions() domain.GenerateOptions {
	opts := baseOptions
	opts.MaxOutputTokens = 512
	return opts
}

func fallbackParts(question string) []string {
	return []string{
		fallbackPersona,
		"Question: " + normalizePromptInput(question),
		"Answer: ",
	}
}

func normalizePromptInput(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}

// abbreviations end in a period without ending a sentence.
var abbreviations = map[string]bool{
	"dr.": true, "mr.": true, "mrs.": true, "ms.": true, "prof.": true,
	"st.": true, "no.": true, "vs.": true, "etc.": true, "approx.": true,
}

// limitSentences keeps at most n sentences of s. A sentence ends at '.', '!'
// or '?' followed by whitespace or the end of the text. A period closing a
// known abbreviation or a dotted one such as "e.g." is not an end.
func limitSentences(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || s == "" {
		return s
	}
	runes := []rune(s)
	count := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		last := i == len(runes)-1
		if !last && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if r == '.' && isAbbreviation(runes, i) {
			continue
		}
		count++
		if count == n {
			return string(runes[:i+1])
		}
	}
	return s
}

// isAbbreviation reports whether the word ending at runes[end] is an
// abbreviation.
func isAbbreviation(runes []rune, end int) bool {
	start := end
	for start > 0 && !unicode.IsSpace(runes[start-1]) {
		start--
	}
	word := strings.ToLower(strings.TrimLeft(string(runes[start:end+1]), "(\"'"))
	if abbreviations[word] {
		return true
	}
	return strings.Count(word, ".") > 1 && len([]rune(word)) <= 6
}
