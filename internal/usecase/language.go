package usecase

import (
	"context"
	"errors"
	"strings"

	"nsfas-assistant/internal/domain"
)

// WorkingLanguage is the language intents and keywords are written in.
const WorkingLanguage = "english"

// Completer is the external text-completion service.
type Completer interface {
	Generate(ctx context.Context, parts []string, opts domain.GenerateOptions) (string, error)
}

// LanguageBridge detects the language of a message and translates it to
// English. Each call is one round trip to the completion service.
type LanguageBridge struct {
	llm Completer
}

func NewLanguageBridge(llm Completer) (*LanguageBridge, error) {
	if llm == nil {
		return nil, errors.New("usecase: completer must not be nil")
	}
	return &LanguageBridge{llm: llm}, nil
}

// DetectLanguage returns the lower-cased language name reported by the model.
func (b *LanguageBridge) DetectLanguage(ctx context.Context, text string) (string, error) {
	raw, err := b.llm.Generate(ctx, detectLanguageParts(text), baseOptions)
	if err != nil {
		return "", externalError("detect_language", err)
	}
	lang := strings.ToLower(strings.TrimSpace(raw))
	if lang == "" {
		return "", newError(ErrorExternalService, "detect_language_empty", nil)
	}
	return lang, nil
}

// TranslateToEnglish translates text, keeping NSFAS terminology verbatim.
func (b *LanguageBridge) TranslateToEnglish(ctx context.Context, text string) (string, error) {
	raw, err := b.llm.Generate(ctx, translateParts(text), translateOptions())
	if err != nil {
		return "", externalError("translate", err)
	}
	out := strings.TrimSpace(raw)
	if out == "" {
		return "", newError(ErrorExternalService, "translate_empty", nil)
	}
	return out, nil
}

func isWorkingLanguage(lang string) bool {
	return strings.Trim(lang, " .") == WorkingLanguage
}
