package usecase

import (
	"context"
	"errors"
)

// FallbackResponder answers messages no intent matched, in at most two
// sentences.
type FallbackResponder struct {
	llm Completer
}

func NewFallbackResponder(llm Completer) (*FallbackResponder, error) {
	if llm == nil {
		return nil, errors.New("usecase: completer must not be nil")
	}
	return &FallbackResponder{llm: llm}, nil
}

func (f *FallbackResponder) Answer(ctx context.Context, question string) (string, error) {
	raw, err := f.llm.Generate(ctx, fallbackParts(question), baseOptions)
	if err != nil {
		return "", externalError("fallback", err)
	}
	answer := limitSentences(raw, maxFallbackSentences)
	if answer == "" {
		return "", newError(ErrorExternalService, "fallback_empty", nil)
	}
	return answer, nil
}
