package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// tokenPayload is the JSON shape stored in SSM for an API token.
type tokenPayload struct {
	Token string `json:"token"`
}

// StaticToken is an API token supplied directly, e.g. from the environment.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	tok := strings.TrimSpace(string(s))
	if tok == "" {
		return "", errors.New("paramstore: API token is empty")
	}
	return tok, nil
}

// TokenSource reads an API token stored as {"token":"..."} in a parameter.
// The parameter is fetched on first use and cached for the process lifetime.
type TokenSource struct {
	getter Getter
	name   string

	once  sync.Once
	token string
	err   error
}

func NewTokenSource(getter Getter, name string) (*TokenSource, error) {
	if getter == nil {
		return nil, errors.New("paramstore: getter must not be nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("paramstore: token parameter name is empty")
	}
	return &TokenSource{getter: getter, name: name}, nil
}

func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.once.Do(func() {
		s.token, s.err = fetchToken(ctx, s.getter, s.name)
	})
	return s.token, s.err
}

func fetchToken(ctx context.Context, getter Getter, name string) (string, error) {
	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("paramstore: fetch token: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("paramstore: unmarshal token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", errors.New("paramstore: API token is empty")
	}
	return tp.Token, nil
}
