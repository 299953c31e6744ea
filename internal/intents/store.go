// Package intents loads the fixed set of known NSFAS question topics and
// resolves user messages against them.
package intents

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"nsfas-assistant/internal/domain"
)

//go:embed schema.json
var schemaText string

var documentSchema = jsonschema.MustCompileString("intents.schema.json", schemaText)

// ConfigError reports a missing or malformed pattern source. It is fatal at
// startup.
type ConfigError struct {
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("intents: invalid pattern source %q: %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type document struct {
	Intents []domain.Intent `json:"intents" yaml:"intents"`
}

// Store is an immutable, ordered collection of intents.
type Store struct {
	intents []domain.Intent
	tags    []string
}

// New validates intents and returns a Store preserving their order.
func New(intents []domain.Intent) (*Store, error) {
	if len(intents) == 0 {
		return nil, errors.New("intents: at least one intent is required")
	}
	s := &Store{
		intents: make([]domain.Intent, 0, len(intents)),
		tags:    make([]string, 0, len(intents)),
	}
	for i, in := range intents {
		if err := validateIntent(in); err != nil {
			return nil, fmt.Errorf("intents[%d] (%q): %w", i, in.Tag, err)
		}
		s.intents = append(s.intents, cloneIntent(in))
		s.tags = append(s.tags, in.Tag)
	}
	return s, nil
}

// Load reads and validates the pattern source at path. Files ending in .yaml
// or .yml are decoded as YAML, anything else as JSON.
func Load(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, &ConfigError{Err: errors.New("path must not be empty")}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Source: path, Err: err}
	}
	return Parse(path, raw)
}

// Parse decodes raw using the format implied by name's extension.
func Parse(name string, raw []byte) (*Store, error) {
	unmarshal := json.Unmarshal
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	}

	var generic any
	if err := unmarshal(raw, &generic); err != nil {
		return nil, &ConfigError{Source: name, Err: fmt.Errorf("decode: %w", err)}
	}
	if err := documentSchema.Validate(generic); err != nil {
		return nil, &ConfigError{Source: name, Err: err}
	}

	var doc document
	if err := unmarshal(raw, &doc); err != nil {
		return nil, &ConfigError{Source: name, Err: fmt.Errorf("decode: %w", err)}
	}
	s, err := New(doc.Intents)
	if err != nil {
		return nil, &ConfigError{Source: name, Err: err}
	}
	return s, nil
}

var (
	cacheMu sync.Mutex
	cache   = map[string]*Store{}
)

// LoadOnce returns the Store for path, loading it on first use and reusing it
// for the rest of the process. Failed loads are not cached.
func LoadOnce(path string) (*Store, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if s, ok := cache[path]; ok {
		return s, nil
	}
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	cache[path] = s
	return s, nil
}

// Intents returns a copy of the intents in source order.
func (s *Store) Intents() []domain.Intent {
	out := make([]domain.Intent, len(s.intents))
	for i, in := range s.intents {
		out[i] = cloneIntent(in)
	}
	return out
}

// Len returns the number of intents.
func (s *Store) Len() int {
	return len(s.intents)
}

// Search ranks topic tags against query, best first. An empty query lists
// every tag in source order.
func (s *Store) Search(query string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return append([]string(nil), s.tags...)
	}
	matches := fuzzy.Find(query, s.tags)
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Str
	}
	return out
}

func validateIntent(in domain.Intent) error {
	if strings.TrimSpace(in.Tag) == "" {
		return errors.New("tag must not be empty")
	}
	if len(in.Patterns) == 0 {
		return errors.New("patterns must not be empty")
	}
	if len(in.Responses) == 0 {
		return errors.New("responses must not be empty")
	}
	for i, p := range in.Patterns {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("patterns[%d] must not be blank", i)
		}
	}
	for i, r := range in.Responses {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("responses[%d] must not be blank", i)
		}
	}
	return nil
}

func cloneIntent(in domain.Intent) domain.Intent {
	return domain.Intent{
		Tag:       in.Tag,
		Patterns:  append([]string(nil), in.Patterns...),
		Responses: append([]string(nil), in.Responses...),
	}
}
