// Package prompt manages versioned system prompts for the decision oracle.
// Prompts are immutable once saved; a new Save of the same name appends the
// next version. Lint rejects obviously broken prompts before they can reach
// a provider.
package prompt

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// Prompt is a versioned prompt artifact.
type Prompt struct {
	Name    string
	Version int
	Body    string
	Meta    map[string]string
}

// Issue describes a lint finding.
type Issue struct {
	Rule    string
	Message string
}

// ErrLintFailed is returned by Save when lint checks fail.
var ErrLintFailed = errors.New("prompt failed lint checks")

// Lint runs basic checks on a prompt.
func Lint(p Prompt) []Issue {
	var issues []Issue
	if p.Name == "" {
		issues = append(issues, Issue{Rule: "name.required", Message: "name is required"})
	}
	if len(p.Body) == 0 {
		issues = append(issues, Issue{Rule: "body.required", Message: "body is empty"})
	}
	if containsSecretLike(p.Body) {
		issues = append(issues, Issue{Rule: "security.secrets", Message: "body appears to contain secrets-like content"})
	}
	return issues
}

func containsSecretLike(s string) bool {
	lower := strings.ToLower(s)
	for _, needle := range []string{"aws_secret_access_key", "begin private key", "sk-"} {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

// Store holds prompt versions in memory. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	data map[string][]Prompt
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{data: map[string][]Prompt{}}
}

// Save adds a new version. If name exists, the version increments by 1;
// otherwise it starts at 1. Lint failures return ErrLintFailed with the
// issues.
func (s *Store) Save(p Prompt) (Prompt, []Issue, error) {
	issues := Lint(p)
	if len(issues) > 0 {
		return Prompt{}, issues, ErrLintFailed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := s.data[p.Name]
	next := 1
	if len(versions) > 0 {
		next = versions[len(versions)-1].Version + 1
	}
	np := Prompt{Name: p.Name, Version: next, Body: p.Body, Meta: p.Meta}
	s.data[p.Name] = append(versions, np)
	return np, nil, nil
}

// Get retrieves a specific version; version<=0 returns the latest.
func (s *Store) Get(name string, version int) (Prompt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.data[name]
	if len(versions) == 0 {
		return Prompt{}, false
	}
	if version <= 0 {
		return versions[len(versions)-1], true
	}
	i := sort.Search(len(versions), func(i int) bool { return versions[i].Version >= version })
	if i < len(versions) && versions[i].Version == version {
		return versions[i], true
	}
	return Prompt{}, false
}

// List returns all versions for a name in ascending order.
func (s *Store) List(name string) []Prompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Prompt(nil), s.data[name]...)
}
