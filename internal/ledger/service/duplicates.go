package service

import (
	"context"
	"fmt"
	"sort"

	"sanad/internal/ledger/models"
	id "sanad/pkg/domain"
	pstrings "sanad/pkg/platform/strings"
)

// MatchMode selects how cottage lists are compared for duplicate warnings.
type MatchMode string

const (
	// MatchSubstring flags certificates whose cottage list contains the whole
	// input, or the input's first token, as a substring (ASCII case-insensitive).
	// It can report false positives ("12" inside "123") and miss later tokens.
	MatchSubstring MatchMode = "substring"
	// MatchToken flags certificates sharing at least one exact, trimmed token.
	MatchToken MatchMode = "token"
)

// ParseMatchMode validates a configured mode name.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(s) {
	case MatchSubstring, MatchToken:
		return MatchMode(s), nil
	default:
		return "", fmt.Errorf("unknown duplicate match mode %q", s)
	}
}

// CheckDuplicates returns, ascending and without repeats, the sanad ids of
// earlier certificates that appear to reuse cottageNumbers. The result is
// advisory. An empty input has no duplicates.
func (s *Service) CheckDuplicates(ctx context.Context, cottageNumbers string) ([]id.SanadID, error) {
	if cottageNumbers == "" {
		return []id.SanadID{}, nil
	}

	var (
		needles []string
		match   func(stored string) bool
	)
	switch s.matchMode {
	case MatchToken:
		tokens := pstrings.CottageTokens(cottageNumbers)
		if len(tokens) == 0 {
			return []id.SanadID{}, nil
		}
		wanted := make(map[string]struct{}, len(tokens))
		for _, t := range tokens {
			wanted[t] = struct{}{}
		}
		needles = tokens
		match = func(stored string) bool {
			for _, t := range pstrings.CottageTokens(stored) {
				if _, ok := wanted[t]; ok {
					return true
				}
			}
			return false
		}
	default:
		first := pstrings.FirstCottageToken(cottageNumbers)
		needles = []string{cottageNumbers}
		if first != cottageNumbers {
			needles = append(needles, first)
		}
		match = func(stored string) bool {
			for _, n := range needles {
				if pstrings.ContainsASCIIFold(stored, n) {
					return true
				}
			}
			return false
		}
	}

	candidates, err := s.ledger.FindCottageCandidates(ctx, needles)
	if err != nil {
		return nil, translate(err, "failed to check cottage numbers")
	}
	return matchingIDs(candidates, match), nil
}

func matchingIDs(candidates []models.CottageRecord, match func(string) bool) []id.SanadID {
	seen := make(map[id.SanadID]struct{}, len(candidates))
	out := make([]id.SanadID, 0, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.SanadID]; dup || !match(c.CottageNumbers) {
			continue
		}
		seen[c.SanadID] = struct{}{}
		out = append(out, c.SanadID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
