/*
Copyright 2025 The llm-d Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrMissingArtifact is returned when neither a single-file model nor a
// sharded index+dir could be located under the cache root.
var ErrMissingArtifact = errors.New("no model artifact found")

// ErrInvalidRepo is returned when an "org/name" repository identifier fails
// validation.
var ErrInvalidRepo = errors.New("invalid repository identifier")

// ErrPathEscape is returned when a resolved artifact path does not lie under
// the canonicalized cache root.
var ErrPathEscape = errors.New("resolved path escapes cache root")

// ResolvedPaths holds the on-disk artifact paths discovered for one
// repository under a hub-cache root.
type ResolvedPaths struct {
	TokenizerFile       string
	TokenizerConfigFile string
	ModelConfigFile     string
	ModelIndexFile      string
	ModelFile           string
	ModelDir            string
}

// repoCandidates lists the files the resolver probes for, in the order the
// spec enumerates them.
var repoCandidates = []string{
	"tokenizer.json",
	"tokenizer_config.json",
	"config.json",
	"model.safetensors.index.json",
	"model.safetensors",
}

// ValidateRepo checks that repo is of the form "org/name" where each segment
// is non-empty ASCII alphanumeric plus "-_.", and contains no "..".
func ValidateRepo(repo string) error {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 {
		return fmt.Errorf("%w: %q: expected \"org/name\"", ErrInvalidRepo, repo)
	}

	for _, part := range parts {
		if part == "" {
			return fmt.Errorf("%w: %q: empty segment", ErrInvalidRepo, repo)
		}
		if strings.Contains(part, "..") {
			return fmt.Errorf("%w: %q: contains \"..\"", ErrInvalidRepo, repo)
		}
		for _, r := range part {
			isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
			isAllowedPunct := r == '-' || r == '_' || r == '.'
			if !isAlnum && !isAllowedPunct {
				return fmt.Errorf("%w: %q: illegal character %q", ErrInvalidRepo, repo, r)
			}
		}
	}

	return nil
}

// ResolveHubCache resolves the on-disk layout for repo ("org/name") under
// cacheRoot. It validates the repository identifier, probes for the known
// artifact files, and canonicalizes + prefix-checks every path it returns
// against the canonicalized cache root before returning. An empty cacheRoot
// falls back to the LLM_HUB_CACHE environment variable.
func ResolveHubCache(repo, cacheRoot string) (*ResolvedPaths, error) {
	if err := ValidateRepo(repo); err != nil {
		return nil, err
	}
	if cacheRoot == "" {
		cacheRoot = os.Getenv("LLM_HUB_CACHE")
	}

	canonicalRoot, err := filepath.EvalSymlinks(cacheRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize cache root %s: %w", cacheRoot, err)
	}

	repoDir := filepath.Join(canonicalRoot, repo)

	found := make(map[string]string, len(repoCandidates))
	for _, name := range repoCandidates {
		candidate := filepath.Join(repoDir, name)

		resolved, statErr := resolveAndVerify(candidate, canonicalRoot)
		if statErr != nil {
			if errors.Is(statErr, ErrPathEscape) {
				return nil, statErr
			}
			continue
		}

		found[name] = resolved
	}

	resolved := &ResolvedPaths{
		TokenizerFile:       found["tokenizer.json"],
		TokenizerConfigFile: found["tokenizer_config.json"],
		ModelConfigFile:     found["config.json"],
		ModelIndexFile:      found["model.safetensors.index.json"],
		ModelFile:           found["model.safetensors"],
	}

	switch {
	case resolved.ModelFile != "":
		// single-file form takes precedence when both are present
	case resolved.ModelIndexFile != "":
		resolved.ModelDir = filepath.Dir(resolved.ModelIndexFile)
	default:
		return nil, fmt.Errorf("%w: repo %q under %q", ErrMissingArtifact, repo, cacheRoot)
	}

	return resolved, nil
}

// resolveAndVerify stats candidate, canonicalizes it if present, and verifies
// it lies under canonicalRoot. Both canonicalization and the prefix check are
// required; neither alone defends against a symlink escape.
func resolveAndVerify(candidate, canonicalRoot string) (string, error) {
	if _, err := os.Stat(candidate); err != nil {
		return "", err
	}

	canonical, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(canonicalRoot, canonical)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, candidate)
	}

	return canonical, nil
}
