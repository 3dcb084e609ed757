package api

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	minPromptLength = 10
	maxPromptLength = 2000
)

var (
	projectIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{8,}$`)

	// Prompts carrying script-injection patterns are rejected outright.
	harmfulRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<script`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)on\w+\s*=`),
		regexp.MustCompile(`(?i)eval\s*\(`),
		regexp.MustCompile(`(?i)document\.`),
		regexp.MustCompile(`(?i)window\.`),
	}
)

func validatePrompt(prompt string) error {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return fmt.Errorf("prompt is required")
	}
	if len(trimmed) < minPromptLength {
		return fmt.Errorf("prompt must be at least %d characters long", minPromptLength)
	}
	if len(trimmed) > maxPromptLength {
		return fmt.Errorf("prompt cannot exceed %d characters", maxPromptLength)
	}
	for _, re := range harmfulRes {
		if re.MatchString(trimmed) {
			return fmt.Errorf("prompt contains potentially harmful content")
		}
	}
	return nil
}

func validateProjectID(id string) error {
	if id == "" {
		return fmt.Errorf("project ID is required")
	}
	if !projectIDRe.MatchString(id) {
		return fmt.Errorf("invalid project ID format")
	}
	return nil
}

func validateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("file path is required")
	}
	if strings.Contains(path, "../") || strings.Contains(path, `..\`) || strings.HasPrefix(path, "/") {
		return fmt.Errorf("invalid file path")
	}
	return nil
}
