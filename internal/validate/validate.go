// Package validate scans generated source text for markers that indicate
// incomplete or placeholder code. The checks are deliberately textual: the
// orchestrator needs a fast, dependency-free signal to decide whether a
// repair pass is worth a model call, not a full parse.
package validate

import (
	"fmt"
	"regexp"
	"strings"
)

// Finding is one failed check with a human-readable message.
type Finding struct {
	Check   string `json:"check"`
	Message string `json:"message"`
}

// Check names, one per baseline check.
const (
	CheckTODO          = "todo"
	CheckFIXME         = "fixme"
	CheckSuppression   = "type-suppression"
	CheckPlaceholder   = "placeholder"
	CheckUninitialized = "uninitialized"
)

var (
	placeholderRe   = regexp.MustCompile(`(?i)//\s*(placeholder|stub|mock)`)
	uninitializedRe = regexp.MustCompile(`\w+\s*=\s*undefined`)
)

// Scan runs every check against code and returns the findings. Each check
// contributes at most one Finding; an empty result means the code passes.
func Scan(code string) []Finding {
	var findings []Finding

	if strings.Contains(code, "TODO") {
		findings = append(findings, Finding{
			Check:   CheckTODO,
			Message: "Code contains TODO comments",
		})
	}
	if strings.Contains(code, "FIXME") {
		findings = append(findings, Finding{
			Check:   CheckFIXME,
			Message: "Code contains FIXME comments",
		})
	}
	if strings.Contains(code, "// @ts-ignore") {
		findings = append(findings, Finding{
			Check:   CheckSuppression,
			Message: "Code contains type ignore directives",
		})
	}
	if placeholderRe.MatchString(code) {
		findings = append(findings, Finding{
			Check:   CheckPlaceholder,
			Message: "Code contains placeholder text",
		})
	}
	if matches := uninitializedRe.FindAllString(code, -1); len(matches) > 0 {
		findings = append(findings, Finding{
			Check:   CheckUninitialized,
			Message: fmt.Sprintf("Found uninitialized variables: %s", strings.Join(matches, ", ")),
		})
	}

	return findings
}

// Messages flattens findings into their messages, for embedding in a
// repair prompt.
func Messages(findings []Finding) []string {
	msgs := make([]string, len(findings))
	for i, f := range findings {
		msgs[i] = f.Message
	}
	return msgs
}
