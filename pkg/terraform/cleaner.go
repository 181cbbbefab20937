package terraform

import (
	"regexp"
	"strings"
)

// Clean normalizes oracle output into usable HCL. Repair oracles wrap
// their answers in markdown despite instructions; the rules, applied
// in order:
//
//  1. normalize CRLF line endings
//  2. strip fenced-code markers, preserving the enclosed text
//  3. drop leading list/bullet/numbering decoration
//  4. normalize typographic quotes to plain quotes
//  5. discard everything before the first HCL anchor token
//  6. trim surrounding whitespace
//
// When no anchor is found the trimmed text is returned unchanged,
// best-effort.
func Clean(raw string) string {
	if raw == "" {
		return ""
	}

	text := strings.ReplaceAll(raw, "\r\n", "\n")

	// Fence markers go, fenced content stays.
	text = strings.ReplaceAll(text, "```hcl", "")
	text = strings.ReplaceAll(text, "```terraform", "")
	text = strings.ReplaceAll(text, "```", "")

	text = bulletPattern.ReplaceAllString(text, "")
	text = numberingPattern.ReplaceAllString(text, "")

	text = quoteReplacer.Replace(text)

	if loc := anchorPattern.FindStringIndex(text); loc != nil {
		text = text[loc[0]:]
	}

	return strings.TrimSpace(text)
}

var (
	bulletPattern    = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	numberingPattern = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)

	// anchorPattern locates where real HCL starts: a terraform block,
	// a provider block, or a resource declaration.
	anchorPattern = regexp.MustCompile(`(?i)(terraform\s*\{)|(provider\s*"[A-Za-z0-9_]+")|(resource\s*"[A-Za-z0-9_]+")`)

	quoteReplacer = strings.NewReplacer(
		"‘", "'", // left single
		"’", "'", // right single
		"“", `"`, // left double
		"”", `"`, // right double
	)
)
