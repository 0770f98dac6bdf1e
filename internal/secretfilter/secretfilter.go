// Package secretfilter redacts credentials from text before it reaches the
// store, so that secrets never land in the database or in logs.
package secretfilter

import "regexp"

const redactedSuffix = "***REDACTED***"

// pattern pairs a secret class with the regex that finds it. Each regex has
// exactly one capturing group around the secret value itself, so a prefix
// label (e.g. "api_key:") is never redacted, only the value after it.
// Patterns are ordered most-specific first so overlapping matches prefer
// the specific class over the generic_kv_secret catch-all.
type pattern struct {
	name string
	re   *regexp.Regexp
}

var patterns = []pattern{
	{"aws_access_key", regexp.MustCompile(`(AKIA[0-9A-Z]{16})`)},
	{"aws_secret_key", regexp.MustCompile(`(?i)aws_secret_access_key["']?\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})`)},
	{"github_token", regexp.MustCompile(`(gh[pousr]_[A-Za-z0-9]{36,})`)},
	{"slack_token", regexp.MustCompile(`(xox[abpr]-[A-Za-z0-9-]{10,})`)},
	{"openai_key", regexp.MustCompile(`(sk-[A-Za-z0-9]{20,})`)},
	{"bearer_token", regexp.MustCompile(`(?i)bearer\s+([A-Za-z0-9._-]{10,})`)},
	{"private_key_block", regexp.MustCompile(`(-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----)`)},
	{"jwt", regexp.MustCompile(`(eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,})`)},
	{"generic_kv_secret", regexp.MustCompile(`(?i)(?:api[_-]?key|secret|password|token)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-./+=]{8,})`)},
}

// Redact replaces recognized secrets in text, preserving the first 4
// characters of each match followed by ***REDACTED***. Text
// without a recognized secret is returned unchanged.
func Redact(text string) string {
	if text == "" {
		return text
	}
	out := text
	for _, p := range patterns {
		out = redactPattern(out, p.re)
	}
	return out
}

func redactPattern(text string, re *regexp.Regexp) string {
	matches := re.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		return text
	}
	var out []byte
	last := 0
	for _, m := range matches {
		groupStart, groupEnd := m[2], m[3]
		out = append(out, text[last:groupStart]...)
		out = append(out, redactValue(text[groupStart:groupEnd])...)
		last = groupEnd
	}
	out = append(out, text[last:]...)
	return string(out)
}

func redactValue(secret string) string {
	if len(secret) <= 4 {
		return redactedSuffix
	}
	return secret[:4] + redactedSuffix
}
