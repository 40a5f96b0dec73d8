// Package redact removes sensitive information from strings before they are
// logged or returned in error responses. Error messages in this service
// routinely carry user-supplied image URLs, storage locations and driver
// errors, any of which may embed credentials or signed query parameters.
package redact

import "regexp"

// Constants for redaction placeholders
const (
	RedactionPlaceholder          = "[REDACTED]"
	RedactedPathPlaceholder       = "[REDACTED_PATH]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
)

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// rules are applied in order; earlier rules may consume text later rules
// would otherwise match.
var rules = []rule{
	// user:password@ in any URL, including database connection strings
	{
		regexp.MustCompile(`(?i)\b([a-z][a-z0-9+.-]*://)[^/\s@]+@`),
		"${1}" + RedactedCredentialPlaceholder + "@",
	},
	// signed URL query parameters (S3 and GCS presigned URLs)
	{
		regexp.MustCompile(
			`(?i)(x-amz-signature|x-amz-credential|x-amz-security-token|x-goog-signature|x-goog-credential|signature|sig|token)=[^&\s]+`,
		),
		"${1}=" + RedactionPlaceholder,
	},
	// stack trace fragments
	{
		regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`),
		"[STACK_TRACE_REDACTED]",
	},
	// credentials and keys
	{
		regexp.MustCompile(`(?i)(password|passwd|pwd)([=:\s]?['"]?)[^'"&\s]{3,}`),
		RedactedCredentialPlaceholder,
	},
	{
		regexp.MustCompile(`(?i)(api[_-]?key|secret|access[_-]?key)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`),
		RedactedKeyPlaceholder,
	},
	{
		regexp.MustCompile(`\b(AKIA|ASIA)[A-Z0-9]{16}\b`),
		RedactedKeyPlaceholder,
	},
	// absolute file system paths; URL paths are left alone
	{
		regexp.MustCompile(`(^|[\s'"(=])((?:/[\w.-]+){2,})`),
		"${1}" + RedactedPathPlaceholder,
	},
	{
		regexp.MustCompile(`[A-Za-z]:\\[^\\]+(\\[^\\\s]+)+`),
		RedactedPathPlaceholder,
	},
	// email addresses
	{
		regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		"[REDACTED_EMAIL]",
	},
	// SQL statements echoed by the driver
	{
		regexp.MustCompile(
			`(?i)(SELECT|INSERT|UPDATE|DELETE|CREATE|ALTER|DROP|GRANT)[\s\w,*()]+(?:FROM|INTO|SET|TABLE|DATABASE|SCHEMA|VIEW)(?:[\s\w,*()='"]+)?`,
		),
		"[REDACTED_SQL]",
	},
}

// String redacts sensitive information from the input string
func String(input string) string {
	if input == "" {
		return input
	}

	result := input
	for _, r := range rules {
		result = r.pattern.ReplaceAllString(result, r.replacement)
	}
	return result
}

// Error redacts sensitive information from an error's Error() output
func Error(err error) string {
	if err == nil {
		return ""
	}

	return String(err.Error())
}
