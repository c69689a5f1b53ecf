package engine

import (
	"regexp"
	"strings"
)

// Fast-allow reasons recorded as evidence on the verdict.
const (
	ReasonSafePhrase    = "safe_pattern"
	ReasonNormalRequest = "normal_http_request"
)

// safePhrases are exact full-string matches on the trimmed, lowered input.
// Deliberately narrow: these are health probes and smoke tests, nothing else.
var safePhrases = []*regexp.Regexp{
	regexp.MustCompile(`^hello(\s+world)?$`),
	regexp.MustCompile(`^hi$`),
	regexp.MustCompile(`^test$`),
	regexp.MustCompile(`^ping$`),
}

// normalRequestLine matches the first line of typical benign HTTP traffic:
// clean GETs, static assets, RESTful API calls and health endpoints.
var normalRequestLine = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(GET|HEAD|OPTIONS)\s+/[a-zA-Z0-9/_\-\.~%+]*(\?[a-zA-Z0-9=&_\-\.~%+,\[\]@:!$'()*;]*)?(\s+HTTP/[12]\.[01])?`),
	regexp.MustCompile(`(?i)^(GET|HEAD)\s+/[a-zA-Z0-9/_\-\.]+\.(html?|css|js|jsx|ts|tsx|json|xml|png|jpe?g|gif|svg|ico|woff2?|ttf|eot|pdf|txt|csv|map)\b`),
	regexp.MustCompile(`(?i)^(GET|POST|PUT|PATCH|DELETE)\s+/api/v?[0-9]*/[a-zA-Z0-9/_\-]+(\?[a-zA-Z0-9=&_\-\.%+]*)?(\s+HTTP/[12]\.[01])?`),
	regexp.MustCompile(`(?i)^(GET|HEAD)\s+/(health|healthz|ping|ready|readyz|live|livez|metrics|status|favicon\.ico)(\?.*)?(\s+HTTP/[12]\.[01])?`),
}

// suspiciousQuick vetoes the normal-request shortcut. A request line can look
// clean while the query string or body carries a payload, so a match on any
// of these anywhere in the raw text sends the request to full scoring.
var suspiciousQuick = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<\s*script`),
	regexp.MustCompile(`(?is)javascript\s*:`),
	regexp.MustCompile(`(?is)\bunion\s+select\b`),
	regexp.MustCompile(`(?is)\bselect\s+.*\bfrom\b`),
	regexp.MustCompile(`(?is)(\.\./){2,}`),
	regexp.MustCompile(`(?is)%2e%2e[/%5c]`),
	regexp.MustCompile(`(?is)(;|\|)\s*(bash|sh|cmd|powershell|nc\b|wget|curl)\b`),
	regexp.MustCompile(`(?is)\$\{[^}]+\}`),
	regexp.MustCompile(`(?is)\{\{.*\}\}`),
	regexp.MustCompile(`(?is)<!entity`),
	regexp.MustCompile(`(?is)file://`),
	regexp.MustCompile(`(?is)169\.254\.169\.254`),
	regexp.MustCompile(`(?is)%0[dD]%0[aA]|%0[aA]%0[dD]|%0[dD]|%0[aA]`),
	regexp.MustCompile(`(?is)(?:=|%3[dD])[^&\s]{0,50}[\r\n]`),
	regexp.MustCompile(`(?is)(?:\?|&)\w+=(?:[^&]*\+)?\b(?:ping|nslookup|dig|tracert|traceroute|wget|curl|bash|sh|cmd)\b`),
	regexp.MustCompile(`(?is)__proto__`),
	regexp.MustCompile(`(?is)rO0[A-Za-z0-9+/]{10,}`),
	regexp.MustCompile(`(?is)(?:O|a):\d+:['"]`),
	regexp.MustCompile(`(?is)(?:=|%3[dD])[^&\s]*(?:set-cookie|location|content-type)\s*:`),
	regexp.MustCompile(`(?is)(?:\?|&)(?:ntc|cc|card|cardnum|pan)\s*=\s*\d{13,19}\b`),
	regexp.MustCompile(`(?is)\b(?:4[0-9]{12}(?:[0-9]{3})?|5[1-5][0-9]{14}|3[47][0-9]{13}|6(?:011|5[0-9]{2})[0-9]{12})\b`),
	regexp.MustCompile(`(?is)(?:GET|HEAD)[^\n]*\?[^\n]*(?:password|passwd|pwd|pass|secret)\s*=\s*[^&\s]{3,}`),
}

// IsSafePhrase reports whether the whole input is one of the exact-match
// benign phrases.
func IsSafePhrase(raw string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	for _, p := range safePhrases {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// IsNormalRequest reports whether the input looks like routine HTTP traffic:
// the first line must match a known-benign request shape AND no suspicious
// substring may appear anywhere in the input. Both conditions are required
// so a clean request line cannot smuggle a payload past scoring.
func IsNormalRequest(raw string) bool {
	firstLine := strings.TrimSpace(raw)
	if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
		firstLine = strings.TrimSpace(firstLine[:idx])
	}

	matched := false
	for _, p := range normalRequestLine {
		if p.MatchString(firstLine) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	for _, p := range suspiciousQuick {
		if p.MatchString(raw) {
			return false
		}
	}
	return true
}
