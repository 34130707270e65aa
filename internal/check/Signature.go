package check

import "strings"

// KnownBot matches the user-agent against the curated list of
// legitimate crawlers (search and social preview services). The lists
// are ordered; the first matching token wins.
func KnownBot(userAgent string, list []string) (string, bool) {
	return matchSignature(userAgent, list)
}

// ScraperSignature matches the user-agent against the scraper-tool
// list: HTTP client libraries, headless-browser markers, automation
// frameworks. A match raises the risk score but never blocks alone.
func ScraperSignature(userAgent string, list []string) (string, bool) {
	return matchSignature(userAgent, list)
}

func matchSignature(userAgent string, list []string) (string, bool) {
	if userAgent == "" {
		return "", false
	}
	lower := strings.ToLower(userAgent)
	for _, token := range list {
		if token == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(token)) {
			return token, true
		}
	}
	return "", false
}
