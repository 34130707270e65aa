package utils

import (
	"strings"

	"github.com/mssola/useragent"
)

// ClaimedEngine returns the rendering engine a browser-shaped
// user-agent claims to run, or "" for non-browser strings. A client
// claiming an engine is expected to also carry that engine's
// client-side signature; the anomaly scorer flags the mismatch.
func ClaimedEngine(inputUA string) string {
	if len(inputUA) < 8 || inputUA[:8] != "Mozilla/" {
		return ""
	}
	ua := useragent.New(inputUA)
	engine, _ := ua.Engine()
	return engine
}

// LooksLikeCrawler reports whether the parser classifies the
// user-agent as a bot, independent of the curated signature lists.
func LooksLikeCrawler(inputUA string) bool {
	if inputUA == "" {
		return false
	}
	ua := useragent.New(inputUA)
	if ua.Bot() {
		return true
	}
	lower := strings.ToLower(inputUA)
	return strings.Contains(lower, "bot") || strings.Contains(lower, "crawl") || strings.Contains(lower, "spider")
}
