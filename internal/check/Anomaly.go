package check

import (
	"fmt"

	"github.com/visa2any/fareguard/internal/dataType"
	"github.com/visa2any/fareguard/internal/utils"
)

const minUserAgentLength = 16

// degenerate screen values reported by headless environments
var placeholderResolutions = map[string]struct{}{
	"0x0":     {},
	"1x1":     {},
	"800x600": {},
}

// Anomaly scores header and client-signal inconsistencies. Rules are
// independent and additive; order does not matter.
func Anomaly(fp dataType.RequestFingerprint, weights dataType.ScoreWeights) (int, []string) {
	score := 0
	var reasons []string

	if len(fp.UserAgent) < minUserAgentLength {
		score += weights.MissingUserAgent
		reasons = append(reasons, "missing or truncated user-agent")
	}

	if fp.AcceptLanguage == "" {
		score += weights.MissingLanguage
		reasons = append(reasons, "missing accept-language header")
	}

	if engine := utils.ClaimedEngine(fp.UserAgent); engine != "" && fp.EngineSignature == "" {
		score += weights.EngineMismatch
		reasons = append(reasons, fmt.Sprintf("user-agent claims %s but no engine signature present", engine))
	}

	if fp.Timezone == "" {
		score += weights.MissingTimezone
		reasons = append(reasons, "missing timezone signal")
	}

	if _, ok := placeholderResolutions[fp.ScreenResolution]; ok {
		score += weights.DegenerateResolution
		reasons = append(reasons, fmt.Sprintf("placeholder screen resolution %s", fp.ScreenResolution))
	}

	return score, reasons
}
