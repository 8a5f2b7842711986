package chat

import "strings"

// Trigger phrase lists scanned (case-insensitively) in every successful
// assistant reply. Each list gates one independent UI affordance; a single
// reply may flip any combination of them.
var (
	continuePhrases = []string{
		"click continue",
		"continue",
	}

	interviewDonePhrases = []string{
		"sign up",
		"thank you for choosing",
		"ready to connect",
	}

	buyNowPhrases = []string{
		"buy now",
		"ready to get your test kit",
	}
)

// triggers holds the affordance flags detected in one assistant reply.
type triggers struct {
	showContinue  bool
	interviewDone bool
	showBuyNow    bool
}

// scanTriggers checks an assistant reply for the trigger phrases.
func scanTriggers(text string) triggers {
	lower := strings.ToLower(text)
	return triggers{
		showContinue:  containsAny(lower, continuePhrases),
		interviewDone: containsAny(lower, interviewDonePhrases),
		showBuyNow:    containsAny(lower, buyNowPhrases),
	}
}

func containsAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
