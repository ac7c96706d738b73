// Package steps contains the step implementations the built-in workflows
// are assembled from. Steps are stateless; everything they remember between
// turns lives in the instance context under dotted keys, and everything
// they need at runtime is injected at construction.
package steps

import "strings"

// Context keys shared between steps of the same workflow
const (
	KeyProfileName      = "profile.name"
	KeyProfileBirthDate = "profile.birth_date"
	KeyProfileBirthTime = "profile.birth_time"
	KeyProfilePlace     = "profile.birth_place"
	KeyProfileConfirmed = "profile.confirmed"
	KeyProfileID        = "profile.id"

	KeyReportProfileID   = "report.profile_id"
	KeyReportProfileName = "report.profile_name"
	KeyReportID          = "report.id"
	KeyReportURL         = "report.url"

	KeyPaymentToken     = "payment.token"
	KeyPaymentSKU       = "payment.sku"
	KeyPaymentLinkURL   = "payment.link_url"
	KeyPaymentReference = "payment.reference"
	KeyPaymentStatus    = "payment.status"

	// HandoffOrigin inside a handoff payload names the workflow that
	// initiated the jump
	HandoffOrigin = "origin"
)

var (
	affirmatives = []string{
		"yes", "y", "yeah", "yep", "yup", "correct", "confirm", "sure",
		"ok", "okay", "right", "looks good",
	}
	negatives = []string{
		"no", "n", "nope", "wrong", "change", "start over", "restart",
		"incorrect",
	}
)

// IsAffirmative reports whether the text reads as a yes
func IsAffirmative(text string) bool {
	return matchesAny(text, affirmatives)
}

// IsNegative reports whether the text reads as a no
func IsNegative(text string) bool {
	return matchesAny(text, negatives)
}

func matchesAny(text string, candidates []string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.TrimRight(normalized, ".!?")
	for _, c := range candidates {
		if normalized == c {
			return true
		}
	}
	return false
}
