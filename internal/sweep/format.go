package sweep

import (
	"slices"
	"strings"

	"github.com/sells-group/contact-enricher/internal/extract"
)

// Cell placeholders.
const (
	PhoneNotFound = "телефон не найден"
	EmailNotFound = "email не найден"
	ErrorMarker   = "ERROR"
)

// FormatPhones joins phones in first-seen order.
func FormatPhones(phones []string) string {
	phones = extract.Unique(phones)
	if len(phones) == 0 {
		return PhoneNotFound
	}
	return strings.Join(phones, ", ")
}

// FormatEmails dedupes emails case-insensitively and sorts them ignoring
// case.
func FormatEmails(emails []string) string {
	emails = extract.UniqueFold(emails)
	if len(emails) == 0 {
		return EmailNotFound
	}
	slices.SortStableFunc(emails, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return strings.Join(emails, ", ")
}
