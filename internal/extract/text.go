// Package extract pulls phone numbers, email addresses and birth dates out of
// oracle replies and the HTML reports the oracle attaches to them.
package extract

import (
	"regexp"
	"strings"

	"github.com/sells-group/contact-enricher/internal/model"
)

var (
	phonePattern = regexp.MustCompile(`\+\d{9,15}`)
	phoneToken   = regexp.MustCompile(`^\+\d{9,15}$`)
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	// The label may be followed by tree-drawing characters when the bot
	// renders the reply as a nested list.
	birthdayPattern = regexp.MustCompile(`(?:Даты рождения:|Дата рождения:)\s*[\n\r│├└─]*\s*(\d{2}\.\d{2}\.\d{4})`)

	tokenSeparator = regexp.MustCompile(`[,\s]+`)
)

// FromText scans free-form reply text. Phones are matched as substrings.
func FromText(text string) model.ContactData {
	var d model.ContactData
	if text == "" {
		return d
	}

	d.Phones = phonePattern.FindAllString(text, -1)
	d.Emails = emailPattern.FindAllString(text, -1)
	if m := birthdayPattern.FindStringSubmatch(text); m != nil {
		d.Birthday = m[1]
	}
	return d
}

// Phones splits a cell value on commas and whitespace and keeps the tokens
// that are complete international phone numbers.
func Phones(value string) []string {
	var out []string
	for _, tok := range tokenSeparator.Split(value, -1) {
		tok = strings.TrimSpace(tok)
		if phoneToken.MatchString(tok) {
			out = append(out, tok)
		}
	}
	return out
}

// Emails returns every email address found in s.
func Emails(s string) []string {
	return emailPattern.FindAllString(s, -1)
}

// Unique trims values, drops blanks and removes exact duplicates while
// keeping first-seen order.
func Unique(values []string) []string {
	return uniqueBy(values, func(s string) string { return s })
}

// UniqueFold is Unique with case-insensitive comparison. The first spelling
// seen wins.
func UniqueFold(values []string) []string {
	return uniqueBy(values, strings.ToLower)
}

func uniqueBy(values []string, key func(string) string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		k := key(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}
