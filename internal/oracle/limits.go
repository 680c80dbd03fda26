package oracle

import "regexp"

// word matches a run of Unicode letters, digits or underscores.
const word = `[\p{L}\p{N}_]*`

type limitRule struct {
	pattern *regexp.Regexp
	reason  string
}

// limitRules are evaluated in order and the first match wins; the patterns
// overlap on some bot replies.
var limitRules = []limitRule{
	{regexp.MustCompile(`(?i)услов` + word + `.*бот.*подписк`), "Условием данного бота является подписка на"},
	{regexp.MustCompile(`(?i)уч[её]тн` + word + `.запис` + word + `.*заблок`), "Учетная запись заблокирована"},
	{regexp.MustCompile(`(?i)ваш` + word + `.*аккаунт` + word + `.*заблок`), "Ваш аккаунт был заблокирован"},
	{regexp.MustCompile(`(?i)исчерпал` + word + `.*лимит` + word + `.*запрос`), "Превышен дневной лимит запросов"},
}

// ClassifyLimit reports the service-limit category of the first message
// that matches a known block notice.
func ClassifyLimit(msgs []Message) (string, bool) {
	for _, m := range msgs {
		if m.Text == "" {
			continue
		}
		for _, rule := range limitRules {
			if rule.pattern.MatchString(m.Text) {
				return rule.reason, true
			}
		}
	}
	return "", false
}
