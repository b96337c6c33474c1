// Package i18n names the languages user texts are available in.
package i18n

import "strings"

type Lang string

const (
	RU Lang = "ru"
	EN Lang = "en"
)

// FromLanguageCode maps a client IETF tag such as "ru-RU" to a supported
// language. Anything unknown falls back to English.
func FromLanguageCode(code string) Lang {
	code = strings.ToLower(strings.TrimSpace(code))
	if strings.HasPrefix(code, "ru") {
		return RU
	}
	return EN
}

// Parse reads a stored language value.
func Parse(s string) Lang {
	switch Lang(strings.ToLower(strings.TrimSpace(s))) {
	case RU:
		return RU
	default:
		return EN
	}
}
