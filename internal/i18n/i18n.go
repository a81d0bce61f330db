// Package i18n resolves localized API messages, negotiating the language from Accept-Language.
package i18n

import (
	"golang.org/x/text/language"
)

// Translator holds the message catalogs. Safe for concurrent use after New.
type Translator struct {
	supported []language.Tag
	matcher   language.Matcher
	catalogs  map[language.Tag]map[string]string
}

// New returns a Translator with the English and Spanish catalogs. English is the fallback.
func New() *Translator {
	supported := []language.Tag{language.English, language.Spanish}
	return &Translator{
		supported: supported,
		matcher:   language.NewMatcher(supported),
		catalogs: map[language.Tag]map[string]string{
			language.English: english,
			language.Spanish: spanish,
		},
	}
}

// Negotiate picks the best supported language for an Accept-Language header value.
func (t *Translator) Negotiate(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return t.supported[0]
	}
	_, idx, _ := t.matcher.Match(tags...)
	return t.supported[idx]
}

// Message returns the message for key in lang. Missing keys fall back to English, then to the key.
func (t *Translator) Message(lang language.Tag, key string) string {
	if msg, ok := t.catalogs[lang][key]; ok {
		return msg
	}
	if msg, ok := english[key]; ok {
		return msg
	}
	return key
}

// Localize negotiates the language from acceptLanguage and returns the message for key.
func (t *Translator) Localize(acceptLanguage, key string) string {
	return t.Message(t.Negotiate(acceptLanguage), key)
}
