package model

import (
	"encoding/json"
	"strings"
)

// Supported languages.
const (
	LangEN = "en"
	LangNL = "nl"
)

// Placeholder is returned when neither language has text.
const Placeholder = "-"

// Localized holds a text in English and Dutch.
type Localized struct {
	EN string `json:"en"`
	NL string `json:"nl"`
}

// Text returns the text in lang, falling back to Dutch, then English, then
// Placeholder.
func (l Localized) Text(lang string) string {
	switch lang {
	case LangEN:
		if l.EN != "" {
			return l.EN
		}
	case LangNL:
		if l.NL != "" {
			return l.NL
		}
	}
	if l.NL != "" {
		return l.NL
	}
	if l.EN != "" {
		return l.EN
	}
	return Placeholder
}

// IsZero reports whether both languages are empty.
func (l Localized) IsZero() bool {
	return l.EN == "" && l.NL == ""
}

// Mirror copies a lone language into the missing one.
func (l Localized) Mirror() Localized {
	if l.EN == "" {
		l.EN = l.NL
	}
	if l.NL == "" {
		l.NL = l.EN
	}
	return l
}

// ParseLocalized accepts either a JSON object {"en": ..., "nl": ...} or a bare
// string. A bare string is used for both languages.
func ParseLocalized(raw string) Localized {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		var l Localized
		if err := json.Unmarshal([]byte(raw), &l); err == nil {
			l.EN = strings.TrimSpace(l.EN)
			l.NL = strings.TrimSpace(l.NL)
			return l.Mirror()
		}
	}
	return Localized{EN: raw, NL: raw}
}

// UnmarshalJSON lets JSON bodies carry either an object or a plain string.
func (l *Localized) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = ParseLocalized(s)
		return nil
	}

	type plain Localized
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*l = Localized{EN: strings.TrimSpace(p.EN), NL: strings.TrimSpace(p.NL)}.Mirror()
	return nil
}
