package irma

// TranslatedString is a map of translated strings, keyed by language code.
type TranslatedString map[string]string

// NewTranslatedString returns a TranslatedString containing the specified English and Dutch texts.
func NewTranslatedString(en, nl string) TranslatedString {
	return TranslatedString{"en": en, "nl": nl}
}

// Translation returns the text for the specified language, falling back to English.
func (ts TranslatedString) Translation(lang string) string {
	if val, ok := ts[lang]; ok {
		return val
	}
	return ts["en"]
}
