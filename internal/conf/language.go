package conf

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// knownLanguages are the languages Vosk publishes models for. Names are
// matched against their English display names.
var knownLanguages = []language.Tag{
	language.English, language.Chinese, language.Japanese, language.German,
	language.French, language.Spanish, language.Russian, language.Italian,
	language.Portuguese, language.Korean, language.Dutch, language.Turkish,
	language.Ukrainian, language.Polish, language.Hindi, language.Vietnamese,
	language.Arabic, language.Persian, language.Swedish, language.Czech,
	language.Kazakh, language.Uzbek, language.Greek,
}

var languageNamer = display.English.Languages()

// CanonicalLanguage maps a language name or BCP 47 code to its English
// display name ("ja", "japanese" and "Japanese" all become "Japanese").
// Unknown names are returned title-cased.
func CanonicalLanguage(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	for _, tag := range knownLanguages {
		if strings.EqualFold(languageNamer.Name(tag), name) {
			return languageNamer.Name(tag)
		}
	}

	if tag, err := language.Parse(name); err == nil {
		base, _ := tag.Base()
		if n := languageNamer.Name(language.Make(base.String())); n != "" {
			return n
		}
	}

	runes := []rune(strings.ToLower(name))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
