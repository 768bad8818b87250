// Package language provides language detection and per-language retrieval
// settings for the multilingual document corpus.
package language

import "strings"

// Settings describes the retrieval resources tied to one language.
type Settings struct {
	Code           string
	Name           string
	EmbeddingModel string
	// StemmerLanguage is the snowball language name, empty when no stemmer
	// is available and tokens are indexed unstemmed.
	StemmerLanguage string
	Stopwords       map[string]struct{}
	MarkerWords     []string
}

var supported = map[string]Settings{
	"en": {
		Code:            "en",
		Name:            "English",
		EmbeddingModel:  "nomic-embed-text",
		StemmerLanguage: "english",
		Stopwords:       stopwordSet("the a an and or of to in is are was for on with that this it as be by"),
		MarkerWords:     []string{"the", "and", "of", "to", "is", "that", "with", "for"},
	},
	"fr": {
		Code:            "fr",
		Name:            "French",
		EmbeddingModel:  "nomic-embed-text",
		StemmerLanguage: "french",
		Stopwords:       stopwordSet("le la les un une des et ou de du dans est sont pour sur avec que ce qui"),
		MarkerWords:     []string{"le", "la", "les", "et", "de", "est", "que", "dans"},
	},
	"de": {
		Code:            "de",
		Name:            "German",
		EmbeddingModel:  "nomic-embed-text",
		StemmerLanguage: "",
		Stopwords:       stopwordSet("der die das ein eine und oder von zu in ist sind für auf mit dass dies als"),
		MarkerWords:     []string{"der", "die", "das", "und", "ist", "von", "mit", "für"},
	},
	"es": {
		Code:            "es",
		Name:            "Spanish",
		EmbeddingModel:  "nomic-embed-text",
		StemmerLanguage: "spanish",
		Stopwords:       stopwordSet("el la los las un una y o de del en es son para sobre con que este"),
		MarkerWords:     []string{"el", "la", "los", "y", "de", "es", "que", "en"},
	},
	"it": {
		Code:            "it",
		Name:            "Italian",
		EmbeddingModel:  "nomic-embed-text",
		StemmerLanguage: "",
		Stopwords:       stopwordSet("il la i le un una e o di del in è sono per su con che questo"),
		MarkerWords:     []string{"il", "la", "di", "e", "che", "per", "sono", "con"},
	},
	"pt": {
		Code:            "pt",
		Name:            "Portuguese",
		EmbeddingModel:  "nomic-embed-text",
		StemmerLanguage: "",
		Stopwords:       stopwordSet("o a os as um uma e ou de do da em é são para sobre com que este"),
		MarkerWords:     []string{"o", "a", "de", "e", "que", "do", "da", "em"},
	},
	"nl": {
		Code:            "nl",
		Name:            "Dutch",
		EmbeddingModel:  "nomic-embed-text",
		StemmerLanguage: "",
		Stopwords:       stopwordSet("de het een en of van naar in is zijn voor op met dat dit als"),
		MarkerWords:     []string{"de", "het", "een", "en", "van", "is", "dat", "met"},
	},
}

// SettingsFor returns the settings for a language code, or false when the
// language is not supported.
func SettingsFor(code string) (Settings, bool) {
	s, ok := supported[strings.ToLower(code)]
	return s, ok
}

// IsSupported reports whether the language code has a settings entry.
func IsSupported(code string) bool {
	_, ok := supported[strings.ToLower(code)]
	return ok
}

// SupportedCodes returns the set of supported language codes.
func SupportedCodes() []string {
	codes := make([]string, 0, len(supported))
	for code := range supported {
		codes = append(codes, code)
	}
	return codes
}

func stopwordSet(words string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(words) {
		set[w] = struct{}{}
	}
	return set
}
