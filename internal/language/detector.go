package language

import (
	"strings"

	"github.com/abadojack/whatlanggo"
	"github.com/pemistahl/lingua-go"
	"github.com/sirupsen/logrus"
)

const shortTextThreshold = 100

// Detection is the outcome of language detection for one text.
type Detection struct {
	Code       string  `json:"code"`
	Confidence float64 `json:"confidence"`
}

// Detector identifies the language of queries and documents. Short texts go
// through a single fast classifier; longer texts are cross-checked by two
// independent statistical detectors, with a function-word tie-break when they
// disagree.
type Detector struct {
	lingua   lingua.LanguageDetector
	fallback string
	logger   *logrus.Logger
}

// NewDetector builds a detector restricted to the supported corpus languages.
func NewDetector(fallback string, logger *logrus.Logger) *Detector {
	if logger == nil {
		logger = logrus.New()
	}
	if !IsSupported(fallback) {
		fallback = "en"
	}

	langs := []lingua.Language{
		lingua.English, lingua.French, lingua.German, lingua.Spanish,
		lingua.Italian, lingua.Portuguese, lingua.Dutch,
	}
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(langs...).
		Build()

	return &Detector{
		lingua:   detector,
		fallback: fallback,
		logger:   logger,
	}
}

// Fallback returns the configured fallback language code.
func (d *Detector) Fallback() string {
	return d.fallback
}

// Detect returns the language code for the given text. Empty input resolves
// to the fallback with confidence 1.0, the explicit "no information" signal.
func (d *Detector) Detect(text string) Detection {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Detection{Code: d.fallback, Confidence: 1.0}
	}

	if len(trimmed) < shortTextThreshold {
		return d.detectShort(trimmed)
	}
	return d.detectLong(trimmed)
}

func (d *Detector) detectShort(text string) Detection {
	info := whatlanggo.Detect(text)
	code := strings.ToLower(info.Lang.Iso6391())
	if IsSupported(code) {
		return Detection{Code: code, Confidence: info.Confidence}
	}

	// Short fragments of unsupported or undecidable languages fall back.
	d.logger.WithFields(logrus.Fields{
		"detected": code,
		"fallback": d.fallback,
	}).Debug("Short-text detection outside supported set")
	return Detection{Code: d.fallback, Confidence: 0.1}
}

func (d *Detector) detectLong(text string) Detection {
	primary, primaryOK := d.detectLingua(text)
	secondary, secondaryOK := d.detectWhatlang(text)

	switch {
	case primaryOK && secondaryOK && primary == secondary:
		confidence := d.lingua.ComputeLanguageConfidence(text, linguaLanguage(primary))
		return Detection{Code: primary, Confidence: confidence}

	case primaryOK && secondaryOK:
		// Detectors disagree: break the tie on function-word frequency.
		if winner, ok := d.markerTieBreak(text, primary, secondary); ok {
			return Detection{Code: winner, Confidence: 0.6}
		}
		// Undecidable tie: trust the n-gram detector, flag low confidence.
		return Detection{Code: primary, Confidence: 0.4}

	case primaryOK:
		return Detection{Code: primary, Confidence: 0.5}

	case secondaryOK:
		return Detection{Code: secondary, Confidence: 0.5}
	}

	d.logger.WithField("fallback", d.fallback).Debug("Language detection failed entirely")
	return Detection{Code: d.fallback, Confidence: 0.1}
}

func (d *Detector) detectLingua(text string) (string, bool) {
	lang, ok := d.lingua.DetectLanguageOf(text)
	if !ok {
		return "", false
	}
	code := strings.ToLower(lang.IsoCode639_1().String())
	return code, IsSupported(code)
}

func (d *Detector) detectWhatlang(text string) (string, bool) {
	info := whatlanggo.Detect(text)
	code := strings.ToLower(info.Lang.Iso6391())
	return code, IsSupported(code)
}

// markerTieBreak counts common function-word occurrences for the two
// candidate languages. The match threshold scales with text length so long
// documents need proportionally more evidence.
func (d *Detector) markerTieBreak(text, first, second string) (string, bool) {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		return "", false
	}

	threshold := len(tokens) / 50
	if threshold < 2 {
		threshold = 2
	}

	firstCount := countMarkers(tokens, first)
	secondCount := countMarkers(tokens, second)

	if firstCount >= threshold && firstCount > secondCount {
		return first, true
	}
	if secondCount >= threshold && secondCount > firstCount {
		return second, true
	}
	return "", false
}

func countMarkers(tokens []string, code string) int {
	settings, ok := SettingsFor(code)
	if !ok {
		return 0
	}
	markers := make(map[string]struct{}, len(settings.MarkerWords))
	for _, m := range settings.MarkerWords {
		markers[m] = struct{}{}
	}

	count := 0
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".,;:!?\"'()")
		if _, hit := markers[tok]; hit {
			count++
		}
	}
	return count
}

func linguaLanguage(code string) lingua.Language {
	switch code {
	case "en":
		return lingua.English
	case "fr":
		return lingua.French
	case "de":
		return lingua.German
	case "es":
		return lingua.Spanish
	case "it":
		return lingua.Italian
	case "pt":
		return lingua.Portuguese
	case "nl":
		return lingua.Dutch
	default:
		return lingua.English
	}
}
