package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectEmptyInput(t *testing.T) {
	d := NewDetector("en", nil)

	result := d.Detect("")
	assert.Equal(t, "en", result.Code)
	assert.Equal(t, 1.0, result.Confidence)

	result = d.Detect("   \n\t ")
	assert.Equal(t, "en", result.Code)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestDetectEnglish(t *testing.T) {
	d := NewDetector("en", nil)

	text := "The regulation requires that all financial institutions submit " +
		"quarterly audit reports to the supervisory authority within thirty days."
	result := d.Detect(text)

	assert.Equal(t, "en", result.Code)
	assert.Greater(t, result.Confidence, 0.0)
}

func TestDetectFrench(t *testing.T) {
	d := NewDetector("en", nil)

	text := "Le règlement exige que toutes les institutions financières soumettent " +
		"des rapports d'audit trimestriels à l'autorité de surveillance dans un délai de trente jours."
	result := d.Detect(text)

	assert.Equal(t, "fr", result.Code)
	assert.Greater(t, result.Confidence, 0.0)
}

func TestDetectShortText(t *testing.T) {
	d := NewDetector("en", nil)

	result := d.Detect("quarterly audits are required")
	require.True(t, IsSupported(result.Code))
}

func TestUnsupportedFallbackDefaultsToEnglish(t *testing.T) {
	d := NewDetector("xx", nil)
	assert.Equal(t, "en", d.Fallback())
}

func TestMarkerTieBreak(t *testing.T) {
	d := NewDetector("en", nil)

	english := "the board and the committee agreed that the report is due for review with the auditors"
	winner, ok := d.markerTieBreak(english, "en", "fr")
	require.True(t, ok)
	assert.Equal(t, "en", winner)

	french := "le conseil et la commission ont convenu que le rapport est dans les délais pour la revue"
	winner, ok = d.markerTieBreak(french, "en", "fr")
	require.True(t, ok)
	assert.Equal(t, "fr", winner)
}

func TestMarkerTieBreakUndecidable(t *testing.T) {
	d := NewDetector("en", nil)

	_, ok := d.markerTieBreak("zzz qqq www", "en", "fr")
	assert.False(t, ok)
}

func TestSettingsFor(t *testing.T) {
	s, ok := SettingsFor("FR")
	require.True(t, ok)
	assert.Equal(t, "fr", s.Code)
	assert.Equal(t, "french", s.StemmerLanguage)
	assert.NotEmpty(t, s.MarkerWords)

	_, ok = SettingsFor("zz")
	assert.False(t, ok)
}
