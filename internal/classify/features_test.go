package classify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractFeaturesEmptyText(t *testing.T) {
	f := ExtractFeatures("   ")
	require.Zero(t, f.WordCount)
	require.Zero(t, f.SentenceCount)
	require.Equal(t, 0.5, f.Formality)
	require.False(t, f.HasGreeting)
	require.False(t, f.HasSignature)
}

func TestExtractFeaturesSentences(t *testing.T) {
	f := ExtractFeatures("Hello there. How are you? I'm fine!")
	require.Equal(t, 3, f.SentenceCount)
	require.Equal(t, 7, f.WordCount)
	require.InDelta(t, 7.0/3.0, f.AvgSentenceLength, 1e-9)

	require.Equal(t, 1, ExtractFeatures("no punctuation here").SentenceCount)
	require.Equal(t, 1, ExtractFeatures("wait...").SentenceCount)
}

func TestExtractFeaturesFormality(t *testing.T) {
	require.Equal(t, 1.0, ExtractFeatures("please review the attached proposal").Formality)
	require.Equal(t, 0.0, ExtractFeatures("lol gonna be late").Formality)
	require.Equal(t, 0.5, ExtractFeatures("the cat sat down").Formality)
}

func TestExtractFeaturesPunctuationDensity(t *testing.T) {
	require.InDelta(t, 0.5, ExtractFeatures("a,b.").PunctuationDensity, 1e-9)
	require.Zero(t, ExtractFeatures("plain words").PunctuationDensity)
}

func TestExtractFeaturesGreetingAndSignature(t *testing.T) {
	f := ExtractFeatures("Dear Ms. Smith, please find the report attached. Best regards, Ann")
	require.True(t, f.HasGreeting)
	require.True(t, f.HasSignature)

	f = ExtractFeatures("the build finished without errors")
	require.False(t, f.HasGreeting)
	require.False(t, f.HasSignature)
}

func TestExtractFeaturesTechnicalTerms(t *testing.T) {
	require.Equal(t, 2, ExtractFeatures("call fetchUser() then user_id").TechnicalTerms)
	require.Equal(t, 5, ExtractFeatures("func main() { return nil }").TechnicalTerms)
	require.Zero(t, ExtractFeatures("Please return the Class notes").TechnicalTerms)
}

func TestIsCamelCase(t *testing.T) {
	require.True(t, isCamelCase("fetchUser"))
	require.True(t, isCamelCase("XMLHttpRequest"))
	require.False(t, isCamelCase("Hello"))
	require.False(t, isCamelCase("ab"))
	require.False(t, isCamelCase("don't"))
}
