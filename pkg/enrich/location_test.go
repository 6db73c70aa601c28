package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"postharvest/pkg/models"
)

func TestLocationClassifier(t *testing.T) {
	lc := NewLocationClassifier()

	tests := []struct {
		name       string
		text       string
		bio        string
		country    string
		region     string
		confidence float64
	}{
		{
			name:       "two nigerian cities",
			text:       "EFCC raids offices in Lagos and Abuja",
			country:    "Nigeria",
			region:     "Lagos",
			confidence: ConfidenceHigh,
		},
		{
			name:       "single city",
			text:       "Workshop in Glasgow on charity finance",
			country:    "United Kingdom",
			region:     "Scotland",
			confidence: ConfidenceMedium,
		},
		{
			name:       "hint only",
			text:       "New Charity Commission guidance published",
			country:    "United Kingdom",
			confidence: ConfidenceLow,
		},
		{
			name:       "bio adds evidence",
			text:       "Thoughts on the latest FATF plenary",
			bio:        "Compliance officer, Manchester UK",
			country:    "United Kingdom",
			region:     "England",
			confidence: ConfidenceHigh,
		},
		{
			name:       "case folding",
			text:       "BELFAST event tonight",
			country:    "United Kingdom",
			region:     "Northern Ireland",
			confidence: ConfidenceMedium,
		},
		{
			name:       "currency symbol",
			text:       "₦40m recovered from shell charity",
			country:    "Nigeria",
			confidence: ConfidenceLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := lc.Classify(models.Record{ID: "x", Text: tt.text, AuthorBio: tt.bio})
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.country, got.Country)
			assert.Equal(t, tt.region, got.Region)
			assert.Equal(t, tt.confidence, got.Confidence)
		})
	}
}

func TestLocationClassifierNoEvidence(t *testing.T) {
	lc := NewLocationClassifier()

	for _, text := range []string{
		"",
		"   ",
		"Learning the ukulele this weekend",
		"Terror financing is a global problem",
		"Comparing the UK and Nigeria approaches",
	} {
		got, err := lc.Classify(models.Record{ID: "x", Text: text})
		assert.NoError(t, err)
		assert.Nil(t, got, text)
	}
}

func TestCustomTables(t *testing.T) {
	lc := NewLocationClassifier(Country{
		Name:    "Kenya",
		Aliases: []string{"Kenya"},
		Regions: []Region{{Name: "Nairobi", Terms: []string{"Nairobi"}}},
	})

	got, err := lc.Classify(models.Record{Text: "Nairobi, Kenya"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Kenya", got.Country)
	assert.Equal(t, "Nairobi", got.Region)
	assert.Equal(t, ConfidenceHigh, got.Confidence)

	got, err = lc.Classify(models.Record{Text: "Lagos"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, " port harcourt rivers ", normalize("Port-Harcourt,  RIVERS!"))
	assert.Equal(t, " ", normalize("!!!"))
}
