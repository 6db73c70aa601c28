package enrich

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"postharvest/pkg/models"
)

// Confidence levels reported by LocationClassifier
const (
	ConfidenceHigh   = 0.9
	ConfidenceMedium = 0.6
	ConfidenceLow    = 0.3
)

// Evidence weights. A named place counts more than an institution or
// currency that merely suggests a country.
const (
	weightPlace = 2
	weightHint  = 1
)

// Classifier attaches derived attributes to a record. A nil result with a
// nil error means nothing could be inferred.
type Classifier interface {
	Classify(rec models.Record) (*models.Enrichment, error)
}

// Region is a sub-national area and the names that identify it
type Region struct {
	Name  string
	Terms []string
}

// Country groups the evidence for one country
type Country struct {
	Name    string
	Aliases []string
	Regions []Region
	// Hints are institutions, slang and the like that point to the country
	// without naming a place
	Hints []string
	// Symbols are matched verbatim, before folding
	Symbols []string
}

// DefaultCountries covers the United Kingdom and Nigeria
var DefaultCountries = []Country{
	{
		Name:    "United Kingdom",
		Aliases: []string{"united kingdom", "uk", "britain", "great britain", "british"},
		Regions: []Region{
			{Name: "England", Terms: []string{"england", "english", "london", "manchester", "birmingham", "leeds", "liverpool", "bristol", "sheffield", "newcastle", "nottingham", "leicester", "bradford"}},
			{Name: "Scotland", Terms: []string{"scotland", "scottish", "edinburgh", "glasgow", "aberdeen", "dundee"}},
			{Name: "Wales", Terms: []string{"wales", "welsh", "cardiff", "swansea"}},
			{Name: "Northern Ireland", Terms: []string{"northern ireland", "belfast", "derry"}},
		},
		Hints:   []string{"nhs", "hmrc", "hm treasury", "ofsi", "charity commission", "westminster", "whitehall", "home office"},
		Symbols: []string{"£", "🇬🇧"},
	},
	{
		Name:    "Nigeria",
		Aliases: []string{"nigeria", "nigerian", "nigerians", "naija"},
		Regions: []Region{
			{Name: "Lagos", Terms: []string{"lagos", "ikeja", "lekki"}},
			{Name: "Abuja (FCT)", Terms: []string{"abuja", "fct"}},
			{Name: "Kano", Terms: []string{"kano"}},
			{Name: "Kaduna", Terms: []string{"kaduna"}},
			{Name: "Rivers", Terms: []string{"port harcourt", "rivers state"}},
			{Name: "Oyo", Terms: []string{"ibadan", "oyo"}},
			{Name: "Borno", Terms: []string{"borno", "maiduguri"}},
			{Name: "Enugu", Terms: []string{"enugu"}},
		},
		Hints:   []string{"efcc", "nfiu", "naira", "cbn"},
		Symbols: []string{"₦", "🇳🇬"},
	},
}

// LocationClassifier guesses the country and region a record relates to
// from its text and its author's bio. Each place name found scores two
// points and each hint one; the best-scoring country wins and its score
// maps to a confidence. Ties between countries yield no enrichment.
type LocationClassifier struct {
	countries []compiledCountry
}

type compiledCountry struct {
	name    string
	aliases []string
	regions []compiledRegion
	hints   []string
	symbols []string
}

type compiledRegion struct {
	name  string
	terms []string
}

// NewLocationClassifier compiles the given tables, or DefaultCountries when none are given
func NewLocationClassifier(countries ...Country) *LocationClassifier {
	if len(countries) == 0 {
		countries = DefaultCountries
	}

	lc := &LocationClassifier{}
	for _, c := range countries {
		cc := compiledCountry{
			name:    c.Name,
			aliases: normalizeAll(c.Aliases),
			hints:   normalizeAll(c.Hints),
			symbols: c.Symbols,
		}
		for _, r := range c.Regions {
			cc.regions = append(cc.regions, compiledRegion{name: r.Name, terms: normalizeAll(r.Terms)})
		}
		lc.countries = append(lc.countries, cc)
	}
	return lc
}

// Classify implements Classifier
func (lc *LocationClassifier) Classify(rec models.Record) (*models.Enrichment, error) {
	raw := rec.Text + "\n" + rec.AuthorBio
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	text := normalize(raw)

	best, bestScore, tied := -1, 0, false
	bestRegion := ""
	for i, c := range lc.countries {
		score := countTerms(text, c.aliases) * weightPlace
		score += countTerms(text, c.hints) * weightHint
		for _, sym := range c.symbols {
			if strings.Contains(raw, sym) {
				score += weightHint
			}
		}

		region, regionHits := "", 0
		for _, r := range c.regions {
			hits := countTerms(text, r.terms)
			score += hits * weightPlace
			if hits > regionHits {
				region, regionHits = r.name, hits
			}
		}

		switch {
		case score == 0:
		case score > bestScore:
			best, bestScore, tied, bestRegion = i, score, false, region
		case score == bestScore:
			tied = true
		}
	}

	if best < 0 || tied {
		return nil, nil
	}
	return &models.Enrichment{
		Country:    lc.countries[best].name,
		Region:     bestRegion,
		Confidence: confidenceFor(bestScore),
	}, nil
}

func confidenceFor(score int) float64 {
	switch {
	case score >= 2*weightPlace:
		return ConfidenceHigh
	case score >= weightPlace:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// countTerms reports how many distinct terms occur as whole words in text
func countTerms(text string, terms []string) int {
	n := 0
	for _, term := range terms {
		if strings.Contains(text, " "+term+" ") {
			n++
		}
	}
	return n
}

// normalize case-folds s and reduces every run of non-alphanumerics to a
// single space, padding both ends so whole-word matches can use " term "
func normalize(s string) string {
	folded := cases.Fold().String(s)

	var b strings.Builder
	b.Grow(len(folded) + 2)
	b.WriteByte(' ')
	space := true
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}

func normalizeAll(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if n := strings.TrimSpace(normalize(t)); n != "" {
			out = append(out, n)
		}
	}
	return out
}
