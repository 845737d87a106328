package extract

import (
	"regexp"
	"strings"
)

// Defaults anchors place extraction when the text carries no usable signal.
type Defaults struct {
	Country     string // e.g. "Poland"
	CountryCode string // e.g. "PL"
}

// PlaceSignals is the place extraction result. PlaceQuery is a string built
// for forward geocoding; City is "Unknown" when no city could be inferred.
type PlaceSignals struct {
	PlaceQuery  string
	City        string
	CountryCode string
}

var (
	addressTailRe = regexp.MustCompile(`(?i)\b(ul\.|al\.|aleja|pl\.|plac|rynek)\s+[\p{L}.'\-\s]{2,}?\s+\d+[A-Za-z]?\b`)

	queryHintRe   = regexp.MustCompile(`\(([^)]+)\)`)
	titleCityRe   = regexp.MustCompile(`^\s*([^:]{3,40}):`)
	snippetCityRe = regexp.MustCompile(`\b(?:w|W|in|In)\s+(\p{Lu}[\p{Ll}\-]{2,})`)

	dateOrTimeRe = regexp.MustCompile(`(?i)\b(20\d{2}|jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec|january|february|march|april|june|july|august|september|october|november|december)\b|\b\d{1,2}:\d{2}\b`)

	uiChromeRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bPublic\b`),
		regexp.MustCompile(`(?i)\bNext week\b`),
		regexp.MustCompile(`(?i)\bCET\b`),
		regexp.MustCompile(`(?i)\bCEST\b`),
		regexp.MustCompile(`(?i)\bUTC\b`),
	}
	ampmRangeRe  = regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}\s*(AM|PM)\s*-\s*\d{1,2}:\d{2}\s*(AM|PM)\b`)
	ampmSingleRe = regexp.MustCompile(`(?i)\bat\s*\d{1,2}:\d{2}\s*(AM|PM)\b`)
	weekdayRe    = regexp.MustCompile(`(?i)\b(Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday),?\b`)

	spaceRuns  = regexp.MustCompile(`\s{2,}`)
	spacedDot  = regexp.MustCompile(`\s+\.\s+`)
	spacedComa = regexp.MustCompile(`\s+,\s+`)
	whitespace = regexp.MustCompile(`\s+`)

	countryQueryRe = regexp.MustCompile(`(?i)\bPL\b|\bPoland\b|\bPolska\b`)
	cityCountryRe  = regexp.MustCompile(`(?i)(?:^|,)\s*([^,]+)\s*,\s*(Poland|Polska|PL)\s*$`)
	cityCodeRe     = regexp.MustCompile(`(?:^|,)\s*([^,]+)\s*,\s*([A-Z]{2})\s*$`)
)

// Place extracts a geocodable place query plus separated city and country
// from a search result. Precedence: street-address tail, venue keyword
// segment, city-only, default country. query is the original search query
// string; a parenthesized fragment in it serves as the city fallback.
func Place(title, snippet, query string, keywords *KeywordSet, def Defaults) PlaceSignals {
	if keywords == nil {
		keywords = DefaultKeywords()
	}

	raw := strings.TrimSpace(title + "\n" + snippet)
	cleaned := Sanitize(raw)

	city := CityFromQueryOrTitle(query, title, snippet)
	if city == "" {
		city = "Unknown"
	}
	out := PlaceSignals{City: city, CountryCode: def.CountryCode}

	if addr := addressTail(cleaned); addr != "" {
		out.PlaceQuery = joinPlace(addr, city, def.Country)
		return out
	}

	if venue := venueSegment(cleaned, keywords); venue != "" {
		out.PlaceQuery = joinPlace(venue, city, def.Country)
		return out
	}

	if city != "Unknown" {
		out.PlaceQuery = city + ", " + def.Country
		return out
	}

	// Geocoding the bare country yields a centroid; callers treating the
	// result as precise must check the precision class.
	out.PlaceQuery = def.Country
	return out
}

// Sanitize strips social-network UI chrome, explicit clock times and
// weekday names so they cannot masquerade as venue or address text. Dates
// survive the pass.
func Sanitize(text string) string {
	t := normalizeDashes(text)
	t = whitespace.ReplaceAllString(t, " ")

	for _, re := range uiChromeRes {
		t = re.ReplaceAllString(t, "")
	}
	t = ampmRangeRe.ReplaceAllString(t, "")
	t = ampmSingleRe.ReplaceAllString(t, "")
	t = weekdayRe.ReplaceAllString(t, "")

	t = spacedDot.ReplaceAllString(t, ". ")
	t = spacedComa.ReplaceAllString(t, ", ")
	t = spaceRuns.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// addressTail finds a Polish street-address fragment: an address marker
// (ul./al./pl./rynek...) followed by a name and a house number.
func addressTail(text string) string {
	m := addressTailRe.FindString(text)
	return strings.TrimSpace(m)
}

// venueSegment pulls a venue-keyword phrase, cut at sentence punctuation
// and rejected when it still looks like a date or time fragment.
func venueSegment(text string, keywords *KeywordSet) string {
	m := keywords.pattern().FindString(text)
	if m == "" {
		return ""
	}
	seg := m
	if idx := strings.IndexAny(seg, ".;"); idx >= 0 {
		seg = seg[:idx]
	}
	seg = strings.TrimSpace(seg)
	if len(seg) < 4 {
		return ""
	}
	if dateOrTimeRe.MatchString(seg) {
		return ""
	}
	return seg
}

// CityFromQueryOrTitle infers a city from, in order: a parenthesized hint
// in the query ("site:facebook.com/events (Radom) ..."), a "City:" title
// prefix, or a "w City"/"in City" phrase in the snippet.
func CityFromQueryOrTitle(query, title, snippet string) string {
	if query != "" {
		if m := queryHintRe.FindStringSubmatch(query); m != nil {
			hint := strings.TrimSpace(m[1])
			if len(hint) >= 3 {
				return hint
			}
		}
	}

	if title != "" {
		if m := titleCityRe.FindStringSubmatch(title); m != nil {
			return strings.TrimSpace(m[1])
		}
	}

	if m := snippetCityRe.FindStringSubmatch(snippet); m != nil {
		return m[1]
	}

	return ""
}

// InferCityCountry splits a geocoding query string back into city and
// country code, for callers that only kept the query.
func InferCityCountry(placeQuery, defaultCountryCode string) (city, countryCode string) {
	pq := strings.TrimSpace(placeQuery)

	countryCode = defaultCountryCode
	if countryQueryRe.MatchString(pq) {
		countryCode = "PL"
	}

	if m := cityCountryRe.FindStringSubmatch(pq); m != nil {
		return strings.TrimSpace(m[1]), countryCode
	}
	if m := cityCodeRe.FindStringSubmatch(pq); m != nil {
		return strings.TrimSpace(m[1]), strings.ToUpper(m[2])
	}

	return "Unknown", countryCode
}

func joinPlace(head, city, country string) string {
	if city != "Unknown" && !containsFold(head, city) {
		return head + ", " + city + ", " + country
	}
	return head + ", " + country
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
