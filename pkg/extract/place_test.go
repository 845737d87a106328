package extract

import "testing"

var testDefaults = Defaults{Country: "Poland", CountryCode: "PL"}

func TestPlacePrefersStreetAddress(t *testing.T) {
	got := Place(
		"Koncert noworoczny",
		"Zapraszamy, ul. Długa 12, wstęp wolny",
		"koncerty (Radom) 2025",
		nil,
		testDefaults,
	)
	if got.PlaceQuery != "ul. Długa 12, Radom, Poland" {
		t.Fatalf("PlaceQuery = %q", got.PlaceQuery)
	}
	if got.City != "Radom" {
		t.Fatalf("City = %q, want Radom", got.City)
	}
	if got.CountryCode != "PL" {
		t.Fatalf("CountryCode = %q, want PL", got.CountryCode)
	}
}

func TestPlaceFallsBackToVenueKeyword(t *testing.T) {
	got := Place(
		"",
		"Wieczór kolęd, Sala Koncertowa MOK; wstęp wolny",
		"koncerty (Płock)",
		nil,
		testDefaults,
	)
	if got.PlaceQuery != "Sala Koncertowa MOK, Płock, Poland" {
		t.Fatalf("PlaceQuery = %q", got.PlaceQuery)
	}
}

func TestPlaceCityOnly(t *testing.T) {
	got := Place("Jarmark", "Zapraszamy wszystkich mieszkańców", "(Toruń) wydarzenia", nil, testDefaults)
	if got.PlaceQuery != "Toruń, Poland" {
		t.Fatalf("PlaceQuery = %q", got.PlaceQuery)
	}
	if got.City != "Toruń" {
		t.Fatalf("City = %q", got.City)
	}
}

func TestPlaceDefaultsToCountry(t *testing.T) {
	got := Place("", "brak danych", "", nil, testDefaults)
	if got.PlaceQuery != "Poland" {
		t.Fatalf("PlaceQuery = %q, want bare country", got.PlaceQuery)
	}
	if got.City != "Unknown" {
		t.Fatalf("City = %q, want Unknown", got.City)
	}
}

func TestSanitizeStripsChromeAndTimes(t *testing.T) {
	in := "Public · Saturday, 7:00 PM - 11:00 PM CET Koncert"
	out := Sanitize(in)
	for _, banned := range []string{"Public", "Saturday", "7:00 PM", "CET"} {
		if containsFold(out, banned) {
			t.Fatalf("Sanitize(%q) = %q still contains %q", in, out, banned)
		}
	}
	if !containsFold(out, "Koncert") {
		t.Fatalf("Sanitize dropped the payload text: %q", out)
	}
}

func TestCityFromQueryOrTitle(t *testing.T) {
	cases := []struct {
		name                  string
		query, title, snippet string
		want                  string
	}{
		{"query parens", "koncerty (Radom) 2025", "", "", "Radom"},
		{"short hint ignored", "koncerty (x)", "", "", ""},
		{"title prefix", "", "Lublin: wieczór jazzowy", "", "Lublin"},
		{"snippet w-phrase", "", "", "Koncert w Gdańsku już wkrótce", "Gdańsku"},
		{"nothing", "", "", "brak", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CityFromQueryOrTitle(tc.query, tc.title, tc.snippet); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestInferCityCountry(t *testing.T) {
	city, cc := InferCityCountry("Sala Koncertowa, Radom, Poland", "PL")
	if city != "Radom" || cc != "PL" {
		t.Fatalf("got (%q, %q)", city, cc)
	}

	city, cc = InferCityCountry("Radom, Poland", "PL")
	if city != "Radom" {
		t.Fatalf("two-segment query: city = %q", city)
	}

	city, cc = InferCityCountry("just a venue", "PL")
	if city != "Unknown" || cc != "PL" {
		t.Fatalf("fallback: got (%q, %q)", city, cc)
	}
}
