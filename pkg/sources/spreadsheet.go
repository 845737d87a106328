package sources

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/axiopea/mapevents/pkg/common/logger"
	"github.com/axiopea/mapevents/pkg/common/models"
	"github.com/axiopea/mapevents/pkg/extract"
)

// Spreadsheet column synonyms. Operators hand-maintain these workbooks, so
// header names drift between Polish and English.
var spreadsheetColumns = map[string][]string{
	"title":       {"title", "name", "tytul", "tytuł", "nazwa"},
	"date":        {"date", "data", "start", "start date", "data rozpoczecia", "data rozpoczęcia"},
	"time":        {"time", "godzina", "start time"},
	"end":         {"end", "end date", "koniec", "data zakonczenia", "data zakończenia"},
	"city":        {"city", "miasto"},
	"place":       {"place", "venue", "address", "miejsce", "adres", "lokalizacja"},
	"description": {"description", "opis"},
	"country":     {"country", "kraj"},
	"lat":         {"lat", "latitude", "szerokosc", "szerokość"},
	"lng":         {"lng", "lon", "longitude", "dlugosc", "długość"},
	"url":         {"url", "link"},
	"id":          {"id", "source id", "sourceid"},
}

// SpreadsheetAdapter ingests operator-maintained XLSX workbooks. Rows have
// no stable external identifier, so identity is a content hash of the
// fields that make an event distinct.
type SpreadsheetAdapter struct {
	geo      Geo
	defaults extract.Defaults
	loc      *time.Location
}

func NewSpreadsheetAdapter(geo Geo, defaults extract.Defaults, loc *time.Location) *SpreadsheetAdapter {
	return &SpreadsheetAdapter{geo: geo, defaults: defaults, loc: loc}
}

// Fetch reads the first sheet of an XLSX workbook. The first row is the
// header; unknown columns are ignored. The filename participates in the
// fallback source id so rows from distinct uploads never collide.
func (a *SpreadsheetAdapter) Fetch(ctx context.Context, r io.Reader, filename string, limit int) (*FetchResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("spreadsheet: workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("spreadsheet: sheet %q has no data rows", sheet)
	}
	if limit <= 0 {
		limit = 500
	}

	cols := mapColumns(rows[0])
	if _, ok := cols["title"]; !ok {
		return nil, fmt.Errorf("spreadsheet: no title column in header %v", rows[0])
	}
	if _, ok := cols["date"]; !ok {
		return nil, fmt.Errorf("spreadsheet: no date column in header %v", rows[0])
	}

	out := &FetchResult{}
	seen := make(map[string]bool)
	for _, row := range rows[1:] {
		if len(out.Events) >= limit {
			break
		}
		if rowEmpty(row) {
			continue
		}
		out.Stats.Scanned++
		a.consumeRow(ctx, row, cols, filename, seen, out)
	}
	out.Stats.Accepted = len(out.Events)

	logger.WithFields(logrus.Fields{
		"sheet":    sheet,
		"scanned":  out.Stats.Scanned,
		"accepted": out.Stats.Accepted,
		"skipped":  out.Stats.Skipped(),
	}).Info("spreadsheet parse finished")
	return out, nil
}

func (a *SpreadsheetAdapter) consumeRow(ctx context.Context, row []string, cols map[string]int, filename string, seen map[string]bool, out *FetchResult) {
	title := strings.TrimSpace(cell(row, cols, "title"))
	if title == "" {
		out.Stats.Skips.Malformed++
		return
	}

	startAt, ok := a.parseRowDate(cell(row, cols, "date"), cell(row, cols, "time"))
	if !ok {
		out.Stats.Skips.NoDate++
		return
	}
	var endAt *time.Time
	if end, ok := a.parseRowDate(cell(row, cols, "end"), ""); ok && end.After(startAt) {
		endAt = &end
	}

	city := strings.TrimSpace(cell(row, cols, "city"))
	place := strings.TrimSpace(cell(row, cols, "place"))
	if place == "" {
		out.Stats.Skips.Malformed++
		return
	}
	country := strings.TrimSpace(cell(row, cols, "country"))
	countryCode := a.rowCountryCode(country)
	if country == "" {
		country = a.defaults.Country
	}

	lat, lng, ok := rowCoords(row, cols)
	if !ok {
		query := geocodeQuery(place, city, country)
		if query == "" {
			out.Stats.Skips.NoGeo++
			return
		}
		details, err := a.geo.ForwardDetailed(ctx, query)
		if err != nil || details == nil {
			out.Stats.Skips.NoGeo++
			return
		}
		lat, lng = details.Lat, details.Lng
		if cc := geocodedCountryCode(details); cc != "" {
			countryCode = cc
		}
		if city == "" {
			city = geocodedCity(details)
		}
	}
	if city == "" {
		city = "Unknown"
	}
	if countryCode != a.defaults.CountryCode {
		out.Stats.Skips.NoCountry++
		return
	}

	sourceID := strings.TrimSpace(cell(row, cols, "id"))
	if sourceID == "" {
		sourceID = spreadsheetSourceID(title, startAt, place, city, countryCode, filename)
	}
	if seen[sourceID] {
		out.Stats.Skips.Duplicate++
		return
	}
	seen[sourceID] = true

	out.Events = append(out.Events, models.ExternalEvent{
		Title:       title,
		Description: strings.TrimSpace(cell(row, cols, "description")),
		CountryCode: countryCode,
		City:        city,
		Place:       place,
		StartAt:     startAt,
		EndAt:       endAt,
		Lat:         fixed6(lat),
		Lng:         fixed6(lng),
		Source:      models.SourceOther,
		SourceID:    sourceID,
		SourceURL:   strings.TrimSpace(cell(row, cols, "url")),
		RawPayload: map[string]interface{}{
			"row": append([]string(nil), row...),
		},
	})
}

// parseRowDate handles the date shapes operators type into cells, plus the
// textual form excelize renders for date-formatted cells.
func (a *SpreadsheetAdapter) parseRowDate(dateCell, timeCell string) (time.Time, bool) {
	dateCell = strings.TrimSpace(dateCell)
	if dateCell == "" {
		return time.Time{}, false
	}

	layouts := []string{
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
		"02.01.2006 15:04",
		"02.01.2006",
		"02/01/2006",
		"01-02-06", // excelize default rendering for date cells
		"1/2/06 15:04",
	}
	var start time.Time
	found := false
	for _, layout := range layouts {
		if ts, err := time.ParseInLocation(layout, dateCell, a.loc); err == nil {
			start = ts
			found = true
			break
		}
	}
	if !found {
		when := extract.DateTime(dateCell, 0, a.loc)
		if when.Start == nil {
			return time.Time{}, false
		}
		start = *when.Start
	}

	if timeCell = strings.TrimSpace(timeCell); timeCell != "" {
		for _, layout := range []string{"15:04", "15:04:05", "15.04"} {
			if ts, err := time.Parse(layout, timeCell); err == nil {
				start = time.Date(start.Year(), start.Month(), start.Day(), ts.Hour(), ts.Minute(), 0, 0, a.loc)
				break
			}
		}
	}
	return start, true
}

func spreadsheetSourceID(title string, startAt time.Time, place, city, countryCode, filename string) string {
	basis := strings.Join([]string{
		strings.ToLower(strings.TrimSpace(title)),
		startAt.UTC().Format(time.RFC3339),
		strings.ToLower(strings.TrimSpace(place)),
		strings.ToLower(strings.TrimSpace(city)),
		countryCode,
		filename,
	}, "|")
	sum := sha1.Sum([]byte(basis))
	return "excel:" + hex.EncodeToString(sum[:])
}

// rowCountryCode resolves the country cell to an ISO code. Workbooks carry
// either a two-letter code, a full country name, or nothing at all; anything
// unrecognized resolves to empty and falls to the country filter.
func (a *SpreadsheetAdapter) rowCountryCode(country string) string {
	switch {
	case country == "":
		return a.defaults.CountryCode
	case len(country) == 2:
		return strings.ToUpper(country)
	case strings.EqualFold(country, a.defaults.Country):
		return a.defaults.CountryCode
	}
	return ""
}

func mapColumns(header []string) map[string]int {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[strings.ToLower(strings.TrimSpace(h))] = i
	}
	cols := make(map[string]int)
	for field, synonyms := range spreadsheetColumns {
		for _, syn := range synonyms {
			if idx, ok := byName[syn]; ok {
				cols[field] = idx
				break
			}
		}
	}
	return cols
}

func cell(row []string, cols map[string]int, field string) string {
	idx, ok := cols[field]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func rowEmpty(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func rowCoords(row []string, cols map[string]int) (float64, float64, bool) {
	latStr := strings.TrimSpace(cell(row, cols, "lat"))
	lngStr := strings.TrimSpace(cell(row, cols, "lng"))
	if latStr == "" || lngStr == "" {
		return 0, 0, false
	}
	lat, errLat := strconv.ParseFloat(strings.ReplaceAll(latStr, ",", "."), 64)
	lng, errLng := strconv.ParseFloat(strings.ReplaceAll(lngStr, ",", "."), 64)
	if errLat != nil || errLng != nil {
		return 0, 0, false
	}
	return lat, lng, true
}

func geocodeQuery(place, city, country string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{place, city, country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ", ")
}
