package extract

import (
	"regexp"
	"strconv"
	"time"

	"github.com/wagerworks/sqlgen/pkg/models"
)

// temporalPattern maps a phrase regex to a resolver anchored at the
// request timestamp. Resolution never uses extraction time, so cached
// results keep the ranges the original request saw.
type temporalPattern struct {
	re      *regexp.Regexp
	resolve func(now time.Time, match []string) models.DateRange
}

var temporalPatterns = []temporalPattern{
	{
		re: regexp.MustCompile(`\btoday\b`),
		resolve: func(now time.Time, _ []string) models.DateRange {
			day := startOfDay(now)
			return models.DateRange{From: day, To: day.AddDate(0, 0, 1)}
		},
	},
	{
		re: regexp.MustCompile(`\byesterday\b`),
		resolve: func(now time.Time, _ []string) models.DateRange {
			day := startOfDay(now).AddDate(0, 0, -1)
			return models.DateRange{From: day, To: day.AddDate(0, 0, 1)}
		},
	},
	{
		re: regexp.MustCompile(`\blast week\b`),
		resolve: func(now time.Time, _ []string) models.DateRange {
			// ISO week starting Monday.
			weekday := int(now.Weekday())
			if weekday == 0 {
				weekday = 7
			}
			thisMonday := startOfDay(now).AddDate(0, 0, -(weekday - 1))
			return models.DateRange{From: thisMonday.AddDate(0, 0, -7), To: thisMonday}
		},
	},
	{
		re: regexp.MustCompile(`\bthis week\b`),
		resolve: func(now time.Time, _ []string) models.DateRange {
			weekday := int(now.Weekday())
			if weekday == 0 {
				weekday = 7
			}
			monday := startOfDay(now).AddDate(0, 0, -(weekday - 1))
			return models.DateRange{From: monday, To: monday.AddDate(0, 0, 7)}
		},
	},
	{
		re: regexp.MustCompile(`\blast month\b`),
		resolve: func(now time.Time, _ []string) models.DateRange {
			first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
			return models.DateRange{From: first.AddDate(0, -1, 0), To: first}
		},
	},
	{
		re: regexp.MustCompile(`\bthis month\b`),
		resolve: func(now time.Time, _ []string) models.DateRange {
			first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
			return models.DateRange{From: first, To: first.AddDate(0, 1, 0)}
		},
	},
	{
		re: regexp.MustCompile(`\blast year\b`),
		resolve: func(now time.Time, _ []string) models.DateRange {
			first := time.Date(now.Year()-1, 1, 1, 0, 0, 0, 0, now.Location())
			return models.DateRange{From: first, To: first.AddDate(1, 0, 0)}
		},
	},
	{
		re: regexp.MustCompile(`\bthis year\b|\byear to date\b|\bytd\b`),
		resolve: func(now time.Time, _ []string) models.DateRange {
			first := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
			return models.DateRange{From: first, To: startOfDay(now).AddDate(0, 0, 1)}
		},
	},
	{
		re: regexp.MustCompile(`\blast (\d+) days?\b`),
		resolve: func(now time.Time, match []string) models.DateRange {
			n, _ := strconv.Atoi(match[1])
			end := startOfDay(now).AddDate(0, 0, 1)
			return models.DateRange{From: end.AddDate(0, 0, -n), To: end}
		},
	},
	{
		re: regexp.MustCompile(`\bq([1-4])\b`),
		resolve: func(now time.Time, match []string) models.DateRange {
			q, _ := strconv.Atoi(match[1])
			first := time.Date(now.Year(), time.Month((q-1)*3+1), 1, 0, 0, 0, 0, now.Location())
			return models.DateRange{From: first, To: first.AddDate(0, 3, 0)}
		},
	},
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// extractTemporal finds temporal expressions and resolves them against
// the request timestamp.
func extractTemporal(normalized string, now time.Time) []models.EntityMention {
	var mentions []models.EntityMention
	for _, p := range temporalPatterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(normalized, -1) {
			match := p.re.FindStringSubmatch(normalized[loc[0]:loc[1]])
			rng := p.resolve(now, match)
			mentions = append(mentions, models.EntityMention{
				Type:       models.EntityTemporal,
				Text:       normalized[loc[0]:loc[1]],
				Start:      loc[0],
				End:        loc[1],
				Confidence: 0.95,
				Normalized: normalized[loc[0]:loc[1]],
				DateRange:  &rng,
			})
		}
	}
	return mentions
}

var financialPattern = regexp.MustCompile(`(?:[$€£]\s?\d[\d,]*(?:\.\d+)?|\b\d[\d,]*(?:\.\d+)?\s?(?:eur|usd|gbp|euros?|dollars?|pounds?)\b|\babove \d[\d,]*\b|\bover \d[\d,]*\b)`)

// extractFinancial finds monetary amounts and thresholds.
func extractFinancial(normalized string) []models.EntityMention {
	var mentions []models.EntityMention
	for _, loc := range financialPattern.FindAllStringIndex(normalized, -1) {
		mentions = append(mentions, models.EntityMention{
			Type:       models.EntityFinancial,
			Text:       normalized[loc[0]:loc[1]],
			Start:      loc[0],
			End:        loc[1],
			Confidence: 0.85,
			Normalized: normalized[loc[0]:loc[1]],
		})
	}
	return mentions
}
