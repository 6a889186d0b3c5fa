// Package taxonomy maps units and context keywords onto metric types.
package taxonomy

import (
	"strings"

	"github.com/sells-group/metrics-cli/internal/textnorm"
)

// UnitCategory groups units that measure the same kind of quantity.
type UnitCategory string

const (
	CategoryNone     UnitCategory = "none"
	CategoryCurrency UnitCategory = "currency"
	CategoryPercent  UnitCategory = "percent"
	CategoryCount    UnitCategory = "count"
	CategoryDuration UnitCategory = "duration"
	CategoryRatio    UnitCategory = "ratio"
)

// Metric types recognized by extraction and the consistency rule.
const (
	TypeInvestment   = "investment"
	TypeRevenue      = "revenue"
	TypeMarketSize   = "market_size"
	TypeCost         = "cost"
	TypeProductivity = "productivity"
	TypeEmployment   = "employment"
	TypeAdoption     = "adoption"
	TypeGrowth       = "growth"
	TypeCount        = "count"
	TypeUnknown      = "unknown"
)

// typeOrder is the tie-break order for inference.
var typeOrder = []string{
	TypeInvestment,
	TypeRevenue,
	TypeMarketSize,
	TypeCost,
	TypeProductivity,
	TypeEmployment,
	TypeAdoption,
	TypeGrowth,
	TypeCount,
}

// KnownTypes returns the number of concrete metric types.
func KnownTypes() int {
	return len(typeOrder)
}

var allowed = map[string][]UnitCategory{
	TypeInvestment:   {CategoryCurrency},
	TypeRevenue:      {CategoryCurrency},
	TypeMarketSize:   {CategoryCurrency},
	TypeCost:         {CategoryCurrency, CategoryPercent},
	TypeProductivity: {CategoryPercent, CategoryRatio, CategoryCurrency, CategoryDuration},
	TypeEmployment:   {CategoryCount, CategoryPercent},
	TypeAdoption:     {CategoryPercent, CategoryCount},
	TypeGrowth:       {CategoryPercent, CategoryRatio},
	TypeCount:        {CategoryCount},
}

var keywords = map[string][]string{
	TypeInvestment:   {"invest", "funding", "venture capital", "capex", "capital expenditure", "spending on", "spend on"},
	TypeRevenue:      {"revenue", "sales", "turnover", "earnings"},
	TypeMarketSize:   {"market size", "market value", "market worth", "valued at", "gdp", "economic value", "contribution to"},
	TypeCost:         {"cost", "price", "expense", "saving"},
	TypeProductivity: {"productivity", "output per", "efficiency", "time saved", "hours saved"},
	TypeEmployment:   {"job", "employ", "worker", "workforce", "labour", "labor", "hiring", "occupation"},
	TypeAdoption:     {"adopt", "use of", "usage", "uptake", "penetration", "deploy"},
	TypeGrowth:       {"growth", "grew", "increase", "cagr", "rise", "rose"},
	TypeCount:        {"firms", "companies", "startups", "patents", "number of"},
}

var currencyMarkers = []string{"usd", "us$", "$", "eur", "€", "gbp", "£", "jpy", "¥", "cny", "rmb", "yuan", "dollar", "euro", "pound"}
var percentMarkers = []string{"%", "percent", "per cent", "pp", "percentage point"}
var durationMarkers = []string{"hour", "day", "week", "month", "year", "minute"}
var ratioMarkers = []string{"x", "times", "ratio", "index", "multiple"}

// CategoryOf classifies a free-text unit.
func CategoryOf(unit string) UnitCategory {
	u := textnorm.Fold(strings.TrimSpace(unit))
	if u == "" {
		return CategoryNone
	}
	for _, m := range currencyMarkers {
		if strings.Contains(u, m) {
			return CategoryCurrency
		}
	}
	for _, m := range percentMarkers {
		if u == m || strings.Contains(u, m) && m != "pp" {
			return CategoryPercent
		}
	}
	for _, m := range durationMarkers {
		if strings.HasPrefix(u, m) {
			return CategoryDuration
		}
	}
	for _, m := range ratioMarkers {
		if u == m || u == m+"s" {
			return CategoryRatio
		}
	}
	return CategoryCount
}

// Allows reports whether a metric type may carry a unit of the given category.
// Unknown types and unitless records are always allowed.
func Allows(metricType string, cat UnitCategory) bool {
	cats, ok := allowed[metricType]
	if !ok || cat == CategoryNone {
		return true
	}
	for _, c := range cats {
		if c == cat {
			return true
		}
	}
	return false
}

// IsKnown reports whether metricType is one of the concrete types.
func IsKnown(metricType string) bool {
	_, ok := allowed[metricType]
	return ok
}

// Infer picks the metric type whose keywords occur most often in text,
// restricted to types compatible with the unit. Ties resolve in a fixed
// order. It returns TypeUnknown when no compatible keyword matches.
func Infer(text, unit string) string {
	folded := textnorm.Fold(text)
	cat := CategoryOf(unit)

	best, bestHits := TypeUnknown, 0
	for _, typ := range typeOrder {
		if !Allows(typ, cat) {
			continue
		}
		hits := 0
		for _, kw := range keywords[typ] {
			hits += strings.Count(folded, kw)
		}
		if hits > bestHits {
			best, bestHits = typ, hits
		}
	}
	return best
}
