package predict

import (
	"regexp"
	"strconv"
	"strings"
)

// Signals are the numeric features derived from the extracted text before
// the classifier is called; the classifier's contract takes (text, signals).
type Signals struct {
	BudgetCrores   float64 `json:"budget_crores"`
	TimelineMonths float64 `json:"timeline_months"`
}

// Budget patterns, most specific first. DPR documents state cost either with
// an explicit "Budget"/"Cost" label or as a currency amount with a crore or
// lakh unit; lakh converts to crore at /100.
var budgetPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:₹|rs\.?)\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(crores?|cr\b|lakhs?)`),
	regexp.MustCompile(`(?i)(?:approved|estimated|total)\s+cost[^\d]{0,20}([0-9][0-9,]*(?:\.[0-9]+)?)`),
	regexp.MustCompile(`(?i)budget[^\d]{0,20}([0-9][0-9,]*(?:\.[0-9]+)?)`),
}

var timelinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)timeline[^\d]{0,20}([0-9]+)`),
	regexp.MustCompile(`(?i)(?:duration|completion period)[^\d]{0,20}([0-9]+)\s*months?`),
	regexp.MustCompile(`(?i)\b([0-9]+)\s*months?\b`),
}

// ExtractSignals pulls budget (in crores) and timeline (in months) out of
// the document text. Missing figures come back as zero; the classifier
// treats zero as "not stated".
func ExtractSignals(text string) Signals {
	var s Signals

	for _, re := range budgetPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		if len(m) > 2 && strings.HasPrefix(strings.ToLower(m[2]), "lakh") {
			v /= 100 // lakh -> crore
		}
		s.BudgetCrores = v
		break
	}

	for _, re := range timelinePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			s.TimelineMonths = v
			break
		}
	}

	return s
}
