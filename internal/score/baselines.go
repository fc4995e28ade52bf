package score

// categoryBaselines holds the expected weekly decision volume per category.
// The volume ratio for a category is measured against its baseline; unknown
// categories fall back to 1 so any activity at all reads as elevated.
var categoryBaselines = map[string]int{
	"dismissal_termination":               25,
	"discrimination_harassment":           20,
	"wages_time_pay":                      15,
	"whistleblowing_protected_disclosure": 3,
	"employment_status_classification":    5,
	"redundancy_organizational_change":    10,
	"parental_family_rights":              10,
	"trade_union_collective":              4,
	"contract_notice_disputes":            8,
	"health_safety_protections":           3,
	"data_protection_privacy":             2,
	"transfers_insolvency":                5,
}

// BaselineFor returns the weekly volume baseline for a category.
func BaselineFor(category string) int {
	if b, ok := categoryBaselines[category]; ok {
		return b
	}
	return 1
}
