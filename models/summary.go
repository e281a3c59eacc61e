package models

type PositionCount struct {
	Position string `json:"position"`
	Count    int    `json:"count"`
}

type LocationCount struct {
	Location string `json:"location"`
	Count    int    `json:"count"`
}

type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// DashboardSummary is computed per request and never stored.
// MostCommonReason is only set for queries that can include supervisor forms.
type DashboardSummary struct {
	TotalForms           int           `json:"total_forms"`
	TotalOvertime        string        `json:"total_overtime"`
	TotalOvertimeMinutes int           `json:"total_overtime_minutes"`
	TotalJobNumbers      int           `json:"total_job_numbers"`
	UniqueJobNumbers     int           `json:"unique_job_numbers"`
	MostRelevantPosition PositionCount `json:"most_relevant_position"`
	MostRelevantLocation LocationCount `json:"most_relevant_location"`
	MostCommonReason     *ReasonCount  `json:"most_common_reason,omitempty"`
}

// Dashboard is the GET /api/dashboard response.
type Dashboard struct {
	DashboardSummary
	Mode  ExtractionMode `json:"extraction_mode"`
	Forms []FormListItem `json:"forms"`
}
