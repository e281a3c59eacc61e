package models

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type FormType string

const (
	FormTypeHourly     FormType = "hourly"
	FormTypeSupervisor FormType = "supervisor"
)

// ParseFormType accepts the two known form types. An empty value is hourly.
func ParseFormType(s string) (FormType, error) {
	switch FormType(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormTypeHourly:
		return FormTypeHourly, nil
	case FormTypeSupervisor:
		return FormTypeSupervisor, nil
	}
	return "", fmt.Errorf("unknown form type %q", s)
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusError     Status = "error"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusProcessed || s == StatusError
}

// ExtractionMode is both the mode a user works in (pure or mapped) and the
// mode a record was stored under, which may also be combined or empty for
// records that predate dual extraction.
type ExtractionMode string

const (
	ModeNone     ExtractionMode = ""
	ModePure     ExtractionMode = "pure"
	ModeMapped   ExtractionMode = "mapped"
	ModeCombined ExtractionMode = "combined"
)

// ParseMode parses a requested mode. Empty means no mode filter.
func ParseMode(s string) (ExtractionMode, error) {
	switch ExtractionMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeNone:
		return ModeNone, nil
	case ModePure:
		return ModePure, nil
	case ModeMapped:
		return ModeMapped, nil
	}
	return "", fmt.Errorf("invalid extraction mode %q", s)
}

// StoredModes lists the stored record modes visible under a requested mode.
// nil means every record.
func StoredModes(mode ExtractionMode) []ExtractionMode {
	switch mode {
	case ModePure:
		return []ExtractionMode{ModePure, ModeCombined}
	case ModeMapped:
		return []ExtractionMode{ModeMapped, ModeCombined, ModeNone}
	}
	return nil
}

// FormFields holds every editable header field of both form layouts.
type FormFields struct {
	// Hourly exception claim
	PassNumber        string `gorm:"size:50;index" json:"pass_number"`
	Title             string `gorm:"size:100" json:"title"`
	EmployeeName      string `gorm:"size:200" json:"employee_name"`
	RDOs              string `gorm:"column:rdos;size:50" json:"rdos"`
	ActualOTDate      string `gorm:"size:50" json:"actual_ot_date"`
	Div               string `gorm:"size:50" json:"div"`
	Comments          string `gorm:"type:text" json:"comments"`
	SupervisorName    string `gorm:"size:200" json:"supervisor_name"`
	SupervisorPassNo  string `gorm:"size:50" json:"supervisor_pass_no"`
	OTO               string `gorm:"size:50" json:"oto"`
	OTOAmountSaved    string `gorm:"size:50" json:"oto_amount_saved"`
	EnteredInUTS      string `gorm:"size:50" json:"entered_in_uts"`
	RegularAssignment string `gorm:"size:200" json:"regular_assignment"`
	Report            string `gorm:"size:100" json:"report"`
	Relief            string `gorm:"size:100" json:"relief"`
	TodaysDate        string `gorm:"size:50" json:"todays_date"`

	// Supervisor overtime authorization
	Reg                                  string `gorm:"size:50" json:"reg"`
	SuperintendentAuthorizationSignature string `gorm:"size:200" json:"superintendent_authorization_signature"`
	SuperintendentAuthorizationPass      string `gorm:"size:50" json:"superintendent_authorization_pass"`
	SuperintendentAuthorizationDate      string `gorm:"size:50" json:"superintendent_authorization_date"`
	EnteredIntoUTS                       string `gorm:"size:50" json:"entered_into_uts"`
	OvertimeHours                        string `gorm:"size:50" json:"overtime_hours"`
	ReportLoc                            string `gorm:"size:200" json:"report_loc"`
	OvertimeLocation                     string `gorm:"size:200" json:"overtime_location"`
	ReportTime                           string `gorm:"size:50" json:"report_time"`
	ReliefTime                           string `gorm:"size:50" json:"relief_time"`
	DateOfOvertime                       string `gorm:"size:50" json:"date_of_overtime"`
	JobNumber                            string `gorm:"size:100" json:"job_number"`
	RCNumber                             string `gorm:"size:100" json:"rc_number"`
	AcctNumber                           string `gorm:"size:100" json:"acct_number"`
	Amount                               string `gorm:"size:50" json:"amount"`

	ReasonRDO              bool `json:"reason_rdo"`
	ReasonAbsenteeCoverage bool `json:"reason_absentee_coverage"`
	ReasonNoLunch          bool `json:"reason_no_lunch"`
	ReasonEarlyReport      bool `json:"reason_early_report"`
	ReasonLateClear        bool `json:"reason_late_clear"`
	ReasonSaveAsOTO        bool `json:"reason_save_as_oto"`
	ReasonCapitalSupportGO bool `json:"reason_capital_support_go"`
	ReasonOther            bool `json:"reason_other"`
}

// Reasons returns the checked reason keys in form order.
func (f *FormFields) Reasons() []string {
	var out []string
	for _, r := range []struct {
		key string
		set bool
	}{
		{"reason_rdo", f.ReasonRDO},
		{"reason_absentee_coverage", f.ReasonAbsenteeCoverage},
		{"reason_no_lunch", f.ReasonNoLunch},
		{"reason_early_report", f.ReasonEarlyReport},
		{"reason_late_clear", f.ReasonLateClear},
		{"reason_save_as_oto", f.ReasonSaveAsOTO},
		{"reason_capital_support_go", f.ReasonCapitalSupportGO},
		{"reason_other", f.ReasonOther},
	} {
		if r.set {
			out = append(out, r.key)
		}
	}
	return out
}

// SetReason checks the reason box named by key. Unknown keys are ignored.
func (f *FormFields) SetReason(key string, checked bool) bool {
	switch key {
	case "reason_rdo":
		f.ReasonRDO = checked
	case "reason_absentee_coverage":
		f.ReasonAbsenteeCoverage = checked
	case "reason_no_lunch":
		f.ReasonNoLunch = checked
	case "reason_early_report":
		f.ReasonEarlyReport = checked
	case "reason_late_clear":
		f.ReasonLateClear = checked
	case "reason_save_as_oto":
		f.ReasonSaveAsOTO = checked
	case "reason_capital_support_go":
		f.ReasonCapitalSupportGO = checked
	case "reason_other":
		f.ReasonOther = checked
	default:
		return false
	}
	return true
}

// ApplyEdits copies into f every field whose value in edited differs
// from shown, the view the editor started from. Untouched fields keep
// their stored value.
func (f *FormFields) ApplyEdits(shown, edited FormFields) {
	dst := reflect.ValueOf(f).Elem()
	before := reflect.ValueOf(shown)
	after := reflect.ValueOf(edited)
	for i := 0; i < dst.NumField(); i++ {
		if !reflect.DeepEqual(before.Field(i).Interface(), after.Field(i).Interface()) {
			dst.Field(i).Set(after.Field(i))
		}
	}
}

type FormRecord struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time      `json:"-"`
	UpdatedAt      time.Time      `json:"-"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
	FormType       FormType       `gorm:"size:20;not null;index" json:"form_type"`
	Status         Status         `gorm:"size:20;not null;index" json:"status"`
	Username       string         `gorm:"size:100" json:"username"`
	FileName       string         `gorm:"size:255" json:"fileName"`
	StoredFile     string         `gorm:"size:500" json:"-"`
	UploadDate     time.Time      `gorm:"index" json:"upload_date"`
	ExtractionMode ExtractionMode `gorm:"size:20;index" json:"extraction_mode"`

	FormFields `gorm:"embedded"`

	RawExtractedData       datatypes.JSON `json:"-"`
	RawExtractedDataPure   datatypes.JSON `json:"-"`
	RawExtractedDataMapped datatypes.JSON `json:"-"`

	Rows []FormRow `gorm:"foreignKey:FormID;constraint:OnDelete:CASCADE" json:"rows,omitempty"`
}

// Normalize applies the record invariants before any write: a missing
// form type is hourly, supervisor forms carry no rows and rows are
// numbered in order.
func (f *FormRecord) Normalize() {
	if f.FormType == "" {
		f.FormType = FormTypeHourly
	}
	if f.Status == "" {
		f.Status = StatusPending
	}
	if f.FormType == FormTypeSupervisor {
		f.Rows = nil
	}
	for i := range f.Rows {
		f.Rows[i].ID = 0
		f.Rows[i].FormID = f.ID
		f.Rows[i].Position = i
	}
}

// RawFor returns the raw extraction payload visible under mode.
func (f *FormRecord) RawFor(mode ExtractionMode) datatypes.JSON {
	if f.ExtractionMode == ModeCombined {
		if mode == ModePure {
			return nonEmpty(f.RawExtractedDataPure)
		}
		return nonEmpty(f.RawExtractedDataMapped)
	}
	if mode == ModePure && f.ExtractionMode != ModePure {
		return nil
	}
	return nonEmpty(f.RawExtractedData)
}

// RawModes lists the modes under which this record holds a raw payload.
func (f *FormRecord) RawModes() []ExtractionMode {
	modes := []ExtractionMode{}
	if f.ExtractionMode == ModeCombined {
		if nonEmpty(f.RawExtractedDataPure) != nil {
			modes = append(modes, ModePure)
		}
		if nonEmpty(f.RawExtractedDataMapped) != nil {
			modes = append(modes, ModeMapped)
		}
		return modes
	}
	if nonEmpty(f.RawExtractedData) != nil {
		if f.ExtractionMode == ModePure {
			modes = append(modes, ModePure)
		} else {
			modes = append(modes, ModeMapped)
		}
	}
	return modes
}

// SetRaw stores an edited raw payload in the slot that RawFor(mode) reads.
func (f *FormRecord) SetRaw(mode ExtractionMode, raw datatypes.JSON) {
	if f.ExtractionMode == ModeCombined {
		if mode == ModePure {
			f.RawExtractedDataPure = raw
		} else {
			f.RawExtractedDataMapped = raw
		}
		return
	}
	f.RawExtractedData = raw
}

// Location is the single location shown in listings.
func (f *FormRecord) Location() string {
	if f.FormType == FormTypeSupervisor {
		if f.OvertimeLocation != "" {
			return f.OvertimeLocation
		}
		return f.ReportLoc
	}
	for _, row := range f.Rows {
		if row.LineLocation != "" {
			return row.LineLocation
		}
	}
	return ""
}

// PrimaryJobNumber is the job number shown in listings.
func (f *FormRecord) PrimaryJobNumber() string {
	if f.FormType == FormTypeSupervisor {
		return f.JobNumber
	}
	for _, row := range f.Rows {
		if row.TAJobNo != "" {
			return row.TAJobNo
		}
	}
	return ""
}

func nonEmpty(raw datatypes.JSON) datatypes.JSON {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" || s == "{}" {
		return nil
	}
	return raw
}

type FormRow struct {
	ID                  uint   `gorm:"primaryKey" json:"id"`
	FormID              uint   `gorm:"not null;index" json:"form_id"`
	Position            int    `json:"position"`
	Code                string `gorm:"size:50" json:"code"`
	CodeDescription     string `gorm:"size:200" json:"code_description"`
	LineLocation        string `gorm:"size:200" json:"line_location"`
	RunNo               string `gorm:"size:50" json:"run_no"`
	ExceptionTimeFromHH string `gorm:"size:10" json:"exception_time_from_hh"`
	ExceptionTimeFromMM string `gorm:"size:10" json:"exception_time_from_mm"`
	ExceptionTimeToHH   string `gorm:"size:10" json:"exception_time_to_hh"`
	ExceptionTimeToMM   string `gorm:"size:10" json:"exception_time_to_mm"`
	OvertimeHH          string `gorm:"size:10" json:"overtime_hh"`
	OvertimeMM          string `gorm:"size:10" json:"overtime_mm"`
	BonusHH             string `gorm:"size:10" json:"bonus_hh"`
	BonusMM             string `gorm:"size:10" json:"bonus_mm"`
	NiteDiffHH          string `gorm:"size:10" json:"nite_diff_hh"`
	NiteDiffMM          string `gorm:"size:10" json:"nite_diff_mm"`
	TAJobNo             string `gorm:"size:100" json:"ta_job_no"`
}

// FormListItem is one dashboard table entry.
type FormListItem struct {
	ID             uint           `json:"id"`
	FormType       FormType       `json:"form_type"`
	Status         Status         `json:"status"`
	PassNumber     string         `json:"pass_number"`
	Title          string         `json:"title"`
	EmployeeName   string         `json:"employee_name"`
	ActualOTDate   string         `json:"actual_ot_date"`
	Div            string         `json:"div"`
	Comments       string         `json:"comments"`
	FileName       string         `json:"fileName"`
	UploadDate     time.Time      `json:"upload_date"`
	ExtractionMode ExtractionMode `json:"extraction_mode"`
	Location       string         `json:"location"`
	JobNumber      string         `json:"job_number"`
	OvertimeHours  string         `json:"overtime_hours,omitempty"`
}

// FormView is the detail view of a record. RawExtractedData carries the
// JSON-encoded payload for the requested mode, empty when there is none.
type FormView struct {
	ID             uint           `json:"id"`
	FormType       FormType       `json:"form_type"`
	Status         Status         `json:"status"`
	Username       string         `json:"username"`
	FileName       string         `json:"fileName"`
	UploadDate     time.Time      `json:"upload_date"`
	ExtractionMode ExtractionMode `json:"extraction_mode"`
	FormFields
	RawExtractedData string `json:"raw_extracted_data"`
}

// FormDetail is the GET /api/form/:id response.
type FormDetail struct {
	Form         FormView         `json:"form"`
	Rows         []FormRow        `json:"rows"`
	Mode         ExtractionMode   `json:"mode"`
	RawDataModes []ExtractionMode `json:"raw_data_modes"`
}

// FormUpdate is the PUT /api/form/:id payload.
type FormUpdate struct {
	Form FormView  `json:"form"`
	Rows []FormRow `json:"rows"`
}
