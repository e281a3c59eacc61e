package client

import (
	"context"
	"fmt"

	"exceptionforms/filter"
	"exceptionforms/models"
)

// DashboardView is one dashboard keyed by form type and extraction mode.
// The server summary is shown as fetched; Filter only narrows the rows.
type DashboardView struct {
	client   *Client
	FormType models.FormType
	Filter   filter.Filter

	mode models.ExtractionMode
	data *models.Dashboard
}

// NewDashboardView returns an unloaded view. An empty formType shows
// every form type.
func NewDashboardView(c *Client, formType models.FormType, mode models.ExtractionMode) *DashboardView {
	return &DashboardView{client: c, FormType: formType, mode: mode}
}

func (v *DashboardView) Mode() models.ExtractionMode { return v.mode }

// Refresh replaces the loaded data with a fresh fetch. On error the view
// keeps no data rather than stale rows of another mode.
func (v *DashboardView) Refresh(ctx context.Context) error {
	data, err := v.client.Dashboard(ctx, v.FormType, v.mode)
	if err != nil {
		v.data = nil
		return err
	}
	v.data = data
	return nil
}

// SetMode switches the extraction mode and refetches.
func (v *DashboardView) SetMode(ctx context.Context, mode models.ExtractionMode) error {
	if _, err := models.ParseMode(string(mode)); err != nil {
		return err
	}
	v.mode = mode
	v.data = nil
	return v.Refresh(ctx)
}

func (v *DashboardView) Loaded() bool { return v.data != nil }

// Summary returns the server-computed counters, or nil before a load.
func (v *DashboardView) Summary() *models.DashboardSummary {
	if v.data == nil {
		return nil
	}
	return &v.data.DashboardSummary
}

// Rows returns the loaded forms that pass the form type view and Filter.
func (v *DashboardView) Rows() []models.FormListItem {
	if v.data == nil {
		return nil
	}
	f := v.Filter
	if f.FormType == "" {
		f.FormType = v.FormType
	}
	return f.Apply(v.data.Forms)
}

// VisibleCount is the local "total forms" counter for the filtered table.
func (v *DashboardView) VisibleCount() int {
	return len(v.Rows())
}

// Title names the view for headings.
func (v *DashboardView) Title() string {
	kind := "All forms"
	switch v.FormType {
	case models.FormTypeHourly:
		kind = "Hourly exception claims"
	case models.FormTypeSupervisor:
		kind = "Supervisor overtime authorizations"
	}
	if v.mode == models.ModeNone {
		return kind
	}
	return fmt.Sprintf("%s (%s)", kind, v.mode)
}
