package client

import (
	"context"
	"net/http"
	"net/url"

	"exceptionforms/models"
)

type FallbackReason string

const (
	// FallbackNoRawData means no raw payload was ever captured for the form.
	FallbackNoRawData FallbackReason = "no_raw_data"
	// FallbackOtherMode means a raw payload exists, but only under mapped mode.
	FallbackOtherMode FallbackReason = "other_mode"
)

// Fallback is set on a FormResult when a pure-mode fetch had to be
// answered with the mapped view.
type Fallback struct {
	Requested models.ExtractionMode
	Reason    FallbackReason
}

func (f *Fallback) Notice() string {
	if f.Reason == FallbackOtherMode {
		return "Raw extraction data is only available in mapped mode; showing the mapped form."
	}
	return "No raw extraction data was captured for this form; showing the mapped form."
}

// FormResult is a fetched form. Fallback is nil when the form was served in
// the requested mode.
type FormResult struct {
	models.FormDetail
	Fallback *Fallback
}

func (c *Client) fetchForm(ctx context.Context, id uint, mode models.ExtractionMode) (*models.FormDetail, error) {
	q := url.Values{}
	if mode != models.ModeNone {
		q.Set("extraction_mode", string(mode))
	}
	var out models.FormDetail
	if err := c.doJSON(ctx, http.MethodGet, formPath(id), q, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetForm fetches a form in mode. A pure fetch of a form without a pure
// payload is retried in mapped mode and flagged with a Fallback.
func (c *Client) GetForm(ctx context.Context, id uint, mode models.ExtractionMode) (*FormResult, error) {
	detail, err := c.fetchForm(ctx, id, mode)
	if err != nil {
		return nil, err
	}
	if mode != models.ModePure || detail.Form.RawExtractedData != "" {
		return &FormResult{FormDetail: *detail}, nil
	}

	fallback := &Fallback{Requested: mode, Reason: FallbackNoRawData}
	for _, m := range detail.RawDataModes {
		if m == models.ModeMapped {
			fallback.Reason = FallbackOtherMode
		}
	}

	mapped, err := c.fetchForm(ctx, id, models.ModeMapped)
	if err != nil {
		return nil, err
	}
	return &FormResult{FormDetail: *mapped, Fallback: fallback}, nil
}

// SaveForm submits the whole form and its rows, then returns the stored
// copy as re-fetched from the server. On failure nothing is retried and
// update is left untouched.
func (c *Client) SaveForm(ctx context.Context, id uint, update models.FormUpdate, mode models.ExtractionMode) (*FormResult, error) {
	q := url.Values{}
	if mode != models.ModeNone {
		q.Set("extraction_mode", string(mode))
	}
	if err := c.doJSON(ctx, http.MethodPut, formPath(id), q, update, nil, true); err != nil {
		return nil, err
	}
	return c.GetForm(ctx, id, mode)
}
