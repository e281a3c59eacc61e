package client

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"

	"exceptionforms/models"
)

// UploadResult is the server's batch upload summary.
type UploadResult struct {
	Message string `json:"message"`
	Success int    `json:"success"`
	Failed  int    `json:"failed"`
	FormIDs []uint `json:"form_ids"`
}

// UploadFile posts one scanned form to the upload endpoint of formType.
func (c *Client) UploadFile(ctx context.Context, formType models.FormType, name string, r io.Reader) (*UploadResult, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", name)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.WriteField("form_type", string(formType))
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	resp, err := c.send(ctx, http.MethodPost, "/upload/"+string(formType), nil, pr, mw.FormDataContentType(), true)
	// Unblocks the writer goroutine when the request ended early.
	_ = pr.Close()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out UploadResult
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// File is the single file picked for an upload.
type File struct {
	Name string
	Body io.Reader
}

type UploadState int

const (
	UploadIdle UploadState = iota
	UploadSubmitting
	UploadSucceeded
	UploadNavigated
	UploadFailed
)

func (s UploadState) String() string {
	switch s {
	case UploadIdle:
		return "idle"
	case UploadSubmitting:
		return "submitting"
	case UploadSucceeded:
		return "succeeded"
	case UploadNavigated:
		return "navigated"
	case UploadFailed:
		return "failed"
	}
	return fmt.Sprintf("UploadState(%d)", int(s))
}

// DashboardRoute is where a successful upload of formType leads.
func DashboardRoute(formType models.FormType) string {
	return "/dashboard/" + string(formType)
}

// Uploader drives one upload form: idle, submitting, then either
// succeeded and navigated, or failed and back to idle.
type Uploader struct {
	client   *Client
	formType models.FormType

	// Navigate is called with the dashboard route after a successful upload.
	Navigate func(route string)
	// OnStateChange observes every transition.
	OnStateChange func(UploadState)

	mu    sync.Mutex
	state UploadState
}

func NewUploader(c *Client, formType models.FormType) *Uploader {
	return &Uploader{client: c, formType: formType}
}

func (u *Uploader) State() UploadState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

func (u *Uploader) transition(s UploadState) {
	u.mu.Lock()
	u.state = s
	notify := u.OnStateChange
	u.mu.Unlock()
	if notify != nil {
		notify(s)
	}
}

// Submit uploads f. Without a file it fails with ErrNoFile before any
// request is made; while another submit is running it fails with
// ErrUploadInProgress. A response in which no file was accepted fails
// with ErrUploadRejected and returns the server's counts with it.
func (u *Uploader) Submit(ctx context.Context, f *File) (*UploadResult, error) {
	if f == nil || f.Body == nil || f.Name == "" {
		return nil, ErrNoFile
	}

	u.mu.Lock()
	if u.state == UploadSubmitting {
		u.mu.Unlock()
		return nil, ErrUploadInProgress
	}
	u.state = UploadSubmitting
	notify := u.OnStateChange
	u.mu.Unlock()
	if notify != nil {
		notify(UploadSubmitting)
	}

	res, err := u.client.UploadFile(ctx, u.formType, f.Name, f.Body)
	if err == nil && res.Success == 0 && res.Failed > 0 {
		err = fmt.Errorf("%w: %d of %d file(s) failed", ErrUploadRejected, res.Failed, res.Failed+res.Success)
	}
	if err != nil {
		u.transition(UploadFailed)
		u.transition(UploadIdle)
		return res, err
	}

	u.transition(UploadSucceeded)
	if u.Navigate != nil {
		u.Navigate(DashboardRoute(u.formType))
	}
	u.transition(UploadNavigated)
	return res, nil
}
