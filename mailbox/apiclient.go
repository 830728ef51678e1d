package mailbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// RequestError wraps a transport-level failure: the request never produced
// a response.
type RequestError struct {
	Op  string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("mailbox: %s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// ServerError is a structured rejection from the backend.
type ServerError struct {
	Op      string
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("mailbox: %s: server rejected (%d): %s", e.Op, e.Status, e.Message)
}

// FolderPage is one page of raw records for a category.
type FolderPage struct {
	Mails      []RawRecord `json:"mails"`
	Pagination Pagination  `json:"pagination"`
}

// ComposeRequest creates a new workorder addressed to the given recipients.
type ComposeRequest struct {
	Subject string     `json:"subject"`
	Body    string     `json:"body"`
	To      []Identity `json:"to"`
	Cc      []Identity `json:"cc,omitempty"`
	Bcc     []Identity `json:"bcc,omitempty"`
}

// DraftRequest persists an unsent message.
type DraftRequest struct {
	To      string `json:"to"`
	Cc      string `json:"cc,omitempty"`
	Bcc     string `json:"bcc,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ReplyAttachment is one file uploaded with a reply.
type ReplyAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// APIClient talks to the mailbox REST API.
type APIClient struct {
	base   string
	token  string
	client *http.Client
}

// NewAPIClient creates a client for the given base URL (no trailing slash)
// and bearer token.
func NewAPIClient(base, token string) *APIClient {
	return &APIClient{
		base:   strings.TrimRight(base, "/"),
		token:  token,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *APIClient) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var rejection struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(data, &rejection)
		if rejection.Error == "" {
			rejection.Error = strings.TrimSpace(string(data))
		}
		return &ServerError{Op: op, Status: resp.StatusCode, Message: rejection.Error}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &RequestError{Op: op, Err: err}
		}
	}
	return nil
}

func (c *APIClient) doJSON(ctx context.Context, op, method, path string, payload, out interface{}) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return &RequestError{Op: op, Err: err}
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, op, method, path, body, contentType, out)
}

// FetchFolder retrieves one page of the given category (a folder name or a
// named filter).
func (c *APIClient) FetchFolder(ctx context.Context, cat Category, page int) (*FolderPage, error) {
	var out FolderPage
	path := fmt.Sprintf("/api/mailbox/%s?page=%d", cat, page)
	if err := c.doJSON(ctx, "fetch "+string(cat), http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PatchState flips one per-recipient flag (read, star, important) through
// the resolved handle: mailbox-item addressed when the row exists,
// workorder addressed otherwise. Returns the authoritative state row.
func (c *APIClient) PatchState(ctx context.Context, h Handle, verb string, value bool) (*RawMailboxItem, error) {
	var path string
	switch h.Kind {
	case ByMailboxItem:
		path = fmt.Sprintf("/api/mailbox/%d/%s", h.ID, verb)
	case ByWorkorder:
		path = fmt.Sprintf("/api/mailbox/workorder/%d/%s", h.ID, verb)
	}
	var out struct {
		MailboxItem RawMailboxItem `json:"mailbox_item"`
	}
	payload := map[string]bool{"value": value}
	if err := c.doJSON(ctx, "patch "+verb, http.MethodPatch, path, payload, &out); err != nil {
		return nil, err
	}
	return &out.MailboxItem, nil
}

// Move transitions a workorder to another folder.
func (c *APIClient) Move(ctx context.Context, workorderID int64, folder string) error {
	path := fmt.Sprintf("/api/mailbox/%d/move", workorderID)
	payload := map[string]string{"folder": folder}
	return c.doJSON(ctx, "move", http.MethodPatch, path, payload, nil)
}

// Compose creates a new workorder and returns its id. The created record
// reaches recipients through the realtime channel, not this response.
func (c *APIClient) Compose(ctx context.Context, req ComposeRequest) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	if err := c.doJSON(ctx, "compose", http.MethodPost, "/api/tasks/store", req, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// StoreDraft persists a draft.
func (c *APIClient) StoreDraft(ctx context.Context, req DraftRequest) error {
	return c.doJSON(ctx, "store draft", http.MethodPost, "/api/mailbox/drafts/store", req, nil)
}

// DeleteDraft removes a stored draft.
func (c *APIClient) DeleteDraft(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/api/mailbox/drafts/%d", id)
	return c.doJSON(ctx, "delete draft", http.MethodDelete, path, nil, nil)
}

// ReplyTo posts a reply with optional attachments as multipart form data.
func (c *APIClient) ReplyTo(ctx context.Context, workorderID int64, body string, atts []ReplyAttachment) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("workorder_id", fmt.Sprintf("%d", workorderID)); err != nil {
		return &RequestError{Op: "reply", Err: err}
	}
	if err := w.WriteField("body", body); err != nil {
		return &RequestError{Op: "reply", Err: err}
	}
	for _, a := range atts {
		fw, err := w.CreateFormFile("attachments", a.Filename)
		if err != nil {
			return &RequestError{Op: "reply", Err: err}
		}
		if _, err := fw.Write(a.Content); err != nil {
			return &RequestError{Op: "reply", Err: err}
		}
	}
	if err := w.Close(); err != nil {
		return &RequestError{Op: "reply", Err: err}
	}
	return c.do(ctx, "reply", http.MethodPost, "/api/mailbox/reply", &buf, w.FormDataContentType(), nil)
}
