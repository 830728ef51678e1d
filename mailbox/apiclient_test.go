package mailbox

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIClientFetchFolder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/mailbox/mensajes", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(FolderPage{
			Mails:      []RawRecord{{ID: 1}},
			Pagination: Pagination{Page: 2, PerPage: 20, Total: 21, TotalPages: 2},
		})
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "tok")
	page, err := c.FetchFolder(context.Background(), CategoryInbox, 2)
	require.NoError(t, err)
	require.Len(t, page.Mails, 1)
	assert.Equal(t, 21, page.Pagination.Total)
}

func TestAPIClientServerRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"not a recipient"}`))
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "tok")
	_, err := c.FetchFolder(context.Background(), CategoryInbox, 1)
	require.Error(t, err)

	var srvErr *ServerError
	require.ErrorAs(t, err, &srvErr)
	assert.Equal(t, http.StatusForbidden, srvErr.Status)
	assert.Equal(t, "not a recipient", srvErr.Message)
}

func TestAPIClientRequestError(t *testing.T) {
	// Closed server: the request never produces a response.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewAPIClient(srv.URL, "tok")
	_, err := c.FetchFolder(context.Background(), CategoryInbox, 1)
	require.Error(t, err)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.NotNil(t, reqErr.Unwrap())
}

func TestAPIClientPatchStatePaths(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var body map[string]bool
		json.NewDecoder(r.Body).Decode(&body)
		assert.True(t, body["value"])
		json.NewEncoder(w).Encode(map[string]RawMailboxItem{"mailbox_item": {ID: 9}})
	}))
	defer srv.Close()
	c := NewAPIClient(srv.URL, "tok")

	item, err := c.PatchState(context.Background(), Handle{Kind: ByMailboxItem, ID: 9}, "star", true)
	require.NoError(t, err)
	assert.Equal(t, "/api/mailbox/9/star", gotPath)
	assert.Equal(t, int64(9), item.ID)

	_, err = c.PatchState(context.Background(), Handle{Kind: ByWorkorder, ID: 3}, "read", true)
	require.NoError(t, err)
	assert.Equal(t, "/api/mailbox/workorder/3/read", gotPath)
}

func TestAPIClientReplyToMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1 << 20))
		assert.Equal(t, "3", r.FormValue("workorder_id"))
		assert.Equal(t, "con archivo", r.FormValue("body"))

		files := r.MultipartForm.File["attachments"]
		require.Len(t, files, 1)
		assert.Equal(t, "nota.txt", files[0].Filename)
		f, err := files[0].Open()
		require.NoError(t, err)
		defer f.Close()
		content, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, "contenido", string(content))

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"reply":{"id":1}}`))
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "tok")
	err := c.ReplyTo(context.Background(), 3, "con archivo", []ReplyAttachment{
		{Filename: "nota.txt", ContentType: "text/plain", Content: []byte("contenido")},
	})
	require.NoError(t, err)
}

func TestAPIClientCompose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tasks/store", r.URL.Path)
		var req ComposeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "asunto", req.Subject)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":42}`))
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "tok")
	id, err := c.Compose(context.Background(), ComposeRequest{
		Subject: "asunto",
		Body:    "cuerpo",
		To:      []Identity{{Email: "luis@acme.com"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestAPIClientDeleteDraft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/mailbox/drafts/9", r.URL.Path)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "tok")
	require.NoError(t, c.DeleteDraft(context.Background(), 9))
}
