package files

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/virtual-lab/internal/auth"
	"github.com/shehryarbajwa/virtual-lab/internal/remote"
)

type call struct {
	method string
	body   string
}

func newServer(t *testing.T, status int, body string) (*Client, *[]call) {
	t.Helper()
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		calls = append(calls, call{method: r.Method, body: string(data)})
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return NewClient(remote.NewClient(srv.URL, auth.StaticToken("tok"), nil, 5*time.Second)), &calls
}

func TestListDoubleEncoded(t *testing.T) {
	body := `{"statusCode":200,"body":"{\"success\":true,\"files\":[{\"name\":\"b.ipynb\",\"fullPath\":\"u/b.ipynb\",\"size\":2048,\"lastModified\":\"2026-01-02T10:00:00Z\",\"downloadUrl\":\"https://s3/b\"},{\"name\":\"a.csv\",\"fullPath\":\"u/a.csv\",\"size\":10,\"lastModified\":\"2026-01-01T10:00:00Z\"}],\"folders\":[{\"name\":\"data\",\"fullPath\":\"u/data/\"}]}"}`
	c, calls := newServer(t, http.StatusOK, body)

	listing, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, listing.Files, 2)
	require.Equal(t, "a.csv", listing.Files[0].Name)
	require.Equal(t, "b.ipynb", listing.Files[1].Name)
	require.Equal(t, int64(2048), listing.Files[1].Size)
	require.Equal(t, "https://s3/b", listing.Files[1].DownloadURL)
	require.Equal(t, []string{"data"}, []string{listing.Folders[0].Name})
	require.Equal(t, http.MethodGet, (*calls)[0].method)
}

func TestListEmpty(t *testing.T) {
	c, _ := newServer(t, http.StatusOK, `{"success":true}`)
	listing, err := c.List(context.Background())
	require.NoError(t, err)
	require.NotNil(t, listing.Files)
	require.Empty(t, listing.Files)
	require.Empty(t, listing.Folders)
}

func TestListFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   error
	}{
		{"success false", http.StatusOK, `{"success":false,"message":"bucket unavailable"}`, remote.ErrSemantic},
		{"error field", http.StatusOK, `{"body":"{\"error\":\"access denied\"}"}`, remote.ErrSemantic},
		{"server error", http.StatusInternalServerError, ``, remote.ErrTransport},
		{"not json", http.StatusOK, `<html>`, remote.ErrDecode},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newServer(t, tc.status, tc.body)
			_, err := c.List(context.Background())
			require.ErrorIs(t, err, tc.kind)
		})
	}
}

func TestDelete(t *testing.T) {
	c, calls := newServer(t, http.StatusOK, `{"body":"{\"success\":true}"}`)
	require.NoError(t, c.Delete(context.Background(), "u/a.csv"))
	require.Len(t, *calls, 1)
	require.Equal(t, http.MethodDelete, (*calls)[0].method)
	require.JSONEq(t, `{"filePath":"u/a.csv"}`, (*calls)[0].body)
}

func TestDeleteMissingPathMakesNoCall(t *testing.T) {
	c, calls := newServer(t, http.StatusOK, `{}`)
	require.ErrorIs(t, c.Delete(context.Background(), "  "), ErrMissingPath)
	require.Empty(t, *calls)
}

func TestDeleteReportedFailure(t *testing.T) {
	c, _ := newServer(t, http.StatusOK, `{"success":false,"error":"no such key"}`)
	err := c.Delete(context.Background(), "u/missing.txt")
	require.ErrorIs(t, err, remote.ErrSemantic)
	require.Contains(t, err.Error(), "no such key")
}

func TestUnavailable(t *testing.T) {
	var l Lister = Unavailable{}

	_, err := l.List(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, l.Delete(context.Background(), "a.txt"), ErrUnavailable)
}
