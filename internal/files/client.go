// Package files lists and deletes the objects a user saved from the
// notebook. It shares the gateway and its envelope with the control client
// but is independent of the lab session.
package files

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"

	"k8s.io/klog/v2"

	"github.com/shehryarbajwa/virtual-lab/internal/remote"
	"github.com/shehryarbajwa/virtual-lab/pkg/models"
)

var (
	// ErrMissingPath means delete was called without a file path.
	ErrMissingPath = errors.New("file path is required")
	// ErrUnavailable means no file storage is configured.
	ErrUnavailable = errors.New("file storage is not configured")
)

const filesPath = "/files"

// Lister is the file-browser contract.
type Lister interface {
	List(ctx context.Context) (models.FileListing, error)
	Delete(ctx context.Context, path string) error
}

// Client talks to the gateway's files route.
type Client struct {
	api *remote.Client
}

var _ Lister = (*Client)(nil)

// NewClient creates a files client.
func NewClient(api *remote.Client) *Client {
	return &Client{api: api}
}

type listPayload struct {
	Success *bool           `json:"success"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Files   []models.File   `json:"files"`
	Folders []models.Folder `json:"folders"`
}

// List returns the user's files and folders, folders first by name then files by name.
func (c *Client) List(ctx context.Context) (models.FileListing, error) {
	const op = "list files"

	resp, err := c.api.Do(ctx, op, http.MethodGet, filesPath, nil)
	if err != nil {
		return models.FileListing{}, err
	}

	var payload listPayload
	if err := remote.Decode(op, resp.Body, &payload); err != nil {
		return models.FileListing{}, err
	}
	if msg := failure(payload.Success, payload.Error, payload.Message); msg != "" {
		return models.FileListing{}, remote.Semantic(op, msg)
	}

	listing := models.FileListing{
		Files:   payload.Files,
		Folders: payload.Folders,
	}
	if listing.Files == nil {
		listing.Files = []models.File{}
	}
	if listing.Folders == nil {
		listing.Folders = []models.Folder{}
	}
	sort.SliceStable(listing.Folders, func(i, j int) bool { return listing.Folders[i].Name < listing.Folders[j].Name })
	sort.SliceStable(listing.Files, func(i, j int) bool { return listing.Files[i].Name < listing.Files[j].Name })

	klog.V(2).InfoS("Listed files", "files", len(listing.Files), "folders", len(listing.Folders))
	return listing, nil
}

// Delete removes one file by its full path.
func (c *Client) Delete(ctx context.Context, path string) error {
	const op = "delete file"

	path = strings.TrimSpace(path)
	if path == "" {
		return ErrMissingPath
	}

	resp, err := c.api.Do(ctx, op, http.MethodDelete, filesPath, models.DeleteFileRequest{FilePath: path})
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(resp.Body))) == 0 {
		return nil
	}

	var payload struct {
		Success *bool  `json:"success"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := remote.Decode(op, resp.Body, &payload); err != nil {
		return err
	}
	if msg := failure(payload.Success, payload.Error, payload.Message); msg != "" {
		return remote.Semantic(op, msg)
	}

	klog.InfoS("Deleted file", "path", path)
	return nil
}

// Unavailable is the Lister used when no file storage is configured.
type Unavailable struct{}

func (Unavailable) List(context.Context) (models.FileListing, error) {
	return models.FileListing{}, ErrUnavailable
}

func (Unavailable) Delete(context.Context, string) error {
	return ErrUnavailable
}

// failure returns the message of a payload that reported failure.
func failure(success *bool, errMsg, message string) string {
	if msg := strings.TrimSpace(errMsg); msg != "" {
		return msg
	}
	if success != nil && !*success {
		if msg := strings.TrimSpace(message); msg != "" {
			return msg
		}
		return "request was not successful"
	}
	return ""
}
