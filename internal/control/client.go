// Package control starts and stops notebook environments through the lab
// gateway's control endpoint.
package control

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"k8s.io/klog/v2"

	"github.com/shehryarbajwa/virtual-lab/internal/remote"
	"github.com/shehryarbajwa/virtual-lab/pkg/models"
)

// ErrMissingHandle means stop was requested with no remote handle recorded.
var ErrMissingHandle = errors.New("no remote handle available to stop")

const (
	startPath = "/lab/start"
	stopPath  = "/lab/stop"
)

// Controller provisions and tears down a lab environment.
type Controller interface {
	Start(ctx context.Context) (models.StartResult, error)
	Stop(ctx context.Context, remoteHandle string) error
}

// Client is the gateway-backed Controller.
type Client struct {
	api *remote.Client
}

var _ Controller = (*Client)(nil)

// NewClient creates a control client on top of a gateway client.
func NewClient(api *remote.Client) *Client {
	return &Client{api: api}
}

// startPayload accepts both the current and the legacy field names.
type startPayload struct {
	EndpointURL  string `json:"endpointUrl"`
	RemoteHandle string `json:"remoteHandle"`
	JupyterURL   string `json:"jupyterUrl"`
	TaskArn      string `json:"taskArn"`
	PublicIP     string `json:"publicIp"`
	Error        string `json:"error"`
}

func (p startPayload) result() models.StartResult {
	r := models.StartResult{
		EndpointURL:  p.EndpointURL,
		RemoteHandle: p.RemoteHandle,
		PublicIP:     p.PublicIP,
	}
	if r.EndpointURL == "" {
		r.EndpointURL = p.JupyterURL
	}
	if r.RemoteHandle == "" {
		r.RemoteHandle = p.TaskArn
	}
	return r
}

// Start asks the control endpoint to provision a lab.
func (c *Client) Start(ctx context.Context) (models.StartResult, error) {
	const op = "start lab"

	resp, err := c.api.Do(ctx, op, http.MethodPost, startPath, nil)
	if err != nil {
		return models.StartResult{}, err
	}

	var payload startPayload
	if err := remote.Decode(op, resp.Body, &payload); err != nil {
		return models.StartResult{}, err
	}
	if msg := strings.TrimSpace(payload.Error); msg != "" {
		return models.StartResult{}, remote.Semantic(op, msg)
	}

	result := payload.result()
	if result.EndpointURL == "" || result.RemoteHandle == "" {
		return models.StartResult{}, remote.Semantic(op, "invalid response format from server")
	}

	klog.InfoS("Lab provisioned", "handle", result.RemoteHandle, "endpoint", result.EndpointURL)
	return result, nil
}

// stopRequest carries the handle under both names; older control
// deployments only read taskArn.
type stopRequest struct {
	RemoteHandle string `json:"remoteHandle"`
	TaskArn      string `json:"taskArn"`
}

// Stop asks the control endpoint to tear a lab down. Any 2xx is success
// unless the payload carries an explicit error.
func (c *Client) Stop(ctx context.Context, remoteHandle string) error {
	const op = "stop lab"

	if remoteHandle == "" {
		return ErrMissingHandle
	}

	resp, err := c.api.Do(ctx, op, http.MethodPost, stopPath, stopRequest{
		RemoteHandle: remoteHandle,
		TaskArn:      remoteHandle,
	})
	if err != nil {
		return err
	}

	if len(strings.TrimSpace(string(resp.Body))) == 0 {
		return nil
	}

	var payload struct {
		Error string `json:"error"`
	}
	if err := remote.Decode(op, resp.Body, &payload); err != nil {
		if errors.Is(err, remote.ErrTransport) {
			return err
		}
		klog.InfoS("Ignoring undecodable stop response", "handle", remoteHandle, "err", err)
		return nil
	}
	if msg := strings.TrimSpace(payload.Error); msg != "" {
		return remote.Semantic(op, msg)
	}

	klog.InfoS("Lab stopped", "handle", remoteHandle)
	return nil
}
