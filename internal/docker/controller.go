// Package docker runs a lab as a local Jupyter container. It implements the
// same contract as the gateway control client, for development without the
// cloud control plane.
package docker

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/shehryarbajwa/virtual-lab/internal/control"
	"github.com/shehryarbajwa/virtual-lab/pkg/models"
)

const managedBy = "virtual-lab"

// Controller starts and stops notebook containers on the local daemon.
type Controller struct {
	client *client.Client
	image  string
	port   string
	owner  string
}

var _ control.Controller = (*Controller)(nil)

// NewController connects to the Docker daemon from the environment.
func NewController(image, port, owner string) (*Controller, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Controller{
		client: cli,
		image:  image,
		port:   port,
		owner:  owner,
	}, nil
}

// ForUser returns a controller sharing the daemon connection that labels containers for owner.
func (c *Controller) ForUser(owner string) *Controller {
	cp := *c
	cp.owner = owner
	return &cp
}

// containerSpec builds the container for one lab. The notebook listens on
// port inside the container and is published on a random loopback port.
func containerSpec(img, port, labID, owner string) (*container.Config, *container.HostConfig) {
	containerPort := nat.Port(port + "/tcp")

	cfg := &container.Config{
		Image: img,
		Cmd: []string{
			"start-notebook.py",
			"--IdentityProvider.token=",
			"--ServerApp.password=",
		},
		Labels: map[string]string{
			"lab-id":     labID,
			"owner":      owner,
			"managed-by": managedBy,
		},
		ExposedPorts: nat.PortSet{
			containerPort: struct{}{},
		},
	}

	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			containerPort: []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: "0",
				},
			},
		},
		AutoRemove: false,
	}

	return cfg, hostCfg
}

// Start creates and starts a notebook container. Readiness is left to the prober.
func (c *Controller) Start(ctx context.Context) (models.StartResult, error) {
	labID := uuid.New().String()
	cfg, hostCfg := containerSpec(c.image, c.port, labID, c.owner)

	resp, err := c.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, fmt.Sprintf("lab-%s", labID[:8]))
	if err != nil {
		return models.StartResult{}, fmt.Errorf("failed to create container: %w", err)
	}

	if err := c.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		c.remove(resp.ID)
		return models.StartResult{}, fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := c.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		c.remove(resp.ID)
		return models.StartResult{}, fmt.Errorf("failed to inspect container: %w", err)
	}

	bindings := inspect.NetworkSettings.Ports[nat.Port(c.port+"/tcp")]
	if len(bindings) == 0 {
		c.remove(resp.ID)
		return models.StartResult{}, fmt.Errorf("container %s published no port for %s", shortID(resp.ID), c.port)
	}
	hostPort := bindings[0].HostPort

	klog.InfoS("Started notebook container", "container", shortID(resp.ID), "owner", c.owner, "port", hostPort)
	return models.StartResult{
		EndpointURL:  fmt.Sprintf("http://localhost:%s/lab", hostPort),
		RemoteHandle: resp.ID,
	}, nil
}

// Stop stops and removes a notebook container.
func (c *Controller) Stop(ctx context.Context, containerID string) error {
	if containerID == "" {
		return control.ErrMissingHandle
	}

	timeout := 10
	if err := c.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	if err := c.client.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}

	klog.InfoS("Removed notebook container", "container", shortID(containerID), "owner", c.owner)
	return nil
}

// EnsureImage pulls the notebook image if the daemon does not have it.
func (c *Controller) EnsureImage(ctx context.Context) error {
	images, err := c.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return err
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == c.image {
				return nil
			}
		}
	}

	klog.InfoS("Pulling notebook image", "image", c.image)
	reader, err := c.client.ImagePull(ctx, c.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// Close releases the daemon connection.
func (c *Controller) Close() error {
	return c.client.Close()
}

func (c *Controller) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		klog.ErrorS(err, "Failed to clean up container", "container", shortID(containerID))
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
