package swarm

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/swarm"
	"github.com/docker/docker/client"

	"github.com/cuongbtq/palantiri/shared/docker"
	"github.com/cuongbtq/palantiri/shared/retry"
)

// Config holds cluster control plane configuration
type Config struct {
	Host          string // manager address, e.g. tcp://swarm-manager:2375
	DockPort      int    // port of the docker API on every dock
	OrgLabel      string // node label carrying the organization id
	TLSCertPath   string
	RetryAttempts int
	RetryInterval time.Duration
	CallTimeout   time.Duration
}

// Member is one dock in the cluster
type Member struct {
	Host string // http://addr:port
	Org  string // empty when the node has no org label
}

// NodeLister is the part of the docker API used to read cluster membership
type NodeLister interface {
	NodeList(ctx context.Context, options types.NodeListOptions) ([]swarm.Node, error)
}

// Client reads cluster membership from the swarm manager
type Client struct {
	api    NodeLister
	config Config
	logger *slog.Logger
}

// NewClient connects to the swarm manager at config.Host
func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	opts := []client.Opt{
		client.WithHost(docker.EngineHost(config.Host)),
		client.WithAPIVersionNegotiation(),
	}
	if config.TLSCertPath != "" {
		opts = append(opts, client.WithTLSClientConfig(
			filepath.Join(config.TLSCertPath, "ca.pem"),
			filepath.Join(config.TLSCertPath, "cert.pem"),
			filepath.Join(config.TLSCertPath, "key.pem"),
		))
	}

	api, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create swarm client: %w", err)
	}
	return NewWithLister(api, config, logger), nil
}

// NewWithLister creates a Client over an existing NodeLister
func NewWithLister(api NodeLister, config Config, logger *slog.Logger) *Client {
	if config.OrgLabel == "" {
		config.OrgLabel = "org"
	}
	if config.DockPort == 0 {
		config.DockPort = 4242
	}
	return &Client{api: api, config: config, logger: logger}
}

// ListMembers returns every dock currently in the cluster
func (c *Client) ListMembers(ctx context.Context) ([]Member, error) {
	nodes, err := retry.DoValue(ctx, c.config.RetryAttempts, c.config.RetryInterval, func(ctx context.Context) ([]swarm.Node, error) {
		if c.config.CallTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.config.CallTimeout)
			defer cancel()
		}
		nodes, err := c.api.NodeList(ctx, types.NodeListOptions{})
		if err != nil {
			c.logger.Warn("Failed to list swarm nodes", slog.Any("error", err))
		}
		return nodes, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cluster members: %w", err)
	}

	members := make([]Member, 0, len(nodes))
	for _, node := range nodes {
		if node.Status.Addr == "" {
			continue
		}
		members = append(members, Member{
			Host: "http://" + net.JoinHostPort(node.Status.Addr, strconv.Itoa(c.config.DockPort)),
			Org:  c.orgOf(node),
		})
	}
	return members, nil
}

func (c *Client) orgOf(node swarm.Node) string {
	if org := node.Spec.Labels[c.config.OrgLabel]; org != "" {
		return org
	}
	if node.Description.Engine.Labels != nil {
		return node.Description.Engine.Labels[c.config.OrgLabel]
	}
	return ""
}

// MemberExists reports whether host is still a cluster member. Hosts compare
// by address and port, ignoring scheme.
func (c *Client) MemberExists(ctx context.Context, host string) (bool, error) {
	members, err := c.ListMembers(ctx)
	if err != nil {
		return false, err
	}

	want := c.normalize(host)
	for _, m := range members {
		if c.normalize(m.Host) == want {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) normalize(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if strings.Contains(host, "://") {
		if u, err := url.Parse(host); err == nil {
			host = u.Host
		}
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, strconv.Itoa(c.config.DockPort))
	}
	return host
}
