// Package pubsub connects the outbox relay to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/payout-ledger/pkg/config"
	"github.com/angelmondragon/payout-ledger/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("pubsub ledger topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client owns the Pub/Sub connection and one publisher per topic. Close
// flushes the publishers before closing the connection.
type Client struct {
	client    *pubsub.Client
	projectID string
	topics    []string
	create    bool

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient connects and checks that every configured topic exists, creating
// missing ones when cfg.CreateTopics is set. PUBSUB_EMULATOR_HOST is honoured
// by the underlying library.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	topics := topicNames(cfg)
	if len(topics) == 0 {
		return nil, errNoTopics
	}

	psClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	c := &Client{
		client:     psClient,
		projectID:  projectID,
		topics:     topics,
		create:     cfg.CreateTopics,
		publishers: map[string]*pubsub.Publisher{},
	}
	if err := c.checkTopics(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project_id": projectID,
			"topics":     topics,
		}), "pubsub.connected")
	}
	return c, nil
}

func topicNames(cfg config.PubSubConfig) []string {
	if trimmed := strings.TrimSpace(cfg.LedgerTopic); trimmed != "" {
		return []string{trimmed}
	}
	return nil
}

func (c *Client) checkTopics(ctx context.Context) error {
	for _, name := range c.topics {
		if err := c.checkTopic(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) checkTopic(ctx context.Context, name string) error {
	fullName := topicResourceName(c.projectID, name)
	if fullName == "" {
		return fmt.Errorf("topic %q not configured", name)
	}
	admin := c.client.TopicAdminClient
	_, err := admin.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: fullName})
	switch {
	case err == nil:
		return nil
	case status.Code(err) != codes.NotFound:
		return fmt.Errorf("get topic %q: %w", name, err)
	case !c.create:
		return fmt.Errorf("topic %q does not exist", name)
	}
	if _, err := admin.CreateTopic(ctx, &pubsubpb.Topic{Name: fullName}); err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("create topic %q: %w", name, err)
	}
	return nil
}

// Publisher returns the shared publisher for a topic id or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := topicResourceName(c.projectID, name)
	if fullName == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if pub, ok := c.publishers[fullName]; ok {
		return pub
	}
	pub := c.client.Publisher(fullName)
	c.publishers[fullName] = pub
	return pub
}

// Ping re-checks the configured topics.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	return c.checkTopics(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}

// topicResourceName expands a topic id into projects/<p>/topics/<id>. Full
// resource names pass through.
func topicResourceName(projectID, name string) string {
	n := strings.TrimSpace(name)
	switch {
	case n == "":
		return ""
	case strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/"):
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return "projects/" + p + "/topics/" + n
}
