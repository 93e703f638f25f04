// Package provisioner is the boundary to the chat platform that owns
// the channels backing tickets. The lifecycle service persists ticket
// rows first and then asks this package to materialize, lock or rename
// the channel; failures here never roll back ticket state.
package provisioner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/uplink-support/ticketd/internal/config"
	"github.com/uplink-support/ticketd/internal/domain"
)

// ChannelProvisioner creates and manipulates the chat channel backing
// a ticket. Implementations must bound each call; callers do not
// retry.
type ChannelProvisioner interface {
	// CreateChannel materializes the backing channel for an already
	// persisted ticket under the given channel reference.
	CreateChannel(ctx context.Context, ticket *domain.Ticket) error
	// LockChannel revokes write access after a close.
	LockChannel(ctx context.Context, channelID string) error
	// RenameChannel relabels the channel, e.g. closed-<user>.
	RenameChannel(ctx context.Context, channelID, name string) error
}

type createChannelRequest struct {
	ChannelID   string `json:"channel_id"`
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	Reason      string `json:"reason"`
	Description string `json:"description,omitempty"`
}

type renameChannelRequest struct {
	Name string `json:"name"`
}

// Gateway talks to the chat-platform provisioning API over HTTP.
type Gateway struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

// NewGateway builds the HTTP provisioner client. Every call is bounded
// by the configured timeout.
func NewGateway(cfg config.ProvisionerConfig, logger *zap.Logger) *Gateway {
	return &Gateway{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.Timeout()},
		logger:  logger,
	}
}

// CreateChannel implements ChannelProvisioner.
func (g *Gateway) CreateChannel(ctx context.Context, ticket *domain.Ticket) error {
	payload := createChannelRequest{
		ChannelID:   ticket.ChannelID,
		UserID:      ticket.UserID,
		UserName:    ticket.UserName,
		Reason:      string(ticket.Reason),
		Description: ticket.Description,
	}
	return g.post(ctx, "/channels", payload)
}

// LockChannel implements ChannelProvisioner.
func (g *Gateway) LockChannel(ctx context.Context, channelID string) error {
	return g.post(ctx, fmt.Sprintf("/channels/%s/lock", channelID), nil)
}

// RenameChannel implements ChannelProvisioner.
func (g *Gateway) RenameChannel(ctx context.Context, channelID, name string) error {
	return g.post(ctx, fmt.Sprintf("/channels/%s/rename", channelID), renameChannelRequest{Name: name})
}

func (g *Gateway) post(ctx context.Context, path string, payload any) error {
	if g.baseURL == "" {
		g.logger.Warn("provisioner base URL not configured; skipping call", zap.String("path", path))
		return nil
	}

	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return fmt.Errorf("encode provisioner payload: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, &body)
	if err != nil {
		return fmt.Errorf("build provisioner request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("provisioner call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("provisioner call %s: status %d", path, resp.StatusCode)
	}
	return nil
}
