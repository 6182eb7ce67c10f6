// ABOUTME: Server configuration and license fetchers

package client

import (
	"context"

	"github.com/2389/chatsync/model"
)

// GetClientConfig returns the server's client-visible configuration.
func (c *Client) GetClientConfig(ctx context.Context) (model.Config, error) {
	var cfg model.Config
	if err := c.doGet(ctx, "/config/client?format=old", &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetClientLicense returns the server's client-visible license flags.
func (c *Client) GetClientLicense(ctx context.Context) (model.License, error) {
	var license model.License
	if err := c.doGet(ctx, "/license/client?format=old", &license); err != nil {
		return nil, err
	}
	return license, nil
}
