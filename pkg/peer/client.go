// Package peer lets one tenant actor call another through the internal
// routes, authenticated with an internal token minted by the caller.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/platinummonkey/tenantd/pkg/auth"
	"github.com/platinummonkey/tenantd/pkg/tenant"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Minter issues internal tokens on behalf of a tenant
type Minter interface {
	MintInternalToken(organizationID, subjectID string) (string, error)
}

var _ Minter = (*tenant.Actor)(nil)

// Client calls internal tenant routes
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        logrus.FieldLogger
}

// NewClient creates a peer client for the service at baseURL
func NewClient(baseURL string, timeout time.Duration, log logrus.FieldLogger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: log.WithField("component", "peer"),
	}
}

// AliasRequest is the body of the internal alias route
type AliasRequest struct {
	Alias string `json:"alias"`
}

// AssociateAlias asks targetTenant to record alias. The token is minted by
// from for the organization/subject pair, so the target only accepts it when
// orgID names the target tenant.
func (c *Client) AssociateAlias(ctx context.Context, from Minter, orgID, subjectID, targetTenant, alias string) error {
	if !tenant.ValidTenantID(targetTenant) {
		return fmt.Errorf("%w: %q", tenant.ErrInvalidTenantID, targetTenant)
	}

	token, err := from.MintInternalToken(orgID, subjectID)
	if err != nil {
		return fmt.Errorf("failed to mint internal token: %w", err)
	}

	body, err := json.Marshal(AliasRequest{Alias: alias})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/internal/tenants/%s/alias", c.baseURL, url.PathEscape(targetTenant))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.InternalTokenHeader, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("alias request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.log.WithFields(logrus.Fields{
			"target_tenant": targetTenant,
			"status":        resp.StatusCode,
		}).Warn("Peer rejected alias request")
		return fmt.Errorf("alias request to %s returned %d: %s", targetTenant, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
