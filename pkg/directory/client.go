// Package directory looks up organizations and users at the identity
// provider's REST API. Lookups are best-effort: callers treat any error as
// "no information available".
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"
)

var (
	// ErrNotConfigured is returned when no API secret is configured
	ErrNotConfigured = errors.New("directory not configured")
	// ErrNotFound is returned when the provider has no such record
	ErrNotFound = errors.New("directory record not found")
)

// Config configures the directory client
type Config struct {
	APIURL    string
	SecretKey string
	Timeout   time.Duration
}

// Organization is the provider's organization record
type Organization struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// EmailAddress is one of a user's addresses
type EmailAddress struct {
	ID           string `json:"id" validate:"required"`
	EmailAddress string `json:"email_address" validate:"required,email"`
}

// User is the provider's user record
type User struct {
	ID                    string         `json:"id" validate:"required"`
	FirstName             string         `json:"first_name"`
	LastName              string         `json:"last_name"`
	Username              string         `json:"username"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	EmailAddresses        []EmailAddress `json:"email_addresses" validate:"dive"`
}

// PrimaryEmail returns the user's primary address, or the first one
func (u *User) PrimaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

// DisplayName returns a human-readable name for the user
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	return u.PrimaryEmail()
}

// Client queries the identity provider with a server-held secret
type Client struct {
	http     *http.Client
	baseURL  string
	validate *validator.Validate
}

// NewClient creates a directory client
func NewClient(cfg Config) (*Client, error) {
	if cfg.SecretKey == "" {
		return nil, ErrNotConfigured
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.clerk.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.SecretKey,
		TokenType:   "Bearer",
	}))
	httpClient.Timeout = cfg.Timeout

	return &Client{
		http:     httpClient,
		baseURL:  strings.TrimRight(cfg.APIURL, "/"),
		validate: validator.New(),
	}, nil
}

// GetOrganization fetches an organization by id
func (c *Client) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	org := &Organization{}
	if err := c.get(ctx, "/organizations/"+url.PathEscape(id), org); err != nil {
		return nil, err
	}
	return org, nil
}

// GetUser fetches a user by id
func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	user := &User{}
	if err := c.get(ctx, "/users/"+url.PathEscape(id), user); err != nil {
		return nil, err
	}
	return user, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("directory returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode directory response: %w", err)
	}
	if err := c.validate.Struct(out); err != nil {
		return fmt.Errorf("invalid directory response: %w", err)
	}
	return nil
}
