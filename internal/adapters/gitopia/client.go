// Package gitopia talks to the gitopia API for user, DAO and repository
// metadata. Nothing is cached: every call goes to the API.
package gitopia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gitopia/gitopia-discord-bot/internal/domain"
	"github.com/gitopia/gitopia-discord-bot/internal/metrics"
)

// Client is an HTTP client for the gitopia lookup API.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	metrics *metrics.Metrics
}

func NewClient(baseURL string, timeout time.Duration, m *metrics.Metrics) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
		metrics: m,
	}
}

type userResponse struct {
	User *domain.User `json:"User"`
}

type daoResponse struct {
	DAO *domain.DAO `json:"dao"`
}

type repositoryResponse struct {
	Repository *domain.Repository `json:"Repository"`
}

// GetUser returns the profile of address. A user without a username is
// reported under the raw address with no avatar.
func (c *Client) GetUser(ctx context.Context, address string) (domain.User, error) {
	var resp userResponse
	if err := c.get(ctx, "user", "/user/"+url.PathEscape(address), &resp); err != nil {
		return domain.User{}, err
	}
	if resp.User == nil || resp.User.Username == "" {
		return domain.User{Username: address}, nil
	}
	return *resp.User, nil
}

// GetDAO returns the DAO registered at address.
func (c *Client) GetDAO(ctx context.Context, address string) (domain.DAO, error) {
	var resp daoResponse
	if err := c.get(ctx, "dao", "/dao/"+url.PathEscape(address), &resp); err != nil {
		return domain.DAO{}, err
	}
	if resp.DAO == nil || resp.DAO.Name == "" {
		return domain.DAO{}, fmt.Errorf("dao %s: unable to retrieve DAO name", address)
	}
	return *resp.DAO, nil
}

// GetRepository returns the owner reference and name of repository id.
func (c *Client) GetRepository(ctx context.Context, id string) (domain.Repository, error) {
	var resp repositoryResponse
	if err := c.get(ctx, "repository", "/repository/"+url.PathEscape(id), &resp); err != nil {
		return domain.Repository{}, err
	}
	if resp.Repository == nil {
		return domain.Repository{}, fmt.Errorf("repository %s: %w", id, domain.ErrNotFound)
	}
	return *resp.Repository, nil
}

func (c *Client) get(ctx context.Context, kind, path string, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.metrics == nil {
			return
		}
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.metrics.LookupDuration.WithLabelValues(kind, status).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", kind, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("get %s: %w", path, domain.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("get %s: unexpected status %d: %s", path, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", kind, err)
	}
	return nil
}
