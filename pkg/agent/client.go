package agent

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mscrnt/nctmon/pkg/sensor"
)

// Client represents an agent client
type Client struct {
	config     ClientConfig
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new agent client
func NewClient(config ClientConfig) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tlsConfig, err := config.LoadClientTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS config: %w", err)
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
		Timeout: 30 * time.Second,
	}

	return &Client{
		config:     config,
		baseURL:    fmt.Sprintf("https://%s:%d", config.Host, config.Port),
		httpClient: httpClient,
	}, nil
}

// Connect fetches the configured endpoint and returns the response body
func (c *Client) Connect() ([]byte, error) {
	return c.Get(c.config.Endpoint)
}

// Get fetches an endpoint and returns the response body
func (c *Client) Get(endpoint string) ([]byte, error) {
	url := c.baseURL + "/" + strings.TrimPrefix(endpoint, "/")

	resp, err := c.httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}

// FetchSensors fetches a sensor snapshot
func (c *Client) FetchSensors() (*sensor.Snapshot, error) {
	body, err := c.Get("sensors")
	if err != nil {
		return nil, err
	}
	var snap sensor.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode sensors: %w", err)
	}
	return &snap, nil
}

// FetchChip fetches the chip identity
func (c *Client) FetchChip() (*ChipInfo, error) {
	body, err := c.Get("chip")
	if err != nil {
		return nil, err
	}
	var info ChipInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode chip info: %w", err)
	}
	return &info, nil
}

// CheckHealth checks if the agent is healthy
func (c *Client) CheckHealth() error {
	body, err := c.Get("health")
	if err != nil {
		return err
	}

	if string(body) != "OK\n" {
		return fmt.Errorf("unexpected health response: %s", string(body))
	}

	return nil
}
