// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package device reads energy measurements from a Tasmota-firmware smart plug.
//
// The plug answers GET /cm?cmnd=Status%2008 with a JSON document whose
// StatusSNS.ENERGY object carries the nine measurements the collector
// records. Each Fetch issues exactly one request; retry policy belongs to
// the caller.
//
// # Failure Kinds
//
//   - TimeoutError: the connection was not established within the connect
//     timeout, or the response was not fully read within the read timeout
//   - HTTPStatusError: the plug answered with a non-2xx status
//   - ParseError: the body is not JSON, violates the schema, or lacks one
//     of the nine required fields
//   - NetworkError: any other transport failure (connection refused,
//     no route to host)
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	"github.com/soothill/delock-energy-collector/pkg/interfaces"
	apperrors "github.com/soothill/delock-energy-collector/pkg/errors"
	"github.com/soothill/delock-energy-collector/pkg/logger"
)

// MaxBodySize caps how much of a response is read.
const MaxBodySize = 64 * 1024

// Client fetches readings from one device endpoint.
type Client struct {
	url            string
	addr           string
	connectTimeout time.Duration
	readTimeout    time.Duration
	httpClient     *http.Client
}

// energyPayload mirrors StatusSNS.ENERGY. Pointers distinguish absent from zero.
type energyPayload struct {
	Power         *float64 `json:"Power"`
	Total         *float64 `json:"Total"`
	Yesterday     *float64 `json:"Yesterday"`
	Today         *float64 `json:"Today"`
	ApparentPower *float64 `json:"ApparentPower"`
	ReactivePower *float64 `json:"ReactivePower"`
	Factor        *float64 `json:"Factor"`
	Voltage       *float64 `json:"Voltage"`
	Current       *float64 `json:"Current"`
}

type statusResponse struct {
	StatusSNS struct {
		Energy *energyPayload `json:"ENERGY"`
	} `json:"StatusSNS"`
}

// NewClient creates a client for rawURL with distinct connect and read timeouts.
func NewClient(rawURL string, connectTimeout, readTimeout time.Duration) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, apperrors.NewConfigError("DEVICE_URL", rawURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, apperrors.NewConfigError("DEVICE_URL", rawURL, fmt.Errorf("%w: unsupported scheme %q", apperrors.ErrInvalidValue, parsed.Scheme))
	}
	if parsed.Host == "" {
		return nil, apperrors.NewConfigError("DEVICE_URL", rawURL, fmt.Errorf("%w: missing host", apperrors.ErrInvalidValue))
	}

	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: readTimeout,
		DisableKeepAlives:     true,
		MaxIdleConns:          1,
	}

	return &Client{
		url:            rawURL,
		addr:           parsed.Host,
		connectTimeout: connectTimeout,
		readTimeout:    readTimeout,
		httpClient:     &http.Client{Transport: transport},
	}, nil
}

// URL returns the endpoint this client polls.
func (c *Client) URL() string {
	return c.url
}

// Fetch performs one GET against the device and returns a complete Reading.
func (c *Client) Fetch(ctx context.Context) (*interfaces.Reading, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.connectTimeout+c.readTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, apperrors.NewNetworkError("build request", c.addr, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classifyTransportError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxBodySize))
		return nil, apperrors.NewHTTPStatusError(c.url, resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		if isTimeout(err) {
			return nil, apperrors.NewTimeoutError("read body", c.addr, err)
		}
		return nil, apperrors.NewNetworkError("read body", c.addr, err)
	}
	if len(body) > MaxBodySize {
		return nil, apperrors.NewParseError("", apperrors.ErrBodyTooLarge)
	}

	reading, err := ParseStatus(body)
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("device", c.addr).
		Float64("power_w", reading.Power).
		Float64("voltage_v", reading.Voltage).
		Float64("current_a", reading.Current).
		Msg("Energy reading fetched")

	return reading, nil
}

// ParseStatus validates and decodes a Status 8 response body.
func ParseStatus(body []byte) (*interfaces.Reading, error) {
	if err := ValidatePayload(body); err != nil {
		return nil, err
	}

	var status statusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, apperrors.NewParseError("", err)
	}

	e := status.StatusSNS.Energy
	if e == nil {
		return nil, apperrors.NewParseError("ENERGY", apperrors.ErrMissingField)
	}

	fields := []struct {
		name  string
		value *float64
	}{
		{"Power", e.Power},
		{"Total", e.Total},
		{"Yesterday", e.Yesterday},
		{"Today", e.Today},
		{"ApparentPower", e.ApparentPower},
		{"ReactivePower", e.ReactivePower},
		{"Factor", e.Factor},
		{"Voltage", e.Voltage},
		{"Current", e.Current},
	}
	for _, f := range fields {
		if f.value == nil {
			return nil, apperrors.NewParseError(f.name, apperrors.ErrMissingField)
		}
	}

	return &interfaces.Reading{
		Power:         *e.Power,
		Total:         *e.Total,
		Yesterday:     *e.Yesterday,
		Today:         *e.Today,
		ApparentPower: *e.ApparentPower,
		ReactivePower: *e.ReactivePower,
		Factor:        *e.Factor,
		Voltage:       *e.Voltage,
		Current:       *e.Current,
	}, nil
}

// classifyTransportError maps an http.Client error to a typed error.
func (c *Client) classifyTransportError(err error) error {
	if !isTimeout(err) {
		return apperrors.NewNetworkError("request", c.addr, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return apperrors.NewTimeoutError("connect", c.addr, err)
	}
	return apperrors.NewTimeoutError("read", c.addr, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
