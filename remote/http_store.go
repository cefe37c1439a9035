// Package remote holds the RemoteStore backends: the cloud HTTP API client,
// a gorm document store (postgres in production) and an S3/R2 object store.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"yams-sync/models"
	"yams-sync/utils"
)

// ServiceTokenHeader authenticates device agents against the cloud API.
const ServiceTokenHeader = "X-Service-Token"

// HTTPStore talks to the cloud document API served by the `cloud` command.
type HTTPStore struct {
	BaseURL    *url.URL
	Token      string
	HTTPClient *http.Client

	// PingTimeout bounds the connectivity check.
	PingTimeout time.Duration
}

func NewHTTPStore(baseURL, token string, client *http.Client) (*HTTPStore, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid sync service URL '%s': %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid sync service URL '%s': missing scheme or host", baseURL)
	}
	if client == nil {
		client = utils.NewHTTPClient(0)
	}
	return &HTTPStore{
		BaseURL:     base,
		Token:       token,
		HTTPClient:  client,
		PingTimeout: 5 * time.Second,
	}, nil
}

// IsConnected calls GET /healthz.
func (s *HTTPStore) IsConnected(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.PingTimeout)
	defer cancel()
	resp, err := s.do(ctx, http.MethodGet, s.BaseURL.JoinPath("healthz"), nil)
	if err != nil {
		return false
	}
	drain(resp)
	return resp.StatusCode == http.StatusOK
}

func (s *HTTPStore) PutProfile(ctx context.Context, ownerID string, p models.PlayerProfile) error {
	resp, err := s.do(ctx, http.MethodPut, s.profileURL(ownerID, p.ID), p)
	if err != nil {
		return err
	}
	defer drain(resp)
	return expectStatus(resp, http.StatusOK, http.StatusCreated, http.StatusNoContent)
}

func (s *HTTPStore) GetProfile(ctx context.Context, ownerID, profileID string) (models.PlayerProfile, bool, error) {
	var p models.PlayerProfile
	resp, err := s.do(ctx, http.MethodGet, s.profileURL(ownerID, profileID), nil)
	if err != nil {
		return p, false, err
	}
	defer drain(resp)
	if resp.StatusCode == http.StatusNotFound {
		return p, false, nil
	}
	if err := expectStatus(resp, http.StatusOK); err != nil {
		return p, false, err
	}
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return p, false, fmt.Errorf("failed to decode profile: %w", err)
	}
	return p, true, nil
}

func (s *HTTPStore) ListProfiles(ctx context.Context, ownerID string) ([]models.PlayerProfile, error) {
	resp, err := s.do(ctx, http.MethodGet, s.ownerURL(ownerID, "profiles"), nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if err := expectStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	var response struct {
		Profiles []models.PlayerProfile `json:"profiles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode profiles: %w", err)
	}
	return response.Profiles, nil
}

// DeleteProfile tombstones the profile. A missing profile counts as deleted.
func (s *HTTPStore) DeleteProfile(ctx context.Context, ownerID, profileID string) error {
	resp, err := s.do(ctx, http.MethodDelete, s.profileURL(ownerID, profileID), nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	return expectStatus(resp, http.StatusOK, http.StatusNoContent, http.StatusNotFound)
}

func (s *HTTPStore) PutGameRecord(ctx context.Context, ownerID string, rec models.GameRecord) error {
	resp, err := s.do(ctx, http.MethodPost, s.ownerURL(ownerID, "games"), rec)
	if err != nil {
		return err
	}
	defer drain(resp)
	return expectStatus(resp, http.StatusOK, http.StatusCreated)
}

func (s *HTTPStore) ListGameRecords(ctx context.Context, ownerID string, filter models.GameRecordFilter) ([]models.GameRecord, error) {
	u := s.ownerURL(ownerID, "games")
	q := u.Query()
	if filter.PlayerID != "" {
		q.Set("playerId", filter.PlayerID)
	}
	if !filter.Since.IsZero() {
		q.Set("since", filter.Since.UTC().Format(time.RFC3339))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	u.RawQuery = q.Encode()

	resp, err := s.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if err := expectStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	var response struct {
		Games []models.GameRecord `json:"games"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode games: %w", err)
	}
	return response.Games, nil
}

func (s *HTTPStore) ownerURL(ownerID string, elem ...string) *url.URL {
	return s.BaseURL.JoinPath(append([]string{"api", "v1", "owners", ownerID}, elem...)...)
}

func (s *HTTPStore) profileURL(ownerID, profileID string) *url.URL {
	return s.ownerURL(ownerID, "profiles", profileID)
}

func (s *HTTPStore) do(ctx context.Context, method string, u *url.URL, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request to %s: %w", u.Redacted(), err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(ServiceTokenHeader, s.Token)

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, u.Redacted(), err)
	}
	return resp, nil
}

func expectStatus(resp *http.Response, ok ...int) error {
	for _, code := range ok {
		if resp.StatusCode == code {
			return nil
		}
	}
	// Read limited error body (avoid massive payloads)
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("sync service returned status %d: %s", resp.StatusCode, string(body))
}

// drain & close to prevent connection leaks
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
