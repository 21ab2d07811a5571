// Package directory resolves back-office user ids to contact profiles held
// by the external user service.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Profile is the subset of a remote user record needed for notifications.
type Profile struct {
	ID        uint   `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// FullName joins first and last name.
func (p Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// MarshalJSON adds the derived full_name.
func (p Profile) MarshalJSON() ([]byte, error) {
	type alias Profile
	return json.Marshal(struct {
		alias
		FullName string `json:"full_name"`
	}{alias: alias(p), FullName: p.FullName()})
}

// Source fetches one page of the remote directory. lastPage is the total
// number of pages reported by the remote.
type Source interface {
	FetchPage(ctx context.Context, page int) (profiles []Profile, lastPage int, err error)
}

// HTTPSource reads GET <base>/users?page=N&per_page=M.
type HTTPSource struct {
	baseURL  string
	token    string
	pageSize int
	client   *http.Client
}

// NewHTTPSource returns a Source backed by the remote user service.
func NewHTTPSource(baseURL, token string, pageSize int, timeout time.Duration) *HTTPSource {
	if pageSize <= 0 {
		pageSize = 100
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		pageSize: pageSize,
		client:   &http.Client{Timeout: timeout},
	}
}

type pageResponse struct {
	Data []Profile `json:"data"`
	Meta struct {
		CurrentPage int `json:"current_page"`
		LastPage    int `json:"last_page"`
	} `json:"meta"`
}

// FetchPage implements Source.
func (s *HTTPSource) FetchPage(ctx context.Context, page int) ([]Profile, int, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(s.pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/users?"+q.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch directory page %d: %w", page, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("fetch directory page %d: unexpected status %d", page, resp.StatusCode)
	}

	var body pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, 0, fmt.Errorf("decode directory page %d: %w", page, err)
	}
	lastPage := body.Meta.LastPage
	if lastPage < 1 {
		lastPage = 1
	}
	return body.Data, lastPage, nil
}
