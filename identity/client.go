package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnauthenticated is returned when the identity endpoint rejects the
// bearer token with 401 or 419. The caller must treat the stored
// credentials as expired.
var ErrUnauthenticated = errors.New("identity endpoint rejected credentials")

// 419 is the Laravel-style "authentication timeout" status; treated the
// same as 401.
const statusSessionExpired = 419

// Config configures the client. HTTPClient overrides the default client
// built from Timeout.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client fetches canonical profiles from the identity endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient returns a client for the given base URL.
func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
		logger:  cfg.Logger,
	}
}

// Profile is the canonical server-side profile with legacy field aliases
// already resolved. IsActive is derived from account_status == "active".
type Profile struct {
	ID        string
	Email     string
	Role      string
	Phone     string
	City      string
	State     string
	Zip       string
	Company   string
	Bio       string
	IsActive  bool
	CreatedAt string
}

type wireProfile struct {
	ID            json.RawMessage `json:"id"`
	Email         string          `json:"email"`
	Role          string          `json:"role"`
	Phone         string          `json:"phone"`
	PhoneNumber   string          `json:"phonenumber"`
	City          string          `json:"city"`
	State         string          `json:"state"`
	Zip           string          `json:"zip"`
	Zipcode       string          `json:"zipcode"`
	Company       string          `json:"company"`
	CompanyName   string          `json:"company_name"`
	Bio           string          `json:"bio"`
	AccountStatus string          `json:"account_status"`
	CreatedAt     string          `json:"created_at"`
}

// FetchProfile requests the profile for the bearer token's holder. The
// request is cancelled when ctx is; the returned error wraps the context
// error in that case.
func (c *Client) FetchProfile(ctx context.Context, bearerToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/user", nil)
	if err != nil {
		return nil, fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == statusSessionExpired:
		return nil, ErrUnauthenticated
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("identity endpoint returned status %d", resp.StatusCode)
	}

	var w wireProfile
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return nil, fmt.Errorf("decode identity response: %w", err)
	}

	return w.toProfile(), nil
}

func (w *wireProfile) toProfile() *Profile {
	return &Profile{
		ID:        decodeID(w.ID),
		Email:     w.Email,
		Role:      w.Role,
		Phone:     firstNonEmpty(w.Phone, w.PhoneNumber),
		City:      w.City,
		State:     w.State,
		Zip:       firstNonEmpty(w.Zip, w.Zipcode),
		Company:   firstNonEmpty(w.Company, w.CompanyName),
		Bio:       w.Bio,
		IsActive:  w.AccountStatus == "active",
		CreatedAt: w.CreatedAt,
	}
}

// decodeID tolerates both string and numeric ids on the wire.
func decodeID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.Trim(string(raw), `"`)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
