package sheets

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	scope           = "https://www.googleapis.com/auth/spreadsheets"
	defaultTokenURL = "https://oauth2.googleapis.com/token"
	assertionTTL    = time.Hour
	jwtBearerGrant  = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

// ServiceAccount is the subset of a Google service-account key file used
// to mint access tokens.
type ServiceAccount struct {
	ClientEmail  string `json:"client_email"`
	PrivateKey   string `json:"private_key"`
	PrivateKeyID string `json:"private_key_id"`
	TokenURI     string `json:"token_uri"`
}

func LoadServiceAccount(path string) (ServiceAccount, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ServiceAccount{}, fmt.Errorf("read credentials: %w", err)
	}
	return ParseServiceAccount(raw)
}

func ParseServiceAccount(raw []byte) (ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return ServiceAccount{}, fmt.Errorf("decode credentials: %w", err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return ServiceAccount{}, errors.New("credentials must contain client_email and private_key")
	}
	if sa.TokenURI == "" {
		sa.TokenURI = defaultTokenURL
	}
	return sa, nil
}

// tokenSource exchanges a signed RS256 assertion for a bearer token and
// caches it until shortly before expiry.
type tokenSource struct {
	account    ServiceAccount
	key        *rsa.PrivateKey
	httpClient *http.Client
	now        func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newTokenSource(sa ServiceAccount, httpClient *http.Client) (*tokenSource, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &tokenSource{account: sa, key: key, httpClient: httpClient, now: time.Now}, nil
}

func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token != "" && t.now().Before(t.expires.Add(-time.Minute)) {
		return t.token, nil
	}

	now := t.now()
	claims := jwt.MapClaims{
		"iss":   t.account.ClientEmail,
		"scope": scope,
		"aud":   t.account.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionTTL).Unix(),
	}
	assertion := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if t.account.PrivateKeyID != "" {
		assertion.Header["kid"] = t.account.PrivateKeyID
	}
	signed, err := assertion.SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}

	form := url.Values{"grant_type": {jwtBearerGrant}, "assertion": {signed}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.account.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{StatusCode: resp.StatusCode, Body: truncateBody(string(body))}
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("invalid token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", errors.New("token response has no access_token")
	}
	if parsed.ExpiresIn <= 0 {
		parsed.ExpiresIn = 3600
	}
	t.token = parsed.AccessToken
	t.expires = now.Add(time.Duration(parsed.ExpiresIn) * time.Second)
	return t.token, nil
}
