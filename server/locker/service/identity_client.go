package service

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

	"hospital_locker/server/common/auth"
	"hospital_locker/server/locker/domain"
)

const signInPath = "/v1/accounts:signInWithPassword"

// IdentityClient exchanges email and password for an identity token at a
// password sign-in endpoint and decodes the role claim from it.
type IdentityClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	tokens  *auth.Service
}

func NewIdentityClient(baseURL, apiKey string, timeout time.Duration, tokens *auth.Service) *IdentityClient {
	return &IdentityClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

type signInRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type signInResponse struct {
	IDToken string `json:"idToken"`
	LocalID string `json:"localId"`
	Email   string `json:"email"`
}

type providerError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *IdentityClient) SignIn(ctx context.Context, email, password string) (Credentials, error) {
	const op = "sign-in"
	if c.baseURL == "" {
		return Credentials{}, domain.NewError(domain.ErrAuth, op, "identity provider is not configured")
	}
	body, err := json.Marshal(signInRequest{Email: email, Password: password, ReturnSecureToken: true})
	if err != nil {
		return Credentials{}, domain.WrapError(domain.ErrAuth, op, err)
	}
	endpoint := c.baseURL + signInPath
	if c.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Credentials{}, domain.WrapError(domain.ErrAuth, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Credentials{}, domain.WrapError(domain.ErrAuth, op, fmt.Errorf("identity provider unavailable: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		var perr providerError
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &perr) == nil && perr.Error.Message != "" {
			msg = perr.Error.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		e := domain.NewError(domain.ErrAuth, op, msg)
		e.Status = resp.StatusCode
		return Credentials{}, e
	}

	var out signInResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Credentials{}, domain.WrapError(domain.ErrAuth, op, fmt.Errorf("decode sign-in response: %w", err))
	}
	return c.decode(out, email)
}

func (c *IdentityClient) decode(out signInResponse, email string) (Credentials, error) {
	const op = "sign-in"
	claims, err := c.tokens.ParseToken(out.IDToken)
	if err != nil {
		return Credentials{}, domain.WrapError(domain.ErrAuth, op, fmt.Errorf("decode identity token: %w", err))
	}
	role, ok := domain.ParseRole(claims.Role)
	if !ok {
		return Credentials{}, domain.NewError(domain.ErrAuth, op, fmt.Sprintf("account has no usable role (%q)", claims.Role))
	}
	uid := claims.UID()
	if uid == "" {
		uid = out.LocalID
	}
	if claims.Email != "" {
		email = claims.Email
	} else if out.Email != "" {
		email = out.Email
	}
	return Credentials{Token: out.IDToken, UID: uid, Email: email, Role: role}, nil
}
