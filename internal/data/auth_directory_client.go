package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"xinyuan_tech/clinic-billing-service/internal/biz"
	"xinyuan_tech/clinic-billing-service/internal/conf"
	bizerrors "xinyuan_tech/clinic-billing-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
)

const directoryPageSize = 50

// authDirectoryClient resolves checkout emails against the hosted auth
// provider's admin user API.
type authDirectoryClient struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	log        *log.Helper
}

// NewAuthDirectoryClient creates the auth directory client
func NewAuthDirectoryClient(c *conf.Bootstrap, logger log.Logger) biz.UserDirectory {
	helper := log.NewHelper(logger)

	var svc *conf.AuthService
	if c != nil && c.Client != nil {
		svc = c.Client.AuthService
	}
	if svc == nil || svc.BaseURL == "" {
		helper.Warn("Auth service is not configured, user lookups will fail")
		return &emptyUserDirectory{log: helper}
	}

	timeout := 10 * time.Second
	if svc.Timeout != "" {
		if d, err := time.ParseDuration(svc.Timeout); err == nil {
			timeout = d
		}
	}

	return &authDirectoryClient{
		baseURL:    strings.TrimRight(svc.BaseURL, "/"),
		serviceKey: svc.ServiceKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        helper,
	}
}

type directoryUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type directoryUserPage struct {
	Users []directoryUser `json:"users"`
}

// FindUserIDByEmail walks the admin user list until it finds a matching
// email. Returns "" with a nil error when no user matches; a transport or
// auth failure comes back as a directory-unavailable error so callers can
// distinguish "no such user" from "could not ask".
func (c *authDirectoryClient) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", nil
	}

	for page := 1; ; page++ {
		users, err := c.listUsers(ctx, page)
		if err != nil {
			return "", err
		}
		if len(users) == 0 {
			return "", nil
		}
		for _, u := range users {
			if strings.EqualFold(u.Email, email) {
				return u.ID, nil
			}
		}
		if len(users) < directoryPageSize {
			return "", nil
		}
	}
}

func (c *authDirectoryClient) listUsers(ctx context.Context, page int) ([]directoryUser, error) {
	endpoint := fmt.Sprintf("%s/auth/v1/admin/users?page=%d&per_page=%d",
		c.baseURL, page, directoryPageSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, bizerrors.NewBizError(bizerrors.ErrCodeDirectoryUnavailable, "failed to build directory request: %v", err)
	}
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Errorf("Auth directory request failed: %v", err)
		return nil, bizerrors.NewBizError(bizerrors.ErrCodeDirectoryUnavailable, "auth directory unreachable: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, bizerrors.NewBizError(bizerrors.ErrCodeDirectoryUnavailable, "failed to read directory response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Errorf("Auth directory returned status %d: %s", resp.StatusCode, string(body))
		return nil, bizerrors.NewBizError(bizerrors.ErrCodeDirectoryUnavailable, "auth directory returned status %d", resp.StatusCode)
	}

	var result directoryUserPage
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, bizerrors.NewBizError(bizerrors.ErrCodeDirectoryUnavailable, "failed to decode directory response: %v", err)
	}
	return result.Users, nil
}

// emptyUserDirectory is the degraded implementation used when the auth
// service is not configured.
type emptyUserDirectory struct {
	log *log.Helper
}

func (c *emptyUserDirectory) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	c.log.Warnf("Auth service not configured, cannot resolve email %s", email)
	return "", bizerrors.NewBizError(bizerrors.ErrCodeDirectoryUnavailable, "auth service is not configured")
}
