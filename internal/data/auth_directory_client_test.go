package data

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"xinyuan_tech/clinic-billing-service/internal/conf"
	bizerrors "xinyuan_tech/clinic-billing-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDirectoryServer(t *testing.T, users []directoryUser) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "service-key", r.Header.Get("apikey"))
		require.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		start := (page - 1) * perPage
		end := start + perPage
		if start > len(users) {
			start = len(users)
		}
		if end > len(users) {
			end = len(users)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(directoryUserPage{Users: users[start:end]})
	}))
}

func newDirectoryClient(baseURL string) *authDirectoryClient {
	c := &conf.Bootstrap{
		Client: &conf.Client{
			AuthService: &conf.AuthService{
				BaseURL:    baseURL,
				ServiceKey: "service-key",
			},
		},
	}
	return NewAuthDirectoryClient(c, log.NewStdLogger(discard{})).(*authDirectoryClient)
}

func TestFindUserIDByEmail(t *testing.T) {
	srv := newDirectoryServer(t, []directoryUser{
		{ID: "user-1", Email: "owner@clinic.test"},
		{ID: "user-2", Email: "admin@clinic.test"},
	})
	defer srv.Close()

	client := newDirectoryClient(srv.URL)

	uid, err := client.FindUserIDByEmail(context.Background(), "admin@clinic.test")
	require.NoError(t, err)
	assert.Equal(t, "user-2", uid)

	// Provider emails may differ in case from the directory's.
	uid, err = client.FindUserIDByEmail(context.Background(), "OWNER@Clinic.Test")
	require.NoError(t, err)
	assert.Equal(t, "user-1", uid)
}

func TestFindUserIDByEmailNoMatch(t *testing.T) {
	srv := newDirectoryServer(t, []directoryUser{
		{ID: "user-1", Email: "owner@clinic.test"},
	})
	defer srv.Close()

	uid, err := newDirectoryClient(srv.URL).FindUserIDByEmail(context.Background(), "ghost@clinic.test")
	require.NoError(t, err)
	assert.Empty(t, uid)
}

func TestFindUserIDByEmailPaginates(t *testing.T) {
	users := make([]directoryUser, 0, directoryPageSize+5)
	for i := 0; i < directoryPageSize+5; i++ {
		users = append(users, directoryUser{
			ID:    fmt.Sprintf("user-%d", i),
			Email: fmt.Sprintf("user%d@clinic.test", i),
		})
	}
	srv := newDirectoryServer(t, users)
	defer srv.Close()

	target := fmt.Sprintf("user%d@clinic.test", directoryPageSize+2)
	uid, err := newDirectoryClient(srv.URL).FindUserIDByEmail(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("user-%d", directoryPageSize+2), uid)
}

func TestFindUserIDByEmailDirectoryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newDirectoryClient(srv.URL).FindUserIDByEmail(context.Background(), "owner@clinic.test")
	require.Error(t, err)
	assert.True(t, bizerrors.IsCode(err, bizerrors.ErrCodeDirectoryUnavailable))
}

func TestFindUserIDByEmailEmptyEmail(t *testing.T) {
	uid, err := newDirectoryClient("http://unused.invalid").FindUserIDByEmail(context.Background(), "  ")
	require.NoError(t, err)
	assert.Empty(t, uid)
}

func TestUnconfiguredDirectoryFailsLookups(t *testing.T) {
	dir := NewAuthDirectoryClient(&conf.Bootstrap{}, log.NewStdLogger(discard{}))
	_, err := dir.FindUserIDByEmail(context.Background(), "owner@clinic.test")
	require.Error(t, err)
	assert.True(t, bizerrors.IsCode(err, bizerrors.ErrCodeDirectoryUnavailable))
}
