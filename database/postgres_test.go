package database

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresConfig_BuildConnectionString(t *testing.T) {
	cfg := DefaultPostgresConfig()
	cfg.Host = "db.internal"
	cfg.Port = 6432
	cfg.User = "catalog"
	cfg.Password = "p@ss word"
	cfg.SSLMode = "require"
	cfg.ConnectTimeout = 3 * time.Second

	u, err := url.Parse(cfg.BuildConnectionString())
	require.NoError(t, err)

	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "db.internal:6432", u.Host)
	assert.Equal(t, "/catalog", u.Path)
	assert.Equal(t, "catalog", u.User.Username())
	password, ok := u.User.Password()
	assert.True(t, ok)
	assert.Equal(t, "p@ss word", password)

	q := u.Query()
	assert.Equal(t, "require", q.Get("sslmode"))
	assert.Equal(t, "catalog-hierarchy", q.Get("application_name"))
	assert.Equal(t, "3", q.Get("connect_timeout"))
	assert.Empty(t, q.Get("pool_max_conns"))
}

func TestPostgresConfig_OptionalParameters(t *testing.T) {
	cfg := DefaultPostgresConfig()
	cfg.ApplicationName = ""
	cfg.ConnectTimeout = 0

	u, err := url.Parse(cfg.BuildConnectionString())
	require.NoError(t, err)
	_, hasApp := u.Query()["application_name"]
	_, hasTimeout := u.Query()["connect_timeout"]
	assert.False(t, hasApp)
	assert.False(t, hasTimeout)
}
