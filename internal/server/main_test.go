package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"chirp/internal/config"
	"chirp/internal/database"
	"chirp/internal/middleware"
	"chirp/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testSecret = "test-secret-key-12345678901234567890123456789012"

	aliceID = "64b000000000000000000001"
	bobID   = "64b000000000000000000002"
	carolID = "64b000000000000000000003"
)

var sqliteSeq atomic.Int64

type testEnv struct {
	srv    *Server
	app    *fiber.App
	db     *gorm.DB
	users  *testutil.MemoryIdentityStore
	blobs  *testutil.MemoryBlobStore
	tokens *middleware.TokenManager
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func testConfig() *config.Config {
	return &config.Config{
		Env:              "test",
		JWTSecret:        testSecret,
		JWTIssuer:        "chirp-api",
		JWTAudience:      "chirp-client",
		JWTTTLHours:      1,
		MediaBaseURL:     "https://cdn.test/media",
		MediaMaxUploadMB: 2,
		FeatureFlags:     "media_thumbnails=on,search_users_regex=on",
	}
}

func setupSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", sqliteSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}

// newTestEnv builds a full app on sqlite with alice, bob and carol registered.
func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	return buildTestEnv(t, nil, mutate...)
}

// newRedisTestEnv is newTestEnv backed by miniredis, which turns on token
// revocation.
func newRedisTestEnv(t *testing.T) (*testEnv, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return buildTestEnv(t, rdb), mr
}

func buildTestEnv(t *testing.T, rdb *redis.Client, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	users := testutil.NewMemoryIdentityStore()
	users.Add(aliceID, "alice")
	users.Add(bobID, "bob")
	users.Add(carolID, "carol")

	env := &testEnv{
		db:     setupSQLiteDB(t),
		users:  users,
		blobs:  testutil.NewMemoryBlobStore(),
		tokens: middleware.NewTokenManager(cfg),
	}
	srv, err := NewServerWithDeps(cfg, Deps{DB: env.db, Redis: rdb, Users: users, Blobs: env.blobs})
	require.NoError(t, err)
	env.srv = srv
	env.app = srv.NewApp()
	t.Cleanup(func() { _ = srv.hub.Shutdown(context.Background()) })
	return env
}

func (e *testEnv) token(t *testing.T, userID, username string) string {
	t.Helper()
	raw, _, err := e.tokens.Issue(userID, username)
	require.NoError(t, err)
	return raw
}

// do sends a JSON request and decodes the envelope.
func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.send(t, req)
}

func (e *testEnv) send(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out), string(env.Data))
	return out
}
