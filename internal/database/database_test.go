package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"testing/fstest"

	"chirp/internal/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true, Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newMockPostgres(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	return db, mock
}

func TestConfigurePool(t *testing.T) {
	db := openSQLite(t)

	cfg := &config.Config{
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           5,
		DBConnMaxLifetimeMinutes: 15,
	}
	require.NoError(t, configurePool(db, cfg))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)
}

func TestBuildDSN_DefaultsSSLMode(t *testing.T) {
	dsn := buildDSN("db", "5432", "u", "p", "chirp", "")
	assert.Contains(t, dsn, "sslmode=disable")
	assert.Contains(t, dsn, "dbname=chirp")
}

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"m/000002_second.up.sql":   {Data: []byte("CREATE TABLE b (id INTEGER);")},
		"m/000002_second.down.sql": {Data: []byte("DROP TABLE b;")},
		"m/000001_first.up.sql":    {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"m/000001_first.down.sql":  {Data: []byte("DROP TABLE a;")},
		"m/README.md":              {Data: []byte("ignored")},
	}

	got, err := LoadMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Version)
	assert.Equal(t, "first", got[0].Name)
	assert.Equal(t, "000002_second", got[1].String())
}

func TestLoadMigrations_MissingDown(t *testing.T) {
	fsys := fstest.MapFS{
		"m/000001_first.up.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := LoadMigrations(fsys, "m")
	assert.Error(t, err)
}

func TestEmbeddedMigrationsRegistered(t *testing.T) {
	all := GetMigrations()
	require.NotEmpty(t, all)
	assert.Equal(t, 1, all[0].Version)
	assert.Contains(t, all[0].UpScript, "feed_event_seq")
	assert.NotNil(t, GetMigrationByVersion(1))
	assert.Nil(t, GetMigrationByVersion(999999))
}

func TestRunMigrations_AppliesPendingOnce(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	registered := []Migration{
		{Version: 1, Name: "first", UpScript: "CREATE TABLE a (id INTEGER);"},
		{Version: 2, Name: "second", UpScript: "CREATE TABLE b (id INTEGER);"},
	}
	store := NewMigrationStore(db)

	require.NoError(t, runMigrations(ctx, db, store, registered))
	require.NoError(t, runMigrations(ctx, db, store, registered))

	applied, err := store.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, applied)
}

func TestRollback_OnlyLatestApplied(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	registered := []Migration{
		{Version: 1, Name: "first", UpScript: "CREATE TABLE a (id INTEGER);", DownScript: "DROP TABLE a;"},
		{Version: 2, Name: "second", UpScript: "CREATE TABLE b (id INTEGER);", DownScript: "DROP TABLE b;"},
	}
	store := NewMigrationStore(db)
	require.NoError(t, runMigrations(ctx, db, store, registered))

	err := rollback(ctx, store, registered, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "latest is 2")

	require.NoError(t, rollback(ctx, store, registered, 2))
	assert.False(t, db.Migrator().HasTable("b"))
	assert.True(t, db.Migrator().HasTable("a"))

	applied, err := store.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, applied)

	assert.Error(t, rollback(ctx, store, registered, 42))
}

func TestRunMigrations_FailedScriptIsNotRecorded(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	store := NewMigrationStore(db)

	err := runMigrations(ctx, db, store, []Migration{
		{Version: 1, Name: "broken", UpScript: "CREATE TABLE;"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000001_broken")

	applied, err := store.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestRunMigrations_RejectsUnknownAppliedVersion(t *testing.T) {
	err := validateAppliedVersions([]int{1, 7}, []Migration{{Version: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000007")
}

func TestSchemaPolicy(t *testing.T) {
	tests := []struct {
		name      string
		mode      string
		env       string
		allow     bool
		wantSQL   bool
		wantAuto  bool
		expectErr bool
	}{
		{"default is sql", "", "development", false, true, false, false},
		{"hybrid dev", "hybrid", "development", false, true, true, false},
		{"hybrid prod skips auto", "hybrid", "production", false, true, false, false},
		{"auto prod refused", "auto", "production", false, false, false, true},
		{"auto prod allowed", "auto", "production", true, false, true, false},
		{"unknown", "magic", "development", false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{DBSchemaMode: tt.mode, Env: tt.env, DBAutoMigrateAllowDestructive: tt.allow}
			plan, err := planSchema(cfg)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, plan.sql)
			assert.Equal(t, tt.wantAuto, plan.auto)
		})
	}
}

func TestApplySchema_AutoOnSQLiteSkipsFeedSequence(t *testing.T) {
	db := openSQLite(t)
	cfg := &config.Config{DBSchemaMode: SchemaModeAuto, Env: "test"}
	require.NoError(t, ApplySchema(context.Background(), db, cfg))
	assert.True(t, db.Migrator().HasTable("posts"))
	assert.True(t, db.Migrator().HasTable("retweets"))
}

func TestEnsureFeedSequence_Postgres(t *testing.T) {
	db, mock := newMockPostgres(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE SEQUENCE IF NOT EXISTS feed_event_seq")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SELECT setval('feed_event_seq'")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE posts ALTER COLUMN id")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE retweets ALTER COLUMN id")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, ensureFeedSequence(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("other")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestPersistentModels_AutoMigrateOnSQLite(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, db.AutoMigrate(PersistentModels()...))
	assert.True(t, db.Migrator().HasTable("user_follows"))
	assert.True(t, db.Migrator().HasTable("poll_votes"))
}

func TestLoadMigrations_RejectsBadNamesAndDuplicates(t *testing.T) {
	_, err := LoadMigrations(fstest.MapFS{
		"m/first.up.sql":   {Data: []byte("SELECT 1;")},
		"m/first.down.sql": {Data: []byte("SELECT 1;")},
	}, "m")
	assert.ErrorContains(t, err, "000001_name.up.sql")

	_, err = LoadMigrations(fstest.MapFS{
		"m/1_a.up.sql":        {Data: []byte("SELECT 1;")},
		"m/1_a.down.sql":      {Data: []byte("SELECT 1;")},
		"m/000001_b.up.sql":   {Data: []byte("SELECT 1;")},
		"m/000001_b.down.sql": {Data: []byte("SELECT 1;")},
	}, "m")
	assert.ErrorContains(t, err, "duplicate migration version 000001")
}
