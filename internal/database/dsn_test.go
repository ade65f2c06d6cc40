package database

import (
	"testing"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{User: "calsched", Name: "calsched"})
	require.NoError(t, err)
	require.Equal(t, "postgres://calsched@localhost:5432/calsched?sslmode=disable", dsn)

	dsn, err = buildPostgresDSN(Config{
		User:     "sched",
		Password: "p@ss word",
		Name:     "meetings",
		Host:     "db.example.com",
		Port:     6543,
		Options:  map[string]string{"search_path": "calendar", "application_name": "calsched"},
	})
	require.NoError(t, err)

	parsed, err := pgconn.ParseConfig(dsn)
	require.NoError(t, err)
	require.Equal(t, "db.example.com", parsed.Host)
	require.EqualValues(t, 6543, parsed.Port)
	require.Equal(t, "meetings", parsed.Database)
	require.Equal(t, "sched", parsed.User)
	require.Equal(t, "p@ss word", parsed.Password)
	require.Equal(t, "calendar", parsed.RuntimeParams["search_path"])
	require.Nil(t, parsed.TLSConfig)

	explicit, err := buildPostgresDSN(Config{DSN: "postgres://override"})
	require.NoError(t, err)
	require.Equal(t, "postgres://override", explicit)

	_, err = buildPostgresDSN(Config{Host: "localhost"})
	require.Error(t, err)
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{User: "calsched", Name: "calsched"})
	require.NoError(t, err)
	require.Contains(t, dsn, "calsched@tcp(127.0.0.1:3306)/calsched?")
	require.Contains(t, dsn, "charset=utf8mb4")

	dsn, err = buildMySQLDSN(Config{
		User:     "sched",
		Password: "secret",
		Name:     "meetings",
		Host:     "db.example.com",
		Port:     3307,
		Options:  map[string]string{"timeout": "5s"},
	})
	require.NoError(t, err)

	parsed, err := mysqldrv.ParseDSN(dsn)
	require.NoError(t, err)
	require.Equal(t, "sched", parsed.User)
	require.Equal(t, "secret", parsed.Passwd)
	require.Equal(t, "db.example.com:3307", parsed.Addr)
	require.Equal(t, "meetings", parsed.DBName)
	require.True(t, parsed.ParseTime)
	require.Equal(t, time.UTC, parsed.Loc)
	require.Equal(t, 5*time.Second, parsed.Timeout)

	_, err = buildMySQLDSN(Config{Host: "localhost"})
	require.Error(t, err)
}
