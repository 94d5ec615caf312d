package connector

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/xerrors"
)

func memoryPath() string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
}

func text(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}

func newSQLite(t *testing.T, name string) SQLiteConnector {
	t.Helper()
	conn, err := NewSQLite(&SQLiteConfig{Name: name, Path: memoryPath()}, WithLogger(clog.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestMySQLConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *MySQLConfig
		wantErr bool
	}{
		{name: "valid", cfg: &MySQLConfig{Host: "127.0.0.1", Username: "root"}},
		{name: "dsn only", cfg: &MySQLConfig{DSN: "root:@tcp(127.0.0.1:3306)/"}},
		{name: "empty host", cfg: &MySQLConfig{Username: "root"}, wantErr: true},
		{name: "empty username", cfg: &MySQLConfig{Host: "127.0.0.1"}, wantErr: true},
		{name: "negative port", cfg: &MySQLConfig{Host: "127.0.0.1", Username: "root", Port: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrConfig)
				assert.True(t, xerrors.Is(err, xerrors.ErrInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "default", tt.cfg.Name)
		})
	}
}

func TestMySQLConfigDefaults(t *testing.T) {
	cfg := &MySQLConfig{Host: "127.0.0.1", Username: "root"}
	require.NoError(t, cfg.validate())

	assert.Equal(t, 3306, cfg.Port)
	assert.Equal(t, "utf8mb4", cfg.Charset)
	assert.Equal(t, 10, cfg.MaxOpenConns)
}

func TestNewMySQLDoesNotConnect(t *testing.T) {
	conn, err := NewMySQL(&MySQLConfig{Name: "m0", Host: "127.0.0.1", Username: "root"})
	require.NoError(t, err)

	assert.Equal(t, "m0", conn.Name())
	assert.Nil(t, conn.GetClient())
	assert.False(t, conn.IsHealthy())
	assert.ErrorIs(t, conn.HealthCheck(context.Background()), ErrClientNil)
}

func TestSQLiteConfigValidation(t *testing.T) {
	_, err := NewSQLite(&SQLiteConfig{Name: "x"})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestSQLiteLifecycle(t *testing.T) {
	ctx := context.Background()
	conn := newSQLite(t, "s0")

	require.NoError(t, conn.Connect(ctx))
	require.NoError(t, conn.Connect(ctx))
	assert.True(t, conn.IsHealthy())
	assert.NotNil(t, conn.GetClient())
	require.NoError(t, conn.HealthCheck(ctx))

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.False(t, conn.IsHealthy())
	assert.ErrorIs(t, conn.HealthCheck(ctx), ErrClientNil)
}

func TestPoolExecute(t *testing.T) {
	ctx := context.Background()
	pool := NewPool()
	pool.Add(newSQLite(t, "s0"))

	rows, err := pool.Execute(ctx, "s0", "select 'Yes' as Slave_IO_Running, 5 as Seconds_Behind_Master")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Yes", text(rows[0]["Slave_IO_Running"]))
	assert.Equal(t, "5", text(rows[0]["Seconds_Behind_Master"]))
	assert.Equal(t, "Yes", rows[0]["Slave_IO_Running"])
	assert.EqualValues(t, 5, rows[0]["Seconds_Behind_Master"])

	rows, err = pool.Execute(ctx, "s0", "select x'4e6f' as b, null as n")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "No", rows[0]["b"])
	assert.Nil(t, rows[0]["n"])

	rows, err = pool.Execute(ctx, "s0", "select 1 as one where 1 = 0")
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "abc", normalize([]byte("abc")))
	assert.Equal(t, "raw", normalize(sql.RawBytes("raw")))
	assert.Equal(t, int64(3), normalize(int64(3)))
	assert.Nil(t, normalize(nil))
}

func TestPoolExecuteErrors(t *testing.T) {
	ctx := context.Background()
	pool := NewPool()
	pool.Add(newSQLite(t, "s0"))

	_, err := pool.Execute(ctx, "missing", "select 1")
	assert.ErrorIs(t, err, ErrUnknownTarget)
	assert.True(t, xerrors.Is(err, xerrors.ErrNotFound))

	_, err = pool.Execute(ctx, "s0", "select * from no_such_table")
	assert.ErrorIs(t, err, ErrQuery)
}

func TestPoolRegistry(t *testing.T) {
	pool := NewPool()
	a := newSQLite(t, "b")
	assert.Nil(t, pool.Add(a))
	pool.Add(newSQLite(t, "a"))

	replacement := newSQLite(t, "b")
	assert.Equal(t, a, pool.Add(replacement))
	assert.Equal(t, []string{"a", "b"}, pool.Names())

	got, ok := pool.Get("b")
	require.True(t, ok)
	assert.Equal(t, replacement, got)

	assert.Equal(t, replacement, pool.Remove("b"))
	assert.Nil(t, pool.Remove("b"))
	assert.Equal(t, []string{"a"}, pool.Names())
}

func TestPoolHealthCheckAndClose(t *testing.T) {
	ctx := context.Background()
	pool := NewPool()
	conn := newSQLite(t, "s0")
	pool.Add(conn)

	assert.Error(t, pool.HealthCheck(ctx))
	require.NoError(t, conn.Connect(ctx))
	require.NoError(t, pool.HealthCheck(ctx))

	require.NoError(t, pool.Close())
	assert.Empty(t, pool.Names())
	assert.False(t, conn.IsHealthy())
}
