package testkit

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ceyewan/shardproxy/connector"
)

// NewSQLiteConfig 返回独立的内存数据库配置，不同调用之间互不可见
func NewSQLiteConfig(name string) *connector.SQLiteConfig {
	return &connector.SQLiteConfig{
		Name: name,
		Path: fmt.Sprintf("file:%s-%s?mode=memory&cache=shared", name, NewID()),
	}
}

// NewSQLiteConnector 获取已连接的 SQLite 连接器（内存数据库）
// 生命周期由 t.Cleanup 管理
func NewSQLiteConnector(t *testing.T, name string) connector.SQLiteConnector {
	t.Helper()
	conn, err := connector.NewSQLite(NewSQLiteConfig(name), connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create sqlite connector")

	require.NoError(t, conn.Connect(context.Background()), "failed to connect to sqlite")
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

// NewSQLiteDB 获取 GORM DB 实例（内存数据库）
func NewSQLiteDB(t *testing.T) *gorm.DB {
	return NewSQLiteConnector(t, "sqlite").GetClient()
}

// NewSQLitePool 创建连接器池，每个实例名对应一个独立的内存数据库
func NewSQLitePool(t *testing.T, names ...string) *connector.Pool {
	t.Helper()
	pool := connector.NewPool(connector.WithLogger(NewLogger()))
	for _, name := range names {
		pool.Add(NewSQLiteConnector(t, name))
	}
	return pool
}
