package testkit

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/ceyewan/shardproxy/connector"
)

// NewMySQLContainerConfig 使用 testcontainers 创建 MySQL 容器并返回配置。
// -short 或 Docker 不可用时跳过测试。生命周期由 t.Cleanup 管理。
func NewMySQLContainerConfig(t *testing.T, name string) *connector.MySQLConfig {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping mysql container in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := mysql.Run(ctx,
		"mysql:8.0",
		mysql.WithDatabase("shardproxy_db"),
		mysql.WithUsername("shardproxy"),
		mysql.WithPassword("shardproxy_password"),
	)
	require.NoError(t, err, "failed to start MySQL container")
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := container.MappedPort(ctx, "3306")
	require.NoError(t, err)
	port, err := strconv.Atoi(mappedPort.Port())
	require.NoError(t, err)

	return &connector.MySQLConfig{
		Name:            name,
		Host:            host,
		Port:            port,
		Username:        "shardproxy",
		Password:        "shardproxy_password",
		Database:        "shardproxy_db",
		MaxIdleConns:    2,
		MaxOpenConns:    10,
		ConnMaxLifetime: time.Hour,
	}
}

// NewMySQLConnector 获取已连接的 MySQL 连接器（基于 testcontainers）
func NewMySQLConnector(t *testing.T, name string) connector.MySQLConnector {
	t.Helper()
	conn, err := connector.NewMySQL(NewMySQLContainerConfig(t, name), connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create mysql connector")

	// 容器就绪前连接会失败，带超时重试
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	for {
		if err = conn.Connect(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			require.NoError(t, err, "timeout waiting for mysql to be ready")
		case <-time.After(2 * time.Second):
		}
	}

	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}
