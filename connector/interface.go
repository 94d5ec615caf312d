// Package connector 管理后端数据库连接，为心跳探测和物理执行提供 SQL 执行能力。
//
// 核心特性：
//   - 统一抽象：通过 Connector 接口提供一致的连接管理 API
//   - 类型安全：通过 TypedConnector[T] 泛型接口确保编译时类型检查
//   - 数据源：MySQL（生产后端）与 SQLite（测试与嵌入式场景）
//   - 执行器：Pool 按后端实例名路由 SQL，返回按列名组织的行
//   - 并发安全：所有公开方法均为并发安全
//
// 基本使用：
//
//	conn, err := connector.NewMySQL(&connector.MySQLConfig{
//		Name: "m0", Host: "127.0.0.1", Username: "root", Database: "db0",
//	}, connector.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	pool := connector.NewPool(connector.WithLogger(logger))
//	pool.Add(conn)
//	rows, err := pool.Execute(ctx, "m0", "select 1")
//
// 资源所有权：
//
//	Connector 拥有底层连接的生命周期。Pool 只借用 Connector，Pool.Close 之外
//	不会关闭它们；应用层按 LIFO 顺序释放资源。
package connector

import (
	"context"

	"gorm.io/gorm"
)

// Connector 定义所有连接器的通用行为，方法均为并发安全。
type Connector interface {
	// Connect 建立连接，幂等。
	Connect(ctx context.Context) error

	// Close 关闭连接并释放资源，幂等。关闭后 HealthCheck 返回 ErrClientNil。
	Close() error

	// HealthCheck 通过 Ping 验证连接可用性并刷新缓存的健康状态。
	HealthCheck(ctx context.Context) error

	// IsHealthy 返回最后一次 HealthCheck 的结果，无阻塞。
	IsHealthy() bool

	// Name 返回连接实例名称，与拓扑中的后端实例名一致。
	Name() string
}

// TypedConnector 提供类型安全的客户端访问。
type TypedConnector[T any] interface {
	Connector

	// GetClient 返回底层客户端实例，Connect 之前或 Close 之后可能为 nil。
	GetClient() T
}

// SQLConnector 基于 GORM 的关系型数据库连接器。
type SQLConnector interface {
	TypedConnector[*gorm.DB]
}

// MySQLConnector MySQL 连接器接口。
type MySQLConnector interface {
	SQLConnector
}

// SQLiteConnector SQLite 连接器接口，支持内存数据库和文件数据库。
type SQLiteConnector interface {
	SQLConnector
}

// Row 一行查询结果，键为列名
type Row = map[string]any

// Executor 在指定后端实例上执行 SQL
type Executor interface {
	Execute(ctx context.Context, instance string, sql string) ([]Row, error)
}
