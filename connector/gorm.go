package connector

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/xerrors"
)

// gormConnector 是 MySQL 与 SQLite 连接器的公共实现，dialector 决定具体驱动
type gormConnector struct {
	name      string
	kind      string
	dialector func() gorm.Dialector
	configure func(db *gorm.DB) error
	timeout   time.Duration

	logger  clog.Logger
	mu      sync.RWMutex
	db      *gorm.DB
	healthy atomic.Bool
}

// Connect 建立连接
func (c *gormConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 幂等：如果已连接则直接返回
	if c.db != nil {
		return nil
	}

	c.logger.Info("attempting to connect")

	db, err := gorm.Open(c.dialector(), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		c.logger.Error("failed to open connection", clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "%s connector[%s]: %v", c.kind, c.name, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return xerrors.Wrapf(ErrConnection, "%s connector[%s]: failed to get db instance: %v", c.kind, c.name, err)
	}
	if c.configure != nil {
		if err := c.configure(db); err != nil {
			_ = sqlDB.Close()
			return xerrors.Wrapf(ErrConnection, "%s connector[%s]: %v", c.kind, c.name, err)
		}
	}

	pingCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		c.logger.Error("failed to ping", clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "%s connector[%s]: ping failed: %v", c.kind, c.name, err)
	}

	c.db = db
	c.healthy.Store(true)
	c.logger.Info("successfully connected")
	return nil
}

// Close 关闭连接
func (c *gormConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.healthy.Store(false)
	if c.db == nil {
		return nil
	}

	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		c.logger.Error("failed to close connection", clog.Error(err))
		return err
	}

	c.db = nil
	c.logger.Info("connection closed")
	return nil
}

// HealthCheck 检查连接健康状态
func (c *gormConnector) HealthCheck(ctx context.Context) error {
	db := c.GetClient()
	if db == nil {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrClientNil, "%s connector[%s]", c.kind, c.name)
	}

	sqlDB, err := db.DB()
	if err != nil {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrHealthCheck, "%s connector[%s]: %v", c.kind, c.name, err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		c.healthy.Store(false)
		c.logger.Warn("health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrHealthCheck, "%s connector[%s]: %v", c.kind, c.name, err)
	}

	c.healthy.Store(true)
	return nil
}

// IsHealthy 返回缓存的健康状态
func (c *gormConnector) IsHealthy() bool {
	return c.healthy.Load()
}

// Name 返回连接器名称
func (c *gormConnector) Name() string {
	return c.name
}

// GetClient 返回 GORM 客户端
func (c *gormConnector) GetClient() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}
