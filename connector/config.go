package connector

import (
	"time"

	"github.com/ceyewan/shardproxy/xerrors"
)

// MySQLConfig MySQL连接配置
type MySQLConfig struct {
	// 基础配置（可选，有默认值）
	Name           string        `mapstructure:"name" yaml:"name"`                       // 连接器名称，即后端实例名 (默认: "default")
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"` // 连接超时 (默认: 5s)

	// 核心配置
	DSN      string `mapstructure:"dsn" yaml:"dsn"`           // 完整 DSN (可选，若提供则忽略 Host/Port 等，优先级最高)
	Host     string `mapstructure:"host" yaml:"host"`         // [必填] 主机地址
	Port     int    `mapstructure:"port" yaml:"port"`         // 端口 (默认: 3306)
	Username string `mapstructure:"username" yaml:"username"` // [必填] 用户名
	Database string `mapstructure:"database" yaml:"database"` // 数据库名，心跳账号可留空
	Password string `mapstructure:"password" yaml:"password"` // 密码

	// 高级配置（可选，有默认值）
	Charset         string        `mapstructure:"charset" yaml:"charset"`                     // 字符集 (默认: "utf8mb4")
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`       // 最大空闲连接数 (默认: 2)
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`       // 最大打开连接数 (默认: 10)
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"` // 连接最大生命周期 (默认: 1h)
}

// setDefaults 设置默认值
func (c *MySQLConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.Port == 0 {
		c.Port = 3306
	}
	if c.Charset == "" {
		c.Charset = "utf8mb4"
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 2
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
}

func (c *MySQLConfig) validate() error {
	c.setDefaults()
	if c.DSN != "" {
		return nil
	}
	if c.Host == "" {
		return xerrors.Wrap(ErrConfig, "mysql host is empty")
	}
	if c.Port <= 0 {
		return xerrors.Wrap(ErrConfig, "mysql port must be positive")
	}
	if c.Username == "" {
		return xerrors.Wrap(ErrConfig, "mysql username is empty")
	}
	return nil
}

// SQLiteConfig SQLite连接配置
type SQLiteConfig struct {
	Name string `mapstructure:"name" yaml:"name"` // 连接器名称 (默认: "default")
	Path string `mapstructure:"path" yaml:"path"` // 数据库文件路径，"file::memory:?cache=shared" 为内存库
}

func (c *SQLiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
}

func (c *SQLiteConfig) validate() error {
	c.setDefaults()
	if c.Path == "" {
		return xerrors.Wrap(ErrConfig, "sqlite path is empty")
	}
	return nil
}
