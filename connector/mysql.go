package connector

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/xerrors"
)

type mysqlConnector struct {
	*gormConnector
}

// NewMySQL 创建 MySQL 连接器，实际连接在调用 Connect() 时建立
func NewMySQL(cfg *MySQLConfig, opts ...Option) (MySQLConnector, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrapf(err, "invalid mysql config")
	}
	opt := newOptions(opts...)

	// 构建 DSN：优先使用 cfg.DSN，否则从各字段拼接
	dsn := cfg.DSN
	if dsn == "" {
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local&timeout=%s",
			cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.Charset, cfg.ConnectTimeout)
	}

	return &mysqlConnector{gormConnector: &gormConnector{
		name:      cfg.Name,
		kind:      "mysql",
		timeout:   cfg.ConnectTimeout,
		dialector: func() gorm.Dialector { return mysql.Open(dsn) },
		configure: func(db *gorm.DB) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
			sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
			return nil
		},
		logger: opt.logger.With(
			clog.String("connector", "mysql"),
			clog.String("name", cfg.Name),
			clog.String("host", cfg.Host),
		),
	}}, nil
}
