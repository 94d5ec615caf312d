package connector

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/xerrors"
)

type sqliteConnector struct {
	*gormConnector
}

// NewSQLite 创建 SQLite 连接器
// 注意：实际连接在调用 Connect() 时建立
func NewSQLite(cfg *SQLiteConfig, opts ...Option) (SQLiteConnector, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrapf(err, "invalid sqlite config")
	}
	opt := newOptions(opts...)

	path := cfg.Path
	return &sqliteConnector{gormConnector: &gormConnector{
		name:      cfg.Name,
		kind:      "sqlite",
		dialector: func() gorm.Dialector { return sqlite.Open(path) },
		configure: func(db *gorm.DB) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			// 内存库的每个新连接都是独立的空库
			sqlDB.SetMaxOpenConns(1)
			return nil
		},
		logger: opt.logger.With(clog.String("connector", "sqlite"), clog.String("name", cfg.Name)),
	}}, nil
}
