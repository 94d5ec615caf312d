package heartbeat

import (
	"strings"
	"time"

	"github.com/ceyewan/shardproxy/xerrors"
)

// Config 调度配置
type Config struct {
	// Interval 探测周期 (默认: 10s)
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	// Timeout 单次探测超时 (默认: 3s)
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

func (c *Config) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Second
	}
}

// Role 实例角色
type Role string

const (
	RoleMaster Role = "master"
	RoleSlave  Role = "slave"
)

// InstanceConfig 单个后端实例的心跳配置
type InstanceConfig struct {
	// Name 实例名，与 connector 中的连接器名一致
	Name    string `mapstructure:"name" yaml:"name"`
	Cluster string `mapstructure:"cluster" yaml:"cluster"`
	Role    Role   `mapstructure:"role" yaml:"role"`
	// ReadAllowed 是否承担读流量，只有读实例的复制错误会标记为 DB-sync ERROR
	ReadAllowed bool `mapstructure:"read_allowed" yaml:"read_allowed"`
	// SlaveThreshold 复制延迟阈值（秒），超过则认为落后于主库
	SlaveThreshold int64 `mapstructure:"slave_threshold" yaml:"slave_threshold"`
}

// IsMaster 是否主库
func (c InstanceConfig) IsMaster() bool {
	return c.Role == RoleMaster
}

func (c *InstanceConfig) validate() error {
	c.Name = strings.TrimSpace(c.Name)
	c.Role = Role(strings.ToLower(strings.TrimSpace(string(c.Role))))
	if c.Name == "" {
		return xerrors.Wrap(ErrInvalidInstance, "empty name")
	}
	if c.Role == "" {
		c.Role = RoleMaster
	}
	if c.Role != RoleMaster && c.Role != RoleSlave {
		return xerrors.Wrapf(ErrInvalidInstance, "%s: unknown role %q", c.Name, c.Role)
	}
	if c.SlaveThreshold < 0 {
		return xerrors.Wrapf(ErrInvalidInstance, "%s: negative slave threshold", c.Name)
	}
	return nil
}
