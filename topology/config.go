package topology

import (
	"bytes"

	"gopkg.in/yaml.v3"

	"github.com/ceyewan/shardproxy/breaker"
	"github.com/ceyewan/shardproxy/cache"
	"github.com/ceyewan/shardproxy/config"
	"github.com/ceyewan/shardproxy/heartbeat"
	"github.com/ceyewan/shardproxy/xerrors"
)

// 表类型
const (
	TableSharding = "sharding"
	TableGlobal   = "global"
	TableNormal   = "normal"
	TableCustom   = "custom"
)

// 分片函数类型
const (
	FunctionHash  = "hash"
	FunctionRange = "range"
	FunctionAuto  = "auto"
)

// 后端驱动
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Config 拓扑配置，既可由 config.Loader 反序列化，也可直接由 YAML 解析
type Config struct {
	Heartbeat heartbeat.Config `mapstructure:"heartbeat" yaml:"heartbeat"`
	Breaker   breaker.Config   `mapstructure:"breaker" yaml:"breaker"`
	PlanCache cache.Config     `mapstructure:"plan_cache" yaml:"plan_cache"`
	Clusters  []ClusterConfig  `mapstructure:"clusters" yaml:"clusters"`
	Schemas   []SchemaConfig   `mapstructure:"schemas" yaml:"schemas"`
}

// ClusterConfig 一主多从的复制集群，集群名即数据节点的 target
type ClusterConfig struct {
	Name      string           `mapstructure:"name" yaml:"name"`
	Instances []InstanceConfig `mapstructure:"instances" yaml:"instances"`
}

// InstanceConfig 后端实例：心跳参数与连接参数
type InstanceConfig struct {
	Name           string `mapstructure:"name" yaml:"name"`
	Role           string `mapstructure:"role" yaml:"role"`
	ReadAllowed    bool   `mapstructure:"read_allowed" yaml:"read_allowed"`
	SlaveThreshold int64  `mapstructure:"slave_threshold" yaml:"slave_threshold"`

	// Driver 为 mysql（默认）或 sqlite
	Driver   string `mapstructure:"driver" yaml:"driver"`
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
	// Path SQLite 数据库路径
	Path string `mapstructure:"path" yaml:"path"`
}

// SchemaConfig 逻辑库
type SchemaConfig struct {
	Name   string        `mapstructure:"name" yaml:"name"`
	Tables []TableConfig `mapstructure:"tables" yaml:"tables"`
}

// TableConfig 逻辑表。
//
// 数据节点可以用 DataNodes 显式列出，也可以由 Targets × SchemaPattern × TablePattern 生成：
// 模式中的 {db} 替换为库下标，{table} 替换为库内表下标，{index} 替换为全局下标。
type TableConfig struct {
	Name     string          `mapstructure:"name" yaml:"name"`
	Type     string          `mapstructure:"type" yaml:"type"`
	Function *FunctionConfig `mapstructure:"function" yaml:"function"`
	Handler  string          `mapstructure:"handler" yaml:"handler"`

	Targets       []string         `mapstructure:"targets" yaml:"targets"`
	SchemaPattern string           `mapstructure:"schema_pattern" yaml:"schema_pattern"`
	TablePattern  string           `mapstructure:"table_pattern" yaml:"table_pattern"`
	DataNodes     []DataNodeConfig `mapstructure:"data_nodes" yaml:"data_nodes"`
}

// DataNodeConfig 显式数据节点
type DataNodeConfig struct {
	Target string `mapstructure:"target" yaml:"target"`
	Schema string `mapstructure:"schema" yaml:"schema"`
	Table  string `mapstructure:"table" yaml:"table"`
}

// FunctionConfig 分片函数参数，按 Type 取用相应字段
type FunctionConfig struct {
	Type      string   `mapstructure:"type" yaml:"type"`
	DBKeys    []string `mapstructure:"db_keys" yaml:"db_keys"`
	TableKeys []string `mapstructure:"table_keys" yaml:"table_keys"`
	DBNum     int      `mapstructure:"db_num" yaml:"db_num"`
	TableNum  int      `mapstructure:"table_num" yaml:"table_num"`

	// range
	Column      string            `mapstructure:"column" yaml:"column"`
	Partitions  []PartitionConfig `mapstructure:"partitions" yaml:"partitions"`
	DefaultNode *int              `mapstructure:"default_node" yaml:"default_node"`

	// auto
	DBMethod    string `mapstructure:"db_method" yaml:"db_method"`
	TableMethod string `mapstructure:"table_method" yaml:"table_method"`
}

// PartitionConfig 左闭右开区间
type PartitionConfig struct {
	Lower int64 `mapstructure:"lower" yaml:"lower"`
	Upper int64 `mapstructure:"upper" yaml:"upper"`
}

// Parse 从 YAML 文本解析拓扑配置，未知字段视为错误
func Parse(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, xerrors.Wrapf(ErrInvalidTopology, "parse yaml: %v", err)
	}
	return &cfg, nil
}

// Load 从已加载的 config.Loader 读取拓扑配置
func Load(loader config.Loader) (*Config, error) {
	var cfg Config
	if err := loader.Unmarshal(&cfg); err != nil {
		return nil, xerrors.Wrapf(ErrInvalidTopology, "unmarshal: %v", err)
	}
	return &cfg, nil
}
