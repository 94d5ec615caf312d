package metrics

// Config 指标系统配置
//
// YAML 示例：
//
//	metrics:
//	  enabled: true
//	  service_name: "shardproxy"
//	  port: 9090
//	  path: "/metrics"
type Config struct {
	// Enabled 为 false 时 New 返回 noop Meter
	Enabled bool `mapstructure:"enabled"`

	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`

	// Port 大于 0 且 Path 非空时启动 Prometheus HTTP 服务器
	Port int    `mapstructure:"port"`
	Path string `mapstructure:"path"`
}

// NewDevDefaultConfig 返回开发环境配置：启用指标，不启动 HTTP 服务器
func NewDevDefaultConfig(serviceName string) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: serviceName,
		Version:     "dev",
	}
}
