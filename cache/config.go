package cache

import "time"

// Config 本地缓存配置
type Config struct {
	// Name 缓存名称，作为指标标签 (默认: "default")
	Name string `mapstructure:"name" yaml:"name"`

	// Capacity 缓存最大容量（条目数，默认：10000）
	Capacity int `mapstructure:"capacity" yaml:"capacity"`

	// TTL 写入后过期时间 (默认: 10m)
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Capacity <= 0 {
		c.Capacity = 10000
	}
	if c.TTL <= 0 {
		c.TTL = 10 * time.Minute
	}
}
