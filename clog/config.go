package clog

import (
	"fmt"
	"strings"
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Config 日志配置
//
// YAML 示例：
//
//	log:
//	  level: info
//	  format: json
//	  output: stdout
type Config struct {
	Level     string `mapstructure:"level" yaml:"level"`           // debug|info|warn|error
	Format    string `mapstructure:"format" yaml:"format"`         // json|console
	Output    string `mapstructure:"output" yaml:"output"`         // stdout|stderr|<file path>
	AddSource bool   `mapstructure:"add_source" yaml:"add_source"` // 输出调用位置
}

// NewDevDefaultConfig 返回开发环境默认配置：debug 级别，console 格式
func NewDevDefaultConfig() *Config {
	return &Config{Level: "debug", Format: "console", Output: "stdout"}
}

// NewProdDefaultConfig 返回生产环境默认配置：info 级别，json 格式
func NewProdDefaultConfig() *Config {
	return &Config{Level: "info", Format: "json", Output: "stdout"}
}

func (c *Config) validate() error {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "console"
	}
	if c.Output == "" {
		c.Output = "stdout"
	}

	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	format := strings.ToLower(c.Format)
	if format != "json" && format != "console" {
		return fmt.Errorf("invalid format: %s, must be json or console", c.Format)
	}
	return nil
}
