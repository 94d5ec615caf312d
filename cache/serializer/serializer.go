// Package serializer 提供 JSON 与 MessagePack 两种编码，
// 用于 Distribution 名称列表等需要持久化或跨进程传递的缓存值。
package serializer

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ceyewan/shardproxy/xerrors"
)

// ErrUnsupportedSerializer 不支持的序列化器类型
var ErrUnsupportedSerializer = xerrors.Wrap(xerrors.ErrUnsupported, "serializer: unsupported type")

// 序列化器类型
const (
	JSON    = "json"
	MsgPack = "msgpack"
)

// Serializer 定义序列化接口
type Serializer interface {
	Marshal(value any) ([]byte, error)
	Unmarshal(data []byte, dest any) error
}

// JSONSerializer JSON 序列化器
type JSONSerializer struct{}

// Marshal 序列化为 JSON
func (j *JSONSerializer) Marshal(value any) ([]byte, error) {
	return json.Marshal(value)
}

// Unmarshal 从 JSON 反序列化
func (j *JSONSerializer) Unmarshal(data []byte, dest any) error {
	return json.Unmarshal(data, dest)
}

// MessagePackSerializer MessagePack 序列化器
type MessagePackSerializer struct{}

// Marshal 序列化为 MessagePack
func (m *MessagePackSerializer) Marshal(value any) ([]byte, error) {
	return msgpack.Marshal(value)
}

// Unmarshal 从 MessagePack 反序列化
func (m *MessagePackSerializer) Unmarshal(data []byte, dest any) error {
	return msgpack.Unmarshal(data, dest)
}

// New 创建序列化器
//
// 支持的序列化器类型:
//   - "json": 标准库 JSON 序列化，可读性好
//   - "msgpack": MessagePack 二进制序列化，体积更小
func New(serializerType string) (Serializer, error) {
	switch serializerType {
	case JSON, "":
		return &JSONSerializer{}, nil
	case MsgPack:
		return &MessagePackSerializer{}, nil
	default:
		return nil, xerrors.Wrapf(ErrUnsupportedSerializer, "%q", serializerType)
	}
}
