package distribution

import (
	"github.com/ceyewan/shardproxy/cache/serializer"
	"github.com/ceyewan/shardproxy/metadata"
	"github.com/ceyewan/shardproxy/xerrors"
)

// Marshal 把分布编码为排序后的表名列表，format 为 "json" 或 "msgpack"
func Marshal(d *Distribution, format string) ([]byte, error) {
	s, err := serializer.New(format)
	if err != nil {
		return nil, err
	}
	data, err := s.Marshal(d.NameList())
	if err != nil {
		return nil, xerrors.Wrap(err, "distribution: marshal name list")
	}
	return data, nil
}

// Unmarshal 解码表名列表并在 catalog 上重建分布
func Unmarshal(catalog metadata.Catalog, data []byte, format string) (*Distribution, error) {
	s, err := serializer.New(format)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := s.Unmarshal(data, &names); err != nil {
		return nil, xerrors.Wrapf(xerrors.ErrInvalidInput, "distribution: unmarshal name list: %v", err)
	}
	return FromNameList(catalog, names)
}

// MarshalJSON 实现 json.Marshaler，输出排序后的表名列表
func (d *Distribution) MarshalJSON() ([]byte, error) {
	return Marshal(d, serializer.JSON)
}
