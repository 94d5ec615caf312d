package sharding

import "strings"

// DataNode 物理分片：后端目标 + 物理库 + 物理表。值类型，创建后不再修改。
type DataNode struct {
	TargetName string `json:"target" msgpack:"target" yaml:"target"`
	SchemaName string `json:"schema" msgpack:"schema" yaml:"schema"`
	TableName  string `json:"table" msgpack:"table" yaml:"table"`
}

// NewDataNode 创建节点，库名与表名会被规范化
func NewDataNode(target, schema, table string) DataNode {
	return DataNode{
		TargetName: strings.TrimSpace(target),
		SchemaName: NormalizeName(schema),
		TableName:  NormalizeName(table),
	}
}

// UniqueName 节点的稳定标识 target.schema.table
func (n DataNode) UniqueName() string {
	return n.TargetName + "." + n.SchemaName + "." + n.TableName
}

// TableUniqueName 物理表名 schema.table
func (n DataNode) TableUniqueName() string {
	return n.SchemaName + "." + n.TableName
}

func (n DataNode) String() string {
	return n.UniqueName()
}
