package metrics

// Label 指标标签
//
// 标签值应保持低基数：实例名、集群名可以作为标签，SQL 文本和表名组合不可以。
type Label struct {
	Key   string
	Value string
}

// L 便捷构造函数
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}
