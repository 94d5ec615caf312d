// Package topology 把拓扑配置转换为运行时结构，并支持热加载。
//
// 一份拓扑描述：
//   - 集群与实例：生成心跳实例配置、读写分离集群与后端连接器
//   - 逻辑库与逻辑表：生成元数据快照，分片表的数据节点可按模式批量生成
//
// Build 只做纯转换与校验；Runtime.Apply 把结果应用到连接池、心跳、路由与元数据注册表；
// Watcher 监听配置文件变化并重新应用，新拓扑不合法时保留旧拓扑。
package topology

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ceyewan/shardproxy/connector"
	"github.com/ceyewan/shardproxy/heartbeat"
	"github.com/ceyewan/shardproxy/metadata"
	"github.com/ceyewan/shardproxy/router"
	"github.com/ceyewan/shardproxy/sharding"
	"github.com/ceyewan/shardproxy/xerrors"
)

// Backend 后端实例的连接参数，MySQL 与 SQLite 二选一
type Backend struct {
	Name   string
	Driver string
	MySQL  *connector.MySQLConfig
	SQLite *connector.SQLiteConfig
}

// Topology Build 的结果，不可变
type Topology struct {
	Snapshot  *metadata.Snapshot
	Instances []heartbeat.InstanceConfig
	Clusters  []router.Cluster
	Backends  []Backend
}

// Build 校验拓扑配置并生成运行时结构
func Build(cfg *Config) (*Topology, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrInvalidTopology, "nil config")
	}

	topo := &Topology{}
	targets, err := topo.buildClusters(cfg.Clusters)
	if err != nil {
		return nil, err
	}

	var tables []metadata.Table
	for _, schema := range cfg.Schemas {
		name := sharding.NormalizeName(schema.Name)
		if name == "" {
			return nil, xerrors.Wrap(ErrInvalidTopology, "schema without name")
		}
		for _, tc := range schema.Tables {
			t, err := buildTable(name, tc, targets)
			if err != nil {
				return nil, err
			}
			tables = append(tables, t)
		}
	}

	topo.Snapshot, err = metadata.NewSnapshot(tables...)
	if err != nil {
		return nil, xerrors.Wrap(err, "topology")
	}
	return topo, nil
}

// buildClusters 生成实例、集群与后端，返回已定义的集群名集合
func (t *Topology) buildClusters(clusters []ClusterConfig) (map[string]struct{}, error) {
	targets := make(map[string]struct{}, len(clusters))
	instances := make(map[string]struct{})

	for _, cc := range clusters {
		if cc.Name == "" {
			return nil, xerrors.Wrap(ErrInvalidTopology, "cluster without name")
		}
		if _, dup := targets[cc.Name]; dup {
			return nil, xerrors.Wrapf(ErrInvalidTopology, "cluster %q defined twice", cc.Name)
		}
		targets[cc.Name] = struct{}{}

		rc := router.Cluster{Name: cc.Name}
		for _, ic := range cc.Instances {
			if ic.Name == "" {
				return nil, xerrors.Wrapf(ErrInvalidTopology, "cluster %q: instance without name", cc.Name)
			}
			if _, dup := instances[ic.Name]; dup {
				return nil, xerrors.Wrapf(ErrInvalidTopology, "instance %q defined twice", ic.Name)
			}
			instances[ic.Name] = struct{}{}

			hc := heartbeat.InstanceConfig{
				Name:           ic.Name,
				Cluster:        cc.Name,
				Role:           heartbeat.Role(strings.ToLower(ic.Role)),
				ReadAllowed:    ic.ReadAllowed,
				SlaveThreshold: ic.SlaveThreshold,
			}
			if hc.Role == "" {
				hc.Role = heartbeat.RoleMaster
			}
			switch hc.Role {
			case heartbeat.RoleMaster:
				if rc.Master != "" {
					return nil, xerrors.Wrapf(ErrInvalidTopology, "cluster %q has more than one master", cc.Name)
				}
				rc.Master = ic.Name
			case heartbeat.RoleSlave:
				if ic.ReadAllowed {
					rc.Slaves = append(rc.Slaves, ic.Name)
				}
			default:
				return nil, xerrors.Wrapf(ErrInvalidTopology, "instance %q: unknown role %q", ic.Name, ic.Role)
			}

			backend, err := buildBackend(ic)
			if err != nil {
				return nil, err
			}
			t.Instances = append(t.Instances, hc)
			t.Backends = append(t.Backends, backend)
		}
		if rc.Master == "" {
			return nil, xerrors.Wrapf(ErrInvalidTopology, "cluster %q has no master", cc.Name)
		}
		t.Clusters = append(t.Clusters, rc)
	}
	return targets, nil
}

func buildBackend(ic InstanceConfig) (Backend, error) {
	b := Backend{Name: ic.Name, Driver: strings.ToLower(ic.Driver)}
	switch b.Driver {
	case "", DriverMySQL:
		b.Driver = DriverMySQL
		b.MySQL = &connector.MySQLConfig{
			Name:     ic.Name,
			DSN:      ic.DSN,
			Host:     ic.Host,
			Port:     ic.Port,
			Username: ic.Username,
			Password: ic.Password,
			Database: ic.Database,
		}
		if ic.DSN == "" && (ic.Host == "" || ic.Username == "") {
			return Backend{}, xerrors.Wrapf(ErrInvalidTopology, "instance %q: mysql requires dsn or host and username", ic.Name)
		}
	case DriverSQLite:
		if ic.Path == "" {
			return Backend{}, xerrors.Wrapf(ErrInvalidTopology, "instance %q: sqlite requires path", ic.Name)
		}
		b.SQLite = &connector.SQLiteConfig{Name: ic.Name, Path: ic.Path}
	default:
		return Backend{}, xerrors.Wrapf(ErrInvalidTopology, "instance %q: unknown driver %q", ic.Name, ic.Driver)
	}
	return b, nil
}

func buildTable(schema string, tc TableConfig, targets map[string]struct{}) (metadata.Table, error) {
	name := sharding.NormalizeName(tc.Name)
	if name == "" {
		return nil, xerrors.Wrapf(ErrInvalidTopology, "schema %q: table without name", schema)
	}
	where := schema + "." + name

	kind := strings.ToLower(tc.Type)
	if kind == "" {
		kind = TableSharding
		if tc.Function == nil {
			kind = TableNormal
		}
	}

	switch kind {
	case TableCustom:
		if tc.Handler == "" {
			return nil, xerrors.Wrapf(ErrInvalidTopology, "%s: custom table requires handler", where)
		}
		return metadata.NewCustomTable(schema, name, tc.Handler)

	case TableNormal:
		nodes, err := plainNodes(schema, name, tc, targets)
		if err != nil {
			return nil, err
		}
		if len(nodes) != 1 {
			return nil, xerrors.Wrapf(ErrInvalidTopology, "%s: normal table requires exactly one data node, got %d", where, len(nodes))
		}
		return metadata.NewNormalTable(schema, name, nodes[0])

	case TableGlobal:
		nodes, err := plainNodes(schema, name, tc, targets)
		if err != nil {
			return nil, err
		}
		if len(nodes) == 0 {
			return nil, xerrors.Wrapf(ErrInvalidTopology, "%s: global table requires data nodes", where)
		}
		return metadata.NewGlobalTable(schema, name, nodes)

	case TableSharding:
		if tc.Function == nil {
			return nil, xerrors.Wrapf(ErrInvalidTopology, "%s: sharding table requires function", where)
		}
		fn, err := buildFunction(schema, name, tc, targets)
		if err != nil {
			return nil, xerrors.Wrapf(err, "topology: %s", where)
		}
		return metadata.NewShardingTable(schema, name, fn)

	default:
		return nil, xerrors.Wrapf(ErrInvalidTopology, "%s: unknown table type %q", where, tc.Type)
	}
}

// plainNodes 全局表与普通表的数据节点：显式列表，或每个 target 一个节点
func plainNodes(schema, table string, tc TableConfig, targets map[string]struct{}) ([]sharding.DataNode, error) {
	if len(tc.DataNodes) > 0 {
		return explicitNodes(tc.DataNodes, schema, table, targets)
	}
	nodes := make([]sharding.DataNode, 0, len(tc.Targets))
	for i, target := range tc.Targets {
		if err := checkTarget(target, targets); err != nil {
			return nil, err
		}
		nodes = append(nodes, sharding.NewDataNode(target,
			expand(orDefault(tc.SchemaPattern, schema), i, 0, i),
			expand(orDefault(tc.TablePattern, table), i, 0, i)))
	}
	return nodes, nil
}

func explicitNodes(list []DataNodeConfig, schema, table string, targets map[string]struct{}) ([]sharding.DataNode, error) {
	nodes := make([]sharding.DataNode, 0, len(list))
	for _, dn := range list {
		if err := checkTarget(dn.Target, targets); err != nil {
			return nil, err
		}
		nodes = append(nodes, sharding.NewDataNode(dn.Target, orDefault(dn.Schema, schema), orDefault(dn.Table, table)))
	}
	return nodes, nil
}

// generateNodes 生成 dbNum*tableNum 个节点，库优先排列；第 d 个库位于 targets[d % len(targets)]
func generateNodes(schema, table string, tc TableConfig, dbNum, tableNum int, targets map[string]struct{}) ([]sharding.DataNode, error) {
	if len(tc.Targets) == 0 {
		return nil, xerrors.Wrap(ErrInvalidTopology, "no targets to generate data nodes")
	}
	for _, target := range tc.Targets {
		if err := checkTarget(target, targets); err != nil {
			return nil, err
		}
	}

	schemaPattern := tc.SchemaPattern
	if schemaPattern == "" {
		schemaPattern = schema
		if dbNum > 1 {
			schemaPattern += "_{db}"
		}
	}
	tablePattern := tc.TablePattern
	if tablePattern == "" {
		tablePattern = table
		if tableNum > 1 {
			tablePattern += "_{table}"
		}
	}

	nodes := make([]sharding.DataNode, 0, dbNum*tableNum)
	seen := make(map[string]struct{}, dbNum*tableNum)
	for d := 0; d < dbNum; d++ {
		for t := 0; t < tableNum; t++ {
			i := d*tableNum + t
			n := sharding.NewDataNode(tc.Targets[d%len(tc.Targets)],
				expand(schemaPattern, d, t, i),
				expand(tablePattern, d, t, i))
			if _, dup := seen[n.UniqueName()]; dup {
				return nil, xerrors.Wrapf(ErrInvalidTopology, "pattern generates duplicate data node %s", n.UniqueName())
			}
			seen[n.UniqueName()] = struct{}{}
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

func expand(pattern string, db, table, index int) string {
	return strings.NewReplacer(
		"{db}", strconv.Itoa(db),
		"{table}", strconv.Itoa(table),
		"{index}", strconv.Itoa(index),
	).Replace(pattern)
}

func checkTarget(target string, targets map[string]struct{}) error {
	if target == "" {
		return xerrors.Wrap(ErrInvalidTopology, "data node without target")
	}
	if _, ok := targets[target]; !ok {
		return xerrors.Wrapf(ErrUnknownTarget, "%s", target)
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func buildFunction(schema, table string, tc TableConfig, targets map[string]struct{}) (sharding.Function, error) {
	fc := tc.Function
	dbNum, tableNum := fc.DBNum, fc.TableNum

	switch strings.ToLower(fc.Type) {
	case FunctionHash:
		dbNum, tableNum = atLeastOne(dbNum), atLeastOne(tableNum)
		nodes, err := shardingNodes(schema, table, tc, dbNum, tableNum, targets)
		if err != nil {
			return nil, err
		}
		return sharding.NewHash(sharding.HashConfig{
			DBKeys:    fc.DBKeys,
			TableKeys: fc.TableKeys,
			DBNum:     dbNum,
			TableNum:  tableNum,
		}, nodes)

	case FunctionRange:
		defaultNode := -1
		if fc.DefaultNode != nil {
			defaultNode = *fc.DefaultNode
		}
		if dbNum <= 0 {
			dbNum = len(fc.Partitions)
			if defaultNode >= dbNum {
				dbNum = defaultNode + 1
			}
			tableNum = 1
		}
		nodes, err := shardingNodes(schema, table, tc, dbNum, atLeastOne(tableNum), targets)
		if err != nil {
			return nil, err
		}
		parts := make([]sharding.Partition, 0, len(fc.Partitions))
		for _, p := range fc.Partitions {
			parts = append(parts, sharding.Partition{Lower: p.Lower, Upper: p.Upper})
		}
		return sharding.NewRange(sharding.RangeConfig{
			Column:      fc.Column,
			Partitions:  parts,
			DefaultNode: defaultNode,
		}, nodes)

	case FunctionAuto:
		dbNum, tableNum = atLeastOne(dbNum), atLeastOne(tableNum)
		nodes, err := shardingNodes(schema, table, tc, dbNum, tableNum, targets)
		if err != nil {
			return nil, err
		}
		return sharding.NewAuto(sharding.AutoConfig{
			DBNum:       dbNum,
			TableNum:    tableNum,
			DBMethod:    fc.DBMethod,
			TableMethod: fc.TableMethod,
			DBKeys:      fc.DBKeys,
			TableKeys:   fc.TableKeys,
		}, nodes)

	default:
		return nil, xerrors.Wrapf(sharding.ErrInvalidFunction, "unknown function type %q", fc.Type)
	}
}

func shardingNodes(schema, table string, tc TableConfig, dbNum, tableNum int, targets map[string]struct{}) ([]sharding.DataNode, error) {
	if len(tc.DataNodes) > 0 {
		return explicitNodes(tc.DataNodes, schema, table, targets)
	}
	return generateNodes(schema, table, tc, dbNum, tableNum, targets)
}

func atLeastOne(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// Targets 拓扑中定义的集群名，按字典序排列
func (t *Topology) Targets() []string {
	names := make([]string, 0, len(t.Clusters))
	for _, c := range t.Clusters {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}
