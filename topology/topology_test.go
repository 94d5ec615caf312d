package topology

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/shardproxy/config"
	"github.com/ceyewan/shardproxy/connector"
	"github.com/ceyewan/shardproxy/distribution"
	"github.com/ceyewan/shardproxy/heartbeat"
	"github.com/ceyewan/shardproxy/metadata"
	"github.com/ceyewan/shardproxy/router"
	"github.com/ceyewan/shardproxy/sharding"
	"github.com/ceyewan/shardproxy/testkit"
	"github.com/ceyewan/shardproxy/xerrors"
)

const fixture = `
heartbeat:
  interval: 5s
  timeout: 1s
plan_cache:
  name: plan
  capacity: 128
  ttl: 1m
clusters:
  - name: c0
    instances:
      - name: c0-master
        role: master
        driver: sqlite
        path: "file:topo-c0m?mode=memory&cache=shared"
      - name: c0-slave
        role: slave
        read_allowed: true
        slave_threshold: 3
        driver: sqlite
        path: "file:topo-c0s?mode=memory&cache=shared"
      - name: c0-backup
        role: slave
        driver: sqlite
        path: "file:topo-c0b?mode=memory&cache=shared"
  - name: c1
    instances:
      - name: c1-master
        host: 127.0.0.1
        username: root
schemas:
  - name: db1
    tables:
      - name: orders
        function: {type: hash, db_keys: [user_id], db_num: 2, table_num: 2}
        targets: [c0, c1]
      - name: order_items
        function: {type: hash, db_keys: [user_id], db_num: 2, table_num: 2}
        targets: [c0, c1]
      - name: region
        type: global
        targets: [c0, c1]
      - name: settings
        type: normal
        targets: [c0]
      - name: audit
        type: custom
        handler: audit_handler
      - name: logs
        function:
          type: range
          column: id
          partitions:
            - {lower: 0, upper: 100}
            - {lower: 100, upper: 200}
          default_node: 2
        targets: [c0]
        table_pattern: "logs_{index}"
      - name: users
        function: {type: auto, db_num: 1, table_num: 2, db_method: "mod_hash(id)", table_method: "mod_hash(id)"}
        data_nodes:
          - {target: c0, table: users_a}
          - {target: c0, table: users_b}
`

func build(t *testing.T, yaml string) *Topology {
	t.Helper()
	cfg, err := Parse([]byte(yaml))
	require.NoError(t, err)
	topo, err := Build(cfg)
	require.NoError(t, err)
	return topo
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(fixture))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Heartbeat.Interval)
	assert.Equal(t, 128, cfg.PlanCache.Capacity)
	require.Len(t, cfg.Clusters, 2)
	require.NotNil(t, cfg.Schemas[0].Tables[5].Function.DefaultNode)
	assert.Equal(t, 2, *cfg.Schemas[0].Tables[5].Function.DefaultNode)

	_, err = Parse([]byte("clusterz: []"))
	assert.ErrorIs(t, err, ErrInvalidTopology)
}

func TestBuildClusters(t *testing.T) {
	topo := build(t, fixture)

	assert.Equal(t, []router.Cluster{
		{Name: "c0", Master: "c0-master", Slaves: []string{"c0-slave"}},
		{Name: "c1", Master: "c1-master"},
	}, topo.Clusters)
	assert.Equal(t, []string{"c0", "c1"}, topo.Targets())

	require.Len(t, topo.Instances, 4)
	assert.Equal(t, heartbeat.InstanceConfig{
		Name: "c0-slave", Cluster: "c0", Role: heartbeat.RoleSlave, ReadAllowed: true, SlaveThreshold: 3,
	}, topo.Instances[1])
	assert.Equal(t, heartbeat.RoleMaster, topo.Instances[3].Role)

	require.Len(t, topo.Backends, 4)
	assert.Equal(t, DriverSQLite, topo.Backends[0].Driver)
	assert.Equal(t, DriverMySQL, topo.Backends[3].Driver)
	assert.Equal(t, "127.0.0.1", topo.Backends[3].MySQL.Host)
}

func TestBuildTables(t *testing.T) {
	topo := build(t, fixture)
	snap := topo.Snapshot

	orders, err := snap.Lookup("db1", "orders")
	require.NoError(t, err)
	st := orders.(*metadata.ShardingTable)
	assert.Equal(t, []sharding.DataNode{
		sharding.NewDataNode("c0", "db1_0", "orders_0"),
		sharding.NewDataNode("c0", "db1_0", "orders_1"),
		sharding.NewDataNode("c1", "db1_1", "orders_0"),
		sharding.NewDataNode("c1", "db1_1", "orders_1"),
	}, st.DataNodes())
	assert.Len(t, snap.ERGroup(st.ERUniqueID()), 2)

	region, err := snap.Lookup("db1", "region")
	require.NoError(t, err)
	assert.Equal(t, []sharding.DataNode{
		sharding.NewDataNode("c0", "db1", "region"),
		sharding.NewDataNode("c1", "db1", "region"),
	}, region.(*metadata.GlobalTable).GlobalDataNodes())

	settings, err := snap.Lookup("db1", "settings")
	require.NoError(t, err)
	assert.Equal(t, sharding.NewDataNode("c0", "db1", "settings"), settings.(*metadata.NormalTable).DataNode())

	audit, err := snap.Lookup("db1", "audit")
	require.NoError(t, err)
	assert.Equal(t, "audit_handler", audit.(*metadata.CustomTable).Handler())

	logs, err := snap.Lookup("db1", "logs")
	require.NoError(t, err)
	fn := logs.(*metadata.ShardingTable).Function()
	assert.Equal(t, sharding.KindRange, fn.Kind())
	assert.Equal(t, []sharding.DataNode{sharding.NewDataNode("c0", "db1_2", "logs_2")},
		fn.Calculate(sharding.Predicates{"id": {sharding.Eq(250)}}))

	users, err := snap.Lookup("db1", "users")
	require.NoError(t, err)
	assert.Equal(t, []sharding.DataNode{
		sharding.NewDataNode("c0", "db1", "users_a"),
		sharding.NewDataNode("c0", "db1", "users_b"),
	}, users.(*metadata.ShardingTable).DataNodes())
}

func TestBuildFeedsDistribution(t *testing.T) {
	snap := build(t, fixture).Snapshot

	d, err := distribution.Of(snap, []string{"db1.orders", "db1.order_items", "db1.region"})
	require.NoError(t, err)
	assert.Equal(t, distribution.Sharding, d.Type())

	groups, err := d.DataNodes(distribution.WithPredicates(sharding.Predicates{"user_id": {sharding.Eq(3)}}))
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, sharding.NewDataNode("c1", "db1_1", "orders_1"), groups[0]["db1.orders"])
	assert.Equal(t, sharding.NewDataNode("c1", "db1_1", "order_items_1"), groups[0]["db1.order_items"])
	assert.Equal(t, sharding.NewDataNode("c0", "db1", "region"), groups[0]["db1.region"])

	targets, err := d.Targets()
	require.NoError(t, err)
	assert.Equal(t, []string{"c0", "c1"}, targets)
}

func TestBuildErrors(t *testing.T) {
	base := `
clusters:
  - name: c0
    instances:
      - {name: m, driver: sqlite, path: "file:x?mode=memory"}
`
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"unknown target", base + `
schemas:
  - name: db
    tables:
      - {name: t, type: normal, targets: [c9]}
`, ErrUnknownTarget},
		{"unknown target in sharding table", base + `
schemas:
  - name: db
    tables:
      - {name: t, function: {type: hash, db_keys: [id], db_num: 2}, targets: [c9]}
`, ErrUnknownTarget},
		{"two masters", `
clusters:
  - name: c0
    instances:
      - {name: a, driver: sqlite, path: p}
      - {name: b, driver: sqlite, path: p}
`, ErrInvalidTopology},
		{"no master", `
clusters:
  - name: c0
    instances:
      - {name: a, role: slave, driver: sqlite, path: p}
`, ErrInvalidTopology},
		{"duplicate instance", `
clusters:
  - name: c0
    instances:
      - {name: a, driver: sqlite, path: p}
  - name: c1
    instances:
      - {name: a, driver: sqlite, path: p}
`, ErrInvalidTopology},
		{"unknown role", base + `
  - name: c1
    instances:
      - {name: x, role: arbiter, driver: sqlite, path: p}
`, ErrInvalidTopology},
		{"sqlite without path", `
clusters:
  - name: c0
    instances:
      - {name: a, driver: sqlite}
`, ErrInvalidTopology},
		{"mysql without host", `
clusters:
  - name: c0
    instances:
      - {name: a}
`, ErrInvalidTopology},
		{"unknown driver", `
clusters:
  - name: c0
    instances:
      - {name: a, driver: oracle}
`, ErrInvalidTopology},
		{"normal table on two targets", base + `
  - name: c1
    instances:
      - {name: m1, driver: sqlite, path: p}
schemas:
  - name: db
    tables:
      - {name: t, type: normal, targets: [c0, c1]}
`, ErrInvalidTopology},
		{"custom without handler", base + `
schemas:
  - name: db
    tables:
      - {name: t, type: custom}
`, ErrInvalidTopology},
		{"unknown table type", base + `
schemas:
  - name: db
    tables:
      - {name: t, type: view, targets: [c0]}
`, ErrInvalidTopology},
		{"duplicate generated node", base + `
schemas:
  - name: db
    tables:
      - {name: t, function: {type: hash, db_keys: [id], table_num: 2}, targets: [c0], table_pattern: t}
`, ErrInvalidTopology},
		{"unknown function", base + `
schemas:
  - name: db
    tables:
      - {name: t, function: {type: consistent}, targets: [c0]}
`, sharding.ErrInvalidFunction},
		{"duplicate table", base + `
schemas:
  - name: db
    tables:
      - {name: t, type: normal, targets: [c0]}
      - {name: T, type: normal, targets: [c0]}
`, metadata.ErrDuplicateTable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			_, err = Build(cfg)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, xerrors.Is(err, xerrors.ErrInvalidInput) || xerrors.Is(err, xerrors.ErrNotFound) || xerrors.Is(err, xerrors.ErrConflict))
		})
	}

	_, err := Build(nil)
	assert.ErrorIs(t, err, ErrInvalidTopology)
}

type runtimeFixture struct {
	runtime  *Runtime
	registry *metadata.Registry
	hb       *heartbeat.Manager
	router   *router.Router
	pool     *connector.Pool
}

func newRuntime(t *testing.T) *runtimeFixture {
	t.Helper()
	kit := testkit.NewKit(t)
	pool := connector.NewPool()
	t.Cleanup(func() { _ = pool.Close() })

	hb, err := heartbeat.NewManager(nil, pool)
	require.NoError(t, err)
	t.Cleanup(func() { _ = hb.Close() })

	registry := metadata.NewRegistry(nil)
	rt := router.New(hb)
	return &runtimeFixture{
		runtime:  NewRuntime(registry, hb, rt, pool, WithLogger(kit.Logger)),
		registry: registry,
		hb:       hb,
		router:   rt,
		pool:     pool,
	}
}

func instanceNames(m *heartbeat.Manager) []string {
	var names []string
	for _, s := range m.Snapshots() {
		names = append(names, s.Instance)
	}
	return names
}

func TestRuntimeApply(t *testing.T) {
	f := newRuntime(t)
	topo := build(t, fixture)

	require.NoError(t, f.runtime.Apply(topo))
	assert.Equal(t, []string{"c0-backup", "c0-master", "c0-slave", "c1-master"}, f.pool.Names())
	assert.Equal(t, []string{"c0-backup", "c0-master", "c0-slave", "c1-master"}, instanceNames(f.hb))
	assert.Equal(t, []string{"c0", "c1"}, f.router.Clusters())
	assert.Same(t, topo.Snapshot, f.registry.Current())

	c0master, _ := f.pool.Get("c0-master")
	slaveFlow, _ := f.hb.Flow("c0-slave")

	// 移除 c1，调整从库阈值
	next := strings.Replace(fixture, "slave_threshold: 3", "slave_threshold: 9", 1)
	next = next[:strings.Index(next, "  - name: c1\n")] + next[strings.Index(next, "schemas:"):]
	next = strings.ReplaceAll(next, "[c0, c1]", "[c0]")
	topo2 := build(t, next)

	require.NoError(t, f.runtime.Apply(topo2))
	assert.Equal(t, []string{"c0-backup", "c0-master", "c0-slave"}, f.pool.Names())
	assert.Equal(t, []string{"c0"}, f.router.Clusters())
	assert.Same(t, topo2.Snapshot, f.registry.Current())
	assert.Greater(t, topo2.Snapshot.Generation(), topo.Snapshot.Generation())

	// 连接参数未变的连接器与心跳状态保留
	same, _ := f.pool.Get("c0-master")
	assert.Same(t, c0master, same)
	newSlave, _ := f.hb.Flow("c0-slave")
	assert.NotSame(t, slaveFlow, newSlave)
	assert.Equal(t, int64(9), newSlave.Config().SlaveThreshold)
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shardproxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))

	kit := testkit.NewKit(t)
	loader, err := config.New(config.WithConfigName("shardproxy"), config.WithConfigPaths(dir), config.WithConfigType("yaml"))
	require.NoError(t, err)
	require.NoError(t, loader.Load(kit.Ctx))

	f := newRuntime(t)
	w := NewWatcher(loader, f.runtime, WithLogger(kit.Logger))
	require.NoError(t, w.Reload())
	assert.Equal(t, []string{"c0", "c1"}, f.router.Clusters())
	first := f.registry.Current()

	done := make(chan error, 1)
	go func() { done <- w.Run(kit.Ctx) }()

	// 不合法的拓扑被拒绝，保留原拓扑
	invalid := strings.Replace(fixture, "targets: [c0]\n", "targets: [c9]\n", 1)
	require.NoError(t, os.WriteFile(path, []byte(invalid), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Same(t, first, f.registry.Current())

	next := strings.Replace(fixture, "- name: settings\n        type: normal\n        targets: [c0]",
		"- name: settings\n        type: normal\n        targets: [c1]", 1)
	require.NoError(t, os.WriteFile(path, []byte(next), 0o644))

	assert.Eventually(t, func() bool {
		tbl, err := f.registry.Lookup("db1", "settings")
		return err == nil && tbl.(*metadata.NormalTable).DataNode().TargetName == "c1"
	}, 5*time.Second, 20*time.Millisecond)
}
