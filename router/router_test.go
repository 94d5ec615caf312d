package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/shardproxy/breaker"
	"github.com/ceyewan/shardproxy/heartbeat"
	"github.com/ceyewan/shardproxy/testkit"
	"github.com/ceyewan/shardproxy/xerrors"
)

type fakeStatus struct {
	mu     sync.Mutex
	status map[string]heartbeat.InstanceStatus
	sync   map[string]heartbeat.DatasourceStatus
}

func newFakeStatus(instances ...string) *fakeStatus {
	f := &fakeStatus{
		status: make(map[string]heartbeat.InstanceStatus),
		sync:   make(map[string]heartbeat.DatasourceStatus),
	}
	for _, i := range instances {
		f.status[i] = heartbeat.StatusOK
		f.sync[i] = heartbeat.DatasourceStatus{DBSynStatus: heartbeat.DBSynNormal}
	}
	return f
}

func (f *fakeStatus) set(instance string, st heartbeat.InstanceStatus, ds heartbeat.DatasourceStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[instance] = st
	f.sync[instance] = ds
}

func (f *fakeStatus) InstanceStatus(instance string) (heartbeat.InstanceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.status[instance]
	if !ok {
		return heartbeat.StatusError, heartbeat.ErrInstanceNotFound
	}
	return st, nil
}

func (f *fakeStatus) DBSyncStatus(instance string) (heartbeat.DatasourceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ds, ok := f.sync[instance]
	if !ok {
		return heartbeat.DatasourceStatus{}, heartbeat.ErrInstanceNotFound
	}
	return ds, nil
}

func (f *fakeStatus) Snapshot(instance string) (heartbeat.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.status[instance]
	if !ok {
		return heartbeat.Snapshot{}, heartbeat.ErrInstanceNotFound
	}
	return heartbeat.Snapshot{Instance: instance, Status: st, Datasource: f.sync[instance]}, nil
}

// laggingStatus 单独的状态查询仍返回上一轮结果，快照已是最新一轮
type laggingStatus struct {
	*fakeStatus
	latest map[string]heartbeat.Snapshot
}

func (l *laggingStatus) Snapshot(instance string) (heartbeat.Snapshot, error) {
	if snap, ok := l.latest[instance]; ok {
		return snap, nil
	}
	return l.fakeStatus.Snapshot(instance)
}

var c0 = Cluster{Name: "c0", Master: "m", Slaves: []string{"s1", "s2"}}

func newRouter(t *testing.T, status heartbeat.StatusProvider, opts ...Option) *Router {
	t.Helper()
	r := New(status, opts...)
	require.NoError(t, r.Update([]Cluster{c0}))
	return r
}

func TestSelectWrite(t *testing.T) {
	ctx := context.Background()
	status := newFakeStatus("m", "s1", "s2")
	r := newRouter(t, status)

	for i := 0; i < 3; i++ {
		got, err := r.Select(ctx, "c0", ModeWrite)
		require.NoError(t, err)
		assert.Equal(t, "m", got)
	}

	status.set("m", heartbeat.StatusError, heartbeat.DatasourceStatus{DBSynStatus: heartbeat.DBSynNormal})
	_, err := r.Select(ctx, "c0", ModeWrite)
	assert.ErrorIs(t, err, ErrNoAvailableInstance)
	assert.True(t, xerrors.Is(err, xerrors.ErrUnavailable))
}

func TestSelectReadRoundRobin(t *testing.T) {
	ctx := context.Background()
	r := newRouter(t, newFakeStatus("m", "s1", "s2"))

	var got []string
	for i := 0; i < 4; i++ {
		inst, err := r.Select(ctx, "c0", ModeRead)
		require.NoError(t, err)
		got = append(got, inst)
	}
	assert.Equal(t, []string{"s1", "s2", "s1", "s2"}, got)
}

func TestSelectReadSkipsUnhealthySlaves(t *testing.T) {
	ctx := context.Background()
	normal := heartbeat.DatasourceStatus{DBSynStatus: heartbeat.DBSynNormal}

	tests := []struct {
		name   string
		status heartbeat.InstanceStatus
		ds     heartbeat.DatasourceStatus
	}{
		{"instance error", heartbeat.StatusError, normal},
		{"replication error", heartbeat.StatusOK, heartbeat.DatasourceStatus{DBSynStatus: heartbeat.DBSynError}},
		{"behind master", heartbeat.StatusOK, heartbeat.DatasourceStatus{DBSynStatus: heartbeat.DBSynNormal, SlaveBehindMaster: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := newFakeStatus("m", "s1", "s2")
			status.set("s1", tt.status, tt.ds)
			r := newRouter(t, status)

			for i := 0; i < 3; i++ {
				inst, err := r.Select(ctx, "c0", ModeRead)
				require.NoError(t, err)
				assert.Equal(t, "s2", inst)
			}
		})
	}
}

func TestSelectReadUnknownSyncIsReadable(t *testing.T) {
	status := newFakeStatus("m", "s1")
	status.set("s1", heartbeat.StatusOK, heartbeat.DatasourceStatus{})
	r := New(status)
	require.NoError(t, r.Update([]Cluster{{Name: "c0", Master: "m", Slaves: []string{"s1"}}}))

	inst, err := r.Select(context.Background(), "c0", ModeRead)
	require.NoError(t, err)
	assert.Equal(t, "s1", inst)
}

func TestSelectReadFallsBackToMaster(t *testing.T) {
	ctx := context.Background()
	status := newFakeStatus("m")
	r := newRouter(t, status)

	inst, err := r.Select(ctx, "c0", ModeRead)
	require.NoError(t, err)
	assert.Equal(t, "m", inst)

	status.set("m", heartbeat.StatusError, heartbeat.DatasourceStatus{})
	_, err = r.Select(ctx, "c0", ModeRead)
	assert.ErrorIs(t, err, ErrNoAvailableInstance)
}

func TestSelectReadDecidesFromOneSnapshot(t *testing.T) {
	status := &laggingStatus{
		fakeStatus: newFakeStatus("m", "s1", "s2"),
		latest: map[string]heartbeat.Snapshot{
			"s1": {
				Instance:   "s1",
				Status:     heartbeat.StatusOK,
				Datasource: heartbeat.DatasourceStatus{DBSynStatus: heartbeat.DBSynNormal, SlaveBehindMaster: true},
			},
		},
	}
	r := newRouter(t, status)

	for i := 0; i < 3; i++ {
		inst, err := r.Select(context.Background(), "c0", ModeRead)
		require.NoError(t, err)
		assert.Equal(t, "s2", inst)
	}
}

func TestSelectClusterNotFound(t *testing.T) {
	r := newRouter(t, newFakeStatus())
	_, err := r.Select(context.Background(), "c9", ModeRead)
	assert.ErrorIs(t, err, ErrClusterNotFound)
	assert.True(t, xerrors.Is(err, xerrors.ErrNotFound))
}

func TestSelectSkipsOpenBreaker(t *testing.T) {
	brk, err := breaker.New(&breaker.Config{MinimumRequests: 1, FailureRatio: 0.5, Timeout: time.Minute})
	require.NoError(t, err)
	_, _ = brk.Execute(context.Background(), "s1", func() (any, error) { return nil, errors.New("down") })
	require.False(t, brk.Allow("s1"))

	r := newRouter(t, newFakeStatus("m", "s1", "s2"), WithBreaker(brk))
	for i := 0; i < 3; i++ {
		inst, err := r.Select(context.Background(), "c0", ModeRead)
		require.NoError(t, err)
		assert.Equal(t, "s2", inst)
	}
}

func TestUpdate(t *testing.T) {
	r := New(newFakeStatus("m", "s1", "s2"))

	assert.ErrorIs(t, r.Update([]Cluster{{Name: "c0"}}), ErrInvalidCluster)
	assert.ErrorIs(t, r.Update([]Cluster{c0, c0}), ErrInvalidCluster)

	require.NoError(t, r.Update([]Cluster{c0, {Name: "c1", Master: "m1"}}))
	assert.Equal(t, []string{"c0", "c1"}, r.Clusters())

	// 配置不变的集群保留轮询位置
	first, _ := r.Select(context.Background(), "c0", ModeRead)
	require.NoError(t, r.Update([]Cluster{c0}))
	second, _ := r.Select(context.Background(), "c0", ModeRead)
	assert.NotEqual(t, first, second)
	assert.Equal(t, []string{"c0"}, r.Clusters())

	got, err := r.Cluster("c0")
	require.NoError(t, err)
	assert.Equal(t, c0, got)
	_, err = r.Cluster("c1")
	assert.ErrorIs(t, err, ErrClusterNotFound)
}

func TestExecuteWithHeartbeat(t *testing.T) {
	kit := testkit.NewKit(t)
	pool := testkit.NewSQLitePool(t, "m")

	mgr, err := heartbeat.NewManager(nil, pool)
	require.NoError(t, err)
	defer mgr.Close()
	_, err = mgr.Register(heartbeat.InstanceConfig{Name: "m", Cluster: "c0", Role: heartbeat.RoleMaster})
	require.NoError(t, err)
	_, err = mgr.Probe(kit.Ctx, "m")
	require.NoError(t, err)

	brk, err := breaker.New(&breaker.Config{})
	require.NoError(t, err)
	r := New(mgr, WithExecutor(pool), WithBreaker(brk), WithLogger(kit.Logger), WithMeter(kit.Meter))
	require.NoError(t, r.Update([]Cluster{{Name: "c0", Master: "m"}}))

	inst, rows, err := r.Execute(kit.Ctx, "c0", ModeRead, "select 7 as n")
	require.NoError(t, err)
	assert.Equal(t, "m", inst)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 7, rows[0]["n"])

	_, _, err = New(mgr).Execute(kit.Ctx, "c0", ModeRead, "select 1")
	assert.ErrorIs(t, err, ErrNoExecutor)
}
