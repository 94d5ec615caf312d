package topology

import (
	"context"
	"sync"

	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/config"
)

// WatchedKeys 变化后触发拓扑重载的配置键
var WatchedKeys = []string{"clusters", "schemas"}

// Watcher 监听配置变化并重新应用拓扑
type Watcher struct {
	loader  config.Loader
	runtime *Runtime
	logger  clog.Logger
}

// NewWatcher 创建拓扑监听器
func NewWatcher(loader config.Loader, runtime *Runtime, opts ...Option) *Watcher {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	o.applyDefaults()
	return &Watcher{loader: loader, runtime: runtime, logger: o.logger}
}

// Reload 从 loader 读取当前配置并应用，失败时运行时保持原拓扑
func (w *Watcher) Reload() error {
	cfg, err := Load(w.loader)
	if err != nil {
		return err
	}
	topo, err := Build(cfg)
	if err != nil {
		return err
	}
	return w.runtime.Apply(topo)
}

// Run 阻塞直到 ctx 结束。同一批文件变化触发的多个事件只重载一次。
func (w *Watcher) Run(ctx context.Context) error {
	events := make(chan config.Event, len(WatchedKeys))
	var wg sync.WaitGroup
	for _, key := range WatchedKeys {
		ch, err := w.loader.Watch(ctx, key)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range ch {
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			drain(events)
			if err := w.Reload(); err != nil {
				w.logger.Error("topology reload failed, keep current topology",
					clog.String("key", ev.Key),
					clog.Uint64("revision", ev.Revision),
					clog.Error(err))
				continue
			}
			w.logger.Info("topology reloaded",
				clog.String("key", ev.Key),
				clog.Uint64("revision", w.loader.Revision()))
		}
	}
}

func drain(ch <-chan config.Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
