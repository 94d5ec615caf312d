package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ceyewan/shardproxy/clog"
	"github.com/ceyewan/shardproxy/xerrors"
)

// loader 基于 viper 的 Loader。viper 本身不是并发安全的：
// 文件重读持有 mu 写锁，Get/Unmarshal 持有读锁，读者不会看到重读到一半的配置。
type loader struct {
	v        *viper.Viper
	opts     *Options
	mu       sync.RWMutex
	revision atomic.Uint64

	watchMu   sync.Mutex
	watches   map[string][]chan Event
	oldValues map[string]any
}

func newLoader(opts ...Option) (*loader, error) {
	options := defaultOptions()
	for _, o := range opts {
		o(options)
	}
	if options.Name == "" {
		return nil, xerrors.Wrap(ErrValidationFailed, "config name is empty")
	}

	return &loader{
		v:         viper.New(),
		opts:      options,
		watches:   make(map[string][]chan Event),
		oldValues: make(map[string]any),
	}, nil
}

// Load 从所有来源加载配置，并在 ctx 结束前监听配置文件
func (l *loader) Load(ctx context.Context) error {
	file, err := l.readAll()
	if err != nil {
		return err
	}
	if err := l.Validate(); err != nil {
		return err
	}

	l.captureCurrentValues()
	l.revision.Store(1)

	if file == "" {
		return nil
	}
	return l.watchFile(ctx, file)
}

// readAll 首次读取：环境变量、.env、主配置文件与环境配置文件。返回使用的配置文件路径。
func (l *loader) readAll() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.v.SetConfigName(l.opts.Name)
	l.v.SetConfigType(l.opts.FileType)
	for _, path := range l.opts.Paths {
		l.v.AddConfigPath(path)
	}
	l.v.SetEnvPrefix(l.opts.EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if err := l.loadDotEnv(); err != nil {
		l.opts.logger.Debug("no .env file loaded", clog.Error(err))
	}

	var file string
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return "", xerrors.Wrapf(err, "failed to read config file %s", l.opts.Name)
		}
		l.opts.logger.Warn("no configuration file found", clog.String("name", l.opts.Name), clog.Strings("paths", l.opts.Paths))
	} else {
		file = l.v.ConfigFileUsed()
	}

	if err := l.loadEnvironmentConfig(); err != nil {
		return "", err
	}
	return file, nil
}

// loadDotEnv 依次尝试工作目录和各搜索路径下的 .env
func (l *loader) loadDotEnv() error {
	var lastErr error
	loaded := false

	if err := godotenv.Load(); err == nil {
		loaded = true
	} else {
		lastErr = err
	}
	for _, path := range l.opts.Paths {
		if err := godotenv.Load(filepath.Join(path, ".env")); err == nil {
			loaded = true
		} else {
			lastErr = err
		}
	}

	if !loaded {
		return lastErr
	}
	return nil
}

// loadEnvironmentConfig 合并 {name}.{env} 配置，env 来自 {PREFIX}_ENV。调用方持有写锁。
func (l *loader) loadEnvironmentConfig() error {
	env := os.Getenv(fmt.Sprintf("%s_ENV", l.opts.EnvPrefix))
	if env == "" {
		return nil
	}

	envConfigName := fmt.Sprintf("%s.%s", l.opts.Name, env)
	l.v.SetConfigName(envConfigName)
	defer l.v.SetConfigName(l.opts.Name)

	if err := l.v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return xerrors.Wrapf(err, "failed to merge environment config %s", envConfigName)
		}
		l.opts.logger.Debug("no environment configuration file", clog.String("env", env))
		return nil
	}
	l.opts.logger.Info("loaded environment configuration", clog.String("env", env))
	return nil
}

// watchFile 监听配置文件所在目录，编辑器以重命名方式替换文件时也能感知。
// 一次保存通常产生多个事件，静默 ReloadDebounce 后才重读。
func (l *loader) watchFile(ctx context.Context, file string) error {
	abs, err := filepath.Abs(file)
	if err != nil {
		return xerrors.Wrapf(err, "resolve config path %s", file)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return xerrors.Wrap(err, "create config watcher")
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return xerrors.Wrapf(err, "watch config dir %s", filepath.Dir(abs))
	}

	go l.watchLoop(ctx, w, abs)
	return nil
}

func (l *loader) watchLoop(ctx context.Context, w *fsnotify.Watcher, file string) {
	defer w.Close()

	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != file || ev.Op&relevant == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(l.opts.ReloadDebounce)
			} else {
				timer.Reset(l.opts.ReloadDebounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			l.reload()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			l.opts.logger.Warn("config watcher error", clog.Error(err))
		}
	}
}

// reload 重读配置文件。解析失败时 viper 保留上一次的配置，订阅者不会收到事件。
func (l *loader) reload() {
	l.mu.Lock()
	err := l.v.ReadInConfig()
	if err == nil {
		err = l.loadEnvironmentConfig()
	}
	l.mu.Unlock()

	if err != nil {
		l.opts.logger.Error("reload config failed, keep previous config", clog.Error(err))
		return
	}
	rev := l.revision.Add(1)
	l.opts.logger.Info("config reloaded", clog.Uint64("revision", rev))
	l.notifyWatches("file")
}

func (l *loader) captureCurrentValues() {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()

	for key := range l.watches {
		l.oldValues[key] = l.Get(key)
	}
}

func (l *loader) Get(key string) any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.v.Get(key)
}

func (l *loader) Unmarshal(v any) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.v.Unmarshal(v)
}

func (l *loader) UnmarshalKey(key string, v any) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.v.UnmarshalKey(key, v)
}

func (l *loader) Revision() uint64 {
	return l.revision.Load()
}

// Watch 订阅特定配置 key 的变更
func (l *loader) Watch(ctx context.Context, key string) (<-chan Event, error) {
	if key == "" {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "watch key is empty")
	}

	current := l.Get(key)

	l.watchMu.Lock()
	defer l.watchMu.Unlock()

	ch := make(chan Event, 10)
	l.watches[key] = append(l.watches[key], ch)
	l.oldValues[key] = current

	go func() {
		<-ctx.Done()
		l.removeWatch(key, ch)
	}()

	return ch, nil
}

func (l *loader) removeWatch(key string, ch chan Event) {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()

	chans := l.watches[key]
	for i, c := range chans {
		if c == ch {
			l.watches[key] = append(chans[:i], chans[i+1:]...)
			close(ch)
			break
		}
	}
	if len(l.watches[key]) == 0 {
		delete(l.watches, key)
		delete(l.oldValues, key)
	}
}

// Validate 配置不能为空
func (l *loader) Validate() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.v.AllSettings()) == 0 {
		return xerrors.Wrap(ErrValidationFailed, "configuration is empty")
	}
	return nil
}

// notifyWatches 对比订阅 key 的新旧值，变化时投递事件；通道满时丢弃并告警
func (l *loader) notifyWatches(source string) {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()

	rev := l.revision.Load()
	for key, channels := range l.watches {
		newValue := l.Get(key)
		oldValue := l.oldValues[key]
		if reflect.DeepEqual(oldValue, newValue) {
			continue
		}

		event := Event{
			Key:       key,
			Value:     newValue,
			OldValue:  oldValue,
			Source:    source,
			Revision:  rev,
			Timestamp: time.Now(),
		}
		l.oldValues[key] = newValue

		for _, ch := range channels {
			select {
			case ch <- event:
			default:
				l.opts.logger.Warn("watch channel is full, event dropped", clog.String("key", key))
			}
		}
	}
}
