package main

import (
	"github.com/atotto/clipboard"
	"github.com/jwulff/articube/internal/agent"
	"github.com/jwulff/articube/internal/app"
	"github.com/jwulff/articube/internal/auth"
	"github.com/jwulff/articube/internal/config"
	"github.com/jwulff/articube/internal/db"
	"github.com/jwulff/articube/internal/history"
	"github.com/jwulff/articube/internal/logging"
	"github.com/jwulff/articube/internal/progress"
	"github.com/jwulff/articube/internal/reading"
	"github.com/jwulff/articube/internal/search"
	"go.uber.org/zap"
)

// runtime holds everything a command needs, built once from config.
type runtime struct {
	cfg      *config.Config
	log      *zap.Logger
	client   *agent.Client
	store    *db.Store // nil when running on the in-memory fallback
	progress *progress.Store
	history  *history.Cache
	search   *search.Controller
	tracker  *reading.Tracker
}

func loadConfig(f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.apiURL != "" {
		cfg.APIURL = f.apiURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup loads config and wires the components. console adds a stderr log
// core when --verbose is set.
func setup(f *flags, console bool) (*runtime, error) {
	cfg, err := loadConfig(f)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if f.verbose {
		level = "debug"
	}
	log, err := logging.New(logging.Options{
		Path:    cfg.LogPath,
		Level:   level,
		Console: console && f.verbose,
	})
	if err != nil {
		return nil, err
	}

	client, err := agent.NewClient(cfg.APIURL, auth.NewSource(cfg.Token), agent.Options{
		Timeout:          cfg.GetRequestTimeout(),
		ContentCacheSize: cfg.ContentCacheSize,
		Logger:           log,
	})
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, log: log, client: client}

	var medium progress.Medium
	store, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Warn("open progress database, keeping progress in memory", zap.String("path", cfg.DBPath), zap.Error(err))
		medium = db.NewMemory()
	} else {
		rt.store = store
		medium = store
	}

	rt.progress = progress.New(medium, progress.WithLogger(log))
	rt.history = history.New(client, log)
	rt.search = search.NewController(client, rt.history, search.Options{
		HistoryLimit:  cfg.HistoryLimit,
		SaveToHistory: cfg.SaveToHistory,
		Logger:        log,
	})
	rt.tracker = reading.New(rt.progress, reading.Options{
		Debounce:     cfg.GetScrollDebounce(),
		RestoreDelay: cfg.GetRestoreDelay(),
		Logger:       log,
	})
	return rt, nil
}

func (rt *runtime) deps() app.Deps {
	return app.Deps{
		Search:      rt.search,
		History:     rt.history,
		Progress:    rt.progress,
		Tracker:     rt.tracker,
		Content:     rt.client,
		Clipboard:   clipboard.WriteAll,
		RecentLimit: rt.cfg.RecentLimit,
		Timeout:     rt.cfg.GetRequestTimeout(),
		Logger:      rt.log,
	}
}

// Close writes the final reading position and releases the database.
func (rt *runtime) Close() {
	rt.tracker.Detach()
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.log.Warn("close progress database", zap.Error(err))
		}
	}
	_ = rt.log.Sync()
}

