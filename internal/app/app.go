// Package app assembles tabula's components from a Config.
package app

import (
	"context"
	"os"
	"sort"

	"github.com/koustreak/tabula/internal/cache"
	"github.com/koustreak/tabula/internal/catalog"
	"github.com/koustreak/tabula/internal/config"
	"github.com/koustreak/tabula/internal/database"
	"github.com/koustreak/tabula/internal/database/mysql"
	"github.com/koustreak/tabula/internal/database/postgres"
	"github.com/koustreak/tabula/internal/database/sqlite"
	"github.com/koustreak/tabula/internal/entity"
	"github.com/koustreak/tabula/internal/errs"
	"github.com/koustreak/tabula/internal/fieldspec"
	"github.com/koustreak/tabula/internal/filestore/minio"
	"github.com/koustreak/tabula/internal/logger"
	"github.com/koustreak/tabula/internal/metadata"
	"github.com/koustreak/tabula/internal/query"
	"github.com/koustreak/tabula/internal/query/memory"
	"github.com/koustreak/tabula/internal/query/sqlclient"
	"github.com/koustreak/tabula/internal/server"
)

// App holds every wired component. Fields a configuration does not use
// stay nil: DB and Catalog for the memory driver, Memory for SQL drivers.
type App struct {
	Config *config.Config
	Log    *logger.Logger

	DB      database.DB
	Memory  *memory.Store
	Catalog *catalog.Catalog
	Client  query.Client

	Registry *metadata.Registry
	Fields   *fieldspec.Builder
	Entities *entity.Service
	Server   *server.Server

	closers []func()
}

// New connects to every configured backend and wires the components.
// On error, anything already opened is closed again.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (a *App, err error) {
	if log == nil {
		log = logger.Nop()
	}
	a = &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	known, err := a.openBackend(ctx)
	if err != nil {
		return nil, err
	}

	static, err := a.loadStatic(ctx)
	if err != nil {
		return nil, err
	}

	engine := metadata.NewEngine(a.Client,
		metadata.WithSampleSize(cfg.Metadata.SampleSize),
		metadata.WithStrictRelationNames(cfg.Metadata.StrictRelationNames),
		metadata.WithKnownTables(unionTables(known, static)),
		metadata.WithEngineLogger(log),
	)

	regOpts := []metadata.RegistryOption{
		metadata.WithPrimaryKeyNamespacing(cfg.Metadata.NamespacePrimaryKeys),
		metadata.WithRegistryLogger(log),
	}
	if static != nil {
		regOpts = append(regOpts, metadata.WithStatic(static))
	}
	if a.Catalog != nil {
		regOpts = append(regOpts, metadata.WithTableRefresh(a.Catalog.Refresh))
	}
	if cfg.Cache.RedisAddr != "" {
		shared, err := cache.NewRedisStore(ctx, cfg.RedisConfig())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = shared.Close() })
		regOpts = append(regOpts, metadata.WithShared(shared, cfg.Cache.SharedTTL))
	}

	cacheOpts := cfg.CacheOptions()
	a.Registry = metadata.NewRegistry(engine, cache.New[*metadata.TableSchema](cacheOpts...), regOpts...)
	a.Fields = fieldspec.NewBuilder(a.Registry, a.Client, cache.New[[]fieldspec.Option](cacheOpts...),
		fieldspec.WithOptionLimit(cfg.Metadata.OptionLimit),
		fieldspec.WithLogger(log),
	)
	a.Entities = entity.NewService(a.Registry, a.Client,
		cache.New[query.Record](cacheOpts...),
		cache.New[*query.ResultSet](cacheOpts...),
		entity.WithLogger(log),
	)
	a.Entities.OnWrite(func(_ context.Context, table string) {
		a.Fields.InvalidateOptions(table)
	})

	srvOpts := []server.Option{
		server.WithLogger(log),
		server.WithRequestTimeout(cfg.Server.RequestTimeout),
	}
	if a.DB != nil {
		srvOpts = append(srvOpts, server.WithHealthCheck(a.DB.Ping))
	}
	a.Server = server.New(a.Registry, a.Fields, a.Entities, srvOpts...)

	log.InfoWith("tabula ready", map[string]any{
		"driver": cfg.Database.Driver,
		"static": static != nil,
		"shared": cfg.Cache.RedisAddr != "",
	})
	return a, nil
}

// openBackend opens the configured database, or the memory store, and
// returns the function that lists its tables.
func (a *App) openBackend(ctx context.Context) (func() []string, error) {
	cfg := a.Config
	if cfg.Database.Driver == string(database.DriverMemory) {
		a.Memory = memory.New()
		if cfg.Database.SeedFile != "" {
			f, err := os.Open(cfg.Database.SeedFile)
			if err != nil {
				return nil, errs.Wrap(errs.ErrKindInvalidInput, "cannot open seed file", err)
			}
			defer f.Close()
			if err := a.Memory.LoadSeed(f); err != nil {
				return nil, err
			}
		}
		a.Client = a.Memory
		return a.Memory.Tables, nil
	}

	db, err := openDB(ctx, cfg.DatabaseConfig())
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)
	a.Client = sqlclient.New(db,
		sqlclient.WithQueryTimeout(cfg.Database.QueryTimeout),
		sqlclient.WithLogger(a.Log),
	)

	a.Catalog = catalog.New(catalog.ForDB(db, ""), a.Log)
	// A failed listing only weakens relation matching.
	_ = a.Catalog.Refresh(ctx)
	return a.Catalog.Tables, nil
}

func openDB(ctx context.Context, cfg *database.Config) (database.DB, error) {
	switch cfg.Driver {
	case database.DriverPostgres:
		return postgres.New(ctx, cfg)
	case database.DriverMySQL:
		return mysql.New(ctx, cfg)
	case database.DriverSQLite:
		return sqlite.New(ctx, cfg)
	default:
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported database driver %q", cfg.Driver)
	}
}

// loadStatic reads the static metadata document from a file or a bucket.
// It returns nil when none is configured.
func (a *App) loadStatic(ctx context.Context) (*metadata.StaticSchemas, error) {
	md := a.Config.Metadata
	switch {
	case md.StaticFile != "":
		return metadata.LoadStaticFile(md.StaticFile)
	case md.StaticBucket != "":
		store, err := minio.New(ctx, a.Config.FilestoreConfig())
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return metadata.LoadStaticObject(ctx, store, md.StaticBucket, md.StaticObject)
	}
	return nil, nil
}

// Close releases every backend connection, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func unionTables(known func() []string, static *metadata.StaticSchemas) func() []string {
	return func() []string {
		set := make(map[string]bool)
		for _, t := range known() {
			set[t] = true
		}
		if static != nil {
			for _, t := range static.Tables() {
				set[t] = true
			}
		}
		out := make([]string, 0, len(set))
		for t := range set {
			out = append(out, t)
		}
		sort.Strings(out)
		return out
	}
}
