package sqlite

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "sqlite",
			DisplayName: "SQLite",
			Description: "Open a SQLite 3 database file or an in-memory database",
		},
		Aliases: []string{"sqlite3"},
		Factory: func(ctx context.Context, c datasource.ConnectionConfig, opts datasource.PoolOptions, logger *zap.Logger) (datasource.Connection, error) {
			cfg, err := FromConnectionConfig(c)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, cfg, opts, logger)
		},
	})
}
