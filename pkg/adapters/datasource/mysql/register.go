package mysql

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "mysql",
			DisplayName: "MySQL",
			Description: "Connect to MySQL 8+ or MariaDB 10.5+",
			DefaultPort: DefaultPort(),
		},
		Aliases: []string{"mariadb"},
		Factory: func(ctx context.Context, c datasource.ConnectionConfig, opts datasource.PoolOptions, logger *zap.Logger) (datasource.Connection, error) {
			cfg, err := FromConnectionConfig(c)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, cfg, opts, logger)
		},
	})
}
