package mssql

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-querykit/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "sqlserver",
			DisplayName: "Microsoft SQL Server",
			Description: "Connect to SQL Server 2019+, Azure SQL Database",
			DefaultPort: DefaultPort(),
		},
		Aliases: []string{"mssql"},
		Factory: func(ctx context.Context, c datasource.ConnectionConfig, opts datasource.PoolOptions, logger *zap.Logger) (datasource.Connection, error) {
			cfg, err := FromConnectionConfig(c)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, cfg, opts, logger)
		},
	})
}
