package mssql

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-quality/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

func init() {
	datasource.Register(datasource.ReaderRegistration{
		Info: datasource.ReaderInfo{
			Type:        models.SourceTypeMSSQL,
			DisplayName: "Microsoft SQL Server",
			Description: "Read a table or query from SQL Server 2019+, Azure SQL Database",
		},
		Factory: func(ctx context.Context, config map[string]any, logger *zap.Logger) (datasource.DatasetReader, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewReader(ctx, cfg, logger)
		},
	})
}
