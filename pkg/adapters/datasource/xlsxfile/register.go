package xlsxfile

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-quality/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-quality/pkg/models"
)

func init() {
	datasource.Register(datasource.ReaderRegistration{
		Info: datasource.ReaderInfo{
			Type:        models.SourceTypeXLSX,
			DisplayName: "Excel workbook",
			Description: "Read one sheet of an .xlsx file with a header row",
		},
		Factory: func(ctx context.Context, config map[string]any, logger *zap.Logger) (datasource.DatasetReader, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewReader(cfg, logger), nil
		},
	})
}
