package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-quality/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-quality/pkg/services"
	"github.com/ekaya-inc/ekaya-quality/pkg/services/workqueue"
)

// BatchManifest lists the datasets one batch run scans.
type BatchManifest struct {
	Sources []BatchSource `yaml:"sources"`
}

// BatchSource is one dataset of a batch. Exactly one of CSV, File,
// PostgresDSN and MSSQLDSN must be set.
type BatchSource struct {
	Table       string   `yaml:"table"`
	CSV         string   `yaml:"csv"`
	File        string   `yaml:"file"`
	Sheet       string   `yaml:"sheet"`
	Delimiter   string   `yaml:"delimiter"`
	PostgresDSN string   `yaml:"postgres_dsn"`
	MSSQLDSN    string   `yaml:"mssql_dsn"`
	Query       string   `yaml:"query"`
	Limit       int      `yaml:"limit"`
	Types       []string `yaml:"types"`
}

// batchEntry is the per-source outcome printed by the batch command.
type batchEntry struct {
	Task   workqueue.TaskSnapshot `json:"task"`
	Result *services.ScanResult   `json:"result,omitempty"`
}

// ParseBatchManifest decodes a manifest, rejecting unknown keys and
// sources that do not name exactly one reader.
func ParseBatchManifest(r io.Reader) (*BatchManifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m BatchManifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: batch manifest is empty", apperrors.ErrInvalidInput)
		}
		return nil, fmt.Errorf("%w: invalid batch manifest: %v", apperrors.ErrInvalidInput, err)
	}
	if len(m.Sources) == 0 {
		return nil, fmt.Errorf("%w: batch manifest lists no sources", apperrors.ErrInvalidInput)
	}
	for i, s := range m.Sources {
		set := 0
		for _, v := range []string{s.CSV, s.File, s.PostgresDSN, s.MSSQLDSN} {
			if v != "" {
				set++
			}
		}
		if set != 1 {
			return nil, fmt.Errorf("%w: source %d must set exactly one of csv, file, postgres_dsn, mssql_dsn",
				apperrors.ErrInvalidInput, i)
		}
	}
	return &m, nil
}

func (s BatchSource) flags() *sourceFlags {
	f := &sourceFlags{
		table:       s.Table,
		csvPath:     s.CSV,
		filePath:    s.File,
		sheet:       s.Sheet,
		delimiter:   s.Delimiter,
		postgresDSN: s.PostgresDSN,
		mssqlDSN:    s.MSSQLDSN,
		query:       s.Query,
		limit:       s.Limit,
		types:       s.Types,
	}
	if f.delimiter == "" {
		f.delimiter = ","
	}
	if f.limit == 0 {
		f.limit = datasource.DefaultRowLimit
	}
	return f
}

func (s BatchSource) name() string {
	switch {
	case s.Table != "":
		return s.Table
	case s.CSV != "":
		return s.CSV
	case s.File != "":
		return s.File
	default:
		return "(unnamed)"
	}
}

func newBatchCmd(opts *globalOptions) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "batch <manifest.yaml>",
		Short: "Scan every dataset listed in a manifest",
		Long: "Scans the manifest's sources concurrently. Each source is scanned as by " +
			"the scan command; a failing source does not stop the others.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open manifest: %w", err)
			}
			manifest, err := ParseBatchManifest(f)
			f.Close()
			if err != nil {
				return err
			}

			return runWithPool(cmd, opts, func(ctx context.Context, a *app) error {
				entries, err := runBatch(ctx, a, manifest, concurrency)
				if printErr := printJSON(cmd.OutOrStdout(), entries); printErr != nil {
					return printErr
				}
				return err
			})
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Maximum datasets scanned at once")
	return cmd
}

// runBatch scans every source on its own connection scope. The scan
// service is shared so scans of the same table stay serialized.
func runBatch(ctx context.Context, a *app, manifest *BatchManifest, concurrency int) ([]batchEntry, error) {
	scanner := a.scanService()
	q := workqueue.New(ctx, a.logger, workqueue.WithStrategy(workqueue.NewThrottledStrategy(concurrency)))

	var mu sync.Mutex
	results := make([]*services.ScanResult, len(manifest.Sources))

	for i, src := range manifest.Sources {
		q.Enqueue(workqueue.NewFuncTask(src.name(), func(ctx context.Context) error {
			scoped, release, err := a.db.WithScope(ctx)
			if err != nil {
				return err
			}
			defer release()

			ds, err := readDataset(scoped, src.flags(), a.logger)
			if err != nil {
				return err
			}
			result, err := scanner.Scan(scoped, ds)
			if err != nil {
				return err
			}
			mu.Lock()
			results[i] = result
			mu.Unlock()
			return nil
		}))
	}

	waitErr := q.Wait(ctx)

	tasks := q.GetTasks()
	entries := make([]batchEntry, len(tasks))
	for i, t := range tasks {
		entries[i] = batchEntry{Task: t, Result: results[i]}
	}

	p := q.Progress()
	a.logger.Info("Batch finished",
		zap.Int("total", p.Total),
		zap.Int("completed", p.Completed),
		zap.Int("failed", p.Failed),
		zap.Int("cancelled", p.Cancelled),
		zap.Int("percent_done", p.Percentage()))

	return entries, batchError(q, waitErr)
}

// batchError turns the queue outcome into the command's error, so any
// failed source gives a non-zero exit status.
func batchError(q *workqueue.Queue, waitErr error) error {
	if q.HasFailures() {
		p := q.Progress()
		return fmt.Errorf("%d of %d sources failed: %w", p.Failed, p.Total, waitErr)
	}
	return waitErr
}
