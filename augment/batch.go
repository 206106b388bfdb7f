package augment

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"go.viam.com/pcdaug/logging"
	"go.viam.com/pcdaug/pointcloud"
)

// A Loader reads one input file into a cloud.
type Loader func(fn string, logger logging.Logger) (*pointcloud.PointCloud, error)

// A Writer persists one augmented cloud under a base name with no extension.
// It returns the paths it wrote.
type Writer interface {
	Write(cloud *pointcloud.PointCloud, base string) ([]string, error)
}

// FileWriter writes every cloud as <base>.pcd and <base>.las in Dir.
type FileWriter struct {
	Dir     string
	PCDType pointcloud.PCDType
}

// Write writes both files, attempting the LAS file even when the PCD file fails.
func (w FileWriter) Write(cloud *pointcloud.PointCloud, base string) ([]string, error) {
	var written []string
	var err error
	pcdPath := filepath.Join(w.Dir, base+".pcd")
	if perr := pointcloud.WriteToPCDFile(cloud, pcdPath, w.PCDType); perr != nil {
		err = multierr.Append(err, errors.Wrapf(perr, "error writing %q", pcdPath))
	} else {
		written = append(written, pcdPath)
	}
	lasPath := filepath.Join(w.Dir, base+".las")
	if lerr := pointcloud.WriteToLASFile(cloud, lasPath); lerr != nil {
		err = multierr.Append(err, errors.Wrapf(lerr, "error writing %q", lasPath))
	} else {
		written = append(written, lasPath)
	}
	return written, err
}

// Config describes one batch run.
type Config struct {
	InputDir  string
	OutputDir string
	// AugNum is the number of augmented copies written per input file.
	AugNum  int
	PCDType pointcloud.PCDType
	// Loader defaults to pointcloud.NewFromFile.
	Loader Loader
	// Writer defaults to a FileWriter in OutputDir.
	Writer Writer
}

// FileStatus is the outcome of augmenting one copy of one input file.
type FileStatus string

// The possible outcomes of a file.
const (
	StatusWritten FileStatus = "written"
	StatusSkipped FileStatus = "skipped"
	StatusFailed  FileStatus = "failed"
)

// FileResult records what happened to one copy of one input file.
type FileResult struct {
	Input   string
	Base    string
	Points  int
	Applied []Transform
	Outputs []string
	Status  FileStatus
	Err     error
}

// Summary collects the results of a batch run in processing order.
type Summary struct {
	Results []FileResult
}

// Count returns how many results have the given status.
func (s *Summary) Count(status FileStatus) int {
	return lo.CountBy(s.Results, func(r FileResult) bool {
		return r.Status == status
	})
}

// Render writes the summary as a table.
func (s *Summary) Render(out io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"File", "Output", "Points", "Transforms", "Status"})
	var written []float64
	for _, r := range s.Results {
		status := string(r.Status)
		if r.Err != nil {
			status = fmt.Sprintf("%s: %v", r.Status, r.Err)
		}
		names := lo.Map(r.Applied, func(tr Transform, _ int) string {
			return string(tr)
		})
		t.AppendRow(table.Row{r.Input, r.Base, r.Points, strings.Join(names, ","), status})
		if r.Status == StatusWritten {
			written = append(written, float64(r.Points))
		}
	}
	mean, err := stats.Mean(written)
	if err != nil {
		mean = 0
	}
	t.AppendFooter(table.Row{
		"",
		fmt.Sprintf("%d written, %d skipped, %d failed", s.Count(StatusWritten), s.Count(StatusSkipped), s.Count(StatusFailed)),
		fmt.Sprintf("mean %.1f", mean),
		"",
		"",
	})
	t.Render()
}

// ProcessDir augments every regular, non-hidden file of cfg.InputDir in name
// order. A file that fails is recorded and logged and the rest are still
// processed; the returned error combines every per-file failure. A file whose
// name differs from an earlier one only by extension fails rather than
// overwriting its outputs.
func ProcessDir(ctx context.Context, cfg Config, pipeline *Pipeline, logger logging.Logger) (*Summary, error) {
	if cfg.AugNum < 1 {
		return nil, errors.Errorf("aug_num must be at least 1, got %d", cfg.AugNum)
	}
	if cfg.Loader == nil {
		cfg.Loader = pointcloud.NewFromFile
	}
	if cfg.Writer == nil {
		cfg.Writer = FileWriter{Dir: cfg.OutputDir, PCDType: cfg.PCDType}
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "error creating output folder")
	}
	entries, err := os.ReadDir(cfg.InputDir)
	if err != nil {
		return nil, errors.Wrap(err, "error listing input folder")
	}
	files := lo.Filter(entries, func(e os.DirEntry, _ int) bool {
		return !e.IsDir() && !strings.HasPrefix(e.Name(), ".")
	})
	logger.Infow("augmenting", "input", cfg.InputDir, "output", cfg.OutputDir, "files", len(files), "aug_num", cfg.AugNum)
	logger.Debugw("probabilities", "options", pipeline.Options())

	summary := &Summary{}
	var combinedErr error
	record := func(result FileResult) {
		summary.Results = append(summary.Results, result)
		if result.Err != nil {
			logger.Errorw("failed to augment file", "file", result.Input, "output", result.Base, "error", result.Err)
			combinedErr = multierr.Append(combinedErr, errors.Wrapf(result.Err, "file %q", result.Input))
		}
	}
	stems := map[string]string{}
files:
	for _, entry := range files {
		name := entry.Name()
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if prev, ok := stems[stem]; ok {
			record(FileResult{
				Input:  name,
				Base:   stem,
				Status: StatusFailed,
				Err:    errors.Errorf("outputs would overwrite those of %q", prev),
			})
			continue
		}
		stems[stem] = name
		for i := 1; i <= cfg.AugNum; i++ {
			if err := ctx.Err(); err != nil {
				combinedErr = multierr.Append(combinedErr, err)
				break files
			}
			base := stem
			if cfg.AugNum > 1 {
				base = fmt.Sprintf("%s_%d", stem, i)
			}
			result := processFile(cfg, pipeline, logger, name, base)
			record(result)
			if result.Status == StatusSkipped {
				// every copy of an empty file is empty
				break
			}
		}
	}
	return summary, combinedErr
}

func processFile(cfg Config, pipeline *Pipeline, logger logging.Logger, name, base string) FileResult {
	result := FileResult{Input: name, Base: base}
	cloud, err := cfg.Loader(filepath.Join(cfg.InputDir, name), logger)
	if err != nil {
		result.Status = StatusFailed
		result.Err = err
		return result
	}
	result.Points = cloud.Size()
	if cloud.Size() == 0 {
		logger.Infow("nothing to do", "file", name)
		result.Status = StatusSkipped
		return result
	}

	cloud, result.Applied = pipeline.Apply(cloud)
	cloud.Finalize()
	logger.Debugw("augmented", "file", name, "transforms", result.Applied)

	result.Outputs, err = cfg.Writer.Write(cloud, base)
	if err != nil {
		result.Status = StatusFailed
		result.Err = err
		return result
	}
	for _, out := range result.Outputs {
		logger.Infof("Saved %d points to %s", cloud.Size(), out)
	}
	result.Status = StatusWritten
	return result
}
