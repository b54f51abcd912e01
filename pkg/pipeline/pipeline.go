// Package pipeline runs an ordered list of transforms over a batch of images.
//
// Each image is loaded, passed through every step and saved under a name that
// records the steps applied to it. A failure aborts only the image it happened
// on; the rest of the batch is still processed.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"niftitools/internal/models"
	"niftitools/pkg/logger"
	"niftitools/pkg/nifti"
	"niftitools/pkg/serrors"
	"niftitools/pkg/transform"
)

// Step names used in StepError for work done outside a transform.
const (
	StepLoad = "load"
	StepSave = "save"
)

// Loader reads an image from path.
type Loader interface {
	Load(path string) (*models.Image, error)
}

// Saver persists an image at path.
type Saver interface {
	Save(im *models.Image, path string) error
}

// PathFunc derives the output path for original with suffix appended.
type PathFunc func(original string, suffix Suffix) string

// Suffix accumulates the tags of the steps applied so far, e.g. "_[reo]_[pd]".
type Suffix string

// Append returns s followed by "_[tag]". An empty tag leaves s unchanged.
func (s Suffix) Append(tag string) Suffix {
	if tag == "" {
		return s
	}
	return s + Suffix("_["+tag+"]")
}

// StepError reports the image and step a failure happened on.
type StepError struct {
	Path string
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Path, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Result is the outcome of one image.
type Result struct {
	Input string
	// Outputs lists every file written for the image, partial saves first.
	Outputs []string
	Err     error
}

// Report collects the results of a batch in input order.
type Report struct {
	Results []Result
}

// Failed returns the results that ended in an error.
func (r Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err combines every per-image error, nil when the whole batch succeeded.
func (r Report) Err() error {
	var err error
	for _, res := range r.Results {
		err = multierr.Append(err, res.Err)
	}
	return err
}

// Options tune a Pipeline.
type Options struct {
	// Workers is the number of images processed concurrently. Values below 1
	// mean one image at a time.
	Workers int
	// OutputPath names saved files. Defaults to nifti.OutputPath next to the input.
	OutputPath PathFunc
}

// Pipeline is an immutable list of transforms plus the codec it saves through.
// It is safe to share between goroutines.
type Pipeline struct {
	transforms []transform.Transform
	loader     Loader
	saver      Saver
	workers    int
	outputPath PathFunc
}

// New builds a pipeline. At least one transform is required.
func New(transforms []transform.Transform, loader Loader, saver Saver, opts Options) (*Pipeline, error) {
	if len(transforms) == 0 {
		return nil, serrors.With(serrors.ErrConfiguration, "pipeline has no steps")
	}
	if loader == nil || saver == nil {
		return nil, serrors.With(serrors.ErrConfiguration, "pipeline needs a loader and a saver")
	}

	p := &Pipeline{
		transforms: append([]transform.Transform(nil), transforms...),
		loader:     loader,
		saver:      saver,
		workers:    max(opts.Workers, 1),
		outputPath: opts.OutputPath,
	}
	if p.outputPath == nil {
		p.outputPath = func(original string, suffix Suffix) string {
			return nifti.OutputPath(original, string(suffix), "")
		}
	}
	return p, nil
}

// Steps returns the names of the transforms in order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.transforms))
	for i, t := range p.transforms {
		names[i] = t.Name()
	}
	return names
}

// Run processes every path and returns one Result per scheduled image. The
// returned error is non-nil only when ctx was cancelled before all images were
// scheduled; per-image failures are reported in the Report.
func (p *Pipeline) Run(ctx context.Context, paths []string) (Report, error) {
	results := make([]Result, len(paths))
	scheduled := 0

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, path := range paths {
		if ctx.Err() != nil {
			break
		}
		scheduled++
		i, path := i, path
		g.Go(func() error {
			results[i] = p.runImage(ctx, path)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Results: results[:scheduled]}
	if scheduled < len(paths) {
		return report, ctx.Err()
	}
	return report, nil
}

func (p *Pipeline) runImage(ctx context.Context, path string) Result {
	ctx = logger.WithFields(ctx, zap.String("image", path))
	logger.Info(ctx, "Processing image")

	res := Result{Input: path}
	im, err := p.loader.Load(path)
	if err != nil {
		res.Err = p.fail(ctx, path, StepLoad, err)
		return res
	}

	res.Outputs, err = p.process(ctx, path, im)
	if err != nil {
		res.Err = err
		return res
	}
	logger.Info(ctx, "Image done", zap.Strings("outputs", res.Outputs))
	return res
}

// Process runs every step on an already decoded image and returns the paths
// written. original is only used to derive output names.
func (p *Pipeline) Process(ctx context.Context, original string, im *models.Image) ([]string, error) {
	return p.process(logger.WithFields(ctx, zap.String("image", original)), original, im)
}

func (p *Pipeline) process(ctx context.Context, original string, im *models.Image) ([]string, error) {
	var (
		outputs []string
		suffix  Suffix
	)
	last := len(p.transforms) - 1
	for i, t := range p.transforms {
		var err error
		im, suffix, err = p.step(ctx, t, im, suffix)
		if err != nil {
			return outputs, p.fail(ctx, original, t.Name(), err)
		}

		// a last step with save_partial is written twice, once per rule
		if t.SavePartial() && t.Exportable() {
			out, err := p.save(ctx, original, im, suffix, false)
			if err != nil {
				return outputs, err
			}
			outputs = append(outputs, out)
		}
		if i == last {
			out, err := p.save(ctx, original, im, suffix, true)
			if err != nil {
				return outputs, err
			}
			outputs = append(outputs, out)
		}
	}
	return outputs, nil
}

func (p *Pipeline) save(ctx context.Context, original string, im *models.Image, suffix Suffix, final bool) (string, error) {
	out := p.outputPath(original, suffix)
	if err := p.saver.Save(im, out); err != nil {
		return "", p.fail(ctx, original, StepSave, err)
	}
	logger.Debug(ctx, "Saved", zap.String("path", out), zap.Bool("final", final))
	return out, nil
}

func (p *Pipeline) step(ctx context.Context, t transform.Transform, im *models.Image, suffix Suffix) (*models.Image, Suffix, error) {
	out, err := t.Apply(ctx, im)
	if err != nil {
		return nil, suffix, err
	}
	return out, suffix.Append(t.Tag()), nil
}

func (p *Pipeline) fail(ctx context.Context, path, step string, err error) error {
	logger.Error(ctx, "Image failed", zap.String("step", step), zap.Error(err))
	return &StepError{Path: path, Step: step, Err: err}
}
