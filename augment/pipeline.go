package augment

import (
	"github.com/pkg/errors"

	"go.viam.com/pcdaug/logging"
	"go.viam.com/pcdaug/pointcloud"
)

// Transform names one augmentation step.
type Transform string

// The augmentation steps, in the order a Pipeline considers them.
const (
	TransformJitter    Transform = "jitter"
	TransformScale     Transform = "scale"
	TransformTranslate Transform = "translate"
	TransformRotate    Transform = "rotate"
	TransformRGBNoise  Transform = "rgb_noise"
	TransformRGBLight  Transform = "rgb_light"
)

// Transforms returns every step in canonical order.
func Transforms() []Transform {
	return []Transform{
		TransformJitter,
		TransformScale,
		TransformTranslate,
		TransformRotate,
		TransformRGBNoise,
		TransformRGBLight,
	}
}

// A Pipeline applies each transform with its configured probability.
type Pipeline struct {
	opts    Options
	sampler Sampler
	logger  logging.Logger
}

// NewPipeline returns a pipeline for validated options drawing from sampler.
func NewPipeline(opts Options, sampler Sampler, logger logging.Logger) (*Pipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if sampler == nil {
		return nil, errors.New("sampler is required")
	}
	return &Pipeline{opts: opts, sampler: sampler, logger: logger}, nil
}

// Options returns the probabilities the pipeline was built with.
func (p *Pipeline) Options() Options {
	return p.opts
}

// Apply augments the cloud in place and returns it along with the transforms
// that fired. Every step draws u from [0, 1) and runs iff u is below its
// probability. An empty cloud is returned untouched without drawing.
func (p *Pipeline) Apply(cloud *pointcloud.PointCloud) (*pointcloud.PointCloud, []Transform) {
	if cloud.Size() == 0 {
		return cloud, nil
	}
	var applied []Transform
	for _, t := range Transforms() {
		u := p.sampler.Uniform(0, 1)
		if u >= p.opts.Probability(t) {
			continue
		}
		switch t {
		case TransformJitter:
			Jitter(cloud, p.sampler)
		case TransformScale:
			f := Scale(cloud, p.sampler)
			p.logger.Debugw("scaled", "factor", f)
		case TransformTranslate:
			Translate(cloud, p.sampler)
		case TransformRotate:
			theta := Rotate(cloud, p.sampler)
			p.logger.Debugw("rotated", "radians", theta)
		case TransformRGBNoise:
			RGBNoise(cloud, p.sampler)
		case TransformRGBLight:
			RGBLight(cloud, p.sampler)
		}
		applied = append(applied, t)
	}
	return cloud, applied
}
