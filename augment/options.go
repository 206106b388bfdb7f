// Package augment implements randomized geometric and photometric augmentation
// of colored point clouds.
package augment

import (
	"encoding/json"
	"math"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// Options holds the probability, in [0, 1], that each transform fires.
type Options struct {
	NoiseJitter float64 `json:"noise_jitter"`
	Scale       float64 `json:"scale"`
	Translate   float64 `json:"translate"`
	Rotate      float64 `json:"rotate"`
	RGBNoise    float64 `json:"rgb_noise"`
	RGBLight    float64 `json:"rgb_light"`
}

// DefaultOptions returns the default probabilities. Translation is off unless asked for.
func DefaultOptions() Options {
	return Options{
		NoiseJitter: 0.5,
		Scale:       0.5,
		Translate:   0,
		Rotate:      0.5,
		RGBNoise:    0.5,
		RGBLight:    0.5,
	}
}

// Probability returns the probability configured for the given transform.
func (o Options) Probability(t Transform) float64 {
	switch t {
	case TransformJitter:
		return o.NoiseJitter
	case TransformScale:
		return o.Scale
	case TransformTranslate:
		return o.Translate
	case TransformRotate:
		return o.Rotate
	case TransformRGBNoise:
		return o.RGBNoise
	case TransformRGBLight:
		return o.RGBLight
	default:
		return 0
	}
}

// Validate ensures every probability is a number in [0, 1].
func (o Options) Validate() error {
	for _, t := range Transforms() {
		p := o.Probability(t)
		if math.IsNaN(p) || p < 0 || p > 1 {
			return errors.Errorf("probability for %q must be in [0, 1], got %v", t, p)
		}
	}
	return nil
}

// OptionsFromAttributes decodes options from a generic attribute map, starting
// from the defaults. Unknown keys are an error.
func OptionsFromAttributes(attributes map[string]interface{}) (Options, error) {
	opts := DefaultOptions()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &opts,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Options{}, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return Options{}, errors.Wrap(err, "error decoding augmentation options")
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// ReadOptionsFile reads options from a JSON object file.
func ReadOptionsFile(fn string) (Options, error) {
	//nolint:gosec
	data, err := os.ReadFile(fn)
	if err != nil {
		return Options{}, err
	}
	var attributes map[string]interface{}
	if err := json.Unmarshal(data, &attributes); err != nil {
		return Options{}, errors.Wrapf(err, "error parsing %q", fn)
	}
	opts, err := OptionsFromAttributes(attributes)
	if err != nil {
		return Options{}, errors.Wrapf(err, "invalid options in %q", fn)
	}
	return opts, nil
}
