// Package main augments every point cloud in a folder and writes each result as PCD and LAS.
package main

import (
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/pcdaug/augment"
	"go.viam.com/pcdaug/logging"
	"go.viam.com/pcdaug/pointcloud"
)

const (
	// Flags.
	flagInputFolder  = "input_folder"
	flagOutputFolder = "output_folder"
	flagNoiseJitter  = "noise_jitter"
	flagScale        = "scale"
	flagTranslate    = "translate"
	flagRotate       = "rotate"
	flagRGBNoise     = "rgb_noise"
	flagRGBLight     = "rgb_light"
	flagAugNum       = "aug_num"
	flagSeed         = "seed"
	flagPCDFormat    = "pcd_format"
	flagConfig       = "config"
	flagDebug        = "debug"
	flagLogLevel     = "log_level"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func probabilityFlag(name string, alias string, value float64, usage string) *cli.Float64Flag {
	return &cli.Float64Flag{
		Name:    name,
		Aliases: []string{alias},
		Value:   value,
		Usage:   usage,
	}
}

func newApp() *cli.App {
	defaults := augment.DefaultOptions()
	return &cli.App{
		Name:  "pcdaug",
		Usage: "perform data augmentation on a folder of point clouds",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagInputFolder,
				Value: "./input",
				Usage: "the path to the input folder",
			},
			&cli.StringFlag{
				Name:  flagOutputFolder,
				Value: "./output",
				Usage: "the path to the output folder",
			},
			probabilityFlag(flagNoiseJitter, "noising", defaults.NoiseJitter, "the probability of jittering coordinates"),
			probabilityFlag(flagScale, "scaling", defaults.Scale, "the probability of scaling"),
			probabilityFlag(flagTranslate, "translating", defaults.Translate, "the probability of translating"),
			probabilityFlag(flagRotate, "rotating", defaults.Rotate, "the probability of rotating about z"),
			probabilityFlag(flagRGBNoise, "rgb_noising", defaults.RGBNoise, "the probability of RGB noising"),
			probabilityFlag(flagRGBLight, "rgb_light_effect", defaults.RGBLight, "the probability of the RGB light effect"),
			&cli.IntFlag{
				Name:  flagAugNum,
				Value: 1,
				Usage: "number of augmented copies of each input",
			},
			&cli.Uint64Flag{
				Name:  flagSeed,
				Usage: "random seed, 0 picks one from the clock",
			},
			&cli.StringFlag{
				Name:  flagPCDFormat,
				Value: pointcloud.PCDBinary.String(),
				Usage: "pcd DATA format: ascii or binary",
			},
			&cli.StringFlag{
				Name:  flagConfig,
				Usage: "load augmentation probabilities from JSON `FILE`; flags given explicitly take precedence",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging, overriding --log_level",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Value: "info",
				Usage: "minimum log level: debug, info, warn or error",
			},
		},
		Action: augmentAction,
	}
}

// optionsFromContext layers explicitly set flags over the config file, if any,
// over the defaults.
func optionsFromContext(c *cli.Context) (augment.Options, error) {
	opts := augment.DefaultOptions()
	if fn := c.String(flagConfig); fn != "" {
		var err error
		opts, err = augment.ReadOptionsFile(fn)
		if err != nil {
			return augment.Options{}, err
		}
	}
	for name, dst := range map[string]*float64{
		flagNoiseJitter: &opts.NoiseJitter,
		flagScale:       &opts.Scale,
		flagTranslate:   &opts.Translate,
		flagRotate:      &opts.Rotate,
		flagRGBNoise:    &opts.RGBNoise,
		flagRGBLight:    &opts.RGBLight,
	} {
		if c.IsSet(name) {
			*dst = c.Float64(name)
		}
	}
	return opts, opts.Validate()
}

func augmentAction(c *cli.Context) error {
	logger, err := newLogger(c, "pcdaug")
	if err != nil {
		return err
	}
	defer func() {
		//nolint:errcheck
		logger.Sync()
	}()

	opts, err := optionsFromContext(c)
	if err != nil {
		return err
	}
	pcdType, err := pointcloud.ParsePCDType(c.String(flagPCDFormat))
	if err != nil {
		return err
	}
	if pcdType == pointcloud.PCDCompressed {
		return errors.New("binary_compressed output is not supported")
	}

	seed := c.Uint64(flagSeed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	logger.Debugw("options", "options", opts, "seed", seed)

	pipeline, err := augment.NewPipeline(opts, augment.NewSeededSampler(seed), logger.Sublogger("pipeline"))
	if err != nil {
		return err
	}
	summary, err := augment.ProcessDir(c.Context, augment.Config{
		InputDir:  c.String(flagInputFolder),
		OutputDir: c.String(flagOutputFolder),
		AugNum:    c.Int(flagAugNum),
		PCDType:   pcdType,
	}, pipeline, logger)
	if summary != nil {
		summary.Render(c.App.Writer)
	}
	return err
}

// newLogger returns a stdout logger at the level picked by --log_level or --debug.
func newLogger(c *cli.Context, name string) (logging.Logger, error) {
	levelName := c.String(flagLogLevel)
	if c.Bool(flagDebug) {
		levelName = "debug"
	}
	level, err := logging.LevelFromString(levelName)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(name)
	logger.SetLevel(level)
	return logger, nil
}
