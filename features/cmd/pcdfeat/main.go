// Package main computes neighborhood features of a point cloud, writes them as
// extra per-point attributes and renders one of them.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"go.viam.com/pcdaug/features"
	"go.viam.com/pcdaug/logging"
	"go.viam.com/pcdaug/pointcloud"
)

const (
	// Flags.
	flagInput     = "input"
	flagOutput    = "output"
	flagRadius    = "radius"
	flagFeature   = "feature"
	flagImage     = "image"
	flagImageSize = "image_size"
	flagDebug     = "debug"
	flagLogLevel  = "log_level"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "pcdfeat",
		Usage: "compute geometric features of every point of a point cloud",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagInput,
				Value: "sample.las",
				Usage: "point cloud to read (.las, .pcd or delimited text)",
			},
			&cli.StringFlag{
				Name:  flagOutput,
				Value: "output.las",
				Usage: "where to write the cloud with its features (.las or .pcd)",
			},
			&cli.Float64Flag{
				Name:  flagRadius,
				Value: 0.1,
				Usage: "neighborhood search radius",
			},
			&cli.StringFlag{
				Name:  flagFeature,
				Value: features.Planarity,
				Usage: "feature to visualize",
			},
			&cli.StringFlag{
				Name:  flagImage,
				Value: "feature_visualization.jpg",
				Usage: "image to render the feature to (.jpg or .png), empty to skip",
			},
			&cli.IntFlag{
				Name:  flagImageSize,
				Value: 800,
				Usage: "width and height of the image in pixels",
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
		Action: featuresAction,
	}
}

func featuresAction(c *cli.Context) error {
	logger, err := newLogger(c, "pcdfeat")
	if err != nil {
		return err
	}
	defer func() {
		//nolint:errcheck
		logger.Sync()
	}()

	feature := c.String(flagFeature)
	if !lo.Contains(features.Names(), feature) {
		return errors.Errorf("unknown feature %q, expected one of %v", feature, features.Names())
	}

	input := c.String(flagInput)
	cloud, err := loadCloud(input, logger)
	if err != nil {
		return err
	}
	logger.Infow("computing features", "input", input, "points", cloud.Size(), "radius", c.Float64(flagRadius))

	names := features.Names()
	values, err := features.Compute(cloud, c.Float64(flagRadius), names)
	if err != nil {
		return err
	}
	if err := features.Attach(cloud, names, values); err != nil {
		return err
	}
	output := c.String(flagOutput)
	if err := pointcloud.WriteToFile(cloud, output, pointcloud.PCDBinary); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Saved %d points with %d features to %s\n", cloud.Size(), len(names), output)

	image := c.String(flagImage)
	if image == "" {
		return nil
	}
	featureValues, _ := cloud.Values(feature)
	if err := features.Visualize(cloud, featureValues, image, c.Int(flagImageSize)); err != nil {
		return err
	}
	logger.Infow("rendered feature", "feature", feature, "image", image)
	return nil
}

// loadCloud reads the input cloud. Features only need positions, so LAS files
// without color are accepted.
func loadCloud(fn string, logger logging.Logger) (*pointcloud.PointCloud, error) {
	if strings.EqualFold(filepath.Ext(fn), ".las") {
		return pointcloud.NewXYZFromLASFile(fn, logger)
	}
	return pointcloud.NewFromFile(fn, logger)
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
