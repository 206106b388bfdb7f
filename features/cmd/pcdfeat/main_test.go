package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/edaniels/lidario"
	"github.com/urfave/cli/v2"
	"go.viam.com/test"

	"go.viam.com/pcdaug/features"
	"go.viam.com/pcdaug/logging"
	"go.viam.com/pcdaug/pointcloud"
)

func TestRun(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "sample.pcd")
	pc := pointcloud.New()
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			pc.Append(pointcloud.NewPoint(float64(i)*0.05, float64(j)*0.05, 0, 10, 20, 30))
		}
	}
	test.That(t, pointcloud.WriteToPCDFile(pc, input, pointcloud.PCDBinary), test.ShouldBeNil)

	output := filepath.Join(dir, "output.las")
	image := filepath.Join(dir, "planarity.png")
	app := newApp()
	var buf bytes.Buffer
	app.Writer = &buf
	err := app.Run([]string{"pcdfeat", "--input", input, "--output", output, "--image", image, "--image_size", "64"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, buf.String(), test.ShouldContainSubstring, "Saved 36 points with 27 features")

	read, err := pointcloud.NewFromFile(output, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, read.ValueNames(), test.ShouldResemble, features.Names())
	_, err = os.Stat(image)
	test.That(t, err, test.ShouldBeNil)

	err = newApp().Run([]string{"pcdfeat", "--input", input, "--feature", "curvature"})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown feature")
}

func TestRunXYZOnlyLAS(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "sample.las")
	lf, err := lidario.NewLasFile(input, "w")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, lf.AddHeader(lidario.LasHeader{PointFormatID: 0}), test.ShouldBeNil)
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			test.That(t, lf.AddLasPoint(&lidario.PointRecord0{X: float64(i) * 0.05, Y: float64(j) * 0.05}), test.ShouldBeNil)
		}
	}
	test.That(t, lf.Close(), test.ShouldBeNil)

	output := filepath.Join(dir, "output.las")
	app := newApp()
	var buf bytes.Buffer
	app.Writer = &buf
	err = app.Run([]string{"pcdfeat", "--input", input, "--output", output, "--image", ""})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, buf.String(), test.ShouldContainSubstring, "Saved 25 points with 27 features")

	read, err := pointcloud.NewFromFile(output, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, read.At(0).Color, test.ShouldResemble, pointcloud.Color{})
}

func TestLogLevel(t *testing.T) {
	for _, tc := range []struct {
		args     []string
		expected logging.Level
	}{
		{nil, logging.INFO},
		{[]string{"--log_level", "warn"}, logging.WARN},
		{[]string{"--log_level", "error", "--vvv"}, logging.DEBUG},
	} {
		app := newApp()
		var level logging.Level
		app.Action = func(c *cli.Context) error {
			logger, err := newLogger(c, "pcdfeat")
			if err != nil {
				return err
			}
			level = logger.GetLevel()
			return nil
		}
		test.That(t, app.Run(append([]string{"pcdfeat"}, tc.args...)), test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, tc.expected)
	}

	err := newApp().Run([]string{"pcdfeat", "--log_level", "loud"})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown log level")
}
