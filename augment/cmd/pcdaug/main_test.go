package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"
	"go.viam.com/test"

	"go.viam.com/pcdaug/augment"
	"go.viam.com/pcdaug/logging"
)

// parseOptions runs the app with an action that only resolves options.
func parseOptions(t *testing.T, args ...string) (augment.Options, error) {
	t.Helper()
	app := newApp()
	var opts augment.Options
	var optsErr error
	app.Action = func(c *cli.Context) error {
		opts, optsErr = optionsFromContext(c)
		return nil
	}
	test.That(t, app.Run(append([]string{"pcdaug"}, args...)), test.ShouldBeNil)
	return opts, optsErr
}

func TestOptionsFromContext(t *testing.T) {
	opts, err := parseOptions(t)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, opts, test.ShouldResemble, augment.DefaultOptions())

	opts, err = parseOptions(t, "--translate", "1", "--rgb_noising", "0")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, opts.Translate, test.ShouldEqual, 1)
	test.That(t, opts.RGBNoise, test.ShouldEqual, 0)

	fn := filepath.Join(t.TempDir(), "opts.json")
	test.That(t, os.WriteFile(fn, []byte(`{"scale": 0.1, "rotate": 0.2}`), 0o600), test.ShouldBeNil)
	opts, err = parseOptions(t, "--config", fn, "--rotate", "0.9")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, opts.Scale, test.ShouldEqual, 0.1)
	test.That(t, opts.Rotate, test.ShouldEqual, 0.9)

	_, err = parseOptions(t, "--scale", "3")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRun(t *testing.T) {
	input := t.TempDir()
	output := filepath.Join(t.TempDir(), "out")
	test.That(t, os.WriteFile(filepath.Join(input, "box.txt"), []byte("0 0 0 1 2 3\n1 1 1 4 5 6\n"), 0o600), test.ShouldBeNil)

	app := newApp()
	var buf bytes.Buffer
	app.Writer = &buf
	err := app.Run([]string{
		"pcdaug",
		"--input_folder", input,
		"--output_folder", output,
		"--seed", "3",
		"--pcd_format", "ascii",
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, buf.String(), test.ShouldContainSubstring, "box.txt")
	for _, name := range []string{"box.pcd", "box.las"} {
		_, err := os.Stat(filepath.Join(output, name))
		test.That(t, err, test.ShouldBeNil)
	}

	test.That(t, os.WriteFile(filepath.Join(input, "broken.txt"), []byte("1 2 3\n"), 0o600), test.ShouldBeNil)
	err = newApp().Run([]string{"pcdaug", "--input_folder", input, "--output_folder", output})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "broken.txt")

	err = newApp().Run([]string{"pcdaug", "--input_folder", input, "--pcd_format", "binary_compressed"})
	test.That(t, err, test.ShouldNotBeNil)
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
			logger, err := newLogger(c, "pcdaug")
			if err != nil {
				return err
			}
			level = logger.GetLevel()
			return nil
		}
		test.That(t, app.Run(append([]string{"pcdaug"}, tc.args...)), test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, tc.expected)
	}

	err := newApp().Run([]string{"pcdaug", "--log_level", "loud"})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown log level")
}
