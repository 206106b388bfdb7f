package pointcloud

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/pcdaug/logging"
)

func makeTestCloud() *PointCloud {
	return NewFromPoints(
		NewPoint(0, 0, 0, 0, 0, 0),
		NewPoint(1.5, -2.25, 3.75, 255, 255, 255),
		NewPoint(-0.5, 0.125, 10, 128, 10, 250),
	)
}

func assertCloudsClose(t *testing.T, actual, expected *PointCloud, epsilon float64) {
	t.Helper()
	test.That(t, actual.Size(), test.ShouldEqual, expected.Size())
	for i, p := range expected.Points() {
		a := actual.At(i)
		test.That(t, a.Position.X, test.ShouldAlmostEqual, p.Position.X, epsilon)
		test.That(t, a.Position.Y, test.ShouldAlmostEqual, p.Position.Y, epsilon)
		test.That(t, a.Position.Z, test.ShouldAlmostEqual, p.Position.Z, epsilon)
		test.That(t, a.Color, test.ShouldResemble, p.Color.Truncated())
	}
}

func TestPCDRoundTrip(t *testing.T) {
	for _, pcdType := range []PCDType{PCDAscii, PCDBinary} {
		t.Run(pcdType.String(), func(t *testing.T) {
			cloud := makeTestCloud()
			test.That(t, cloud.SetValues("planarity", []float64{0.25, 0.5, math.NaN()}), test.ShouldBeNil)
			test.That(t, cloud.SetValues("PCA1", []float64{1, 2, 3}), test.ShouldBeNil)

			var buf bytes.Buffer
			test.That(t, ToPCD(cloud, &buf, pcdType), test.ShouldBeNil)
			header := buf.String()
			test.That(t, header, test.ShouldContainSubstring, "FIELDS x y z rgb planarity PCA1\n")
			test.That(t, header, test.ShouldContainSubstring, "POINTS 3\n")
			test.That(t, header, test.ShouldContainSubstring, "DATA "+pcdType.String()+"\n")

			read, err := ReadPCD(&buf)
			test.That(t, err, test.ShouldBeNil)
			assertCloudsClose(t, read, cloud, 1e-6)

			vals, ok := read.Values("planarity")
			test.That(t, ok, test.ShouldBeTrue)
			test.That(t, vals[0], test.ShouldEqual, 0.25)
			test.That(t, vals[1], test.ShouldEqual, 0.5)
			test.That(t, math.IsNaN(vals[2]), test.ShouldBeTrue)
			test.That(t, read.ValueNames(), test.ShouldResemble, []string{"planarity", "PCA1"})
		})
	}

	var buf bytes.Buffer
	err := ToPCD(makeTestCloud(), &buf, PCDCompressed)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "not yet implemented")
}

func TestReadPCDSplitColor(t *testing.T) {
	in := strings.Join([]string{
		"# .PCD v0.7 - Point Cloud Data file format",
		"VERSION 0.7",
		"FIELDS x y z r g b",
		"SIZE 4 4 4 1 1 1",
		"TYPE F F F U U U",
		"COUNT 1 1 1 1 1 1",
		"WIDTH 2",
		"HEIGHT 1",
		"VIEWPOINT 0 0 0 1 0 0 0",
		"POINTS 2",
		"DATA ascii",
		"1 2 3 4 5 6",
		"",
		"-1 -2 -3 255 0 7",
	}, "\n")
	pc, err := ReadPCD(strings.NewReader(in))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 2)
	test.That(t, pc.At(0), test.ShouldResemble, NewPoint(1, 2, 3, 4, 5, 6))
	test.That(t, pc.At(1), test.ShouldResemble, NewPoint(-1, -2, -3, 255, 0, 7))
	test.That(t, pc.ValueNames(), test.ShouldBeEmpty)
}

func TestReadPCDBinaryPackedFloatColor(t *testing.T) {
	header := strings.Join([]string{
		"VERSION .7",
		"FIELDS x y z rgb _",
		"SIZE 4 4 8 4 1",
		"TYPE F F F F U",
		"COUNT 1 1 1 1 3",
		"WIDTH 1",
		"HEIGHT 1",
		"VIEWPOINT 0 0 0 1 0 0 0",
		"POINTS 1",
		"DATA binary",
		"",
	}, "\n")
	var buf bytes.Buffer
	buf.WriteString(header)
	b := make([]byte, 4+4+8+4+3)
	binary.LittleEndian.PutUint32(b, math.Float32bits(1.5))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(-2))
	binary.LittleEndian.PutUint64(b[8:], math.Float64bits(0.1))
	// pcl packs rgb into the bits of a float
	binary.LittleEndian.PutUint32(b[16:], 0x00ff8001)
	buf.Write(b)

	pc, err := ReadPCD(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 1)
	test.That(t, pc.At(0), test.ShouldResemble, NewPoint(1.5, -2, 0.1, 255, 128, 1))
}

func TestReadPCDErrors(t *testing.T) {
	base := []string{
		"VERSION .7",
		"FIELDS x y z rgb",
		"SIZE 4 4 4 4",
		"TYPE F F F U",
		"COUNT 1 1 1 1",
		"WIDTH 1",
		"HEIGHT 1",
		"VIEWPOINT 0 0 0 1 0 0 0",
		"POINTS 1",
		"DATA ascii",
		"1 2 3 4",
	}
	withLines := func(replace map[int]string) string {
		lines := append([]string(nil), base...)
		for idx, line := range replace {
			lines[idx] = line
		}
		return strings.Join(lines, "\n")
	}
	with := func(idx int, line string) string {
		return withLines(map[int]string{idx: line})
	}

	for _, tc := range []struct {
		name     string
		in       string
		expected string
	}{
		{"version", with(0, "VERSION .6"), "unsupported pcd version"},
		{"order", with(1, "SIZE 4 4 4 4"), "supposed to start with FIELDS"},
		{"size count", with(2, "SIZE 4 4 4"), "unexpected number of fields in SIZE"},
		{"type", with(3, "TYPE F F F X"), "unsupported TYPE"},
		{"points", with(8, "POINTS 2"), "does not match WIDTH*HEIGHT"},
		{"compressed", with(9, "DATA binary_compressed"), "compressed pcd not yet supported"},
		{"bad value", with(10, "1 2 x 4"), "invalid point 0 field z"},
		{"truncated header", strings.Join(base[:4], "\n"), "error reading header line"},
		{"missing point", strings.Join(base[:10], "\n"), "reading point 0"},
		{"huge points", withLines(map[int]string{
			5: "WIDTH 1000000000000000000",
			8: "POINTS 1000000000000000000",
		}), "reading point 1"},
		{"size overflow", withLines(map[int]string{
			5: "WIDTH 4294967296",
			6: "HEIGHT 4294967296",
			8: "POINTS 0",
		}), "overflows"},
		{"points beyond int", withLines(map[int]string{
			5: "WIDTH 18446744073709551615",
			8: "POINTS 18446744073709551615",
		}), "too large"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadPCD(strings.NewReader(tc.in))
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.expected)
		})
	}

	noColor := strings.Join([]string{
		"VERSION .7",
		"FIELDS x y z",
		"SIZE 4 4 4",
		"TYPE F F F",
		"COUNT 1 1 1",
		"WIDTH 1",
		"HEIGHT 1",
		"VIEWPOINT 0 0 0 1 0 0 0",
		"POINTS 1",
		"DATA ascii",
		"1 2 3",
	}, "\n")
	_, err := ReadPCD(strings.NewReader(noColor))
	test.That(t, errors.Is(err, ErrColumnCount), test.ShouldBeTrue)

	_, err = ReadPCD(strings.NewReader(with(10, "1 2 3 4 5")))
	test.That(t, errors.Is(err, ErrColumnCount), test.ShouldBeTrue)
}

func TestNewFromFileSniffing(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	cloud := makeTestCloud()

	for _, name := range []string{"cloud.pcd", "cloud.PCD", "cloud.las", "cloud.txt", "cloud.xyz"} {
		t.Run(name, func(t *testing.T) {
			fn := filepath.Join(dir, name)
			test.That(t, WriteToFile(cloud, fn, PCDBinary), test.ShouldBeNil)
			read, err := NewFromFile(fn, logger)
			test.That(t, err, test.ShouldBeNil)
			assertCloudsClose(t, read, cloud, 0.01)
		})
	}

	err := WriteToFile(cloud, filepath.Join(dir, "cloud.ply"), PCDBinary)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "do not know how to write")

	_, err = NewFromFile(filepath.Join(dir, "missing.pcd"), logger)
	test.That(t, errors.Is(err, os.ErrNotExist), test.ShouldBeTrue)
}
