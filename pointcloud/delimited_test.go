package pointcloud

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestReadDelimited(t *testing.T) {
	in := strings.Join([]string{
		"# x y z r g b",
		"1 2 3 4 5 6",
		"",
		"0.5,-1.25,2e1,255,0,10",
		"  7;8;9;10;11;12  ",
	}, "\n")
	pc, err := ReadDelimited(strings.NewReader(in))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 3)
	test.That(t, pc.At(0), test.ShouldResemble, NewPoint(1, 2, 3, 4, 5, 6))
	test.That(t, pc.At(1), test.ShouldResemble, NewPoint(0.5, -1.25, 20, 255, 0, 10))
	test.That(t, pc.At(2), test.ShouldResemble, NewPoint(7, 8, 9, 10, 11, 12))

	pc, err = ReadDelimited(strings.NewReader(""))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 0)
}

func TestReadDelimitedErrors(t *testing.T) {
	_, err := ReadDelimited(strings.NewReader("1 2 3 4 5 6\n1 2 3 4 5\n"))
	test.That(t, errors.Is(err, ErrColumnCount), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "line 2 has 5 columns")

	_, err = ReadDelimited(strings.NewReader("1 2 3 4 5 6 7\n"))
	test.That(t, errors.Is(err, ErrColumnCount), test.ShouldBeTrue)

	_, err = ReadDelimited(strings.NewReader("1 2 3 4 five 6\n"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, ErrColumnCount), test.ShouldBeFalse)
	test.That(t, err.Error(), test.ShouldContainSubstring, "line 1 column 5")
}

func TestWriteDelimited(t *testing.T) {
	pc := NewFromPoints(NewPoint(1.5, 0, -2, 255, 12.7, 0))
	var buf bytes.Buffer
	test.That(t, WriteDelimited(pc, &buf), test.ShouldBeNil)
	test.That(t, buf.String(), test.ShouldEqual, "1.5 0 -2 255 12 0\n")
}
