package pointcloud

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// delimitedColumns is the number of columns of a delimited row: x y z r g b.
const delimitedColumns = 6

// NewFromDelimitedFile reads a delimited text file from disk.
func NewFromDelimitedFile(fn string) (*PointCloud, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	pc, err := ReadDelimited(f)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading %q", fn)
	}
	return pc, nil
}

// ReadDelimited reads one point per line, each line holding x y z r g b separated
// by whitespace or commas. Blank lines and lines starting with # are skipped, so
// an empty input is an empty cloud.
func ReadDelimited(in io.Reader) (*PointCloud, error) {
	pc := New()
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, pcdCommentChar) {
			continue
		}
		tokens := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ';' || unicode.IsSpace(r)
		})
		if len(tokens) != delimitedColumns {
			return nil, errors.Wrapf(ErrColumnCount, "line %d has %d columns, expected %d", lineNum, len(tokens), delimitedColumns)
		}
		var row [delimitedColumns]float64
		for i, token := range tokens {
			v, err := strconv.ParseFloat(token, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d column %d", lineNum, i+1)
			}
			row[i] = v
		}
		pc.Append(NewPoint(row[0], row[1], row[2], row[3], row[4], row[5]))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return pc, nil
}

// WriteToDelimitedFile writes the cloud to fn as delimited text.
func WriteToDelimitedFile(cloud *PointCloud, fn string) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return WriteDelimited(cloud, f)
}

// WriteDelimited writes the cloud as space separated x y z r g b rows.
func WriteDelimited(cloud *PointCloud, out io.Writer) error {
	w := bufio.NewWriter(out)
	for _, p := range cloud.Points() {
		r, g, b := p.RGB255()
		if _, err := w.WriteString(strings.Join([]string{
			strconv.FormatFloat(p.Position.X, 'g', -1, 64),
			strconv.FormatFloat(p.Position.Y, 'g', -1, 64),
			strconv.FormatFloat(p.Position.Z, 'g', -1, 64),
			strconv.Itoa(int(r)),
			strconv.Itoa(int(g)),
			strconv.Itoa(int(b)),
		}, " ") + "\n"); err != nil {
			return err
		}
	}
	return w.Flush()
}
