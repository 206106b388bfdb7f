package pointcloud

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"

	"github.com/edaniels/lidario"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/pcdaug/logging"
)

// pointValueDataTag is the VLR user id marking per-point value data. The VLR
// description holds the value's name.
const pointValueDataTag = "rc|pv"

// maxVLRPayload is the largest multiple of 8 that fits a VLR's 16 bit record length.
const maxVLRPayload = math.MaxUint16 - math.MaxUint16%8

// lasWritePointFormat is point data with GPS time and RGB.
const lasWritePointFormat = 3

// lasColorPointFormats are the point formats that carry RGB.
var lasColorPointFormats = map[byte]bool{2: true, 3: true}

// NewFromLASFile returns a point cloud from reading a LAS file. Only point
// formats that carry color can be read since every point needs six columns.
func NewFromLASFile(fn string, logger logging.Logger) (*PointCloud, error) {
	return readLASFile(fn, logger, true)
}

// NewXYZFromLASFile is like NewFromLASFile but also accepts point formats
// without color, whose points are read as black.
func NewXYZFromLASFile(fn string, logger logging.Logger) (*PointCloud, error) {
	return readLASFile(fn, logger, false)
}

func readLASFile(fn string, logger logging.Logger, requireColor bool) (*PointCloud, error) {
	lf, err := lidario.NewLasFile(fn, "r")
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(lf.Close)

	hasColor := lasColorPointFormats[lf.Header.PointFormatID]
	if requireColor && lf.Header.NumberPoints > 0 && !hasColor {
		return nil, errors.Wrapf(ErrColumnCount, "LAS point format %d in %q has no color", lf.Header.PointFormatID, fn)
	}

	pc := NewWithPrealloc(lf.Header.NumberPoints)
	raw := make([][3]uint16, 0, lf.Header.NumberPoints)
	var maxChannel uint16
	for i := 0; i < lf.Header.NumberPoints; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, err
		}
		data := p.PointData()
		pc.Append(Point{Position: NewVector(data.X, data.Y, data.Z)})
		var rgb lidario.RgbData
		if hasColor {
			if c := p.RgbData(); c != nil {
				rgb = *c
			}
		}
		raw = append(raw, [3]uint16{rgb.Red, rgb.Green, rgb.Blue})
		for _, c := range []uint16{rgb.Red, rgb.Green, rgb.Blue} {
			if c > maxChannel {
				maxChannel = c
			}
		}
	}

	// LAS colors are meant to be 16 bit but plenty of writers store 8 bit values as is.
	divisor := 256.
	if maxChannel <= math.MaxUint8 {
		divisor = 1
	}
	logger.Debugw("read LAS colors", "file", fn, "points", pc.Size(), "max_channel", maxChannel, "divisor", divisor)
	pts := pc.Points()
	for i, c := range raw {
		pts[i].Color = Color{
			R: math.Trunc(float64(c[0]) / divisor),
			G: math.Trunc(float64(c[1]) / divisor),
			B: math.Trunc(float64(c[2]) / divisor),
		}
	}

	if err := readLASValues(lf, pc); err != nil {
		return nil, errors.Wrapf(err, "error reading values of %q", fn)
	}
	return pc, nil
}

func trimLASString(s string) string {
	return strings.TrimRight(s, "\x00 ")
}

func readLASValues(lf *lidario.LasFile, pc *PointCloud) error {
	var names []string
	payloads := map[string]*bytes.Buffer{}
	for _, d := range lf.VlrData {
		if trimLASString(d.UserID) != pointValueDataTag {
			continue
		}
		name := trimLASString(d.Description)
		buf, ok := payloads[name]
		if !ok {
			buf = &bytes.Buffer{}
			payloads[name] = buf
			names = append(names, name)
		}
		buf.Write(d.BinaryData)
	}
	for _, name := range names {
		data := payloads[name].Bytes()
		if len(data) != 8*pc.Size() {
			return errors.Errorf("value %q has %d bytes, expected %d", name, len(data), 8*pc.Size())
		}
		vals := make([]float64, pc.Size())
		for i := range vals {
			vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8 : (i*8)+8]))
		}
		if err := pc.SetValues(name, vals); err != nil {
			return err
		}
	}
	return nil
}

// WriteToLASFile writes the point cloud out to a LAS file using point format 3.
// Colors are stored as their 0-255 values in the 16 bit channels and every
// per-point value is stored as float64s in one or more VLRs tagged with the
// value's name.
func WriteToLASFile(cloud *PointCloud, fn string) (err error) {
	lf, err := lidario.NewLasFile(fn, "w")
	if err != nil {
		return
	}
	defer func() {
		cerr := lf.Close()
		err = multierr.Combine(err, cerr)
	}()

	if err = lf.AddHeader(lidario.LasHeader{
		PointFormatID: lasWritePointFormat,
	}); err != nil {
		return
	}

	var lastErr error
	cloud.Iterate(func(_ int, p Point) bool {
		pr0 := &lidario.PointRecord0{
			X: p.Position.X,
			Y: p.Position.Y,
			Z: p.Position.Z,
			BitField: lidario.PointBitField{
				Value: (1) | (1 << 3) | (0 << 6) | (0 << 7),
			},
			ClassBitField: lidario.ClassificationBitField{
				Value: 0,
			},
			ScanAngle:     0,
			UserData:      0,
			PointSourceID: 1,
		}
		red, green, blue := p.RGB255()
		lp := &lidario.PointRecord3{
			PointRecord0: pr0,
			RGB: &lidario.RgbData{
				Red:   uint16(red),
				Green: uint16(green),
				Blue:  uint16(blue),
			},
		}
		if lerr := lf.AddLasPoint(lp); lerr != nil {
			lastErr = lerr
			return false
		}
		return true
	})
	if lastErr != nil {
		err = lastErr
		return
	}

	for _, name := range cloud.ValueNames() {
		vals, _ := cloud.Values(name)
		var buf bytes.Buffer
		b := make([]byte, 8)
		for _, v := range vals {
			binary.LittleEndian.PutUint64(b, math.Float64bits(v))
			buf.Write(b)
		}
		for _, chunk := range chunkBytes(buf.Bytes(), maxVLRPayload) {
			if err = lf.AddVLR(lidario.VLR{
				UserID:                  pointValueDataTag,
				Description:             name,
				BinaryData:              chunk,
				RecordLengthAfterHeader: len(chunk),
			}); err != nil {
				return
			}
		}
	}

	// nolint:nakedret
	return
}

func chunkBytes(data []byte, size int) [][]byte {
	var chunks [][]byte
	for len(data) > size {
		chunks = append(chunks, data[:size])
		data = data[size:]
	}
	if len(data) > 0 {
		chunks = append(chunks, data)
	}
	return chunks
}
