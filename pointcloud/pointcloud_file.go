package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/bits"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/pcdaug/logging"
)

// ErrColumnCount is returned when stored data does not describe exactly the
// x, y, z, r, g, b columns a cloud needs.
var ErrColumnCount = errors.New("unexpected number of columns")

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
	// PCDCompressed binary format for pcd.
	PCDCompressed PCDType = 2
)

func (t PCDType) String() string {
	switch t {
	case PCDAscii:
		return "ascii"
	case PCDBinary:
		return "binary"
	case PCDCompressed:
		return "binary_compressed"
	default:
		return fmt.Sprintf("PCDType(%d)", int(t))
	}
}

// ParsePCDType parses the DATA value of a pcd header.
func ParsePCDType(s string) (PCDType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ascii":
		return PCDAscii, nil
	case "binary":
		return PCDBinary, nil
	case "binary_compressed":
		return PCDCompressed, nil
	default:
		return 0, errors.Errorf("unknown pcd data type %q", s)
	}
}

// NewFromFile returns a pointcloud read in from the given file. The format is
// picked from the extension: .pcd and .las are parsed as such, anything else is
// read as delimited text with six columns per line.
func NewFromFile(fn string, logger logging.Logger) (*PointCloud, error) {
	switch strings.ToLower(filepath.Ext(fn)) {
	case ".pcd":
		return NewFromPCDFile(fn)
	case ".las":
		return NewFromLASFile(fn, logger)
	default:
		return NewFromDelimitedFile(fn)
	}
}

// WriteToFile writes the cloud to fn, choosing the format from the extension.
func WriteToFile(cloud *PointCloud, fn string, pcdType PCDType) error {
	switch strings.ToLower(filepath.Ext(fn)) {
	case ".pcd":
		return WriteToPCDFile(cloud, fn, pcdType)
	case ".las":
		return WriteToLASFile(cloud, fn)
	case ".txt", ".xyz", ".pts":
		return WriteToDelimitedFile(cloud, fn)
	default:
		return errors.Errorf("do not know how to write file %q", fn)
	}
}

// NewFromPCDFile reads a pcd file from disk.
func NewFromPCDFile(fn string) (*PointCloud, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	pc, err := ReadPCD(f)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading %q", fn)
	}
	return pc, nil
}

// WriteToPCDFile writes the cloud to fn as a pcd file of the given type.
func WriteToPCDFile(cloud *PointCloud, fn string, outputType PCDType) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return ToPCD(cloud, f, outputType)
}

const pcdCommentChar = "#"

var pcdHeaderFields = []string{"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA"}

type pcdValType string

const (
	pcdValFloat pcdValType = "F"
	pcdValInt   pcdValType = "I"
	pcdValUInt  pcdValType = "U"
)

type pcdField struct {
	name  string
	size  int
	type_ pcdValType
	count int
}

type pcdHeader struct {
	fields []pcdField
	width  uint64
	height uint64
	points uint64
	data   PCDType
}

// pcdLayout maps header fields onto cloud columns.
type pcdLayout struct {
	x, y, z  int
	rgb      int
	r, g, b  int
	extras   []int
	rowBytes int
}

// ToPCD writes the cloud as pcd. Per-point values attached to the cloud become
// extra float fields after x y z rgb.
func ToPCD(cloud *PointCloud, out io.Writer, outputType PCDType) error {
	if outputType == PCDCompressed {
		return errors.New("compressed PCD not yet implemented")
	}
	names := cloud.ValueNames()
	columns := make([][]float64, len(names))
	fieldNames := []string{"x", "y", "z", "rgb"}
	sizes := []string{"4", "4", "4", "4"}
	types := []string{"F", "F", "F", "U"}
	counts := []string{"1", "1", "1", "1"}
	for i, name := range names {
		columns[i], _ = cloud.Values(name)
		fieldNames = append(fieldNames, strings.ReplaceAll(name, " ", "_"))
		sizes = append(sizes, "4")
		types = append(types, "F")
		counts = append(counts, "1")
	}

	w := bufio.NewWriter(out)
	if _, err := fmt.Fprintf(w, "VERSION .7\n"+
		"FIELDS %s\n"+
		"SIZE %s\n"+
		"TYPE %s\n"+
		"COUNT %s\n"+
		"WIDTH %d\n"+
		"HEIGHT 1\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA %s\n",
		strings.Join(fieldNames, " "),
		strings.Join(sizes, " "),
		strings.Join(types, " "),
		strings.Join(counts, " "),
		cloud.Size(),
		cloud.Size(),
		outputType,
	); err != nil {
		return err
	}

	buf := make([]byte, 4*len(fieldNames))
	var writeErr error
	cloud.Iterate(func(i int, p Point) bool {
		c := colorToPCDInt(p.Color)
		switch outputType {
		case PCDBinary:
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(p.Position.X)))
			binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(p.Position.Y)))
			binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(p.Position.Z)))
			binary.LittleEndian.PutUint32(buf[12:], c)
			for j, col := range columns {
				binary.LittleEndian.PutUint32(buf[16+4*j:], math.Float32bits(float32(col[i])))
			}
			_, writeErr = w.Write(buf)
		case PCDAscii:
			tokens := make([]string, 0, len(fieldNames))
			tokens = append(tokens,
				formatFloat32(p.Position.X),
				formatFloat32(p.Position.Y),
				formatFloat32(p.Position.Z),
				strconv.FormatUint(uint64(c), 10))
			for _, col := range columns {
				tokens = append(tokens, formatFloat32(col[i]))
			}
			_, writeErr = fmt.Fprintln(w, strings.Join(tokens, " "))
		}
		return writeErr == nil
	})
	if writeErr != nil {
		return writeErr
	}
	return w.Flush()
}

func formatFloat32(v float64) string {
	return strconv.FormatFloat(float64(float32(v)), 'g', -1, 32)
}

func colorToPCDInt(c Color) uint32 {
	r, g, b := c.Normalized().RGB255()
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

func pcdIntToColor(c uint32) Color {
	return NewColor(uint8(0xFF&(c>>16)), uint8(0xFF&(c>>8)), uint8(0xFF&c))
}

func parsePCDHeaderLine(line string, index int, header *pcdHeader) error {
	var err error
	name := pcdHeaderFields[index]
	field, value, _ := strings.Cut(line, " ")
	value = strings.TrimSpace(value)
	tokens := strings.Fields(value)
	if field != name {
		return fmt.Errorf("line is supposed to start with %s but is %s", name, line)
	}

	checkFieldCount := func() error {
		if len(tokens) != len(header.fields) {
			return fmt.Errorf("unexpected number of fields in %s line, expected %d got %d", name, len(header.fields), len(tokens))
		}
		return nil
	}

	switch name {
	case "VERSION":
		if value != ".7" && value != "0.7" {
			return fmt.Errorf("unsupported pcd version %s", value)
		}
	case "FIELDS":
		if len(tokens) == 0 {
			return errors.Wrap(ErrColumnCount, "pcd has no FIELDS")
		}
		header.fields = make([]pcdField, len(tokens))
		for i, token := range tokens {
			header.fields[i] = pcdField{name: token, size: 4, type_: pcdValFloat, count: 1}
		}
	case "SIZE":
		if err := checkFieldCount(); err != nil {
			return err
		}
		for i, token := range tokens {
			header.fields[i].size, err = strconv.Atoi(token)
			if err != nil {
				return fmt.Errorf("invalid SIZE field %s", token)
			}
			switch header.fields[i].size {
			case 1, 2, 4, 8:
			default:
				return fmt.Errorf("unsupported SIZE %d for field %s", header.fields[i].size, header.fields[i].name)
			}
		}
	case "TYPE":
		if err := checkFieldCount(); err != nil {
			return err
		}
		for i, token := range tokens {
			t := pcdValType(strings.ToUpper(token))
			switch t {
			case pcdValFloat, pcdValInt, pcdValUInt:
			default:
				return fmt.Errorf("unsupported TYPE %s for field %s", token, header.fields[i].name)
			}
			header.fields[i].type_ = t
		}
	case "COUNT":
		if err := checkFieldCount(); err != nil {
			return err
		}
		for i, token := range tokens {
			header.fields[i].count, err = strconv.Atoi(token)
			if err != nil || header.fields[i].count < 1 {
				return fmt.Errorf("invalid COUNT field %s", token)
			}
		}
	case "WIDTH":
		header.width, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid WIDTH field %s: %w", value, err)
		}
	case "HEIGHT":
		header.height, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid HEIGHT field %s: %w", value, err)
		}
	case "VIEWPOINT":
		if len(tokens) != 7 {
			return fmt.Errorf("unexpected number of fields in VIEWPOINT line. Expected 7, got %d", len(tokens))
		}
		for _, token := range tokens {
			if _, err := strconv.ParseFloat(token, 64); err != nil {
				return fmt.Errorf("invalid VIEWPOINT field %s: %w", token, err)
			}
		}
	case "POINTS":
		var points uint64
		points, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid POINTS field %s: %w", value, err)
		}
		hi, total := bits.Mul64(header.width, header.height)
		if hi != 0 {
			return fmt.Errorf("WIDTH %d * HEIGHT %d overflows", header.width, header.height)
		}
		if points != total {
			return fmt.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d", points, total)
		}
		if points > math.MaxInt {
			return fmt.Errorf("POINTS field %d is too large", points)
		}
		header.points = points
	case "DATA":
		header.data, err = ParsePCDType(value)
		if err != nil {
			return err
		}
	}

	return nil
}

func (header *pcdHeader) layout() (pcdLayout, error) {
	l := pcdLayout{x: -1, y: -1, z: -1, rgb: -1, r: -1, g: -1, b: -1}
	for i, f := range header.fields {
		switch strings.ToLower(f.name) {
		case "x":
			l.x = i
		case "y":
			l.y = i
		case "z":
			l.z = i
		case "rgb", "rgba":
			l.rgb = i
		case "r", "red":
			l.r = i
		case "g", "green":
			l.g = i
		case "b", "blue":
			l.b = i
		case "_":
		default:
			l.extras = append(l.extras, i)
		}
		l.rowBytes += f.size * f.count
	}
	if l.x < 0 || l.y < 0 || l.z < 0 {
		return l, errors.Wrap(ErrColumnCount, "pcd fields must include x y z")
	}
	hasSplitColor := l.r >= 0 && l.g >= 0 && l.b >= 0
	if l.rgb < 0 && !hasSplitColor {
		return l, errors.Wrap(ErrColumnCount, "pcd fields must include rgb or r g b")
	}
	return l, nil
}

// ReadPCD reads a pcd from the given reader. Fields other than the position and
// color are kept as named per-point values.
func ReadPCD(inRaw io.Reader) (*PointCloud, error) {
	header := pcdHeader{}
	in := bufio.NewReader(inRaw)
	headerLineCount := 0
	for headerLineCount < len(pcdHeaderFields) {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, fmt.Errorf("error reading header line %d: %w", headerLineCount, err)
		}
		line, _, _ = strings.Cut(line, pcdCommentChar)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := parsePCDHeaderLine(line, headerLineCount, &header); err != nil {
			return nil, err
		}
		headerLineCount++
	}
	layout, err := header.layout()
	if err != nil {
		return nil, err
	}

	var pc *PointCloud
	switch header.data {
	case PCDAscii:
		pc, err = readPCDAscii(in, header, layout)
	case PCDBinary:
		pc, err = readPCDBinary(in, header, layout)
	case PCDCompressed:
		return nil, errors.New("compressed pcd not yet supported")
	default:
		return nil, fmt.Errorf("unsupported pcd data type %v", header.data)
	}
	if err != nil {
		return nil, err
	}
	return pc, nil
}

// pcdValue is a decoded field: its numeric value and its raw low 32 bits, the
// latter being how packed rgb is carried.
type pcdValue struct {
	num  float64
	bits uint32
}

// maxPreallocPoints bounds the capacity taken from an untrusted POINTS header.
const maxPreallocPoints = 1 << 20

func (header *pcdHeader) preallocSize() int {
	return int(min(header.points, maxPreallocPoints))
}

func readPCDAscii(in *bufio.Reader, header pcdHeader, layout pcdLayout) (*PointCloud, error) {
	pc := NewWithPrealloc(header.preallocSize())
	extras := newExtraColumns(header, layout)
	numTokens := 0
	for _, f := range header.fields {
		numTokens += f.count
	}
	row := make([]pcdValue, len(header.fields))
	for i := 0; i < int(header.points); {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, errors.Wrapf(err, "reading point %d", i)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		tokens := strings.Fields(line)
		if len(tokens) != numTokens {
			return nil, errors.Wrapf(ErrColumnCount, "point %d has %d values, expected %d", i, len(tokens), numTokens)
		}
		tok := 0
		for j, f := range header.fields {
			row[j], err = decodePCDASCIIValue(tokens[tok], f)
			if err != nil {
				return nil, fmt.Errorf("invalid point %d field %s: %w", i, f.name, err)
			}
			tok += f.count
		}
		pc.Append(rowToPoint(row, layout))
		extras.add(row)
		i++
	}
	if err := extras.attach(pc); err != nil {
		return nil, err
	}
	return pc, nil
}

func readPCDBinary(in *bufio.Reader, header pcdHeader, layout pcdLayout) (*PointCloud, error) {
	pc := NewWithPrealloc(header.preallocSize())
	extras := newExtraColumns(header, layout)
	buf := make([]byte, layout.rowBytes)
	row := make([]pcdValue, len(header.fields))
	for i := 0; i < int(header.points); i++ {
		if _, err := io.ReadFull(in, buf); err != nil {
			return nil, errors.Wrapf(err, "reading point %d", i)
		}
		offset := 0
		for j, f := range header.fields {
			row[j] = decodePCDBinaryValue(buf[offset:offset+f.size], f)
			offset += f.size * f.count
		}
		pc.Append(rowToPoint(row, layout))
		extras.add(row)
	}
	if err := extras.attach(pc); err != nil {
		return nil, err
	}
	return pc, nil
}

func decodePCDASCIIValue(token string, f pcdField) (pcdValue, error) {
	switch f.type_ {
	case pcdValFloat:
		v, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return pcdValue{}, err
		}
		return pcdValue{num: v, bits: math.Float32bits(float32(v))}, nil
	case pcdValInt:
		v, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return pcdValue{}, err
		}
		return pcdValue{num: float64(v), bits: uint32(v)}, nil
	case pcdValUInt:
		v, err := strconv.ParseUint(token, 10, 64)
		if err != nil {
			return pcdValue{}, err
		}
		return pcdValue{num: float64(v), bits: uint32(v)}, nil
	}
	return pcdValue{}, errors.Errorf("unsupported type %s", f.type_)
}

func decodePCDBinaryValue(buf []byte, f pcdField) pcdValue {
	switch f.type_ {
	case pcdValFloat:
		if f.size == 8 {
			u := binary.LittleEndian.Uint64(buf)
			return pcdValue{num: math.Float64frombits(u), bits: uint32(u)}
		}
		u := binary.LittleEndian.Uint32(buf)
		return pcdValue{num: float64(math.Float32frombits(u)), bits: u}
	case pcdValInt:
		var v int64
		switch f.size {
		case 1:
			v = int64(int8(buf[0]))
		case 2:
			v = int64(int16(binary.LittleEndian.Uint16(buf)))
		case 4:
			v = int64(int32(binary.LittleEndian.Uint32(buf)))
		case 8:
			v = int64(binary.LittleEndian.Uint64(buf))
		}
		return pcdValue{num: float64(v), bits: uint32(v)}
	case pcdValUInt:
		var v uint64
		switch f.size {
		case 1:
			v = uint64(buf[0])
		case 2:
			v = uint64(binary.LittleEndian.Uint16(buf))
		case 4:
			v = uint64(binary.LittleEndian.Uint32(buf))
		case 8:
			v = binary.LittleEndian.Uint64(buf)
		}
		return pcdValue{num: float64(v), bits: uint32(v)}
	}
	return pcdValue{}
}

func rowToPoint(row []pcdValue, layout pcdLayout) Point {
	p := Point{Position: NewVector(row[layout.x].num, row[layout.y].num, row[layout.z].num)}
	if layout.rgb >= 0 {
		p.Color = pcdIntToColor(row[layout.rgb].bits)
	} else {
		p.Color = Color{R: row[layout.r].num, G: row[layout.g].num, B: row[layout.b].num}.Clamped()
	}
	return p
}

type extraColumns struct {
	fields []int
	names  []string
	cols   [][]float64
}

func newExtraColumns(header pcdHeader, layout pcdLayout) *extraColumns {
	e := &extraColumns{fields: layout.extras}
	for _, idx := range layout.extras {
		e.names = append(e.names, header.fields[idx].name)
		e.cols = append(e.cols, make([]float64, 0, header.preallocSize()))
	}
	return e
}

func (e *extraColumns) add(row []pcdValue) {
	for j, idx := range e.fields {
		e.cols[j] = append(e.cols[j], row[idx].num)
	}
}

func (e *extraColumns) attach(pc *PointCloud) error {
	for j, name := range e.names {
		if err := pc.SetValues(name, e.cols[j]); err != nil {
			return err
		}
	}
	return nil
}
