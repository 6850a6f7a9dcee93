package spreadsheet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf16"

	"github.com/extrame/ole2"
)

// BIFF record identifiers read by the legacy workbook scanner.
const (
	recBOF        = 0x0809
	recEOF        = 0x000A
	recDateMode   = 0x0022
	recFormat     = 0x041E
	recXF         = 0x00E0
	recBoundSheet = 0x0085
	recRow        = 0x0208
	recNumber     = 0x0203
	recRK         = 0x027E
	recMulRK      = 0x00BD
	recFormula    = 0x0006
	recString     = 0x0207
	recBoolErr    = 0x0205
	recLabel      = 0x0204
	recLabelSST   = 0x00FD
	recRString    = 0x00D6

	biff8Version = 0x0600
)

var errNoWorkbookStream = errors.New("no workbook stream")

type cellPos struct {
	row uint16
	col uint16
}

// biffCell is a value decoded straight from a record. A nil value marks a text cell whose
// content comes from the shared string table.
type biffCell struct {
	value any
	xf    uint16
}

// biffSheet holds the typed cells of the first worksheet together with the global
// formatting tables needed to tell dates from plain numbers.
type biffSheet struct {
	biff8         bool
	date1904      bool
	xfFormats     []uint16
	customFormats map[uint16]string
	cells         map[cellPos]biffCell
	width         map[uint16]uint16
	maxRow        int
}

// openWorkbookStream locates the BIFF stream inside the compound document.
func openWorkbookStream(r io.ReadSeeker) (io.ReadSeeker, error) {
	doc, err := ole2.Open(r, "utf-8")
	if err != nil {
		return nil, err
	}
	dir, err := doc.ListDir()
	if err != nil {
		return nil, err
	}
	var book, root *ole2.File
	for _, file := range dir {
		switch file.Name() {
		case "Workbook", "Book":
			book = file
		case "Root Entry":
			root = file
		}
	}
	if book == nil || root == nil {
		return nil, errNoWorkbookStream
	}
	return doc.OpenFile(book, root), nil
}

func scanBIFF(stream io.ReadSeeker) (*biffSheet, error) {
	s := &biffSheet{
		customFormats: make(map[uint16]string),
		cells:         make(map[cellPos]biffCell),
		width:         make(map[uint16]uint16),
		maxRow:        -1,
	}

	sheetOffset := int64(-1)
	err := readRecords(stream, func(id uint16, data []byte) bool {
		switch id {
		case recBOF:
			if len(data) >= 2 {
				s.biff8 = binary.LittleEndian.Uint16(data) == biff8Version
			}
		case recDateMode:
			if len(data) >= 2 {
				s.date1904 = binary.LittleEndian.Uint16(data) == 1
			}
		case recXF:
			if len(data) >= 4 {
				s.xfFormats = append(s.xfFormats, binary.LittleEndian.Uint16(data[2:]))
			}
		case recFormat:
			if len(data) >= 2 {
				s.customFormats[binary.LittleEndian.Uint16(data)] = s.formatString(data[2:])
			}
		case recBoundSheet:
			if sheetOffset < 0 && len(data) >= 4 {
				sheetOffset = int64(binary.LittleEndian.Uint32(data))
			}
		case recEOF:
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if sheetOffset < 0 {
		return nil, errors.New("workbook has no sheets")
	}
	if _, err := stream.Seek(sheetOffset, io.SeekStart); err != nil {
		return nil, err
	}

	var pendingFormula *cellPos
	err = readRecords(stream, func(id uint16, data []byte) bool {
		if id != recString {
			pendingFormula = nil
		}
		switch id {
		case recRow:
			if len(data) >= 6 {
				row := binary.LittleEndian.Uint16(data)
				s.touch(row, binary.LittleEndian.Uint16(data[4:]))
			}
		case recNumber:
			if len(data) >= 14 {
				s.put(data, math.Float64frombits(binary.LittleEndian.Uint64(data[6:])))
			}
		case recRK:
			if len(data) >= 10 {
				s.put(data, decodeRK(binary.LittleEndian.Uint32(data[6:])))
			}
		case recMulRK:
			if len(data) >= 6 {
				row := binary.LittleEndian.Uint16(data)
				col := binary.LittleEndian.Uint16(data[2:])
				for off := 4; off+6 <= len(data)-2; off += 6 {
					s.set(row, col, biffCell{
						value: decodeRK(binary.LittleEndian.Uint32(data[off+2:])),
						xf:    binary.LittleEndian.Uint16(data[off:]),
					})
					col++
				}
			}
		case recFormula:
			if len(data) >= 14 {
				pos, value, isString := formulaResult(data)
				if isString {
					pendingFormula = &pos
				}
				s.set(pos.row, pos.col, biffCell{value: value, xf: binary.LittleEndian.Uint16(data[4:])})
			}
		case recString:
			if pendingFormula != nil {
				cell := s.cells[*pendingFormula]
				cell.value = s.unicodeString(data, 2)
				s.cells[*pendingFormula] = cell
				pendingFormula = nil
			}
		case recBoolErr:
			if len(data) >= 8 && data[7] == 0 {
				s.put(data, data[6] != 0)
			}
		case recLabel, recLabelSST:
			if len(data) >= 6 {
				s.put(data, nil)
			}
		case recRString:
			if len(data) >= 8 {
				s.put(data, s.unicodeString(data[6:], 2))
			}
		case recEOF:
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// readRecords walks records until visit returns false or the stream ends.
func readRecords(r io.Reader, visit func(id uint16, data []byte) bool) error {
	var header [4]byte
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}
		id := binary.LittleEndian.Uint16(header[:])
		data := make([]byte, binary.LittleEndian.Uint16(header[2:]))
		if _, err := io.ReadFull(r, data); err != nil {
			return fmt.Errorf("truncated record %#x: %w", id, err)
		}
		if !visit(id, data) {
			return nil
		}
	}
}

func (s *biffSheet) put(data []byte, value any) {
	s.set(binary.LittleEndian.Uint16(data), binary.LittleEndian.Uint16(data[2:]), biffCell{
		value: value,
		xf:    binary.LittleEndian.Uint16(data[4:]),
	})
}

func (s *biffSheet) set(row, col uint16, cell biffCell) {
	s.cells[cellPos{row: row, col: col}] = cell
	s.touch(row, col+1)
}

func (s *biffSheet) touch(row, width uint16) {
	if width > s.width[row] {
		s.width[row] = width
	}
	if int(row) > s.maxRow {
		s.maxRow = int(row)
	}
}

// isDate reports whether the cell format renders the number as a date or time.
func (s *biffSheet) isDate(xf uint16) bool {
	if int(xf) >= len(s.xfFormats) {
		return false
	}
	format := s.xfFormats[xf]
	if _, ok := builtinDateFormats[int(format)]; ok {
		return true
	}
	custom, ok := s.customFormats[format]
	return ok && looksLikeDateFormat(custom)
}

func (s *biffSheet) formatString(data []byte) string {
	if s.biff8 {
		return s.unicodeString(data, 2)
	}
	if len(data) < 1 {
		return ""
	}
	n := int(data[0])
	if n > len(data)-1 {
		n = len(data) - 1
	}
	return string(data[1 : 1+n])
}

// unicodeString decodes a length prefixed string. BIFF8 strings carry an option byte after the
// length selecting compressed or UTF-16 characters.
func (s *biffSheet) unicodeString(data []byte, lenSize int) string {
	if len(data) < lenSize {
		return ""
	}
	var n int
	if lenSize == 1 {
		n = int(data[0])
	} else {
		n = int(binary.LittleEndian.Uint16(data))
	}
	data = data[lenSize:]
	if !s.biff8 {
		if n > len(data) {
			n = len(data)
		}
		return string(data[:n])
	}
	if len(data) < 1 {
		return ""
	}
	flags := data[0]
	data = data[1:]
	if flags&0x08 != 0 && len(data) >= 2 {
		data = data[2:]
	}
	if flags&0x04 != 0 && len(data) >= 4 {
		data = data[4:]
	}
	if flags&0x01 == 0 {
		if n > len(data) {
			n = len(data)
		}
		runes := make([]rune, n)
		for i := 0; i < n; i++ {
			runes[i] = rune(data[i])
		}
		return string(runes)
	}
	if n*2 > len(data) {
		n = len(data) / 2
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(data[2*i:])
	}
	return string(utf16.Decode(units))
}

// decodeRK expands the compressed RK number encoding.
func decodeRK(rk uint32) float64 {
	var v float64
	if rk&0x02 != 0 {
		v = float64(int32(rk) >> 2)
	} else {
		v = math.Float64frombits(uint64(rk&^0x03) << 32)
	}
	if rk&0x01 != 0 {
		v /= 100
	}
	return v
}

// formulaResult reads the cached value of a FORMULA record. String results arrive in the
// STRING record that follows.
func formulaResult(data []byte) (pos cellPos, value any, isString bool) {
	pos = cellPos{row: binary.LittleEndian.Uint16(data), col: binary.LittleEndian.Uint16(data[2:])}
	result := data[6:14]
	if result[6] != 0xFF || result[7] != 0xFF {
		return pos, math.Float64frombits(binary.LittleEndian.Uint64(result)), false
	}
	switch result[0] {
	case 0:
		return pos, "", true
	case 1:
		return pos, result[2] != 0, false
	default:
		return pos, "", false
	}
}
