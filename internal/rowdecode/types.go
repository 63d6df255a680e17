package rowdecode

import (
	"fmt"
	"math"
	"time"

	"github.com/go-mysql-org/go-mysql/mysql"

	"github.com/SisyphusSQ/mxavro/internal/codec"
)

func decodeInt(c *codec.Cursor, colType byte) (any, error) {
	switch colType {
	case mysql.MYSQL_TYPE_TINY:
		b, err := c.Byte()
		if err != nil {
			return nil, err
		}
		return int32(int8(b)), nil
	case mysql.MYSQL_TYPE_SHORT:
		b, err := c.Bytes(2)
		if err != nil {
			return nil, err
		}
		return int32(int16(uint16(b[0]) | uint16(b[1])<<8)), nil
	case mysql.MYSQL_TYPE_INT24:
		b, err := c.Bytes(3)
		if err != nil {
			return nil, err
		}
		n := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		if n&0x800000 != 0 { // sign-extend the 24-bit value
			n |= ^int32(0xffffff)
		}
		return n, nil
	case mysql.MYSQL_TYPE_LONG:
		b, err := c.Bytes(4)
		if err != nil {
			return nil, err
		}
		return int32(leU32(b)), nil
	case mysql.MYSQL_TYPE_YEAR:
		b, err := c.Byte()
		if err != nil {
			return nil, err
		}
		return int32(b) + 1900, nil
	default:
		return nil, fmt.Errorf("rowdecode: unexpected int type 0x%02x", colType)
	}
}

func decodeLong(c *codec.Cursor, colType byte, meta []byte) (any, error) {
	switch colType {
	case mysql.MYSQL_TYPE_LONGLONG:
		b, err := c.Bytes(8)
		if err != nil {
			return nil, err
		}
		return int64(uint64(leU32(b[:4])) | uint64(leU32(b[4:]))<<32), nil
	case mysql.MYSQL_TYPE_BIT:
		bits, bytesN := 0, 0
		if len(meta) >= 2 {
			bits, bytesN = int(meta[0]), int(meta[1])
		}
		storage := bytesN
		if bits > 0 {
			storage++
		}
		if storage == 0 {
			storage = 1
		}
		b, err := c.Bytes(storage)
		if err != nil {
			return nil, err
		}
		var v uint64
		for _, x := range b { // BIT is stored most-significant-byte first
			v = v<<8 | uint64(x)
		}
		return int64(v), nil
	case mysql.MYSQL_TYPE_ENUM, mysql.MYSQL_TYPE_SET:
		width := 1
		if len(meta) >= 1 {
			width = int(meta[0])
		}
		if width <= 0 {
			width = 1
		}
		b, err := c.Bytes(width)
		if err != nil {
			return nil, err
		}
		var v uint64
		for i := len(b) - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
		return int64(v), nil
	default:
		return nil, fmt.Errorf("rowdecode: unexpected long type 0x%02x", colType)
	}
}

func decodeDouble(c *codec.Cursor, colType byte, _ []byte) (any, error) {
	b, err := c.Bytes(8)
	if err != nil {
		return nil, err
	}
	bits := uint64(leU32(b[:4])) | uint64(leU32(b[4:]))<<32
	return math.Float64frombits(bits), nil
}

func decodeBlob(c *codec.Cursor, meta []byte) (any, error) {
	width := 1
	if len(meta) >= 1 {
		width = int(meta[0])
	}
	if width <= 0 || width > 4 {
		width = 1
	}
	lb, err := c.Bytes(width)
	if err != nil {
		return nil, err
	}
	var n int
	for i := width - 1; i >= 0; i-- {
		n = n<<8 | int(lb[i])
	}
	data, err := c.Bytes(n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}

func decodeStringish(c *codec.Cursor, colType byte, meta []byte) (any, error) {
	switch colType {
	case mysql.MYSQL_TYPE_VARCHAR, mysql.MYSQL_TYPE_VAR_STRING,
		mysql.MYSQL_TYPE_DECIMAL, mysql.MYSQL_TYPE_NEWDECIMAL,
		mysql.MYSQL_TYPE_GEOMETRY, mysql.MYSQL_TYPE_JSON:
		b, err := c.LenencStr()
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case mysql.MYSQL_TYPE_STRING:
		if stringMasksEnumOrSet(meta) {
			n := int(meta[1])
			if n <= 0 {
				n = 1
			}
			b, err := c.Bytes(n)
			if err != nil {
				return nil, err
			}
			var v uint64
			for i := len(b) - 1; i >= 0; i-- {
				v = v<<8 | uint64(b[i])
			}
			return int64(v), nil
		}
		n, err := c.Byte()
		if err != nil {
			return nil, err
		}
		b, err := c.Bytes(int(n))
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		b, err := c.LenencStr()
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
}

func decodeTemporal(c *codec.Cursor, colType byte, meta []byte) (any, error) {
	switch colType {
	case mysql.MYSQL_TYPE_DATE:
		b, err := c.Bytes(3)
		if err != nil {
			return nil, err
		}
		n := int(b[0]) | int(b[1])<<8 | int(b[2])<<16
		day := n & 0x1F
		month := (n >> 5) & 0x0F
		year := n >> 9
		return fmt.Sprintf("%04d-%02d-%02d", year, month, day), nil

	case mysql.MYSQL_TYPE_TIME, mysql.MYSQL_TYPE_TIME2:
		b, err := c.Bytes(3)
		if err != nil {
			return nil, err
		}
		n := int(b[0]) | int(b[1])<<8 | int(b[2])<<16
		hh := n / 10000
		mm := (n / 100) % 100
		ss := n % 100
		return fmt.Sprintf("%02d:%02d:%02d", hh, mm, ss), nil

	case mysql.MYSQL_TYPE_TIMESTAMP:
		b, err := c.Bytes(4)
		if err != nil {
			return nil, err
		}
		sec := beU32(b)
		return time.Unix(int64(sec), 0).Format("2006-01-02 15:04:05"), nil

	case mysql.MYSQL_TYPE_TIMESTAMP2:
		b, err := c.Bytes(4)
		if err != nil {
			return nil, err
		}
		sec := beU32(b)
		decimals := 0
		if len(meta) >= 1 {
			decimals = int(meta[0])
		}
		micros, err := readFracMicros(c, decimals)
		if err != nil {
			return nil, err
		}
		t := time.Unix(int64(sec), micros*1000)
		return formatWithFrac(t, decimals), nil

	case mysql.MYSQL_TYPE_DATETIME:
		b, err := c.Bytes(8)
		if err != nil {
			return nil, err
		}
		n := int64(leU32(b[:4])) | int64(leU32(b[4:]))<<32
		sec := n % 100
		n /= 100
		minute := n % 100
		n /= 100
		hour := n % 100
		n /= 100
		day := n % 100
		n /= 100
		month := n % 100
		n /= 100
		year := n
		return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", year, month, day, hour, minute, sec), nil

	case mysql.MYSQL_TYPE_DATETIME2:
		b, err := c.Bytes(5)
		if err != nil {
			return nil, err
		}
		var raw uint64
		for _, x := range b {
			raw = raw<<8 | uint64(x)
		}
		signed := int64(raw) - 0x8000000000
		if signed < 0 {
			signed = -signed
		}
		n := uint64(signed)

		date := n >> 17
		timePart := n & 0x1FFFF
		sec := timePart & 0x3F
		minute := (timePart >> 6) & 0x3F
		hour := timePart >> 12
		mday := date & 0x1F
		yearmonth := date >> 5
		mon := yearmonth % 13
		year := yearmonth / 13

		decimals := 0
		if len(meta) >= 1 {
			decimals = int(meta[0])
		}
		micros, err := readFracMicros(c, decimals)
		if err != nil {
			return nil, err
		}
		base := fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", year, mon, mday, hour, minute, sec)
		return appendFrac(base, micros, decimals), nil

	default:
		return nil, fmt.Errorf("rowdecode: unexpected temporal type 0x%02x", colType)
	}
}

// readFracMicros reads the ceil(decimals/2)-byte, big-endian fractional
// seconds field trailing a TIMESTAMP2/DATETIME2 value and scales it to
// microseconds.
func readFracMicros(c *codec.Cursor, decimals int) (int64, error) {
	width := (decimals + 1) / 2
	if width == 0 {
		return 0, nil
	}
	b, err := c.Bytes(width)
	if err != nil {
		return 0, err
	}
	var v int64
	for _, x := range b {
		v = v<<8 | int64(x)
	}
	if decimals < 6 {
		v *= int64(math.Pow10(6 - decimals))
	}
	return v, nil
}

func formatWithFrac(t time.Time, decimals int) string {
	if decimals <= 0 {
		return t.Format("2006-01-02 15:04:05")
	}
	frac := fmt.Sprintf("%06d", t.Nanosecond()/1000)
	return t.Format("2006-01-02 15:04:05") + "." + frac[:decimals]
}

func appendFrac(base string, micros int64, decimals int) string {
	if decimals <= 0 {
		return base
	}
	frac := fmt.Sprintf("%06d", micros)
	return base + "." + frac[:decimals]
}

func beU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
