package table

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/zeebo/xxh3"
)

// Fingerprint returns a stable 64-bit content hash of the table as 16 hex
// digits. Two tables with the same columns, in the same order, holding equal
// cells in the same row order have the same fingerprint.
//
// Canonical form:
//   - column names, then each row, separated by ASCII unit/record separators
//   - every cell is prefixed with a one-byte type tag so 1, 1.0 and "1" differ
//   - null is the tag alone
//   - nested values are hashed as their JSON text
func Fingerprint(t *Table) string {
	h := xxh3.New()
	buf := make([]byte, 0, 64)

	for i, c := range t.Columns {
		if i > 0 {
			buf = append(buf, 0x1f)
		}
		buf = append(buf, c...)
	}
	buf = append(buf, 0x1e)
	_, _ = h.Write(buf)

	for _, r := range t.Rows {
		buf = buf[:0]
		for j, v := range r {
			if j > 0 {
				buf = append(buf, 0x1f)
			}
			buf = appendCell(buf, v)
		}
		buf = append(buf, 0x1e)
		_, _ = h.Write(buf)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

func appendCell(buf []byte, v any) []byte {
	switch x := v.(type) {
	case nil:
		return append(buf, 0)
	case bool:
		if x {
			return append(buf, 'b', '1')
		}
		return append(buf, 'b', '0')
	case int64:
		return strconv.AppendInt(append(buf, 'i'), x, 10)
	case int:
		return strconv.AppendInt(append(buf, 'i'), int64(x), 10)
	case float64:
		return strconv.AppendUint(append(buf, 'f'), math.Float64bits(x), 16)
	case string:
		return append(append(buf, 's'), x...)
	case civil.Date:
		return append(append(buf, 'd'), x.String()...)
	case time.Time:
		return x.UTC().AppendFormat(append(buf, 't'), time.RFC3339Nano)
	default:
		s, err := formatString(x)
		if err != nil {
			s = fmt.Sprint(x)
		}
		return append(append(buf, 'j'), s...)
	}
}
