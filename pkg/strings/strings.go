// Package strings holds the string conversions shared by the file and
// object-store adapters: cell rendering and the folder ↔ table naming
// convention.
package strings

import (
	"fmt"
	"strconv"
	stdstrings "strings"
	"time"
)

// TimeLayout renders time cells.
const TimeLayout = "2006-01-02 15:04:05.999999"

// ValueToString renders a cell value for text output. nil renders empty.
func ValueToString(value interface{}) string {
	if value == nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(TimeLayout)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", value)
	}
}

// Row renders every cell of row.
func Row(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = ValueToString(v)
	}
	return out
}

// FolderToTable maps a folder name to a table name: "sales__orders"
// becomes "sales.orders".
func FolderToTable(name string) string {
	return stdstrings.ReplaceAll(name, "__", ".")
}

// TableToFolder is the inverse of FolderToTable.
func TableToFolder(name string) string {
	return stdstrings.ReplaceAll(name, ".", "__")
}
