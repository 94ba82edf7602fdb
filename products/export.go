package products

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/bundler/iox"
	"github.com/pithecene-io/bundler/types"
)

// Export formats.
const (
	FormatJSON    = "json"
	FormatCSV     = "csv"
	FormatMsgpack = "msgpack"
)

// DefaultPrefix is the file name prefix of exported catalogs.
const DefaultPrefix = "products"

// DefaultFileName returns "<prefix>_<YYYYMMDD_HHMMSS>.<ext>".
func DefaultFileName(prefix, ext string, now time.Time) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s_%s.%s", prefix, now.Format("20060102_150405"), ext)
}

// WriteJSON writes products as an indented JSON array.
func WriteJSON(path string, products []types.Product) error {
	if products == nil {
		products = []types.Product{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(products); err != nil {
		return fmt.Errorf("encode products: %w", err)
	}
	return writeFile(path, buf.Bytes())
}

// WriteCSV writes products as CSV. The header is the sorted union of all
// keys; nested values are JSON-encoded. An empty list writes nothing and
// reports false.
func WriteCSV(path string, products []types.Product) (bool, error) {
	if len(products) == 0 {
		return false, nil
	}

	header := Columns(products)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return false, err
	}
	row := make([]string, len(header))
	for _, p := range products {
		for i, col := range header {
			cell, err := csvValue(p[col])
			if err != nil {
				return false, fmt.Errorf("column %s: %w", col, err)
			}
			row[i] = cell
		}
		if err := w.Write(row); err != nil {
			return false, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return false, err
	}
	return true, writeFile(path, buf.Bytes())
}

// WriteMsgpack writes products as a msgpack array.
func WriteMsgpack(path string, products []types.Product) error {
	out := make([]any, len(products))
	for i, p := range products {
		out[i] = plain(p)
	}
	data, err := msgpack.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode products: %w", err)
	}
	return writeFile(path, data)
}

// Columns returns the sorted union of keys across products.
func Columns(products []types.Product) []string {
	keys := lo.Uniq(lo.FlatMap(products, func(p types.Product, _ int) []string {
		return lo.Keys(p)
	}))
	slices.Sort(keys)
	return keys
}

func csvValue(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// plain replaces json.Number with int64 or float64 so msgpack stores
// numbers rather than strings.
func plain(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = plain(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}

func writeFile(path string, data []byte) error {
	return iox.WriteFileAtomic(path, data, 0o644)
}
