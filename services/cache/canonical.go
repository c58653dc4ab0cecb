package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/upb/finance-advisor/services/providers"
)

// Key derives the cache key for payload as served by provider: the hex
// sha256 of the canonical payload JSON followed by the provider identifier.
func Key(provider providers.ProviderID, payload any) (string, error) {
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write(canonical)
	h.Write([]byte{'|'})
	h.Write([]byte(provider))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CanonicalJSON serializes v with sorted object keys, no insignificant
// whitespace and normalized numbers, so equal values always yield equal bytes.
func CanonicalJSON(v any) ([]byte, error) {
	input, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal for canonicalization: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(input))
	dec.UseNumber()
	var normalized any
	if err := dec.Decode(&normalized); err != nil {
		return nil, fmt.Errorf("decode for canonicalization: %w", err)
	}

	buf := &bytes.Buffer{}
	if err := writeCanonical(buf, normalized); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(w io.Writer, v any) error {
	switch vv := v.(type) {
	case nil:
		_, err := io.WriteString(w, "null")
		return err
	case bool:
		_, err := io.WriteString(w, strconv.FormatBool(vv))
		return err
	case string:
		b, err := json.Marshal(vv)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	case json.Number:
		return writeNumber(w, vv)
	case []any:
		if _, err := io.WriteString(w, "["); err != nil {
			return err
		}
		for i, item := range vv {
			if i > 0 {
				if _, err := io.WriteString(w, ","); err != nil {
					return err
				}
			}
			if err := writeCanonical(w, item); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "]")
		return err
	case map[string]any:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		if _, err := io.WriteString(w, "{"); err != nil {
			return err
		}
		for i, k := range keys {
			if i > 0 {
				if _, err := io.WriteString(w, ","); err != nil {
					return err
				}
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			if _, err := w.Write(kb); err != nil {
				return err
			}
			if _, err := io.WriteString(w, ":"); err != nil {
				return err
			}
			if err := writeCanonical(w, vv[k]); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "}")
		return err
	default:
		return fmt.Errorf("unexpected canonical value %T", v)
	}
}

// writeNumber writes integers verbatim and every other number in its
// shortest float form, so 1, 1.0 and 1e0 share one spelling.
func writeNumber(w io.Writer, n json.Number) error {
	if i, err := n.Int64(); err == nil {
		_, err = io.WriteString(w, strconv.FormatInt(i, 10))
		return err
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", n, err)
	}
	_, err = io.WriteString(w, strconv.FormatFloat(f, 'g', -1, 64))
	return err
}
