package crypto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Canonicalize encodes v as canonical JSON: object keys NFC-normalized and
// sorted, string values NFC-normalized, nil object members omitted. Numbers
// use the shortest form encoding/json produces, so 800000 and 800000.0 encode
// alike and a value read back from a JSON column digests the same as the value
// that was written. Structs and other named types are encoded through their
// JSON form.
func Canonicalize(v any) ([]byte, error) {
	enc := &canonicalEncoder{}
	if err := enc.value(v); err != nil {
		return nil, err
	}
	return enc.buf.Bytes(), nil
}

type canonicalEncoder struct {
	buf bytes.Buffer
}

func (e *canonicalEncoder) value(v any) error {
	switch t := v.(type) {
	case nil:
		e.buf.WriteString("null")
	case string:
		return e.str(t)
	case bool:
		e.buf.WriteString(strconv.FormatBool(t))
	case json.Number:
		return e.number(t)
	case float64:
		return e.float(t)
	case float32:
		return e.float(float64(t))
	case int:
		e.buf.WriteString(strconv.Itoa(t))
	case int64:
		e.buf.WriteString(strconv.FormatInt(t, 10))
	case map[string]any:
		return e.object(len(t), func(yield func(string, any) error) error {
			for k, val := range t {
				if err := yield(k, val); err != nil {
					return err
				}
			}
			return nil
		})
	case map[string]bool:
		return e.object(len(t), func(yield func(string, any) error) error {
			for k, val := range t {
				if err := yield(k, val); err != nil {
					return err
				}
			}
			return nil
		})
	case []any:
		if t == nil {
			e.buf.WriteString("null")
			return nil
		}
		return e.array(len(t), func(i int) any { return t[i] })
	case []string:
		if t == nil {
			e.buf.WriteString("null")
			return nil
		}
		return e.array(len(t), func(i int) any { return t[i] })
	default:
		return e.reflected(reflect.ValueOf(v))
	}
	return nil
}

// reflected handles everything the fast paths above do not: pointers, other
// numeric kinds, typed maps and slices, and structs.
func (e *canonicalEncoder) reflected(rv reflect.Value) error {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.String:
		return e.str(rv.String())
	case reflect.Bool:
		e.buf.WriteString(strconv.FormatBool(rv.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.buf.WriteString(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		e.buf.WriteString(strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		return e.float(rv.Float())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return ErrNonStringMapKey
		}
		return e.object(rv.Len(), func(yield func(string, any) error) error {
			iter := rv.MapRange()
			for iter.Next() {
				if err := yield(iter.Key().String(), iter.Value().Interface()); err != nil {
					return err
				}
			}
			return nil
		})
	case reflect.Slice:
		if rv.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		return e.array(rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.Array:
		return e.array(rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.Struct:
		return e.viaJSON(rv.Interface())
	default:
		return ErrUnsupportedType
	}
	return nil
}

func (e *canonicalEncoder) viaJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedType, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedType, err)
	}
	return e.value(generic)
}

func (e *canonicalEncoder) str(s string) error {
	encoded, err := json.Marshal(norm.NFC.String(s))
	if err != nil {
		return err
	}
	e.buf.Write(encoded)
	return nil
}

func (e *canonicalEncoder) number(n json.Number) error {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			e.buf.WriteString(strconv.FormatInt(i, 10))
			return nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return ErrInvalidNumber
	}
	return e.float(f)
}

func (e *canonicalEncoder) float(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ErrNonFiniteFloat
	}
	if f == 0 {
		// -0 and 0 must digest alike.
		e.buf.WriteByte('0')
		return nil
	}
	encoded, err := json.Marshal(f)
	if err != nil {
		return err
	}
	e.buf.Write(encoded)
	return nil
}

type member struct {
	key string
	val any
}

// object collects the members produced by each, drops nil values, and writes
// them in key order.
func (e *canonicalEncoder) object(n int, each func(yield func(string, any) error) error) error {
	members := make([]member, 0, n)
	seen := make(map[string]struct{}, n)
	err := each(func(k string, v any) error {
		key := norm.NFC.String(k)
		if _, dup := seen[key]; dup {
			return ErrKeyCollision
		}
		seen[key] = struct{}{}
		if !isNil(v) {
			members = append(members, member{key: key, val: v})
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Slice(members, func(i, j int) bool { return members[i].key < members[j].key })

	e.buf.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.str(m.key); err != nil {
			return err
		}
		e.buf.WriteByte(':')
		if err := e.value(m.val); err != nil {
			return err
		}
	}
	e.buf.WriteByte('}')
	return nil
}

func (e *canonicalEncoder) array(n int, at func(int) any) error {
	e.buf.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.value(at(i)); err != nil {
			return err
		}
	}
	e.buf.WriteByte(']')
	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
