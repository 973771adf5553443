package bencode

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// --------------------------------------------------------------------------------------------- //

type Encoder struct {
	w *bufio.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

/*
Encode writes the canonical encoding of v: dictionary keys in ascending raw
byte order, integers without leading zeros, byte strings verbatim.

Parameters:
  - v: Value to encode. A nil Value, or a nil element inside a list or dictionary, is rejected.

Returns:
  - error: Non-nil if v contains a nil value or the writer fails.
*/
func (e *Encoder) Encode(v Value) error {
	if err := encodeValue(e.w, v); err != nil {
		return err
	}

	return e.w.Flush()
}

// Encode returns the canonical encoding of v. It panics on a nil value.
func Encode(v Value) []byte {
	var buf bytes.Buffer

	w := bufio.NewWriter(&buf)
	if err := encodeValue(w, v); err != nil {
		panic(err)
	}

	w.Flush()
	return buf.Bytes()
}

// --------------------------------------------------------------------------------------------- //

func encodeValue(w *bufio.Writer, v Value) error {
	switch val := v.(type) {
	case Integer:
		w.WriteByte('i')
		w.WriteString(strconv.FormatInt(int64(val), 10))
		w.WriteByte('e')

	case String:
		writeString(w, []byte(val))

	case List:
		w.WriteByte('l')
		for _, elem := range val {
			if err := encodeValue(w, elem); err != nil {
				return err
			}
		}
		w.WriteByte('e')

	case Dict:
		w.WriteByte('d')
		for _, k := range val.Keys() {
			writeString(w, []byte(k))
			if err := encodeValue(w, val[k]); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		}
		w.WriteByte('e')

	default:
		return fmt.Errorf("bencode: cannot encode %T", v)
	}

	return nil
}

func writeString(w *bufio.Writer, b []byte) {
	w.WriteString(strconv.Itoa(len(b)))
	w.WriteByte(':')
	w.Write(b)
}
