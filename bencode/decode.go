package bencode

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
)

const (
	// Longest integer body: sign plus 19 digits of int64.
	maxIntegerLength = 20

	// Longest accepted length prefix.
	maxLengthDigits = 18

	maxDepth = 512
)

// --------------------------------------------------------------------------------------------- //

// byteScanReader is what the decoder reads from: single bytes with one byte of
// pushback for dispatching, plus bulk reads for string payloads.
type byteScanReader interface {
	io.Reader
	io.ByteScanner
}

/*
Decoder reads bencode values from a stream one at a time. When the reader
passed to NewDecoder supports io.ByteScanner (*bytes.Reader, *strings.Reader,
*bufio.Reader), it is read directly and is left positioned immediately after
each decoded value, so the next call picks up where the previous one stopped.
Other readers are wrapped in a bufio.Reader, which may consume input ahead of
the value.

Fields:
  - r: Reader giving one byte of pushback for dispatching.
  - offset: Number of bytes consumed so far, used in error reports.
  - depth: Current list/dictionary nesting.
*/
type Decoder struct {
	r      byteScanReader
	offset int64
	depth  int
}

func NewDecoder(r io.Reader) *Decoder {
	br, ok := r.(byteScanReader)
	if !ok {
		br = bufio.NewReader(r)
	}

	return &Decoder{r: br}
}

// Offset returns the number of bytes consumed from the stream.
func (d *Decoder) Offset() int64 {
	return d.offset
}

/*
Decode reads exactly one value. On failure nothing is returned; a partially
built list or dictionary is discarded.

Returns:
  - Value: The decoded value.
  - error: A *SyntaxError wrapping ErrMalformed or ErrTruncated.
*/
func (d *Decoder) Decode() (Value, error) {
	d.depth = 0

	v, err := d.decodeValue()
	if err != nil {
		return nil, err
	}

	return v, nil
}

// Decode decodes the first value in data. Bytes after it are ignored.
func Decode(data []byte) (Value, error) {
	return NewDecoder(bytes.NewReader(data)).Decode()
}

// DecodeAll decodes data as a single value and rejects trailing bytes.
func DecodeAll(data []byte) (Value, error) {
	dec := NewDecoder(bytes.NewReader(data))

	v, err := dec.Decode()
	if err != nil {
		return nil, err
	}

	if dec.Offset() != int64(len(data)) {
		return nil, dec.malformed("value", "trailing data after value")
	}

	return v, nil
}

// --------------------------------------------------------------------------------------------- //

func (d *Decoder) readByte() (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, err
	}

	d.offset++
	return b, nil
}

func (d *Decoder) unreadByte() {
	if err := d.r.UnreadByte(); err == nil {
		d.offset--
	}
}

func (d *Decoder) peek() (byte, error) {
	b, err := d.readByte()
	if err != nil {
		return 0, err
	}

	d.unreadByte()
	return b, nil
}

func (d *Decoder) malformed(construct, msg string) error {
	return &SyntaxError{Construct: construct, Offset: d.offset, Msg: msg, Err: ErrMalformed}
}

func (d *Decoder) truncated(construct, msg string) error {
	return &SyntaxError{Construct: construct, Offset: d.offset, Msg: msg, Err: ErrTruncated}
}

// --------------------------------------------------------------------------------------------- //

func (d *Decoder) decodeValue() (Value, error) {
	b, err := d.peek()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, d.truncated("value", "unexpected end of input")
		}

		return nil, err
	}

	switch {
	case b == 'i':
		return d.decodeInteger()
	case b == 'l':
		return d.decodeList()
	case b == 'd':
		return d.decodeDict()
	case isDigit(b):
		return d.decodeString()
	default:
		return nil, d.malformed("value", "unexpected byte "+strconv.QuoteRune(rune(b)))
	}
}

/*
decodeInteger reads i<digits>e. The body must be a canonical base-10 number:
no leading zeros, no "-0", nothing empty.
*/
func (d *Decoder) decodeInteger() (Value, error) {
	const construct = "integer"

	if _, err := d.readByte(); err != nil {
		return nil, err
	}

	var body []byte
	for {
		b, err := d.readByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, d.malformed(construct, "unterminated integer")
			}

			return nil, err
		}

		if b == 'e' {
			break
		}

		if !isDigit(b) && !(b == '-' && len(body) == 0) {
			return nil, d.malformed(construct, "non-numeric byte "+strconv.QuoteRune(rune(b)))
		}

		body = append(body, b)
		if len(body) > maxIntegerLength {
			return nil, d.malformed(construct, "integer too long")
		}
	}

	digits := body
	if len(digits) > 0 && digits[0] == '-' {
		digits = digits[1:]
	}

	switch {
	case len(digits) == 0:
		return nil, d.malformed(construct, "empty integer")
	case digits[0] == '0' && len(digits) > 1:
		return nil, d.malformed(construct, "leading zero")
	case digits[0] == '0' && len(body) != len(digits):
		return nil, d.malformed(construct, "negative zero")
	}

	n, err := strconv.ParseInt(string(body), 10, 64)
	if err != nil {
		return nil, d.malformed(construct, "integer out of range")
	}

	return Integer(n), nil
}

// decodeString reads <length>:<bytes>.
func (d *Decoder) decodeString() (Value, error) {
	const construct = "byte string"

	var prefix []byte
	for {
		b, err := d.readByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, d.malformed(construct, "unterminated length prefix")
			}

			return nil, err
		}

		if b == ':' {
			break
		}

		if !isDigit(b) {
			return nil, d.malformed(construct, "invalid length prefix byte "+strconv.QuoteRune(rune(b)))
		}

		prefix = append(prefix, b)
		if len(prefix) > maxLengthDigits {
			return nil, d.malformed(construct, "length prefix too long")
		}
	}

	if len(prefix) == 0 {
		return nil, d.malformed(construct, "empty length prefix")
	}

	if prefix[0] == '0' && len(prefix) > 1 {
		return nil, d.malformed(construct, "leading zero in length prefix")
	}

	length, err := strconv.ParseInt(string(prefix), 10, 64)
	if err != nil {
		return nil, d.malformed(construct, "invalid length prefix")
	}

	// Copy through a growing buffer so a lying prefix cannot force a huge allocation.
	var buf bytes.Buffer
	n, err := io.CopyN(&buf, d.r, length)
	d.offset += n
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, d.truncated(construct,
				"declared length "+strconv.FormatInt(length, 10)+", only "+strconv.FormatInt(n, 10)+" bytes available")
		}

		return nil, err
	}

	if buf.Len() == 0 {
		return String{}, nil
	}

	return String(buf.Bytes()), nil
}

func (d *Decoder) decodeList() (Value, error) {
	const construct = "list"

	if _, err := d.readByte(); err != nil {
		return nil, err
	}

	if d.depth++; d.depth > maxDepth {
		return nil, d.malformed(construct, "nesting too deep")
	}
	defer func() { d.depth-- }()

	list := List{}
	for {
		b, err := d.peek()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, d.malformed(construct, "unterminated list")
			}

			return nil, err
		}

		if b == 'e' {
			d.readByte()
			return list, nil
		}

		elem, err := d.decodeValue()
		if err != nil {
			return nil, err
		}

		list = append(list, elem)
	}
}

func (d *Decoder) decodeDict() (Value, error) {
	const construct = "dictionary"

	if _, err := d.readByte(); err != nil {
		return nil, err
	}

	if d.depth++; d.depth > maxDepth {
		return nil, d.malformed(construct, "nesting too deep")
	}
	defer func() { d.depth-- }()

	dict := Dict{}
	for {
		b, err := d.peek()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, d.malformed(construct, "unterminated dictionary")
			}

			return nil, err
		}

		if b == 'e' {
			d.readByte()
			return dict, nil
		}

		if !isDigit(b) {
			return nil, d.malformed(construct, "key is not a byte string")
		}

		keyOffset := d.offset
		key, err := d.decodeString()
		if err != nil {
			return nil, err
		}

		k := string(key.(String))
		if _, dup := dict[k]; dup {
			return nil, &SyntaxError{
				Construct: construct,
				Offset:    keyOffset,
				Msg:       "duplicate key " + strconv.Quote(k),
				Err:       ErrMalformed,
			}
		}

		if _, err := d.peek(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, d.malformed(construct, "unterminated dictionary")
			}

			return nil, err
		}

		value, err := d.decodeValue()
		if err != nil {
			return nil, err
		}

		dict[k] = value
	}
}

// --------------------------------------------------------------------------------------------- //

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
