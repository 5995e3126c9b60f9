package meta

import (
	"bytes"
	"net"
	"strconv"
	"strings"
)

// DefaultSocketBufferSize is the default capacity of a FramedSocket's read
// buffer. Large enough to hold most headers and small values in one recv;
// bigger values fall back to an owned allocation in getValue.
const DefaultSocketBufferSize = 4096

// FramedSocket reads meta protocol responses directly out of a fixed
// capacity buffer instead of through a bufio.Reader, so that a VA response
// whose value fits in the buffer's unparsed region is handed to the caller
// as a slice of that buffer rather than a fresh allocation.
//
// Buffer layout: bytes [0, pos) are already consumed, [pos, read) is
// unparsed data received but not yet handed out, and [read, cap(buf)) is
// free capacity still to be filled from the connection. A FramedSocket owns
// its buffer outright: it is bound to exactly one net.Conn for its whole
// lifetime and must never be shared across connections or goroutines.
//
// Any value slice FramedSocket returns is only valid until the next call
// that reads from the socket; callers that need to retain the bytes past
// that point must copy them first.
type FramedSocket struct {
	conn net.Conn
	buf  []byte
	pos  int
	read int

	// noopExpected counts outstanding "mn\r\n" barriers written after a
	// no-reply write. ReadResponse drains and discards responses until it
	// has observed that many MN headers before returning anything to the
	// caller.
	noopExpected int
}

// NewFramedSocket wraps conn with a read buffer of bufSize bytes. A
// non-positive bufSize selects DefaultSocketBufferSize.
func NewFramedSocket(conn net.Conn, bufSize int) *FramedSocket {
	if bufSize <= 0 {
		bufSize = DefaultSocketBufferSize
	}
	return &FramedSocket{conn: conn, buf: make([]byte, bufSize)}
}

// Conn returns the underlying connection.
func (s *FramedSocket) Conn() net.Conn {
	return s.conn
}

// NoteNoop records that a literal "mn\r\n" barrier was just written after a
// no-reply command, so the next ReadResponse call(s) silently drain
// everything up to and including the matching MN before returning.
func (s *FramedSocket) NoteNoop() {
	s.noopExpected++
}

// ReadResponse reads and parses a single response, skipping over the
// no-reply barrier state set up by NoteNoop. Per the meta protocol, a
// no-reply (q-flagged) write that succeeds produces no header at all, but
// one that fails still emits its error line; the barrier mn is how the
// client tells the two apart without blocking forever on success. Any
// response observed ahead of the barrier is discarded along with its value
// body, matching the no-reply contract: callers of a no-reply write never
// see its individual failure, only a broken connection would surface it.
func (s *FramedSocket) ReadResponse() (*Response, error) {
	for s.noopExpected > 0 {
		resp, err := s.readOne()
		if err != nil {
			return nil, err
		}
		isNoop := resp.Status == StatusMN
		PutResponse(resp)
		if isNoop {
			s.noopExpected--
		}
	}
	return s.readOne()
}

func (s *FramedSocket) readOne() (*Response, error) {
	defer s.compact()

	line, err := s.readLine()
	if err != nil {
		return nil, err
	}

	if msg, ok := bytes.CutPrefix(line, []byte(ErrorClientPrefix+" ")); ok {
		resp := GetResponse()
		resp.Error = &ClientError{Message: string(msg)}
		return resp, nil
	}
	if msg, ok := bytes.CutPrefix(line, []byte(ErrorServerPrefix+" ")); ok {
		resp := GetResponse()
		resp.Error = &ServerError{Message: string(msg)}
		return resp, nil
	}
	if string(line) == ErrorGeneric {
		resp := GetResponse()
		resp.Error = &GenericError{Message: "ERROR"}
		return resp, nil
	}

	parts := strings.Fields(string(line))
	if len(parts) == 0 {
		return nil, &ParseError{Message: "empty response line"}
	}

	resp := GetResponse()
	resp.Status = StatusType(parts[0])
	if resp.Status == StatusMN {
		return resp, nil
	}
	if resp.Status == StatusME {
		if len(parts) > 2 {
			resp.Data = []byte(strings.Join(parts[2:], " "))
		}
		return resp, nil
	}

	idx := 1
	var dataSize int
	if resp.Status == StatusVA {
		if idx >= len(parts) {
			return nil, &ParseError{Message: "VA response missing size"}
		}
		dataSize, err = strconv.Atoi(parts[idx])
		if err != nil {
			return nil, &ParseError{Message: "invalid size in VA response: " + parts[idx]}
		}
		if dataSize < 0 {
			return nil, &ParseError{Message: "negative size in VA response"}
		}
		idx++
	}

	for idx < len(parts) {
		flagStr := parts[idx]
		if len(flagStr) == 0 {
			idx++
			continue
		}
		flag := Flag{Type: FlagType(flagStr[0])}
		if len(flagStr) > 1 {
			flag.Token = flagStr[1:]
		}
		resp.Flags = append(resp.Flags, flag)
		idx++
	}

	if resp.Status == StatusVA {
		data, err := s.getValue(dataSize)
		if err != nil {
			return nil, err
		}
		resp.Data = data
	}

	return resp, nil
}

// readLine scans the unparsed region for a CRLF-terminated header line,
// pulling more bytes from the connection as needed, and advances pos past
// the terminator. The returned slice is a view into buf and is only valid
// until the next socket read.
func (s *FramedSocket) readLine() ([]byte, error) {
	for {
		if idx := bytes.IndexByte(s.buf[s.pos:s.read], '\n'); idx >= 0 {
			end := s.pos + idx + 1
			line := s.buf[s.pos:end]
			line = bytes.TrimSuffix(line, []byte(CRLF))
			line = bytes.TrimSuffix(line, []byte("\n"))
			s.pos = end
			return line, nil
		}
		if err := s.fill(); err != nil {
			return nil, err
		}
	}
}

// getValue extracts a VA response's value-plus-terminator. As long as it
// fits in the buffer space from pos onward, it keeps filling until the whole
// thing is buffered and returns a slice borrowed from buf, even when the
// value arrived across several recvs; only a value too large for that space
// falls back to an owned allocation, copying whatever prefix is already in
// hand before reading the rest directly off the connection.
func (s *FramedSocket) getValue(size int) ([]byte, error) {
	need := size + 2

	for s.read-s.pos < need && need <= len(s.buf)-s.pos {
		if err := s.fill(); err != nil {
			return nil, err
		}
	}

	if s.read-s.pos >= need {
		term := s.buf[s.pos+size : s.pos+need]
		if term[0] != '\r' || term[1] != '\n' {
			return nil, &ParseError{Message: "invalid data block terminator"}
		}
		data := s.buf[s.pos : s.pos+size]
		s.pos += need
		return data, nil
	}

	out := make([]byte, need)
	filled := copy(out, s.buf[s.pos:s.read])
	s.pos = s.read

	for filled < need {
		n, err := s.conn.Read(out[filled:])
		if err != nil {
			return nil, &ConnectionError{Op: "read", Err: err}
		}
		filled += n
	}

	if out[size] != '\r' || out[size+1] != '\n' {
		return nil, &ParseError{Message: "invalid data block terminator"}
	}
	return out[:size], nil
}

// fill reads more bytes from the connection into the buffer's free tail,
// compacting first if the tail has no room left.
func (s *FramedSocket) fill() error {
	if s.read == len(s.buf) {
		s.forceCompact()
		if s.read == len(s.buf) {
			return &ParseError{Message: "response exceeds socket buffer capacity"}
		}
	}
	n, err := s.conn.Read(s.buf[s.read:])
	if err != nil {
		return &ConnectionError{Op: "read", Err: err}
	}
	s.read += n
	return nil
}

// compact applies the buffer discipline: once more than three quarters of
// the buffer is behind pos, slide the unparsed remainder down to the front
// so the next fill always has somewhere to grow into.
func (s *FramedSocket) compact() {
	if s.pos == s.read {
		s.pos, s.read = 0, 0
		return
	}
	if s.pos > (len(s.buf)*3)/4 {
		s.forceCompact()
	}
}

func (s *FramedSocket) forceCompact() {
	n := copy(s.buf, s.buf[s.pos:s.read])
	s.pos, s.read = 0, n
}
