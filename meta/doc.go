// Package meta provides a low-level wire protocol implementation for the
// Memcached Meta Protocol (version 1.6+).
//
// This package serves as a foundation for building higher-level memcache clients
// with different properties (pipelining, connection pooling, batching, etc.).
// It focuses on correctness and performance for serialization and parsing,
// without imposing architectural decisions on clients.
//
// # Core Types
//
// Request and Response are pure data containers without embedded logic:
//
//   - Request: Represents a meta protocol command (mg, ms, md, ma, me, mn)
//   - Response: Represents a parsed server response
//   - Flag: Represents a protocol flag with optional token
//
// # Serialization and Parsing
//
// WriteRequest serializes requests to wire format. FramedSocket is the
// zero-copy response reader: it parses a response's value directly out of
// its own fixed buffer, returning a slice borrowed from that buffer instead
// of a fresh allocation whenever the value fits:
//
//	req := meta.NewRequest(meta.CmdGet, "mykey", nil, meta.Flag{Type: meta.FlagReturnValue})
//	meta.WriteRequest(conn, req)
//
//	s := meta.NewFramedSocket(conn, meta.DefaultSocketBufferSize)
//	resp, err := s.ReadResponse()
//	if err != nil {
//	    if meta.ShouldCloseConnection(err) {
//	        conn.Close()
//	    }
//	    return err
//	}
//
// The returned Response's Data, when present, is only valid until the next
// call that reads from the socket; callers that need to keep it past that
// point must copy it first.
//
// ReadResponse (taking a *bufio.Reader directly) remains available as a
// simpler, allocate-per-value parser for batch tooling and tests that don't
// need FramedSocket's buffer-reuse discipline.
//
// # No-reply (quiet) writes
//
// A write command carrying the `q` flag gets no response from the server on
// success - only a failure still produces a header line. WriteRequestWithNoop
// writes the command immediately followed by a literal "mn\r\n" barrier;
// pair it with FramedSocket.NoteNoop so the next ReadResponse call drains
// anything ahead of the matching MN before returning:
//
//	meta.WriteRequestWithNoop(conn, req)
//	s.NoteNoop()
//	// ... later, on the next real read from this socket, the barrier (and
//	// any discarded failure response) is consumed transparently.
//
// # Error Handling
//
// The package defines error types that indicate connection state:
//
//   - ClientError: Protocol state corrupted, CLOSE connection
//   - ServerError: Server-side error, connection can be REUSED
//   - GenericError: Unknown command or protocol issue, CLOSE connection
//   - ParseError: Client-side parsing failure, CLOSE connection
//   - ConnectionError: Network/I/O error, connection already broken
//
// Use ShouldCloseConnection to determine error handling strategy:
//
//	if err != nil {
//	    if meta.ShouldCloseConnection(err) {
//	        conn.Close()
//	    }
//	    return err
//	}
//
// # Constants
//
// All protocol constants are defined:
//
//   - Commands: CmdGet, CmdSet, CmdDelete, CmdArithmetic, CmdDebug, CmdNoOp
//   - Response codes: StatusHD, StatusVA, StatusEN, StatusNF, StatusNS, StatusEX, etc.
//   - Flags: FlagReturnValue, FlagReturnCAS, FlagTTL, FlagQuiet, etc.
//   - Modes: ModeSet, ModeAdd, ModeReplace, ModeAppend, ModePrepend, etc.
//   - Limits: MaxKeyLength, MaxOpaqueLength, MaxValueSize
//
// # Design Principles
//
// 1. Zero business logic - just serialization and parsing
// 2. No connection management - caller controls connections
// 3. No validation beyond key format - assumes well-formed requests
// 4. Minimal allocations - FramedSocket borrows rather than copies
// 5. Clear error semantics - connection state is explicit
//
// # Examples
//
// Basic get:
//
//	req := meta.NewRequest(meta.CmdGet, "mykey", nil, meta.Flag{Type: meta.FlagReturnValue})
//	meta.WriteRequest(conn, req)
//	resp, _ := s.ReadResponse()
//	if resp.HasValue() {
//	    value := resp.Data
//	}
//
// Set with TTL:
//
//	req := meta.NewRequest(meta.CmdSet, "mykey", []byte("hello"),
//	    meta.Flag{Type: meta.FlagTTL, Token: "60"})
//	meta.WriteRequest(conn, req)
//	resp, _ := s.ReadResponse()
//
// CAS operation:
//
//	req := meta.NewRequest(meta.CmdSet, "mykey", []byte("new"),
//	    meta.Flag{Type: meta.FlagCAS, Token: "12345"})
//	meta.WriteRequest(conn, req)
//	resp, _ := s.ReadResponse()
//	if resp.IsCASMismatch() {
//	    // Handle CAS conflict
//	}
//
// Increment counter:
//
//	req := meta.NewRequest(meta.CmdArithmetic, "counter", nil,
//	    meta.Flag{Type: meta.FlagReturnValue},
//	    meta.Flag{Type: meta.FlagDelta, Token: "5"})
//	meta.WriteRequest(conn, req)
//	resp, _ := s.ReadResponse()
//
// Stale-while-revalidate pattern:
//
//	// Invalidate item
//	req := meta.NewRequest(meta.CmdDelete, "mykey", nil,
//	    meta.Flag{Type: meta.FlagInvalidate},
//	    meta.Flag{Type: meta.FlagTTL, Token: "30"})
//	meta.WriteRequest(conn, req)
//	resp, _ := s.ReadResponse()
//
//	// Get stale value with win flag
//	req = meta.NewRequest(meta.CmdGet, "mykey", nil, meta.Flag{Type: meta.FlagReturnValue})
//	meta.WriteRequest(conn, req)
//	resp, _ = s.ReadResponse()
//	if resp.HasWinFlag() {
//	    // Client won the race to recache
//	    // Fetch fresh data and update cache
//	}
//
// # Performance Considerations
//
// - FramedSocket parses headers and values directly out of its own buffer
// - A value is handed back as a borrowed slice whenever it fits in the
//   buffer; only values larger than the buffer space left allocate
// - WriteRequest writes straight through a *bufio.Writer; other writers get
//   the command line assembled in a pooled buffer first
// - Flag parsing is optimized for minimal allocations
//
// # Thread Safety
//
// This package is thread-safe for reads (constants, helper functions).
// Request and Response types are not thread-safe - callers must synchronize
// access if sharing across goroutines. A FramedSocket is bound to exactly
// one connection and must not be shared across goroutines.
package meta
