package memcache

import (
	"bufio"
	"context"
	"net"
	"time"

	"github.com/pior/memcache/meta"
)

func NewConnection(conn net.Conn) *Connection {
	return &Connection{
		Conn:   conn,
		Socket: meta.NewFramedSocket(conn, meta.DefaultSocketBufferSize),
		Writer: bufio.NewWriter(conn),
	}
}

// Connection wraps a network connection with a zero-copy response reader
// and a buffered writer for efficient I/O.
type Connection struct {
	net.Conn
	Socket *meta.FramedSocket
	Writer *bufio.Writer
}

// Send writes req and returns its response. Write commands carrying the
// no-reply flag never get an individual response from the server on
// success, so Send chases them with a no-op barrier instead of blocking:
// the barrier's MN is drained transparently the next time anything is read
// off this connection, and the caller gets an immediately synthesized
// success (see meta.WriteRequestWithNoop and FramedSocket.NoteNoop).
func (c *Connection) Send(req *meta.Request) (*meta.Response, error) {
	if req.Command != meta.CmdGet && req.Command != meta.CmdNoOp && req.HasFlag(meta.FlagQuiet) {
		if err := meta.WriteRequestWithNoop(c.Writer, req); err != nil {
			return nil, err
		}
		c.Socket.NoteNoop()
		resp := meta.GetResponse()
		resp.Status = meta.StatusHD
		return resp, nil
	}

	if err := meta.WriteRequest(c.Writer, req); err != nil {
		return nil, err
	}

	resp, err := c.Socket.ReadResponse()
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Resource represents a connection resource from the pool.
type Resource interface {
	// Value returns the underlying connection.
	Value() *Connection

	// Release returns the connection to the pool for reuse.
	Release()

	// ReleaseUnused returns the connection to the pool without marking it as used.
	// Used for health checks that don't actually use the connection.
	ReleaseUnused()

	// Destroy closes the connection and removes it from the pool.
	Destroy()

	// CreationTime returns when the connection was created.
	CreationTime() time.Time

	// IdleDuration returns how long the connection has been idle.
	IdleDuration() time.Duration
}

// Pool manages a pool of connections.
type Pool interface {
	// Acquire gets a connection from the pool, creating one if necessary.
	// Blocks until a connection is available or context is canceled.
	Acquire(ctx context.Context) (Resource, error)

	// AcquireAllIdle acquires all idle connections from the pool.
	// Used for health checks and maintenance.
	AcquireAllIdle() []Resource

	// Close closes the pool and all connections.
	Close()

	// Stats returns a snapshot of pool statistics.
	Stats() PoolStats
}
