// Package wire implements the framed endpoint socket (spec §4.6): a
// length-prefixed message stream carried over a TLS connection, dispatching
// inbound frames to registered typed handlers and serializing outbound
// sends so frames are never interleaved.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/fountainhead/scriptsync/internal/endpoint"
	"github.com/fountainhead/scriptsync/pkg/logger"
)

const headerSize = 8 // u32 endpoint_id, u32 payload_size

// ErrClosed is returned by Send after the socket has been closed. A repeated
// Close returns nil.
var ErrClosed = errors.New("wire: socket closed")

// Handler processes a decoded payload for one endpoint. Returning an error
// is treated as a fatal transport-level failure (closes the connection);
// decode failures never reach a Handler (the socket discards those frames
// itself per §4.6 step (f)).
type Handler func(payload any) error

// Socket wraps a net.Conn (expected to be a *tls.Conn in production) with
// the frame format and dispatch table from spec §4.6/§4.7.
//
// A per-connection mutex (sendMu) serializes sends so outbound frames are
// never interleaved (§4.6, §5); frames are received only by the single
// goroutine running Serve, which does not take that mutex.
type Socket struct {
	conn       net.Conn
	catalog    *endpoint.Catalog
	sendMu     sync.Mutex
	closeMu    sync.Mutex
	closed     bool
	onClose    func()
	handlers   map[endpoint.ID]Handler
	handlersMu sync.RWMutex
}

// New wraps conn with the given endpoint catalog. onClose, if non-nil, is
// invoked exactly once when the socket is closed (by either end).
func New(conn net.Conn, catalog *endpoint.Catalog, onClose func()) *Socket {
	return &Socket{
		conn:     conn,
		catalog:  catalog,
		onClose:  onClose,
		handlers: make(map[endpoint.ID]Handler),
	}
}

// Handle registers the callback invoked when a frame for id arrives.
// Installed per connection state, not globally (§9 design note on
// replacing the source's mutable callback-registry pattern with a static
// per-connection dispatch table).
func (s *Socket) Handle(id endpoint.ID, h Handler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers[id] = h
}

// Send encodes payload for id and writes one frame, blocking until the
// whole frame has been written. Safe for concurrent use; sends are
// serialized by sendMu.
func (s *Socket) Send(id endpoint.ID, payload any) error {
	ep, ok := s.catalog.Lookup(id)
	if !ok {
		return fmt.Errorf("wire: unknown endpoint %d", id)
	}
	body, err := ep.Encode(payload)
	if err != nil {
		return fmt.Errorf("wire: encode endpoint %d: %w", id, err)
	}
	if len(body) > ep.MaxDataSize {
		return fmt.Errorf("wire: payload for endpoint %d exceeds max size (%d > %d)", id, len(body), ep.MaxDataSize)
	}

	frame := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint32(frame[0:4], uint32(id))
	binary.BigEndian.PutUint32(frame[4:8], uint32(len(body)))
	copy(frame[headerSize:], body)

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.isClosed() {
		return ErrClosed
	}
	_, err = s.conn.Write(frame)
	return err
}

// Serve runs the receive loop until the connection is closed or a fatal
// transport error occurs. It implements the RX state machine of §4.6:
// read the 8-byte header, look up the endpoint, discard-and-log unknown
// ids or oversized payloads, decode, dispatch.
func (s *Socket) Serve() error {
	defer s.Close()

	header := make([]byte, headerSize)
	for {
		if _, err := io.ReadFull(s.conn, header); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("wire: read header: %w", err)
		}

		id := endpoint.ID(binary.BigEndian.Uint32(header[0:4]))
		size := binary.BigEndian.Uint32(header[4:8])

		ep, ok := s.catalog.Lookup(id)
		if !ok {
			logger.Error("wire: unknown endpoint id %d, discarding %d bytes", id, size)
			if err := s.discard(size); err != nil {
				return fmt.Errorf("wire: discard unknown endpoint payload: %w", err)
			}
			continue
		}

		if int(size) > ep.MaxDataSize {
			logger.Error("wire: endpoint %d payload %d exceeds max %d, discarding", id, size, ep.MaxDataSize)
			if err := s.discard(size); err != nil {
				return fmt.Errorf("wire: discard oversized payload: %w", err)
			}
			continue
		}

		body := make([]byte, size)
		if _, err := io.ReadFull(s.conn, body); err != nil {
			return fmt.Errorf("wire: read payload for endpoint %d: %w", id, err)
		}

		payload, err := ep.Decode(body)
		if err != nil {
			logger.Error("wire: decode endpoint %d failed: %v", id, err)
			continue
		}

		s.handlersMu.RLock()
		h := s.handlers[id]
		s.handlersMu.RUnlock()
		if h == nil {
			logger.Debug("wire: no handler registered for endpoint %d", id)
			continue
		}
		if err := h(payload); err != nil {
			return fmt.Errorf("wire: handler for endpoint %d: %w", id, err)
		}
	}
}

func (s *Socket) discard(n uint32) error {
	_, err := io.CopyN(io.Discard, s.conn, int64(n))
	return err
}

func (s *Socket) isClosed() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closed
}

// Close closes the underlying connection. Idempotent: the onClose hook
// fires exactly once regardless of how many times Close is called or from
// which goroutine (§4.6, §5 cancellation semantics).
func (s *Socket) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	err := s.conn.Close()
	if s.onClose != nil {
		s.onClose()
	}
	return err
}
