package heading

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
)

// Sink receives decoded heading records. Satisfied by the fused store.
type Sink interface {
	PublishHeading(Record)
}

// Metrics receives ingest counters. Satisfied by the status tracker.
// A nil Metrics disables counting.
type Metrics interface {
	AddHeadingRecords(n int)
	AddFramingErrors(n int)
}

// Server listens for the heading feed. One client is served at a time; when
// it disconnects the server goes back to accepting so a restarted sender can
// resume the session.
type Server struct {
	sink    Sink
	metrics Metrics
	ln      net.Listener
}

// Listen binds the listener. A bind failure is the one fatal startup error
// in the system, so it is returned rather than retried.
func Listen(addr string, sink Sink, metrics Metrics) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("heading: listen %s: %w", addr, err)
	}
	return &Server{sink: sink, metrics: metrics, ln: ln}, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts and reads clients until ctx is cancelled. Per-connection
// errors are logged and never returned; the feed is best-effort and the
// control loop must keep running without it.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.ln.Close() })
	defer stop()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("heading: accept: %v", err)
			continue
		}

		log.Printf("heading: client connected from %s", conn.RemoteAddr())
		s.serveConn(ctx, conn)
		log.Printf("heading: client %s disconnected", conn.RemoteAddr())
	}
}

// Close releases the listener.
func (s *Server) Close() error {
	return s.ln.Close()
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	framer := NewFramer()
	buf := make([]byte, 1024)
	reportedMalformed := 0

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			records := framer.Feed(buf[:n])
			for _, rec := range records {
				s.sink.PublishHeading(rec)
			}
			if s.metrics != nil {
				if len(records) > 0 {
					s.metrics.AddHeadingRecords(len(records))
				}
				if m := framer.Malformed(); m > reportedMalformed {
					s.metrics.AddFramingErrors(m - reportedMalformed)
					reportedMalformed = m
				}
			}
		}
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
				log.Printf("heading: read: %v", err)
			}
			return
		}
	}
}
