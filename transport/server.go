package transport

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"trackerd/content"
)

// Handler is implemented by the distributed tracker to serve incoming
// Cache.ContentTracker RPCs.
type Handler interface {
	UpdateLocations(ctx context.Context, entries []content.Entry) error
	GetLocations(ctx context.Context, hashes []string) ([]content.Entry, error)
}

// Server accepts connections and dispatches framed requests to a
// Handler, one connection handled per goroutine, matching the
// predecessor's accept-loop shape in its own bus listener.
type Server struct {
	handler Handler
	logger  *zap.Logger
}

// NewServer returns a Server dispatching to h.
func NewServer(h Handler, logger *zap.Logger) *Server {
	return &Server{handler: h, logger: logger}
}

// Serve accepts connections from lis until it returns an error (such as
// from the listener being closed).
func (s *Server) Serve(lis net.Listener) error {
	for {
		conn, err := lis.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	for {
		frame, err := readFrame(conn)
		if err != nil {
			if err != io.EOF && s.logger != nil {
				s.logger.Debug("transport: read error", zap.Error(err))
			}
			return
		}
		resp := s.dispatch(frame)
		if err := writeFrame(conn, resp); err != nil {
			if s.logger != nil {
				s.logger.Debug("transport: write error", zap.Error(err))
			}
			return
		}
	}
}

func (s *Server) dispatch(frame []byte) []byte {
	var env envelope
	if err := cbor.Unmarshal(frame, &env); err != nil {
		return s.fault("", fmt.Sprintf("corrupted envelope: %v", err))
	}

	ctx := context.Background()
	switch env.Method {
	case MethodUpdateLocations:
		var req UpdateLocationsRequest
		if err := cbor.Unmarshal(env.Body, &req); err != nil {
			return s.fault(env.ID, err.Error())
		}
		if err := s.handler.UpdateLocations(ctx, req.Entries); err != nil {
			return s.fault(env.ID, err.Error())
		}
		return s.ok(env.ID, UpdateLocationsResponse{})

	case MethodGetLocations:
		var req GetLocationsRequest
		if err := cbor.Unmarshal(env.Body, &req); err != nil {
			return s.fault(env.ID, err.Error())
		}
		results, err := s.handler.GetLocations(ctx, req.Hashes)
		if err != nil {
			return s.fault(env.ID, err.Error())
		}
		return s.ok(env.ID, GetLocationsResponse{Results: results})

	default:
		return s.fault(env.ID, fmt.Sprintf("unknown method %q", env.Method))
	}
}

func (s *Server) ok(id string, body interface{}) []byte {
	b, err := cbor.Marshal(body)
	if err != nil {
		return s.fault(id, err.Error())
	}
	payload, _ := cbor.Marshal(envelope{ID: id, Body: b})
	return payload
}

func (s *Server) fault(id, msg string) []byte {
	payload, _ := cbor.Marshal(envelope{ID: id, Fault: msg})
	return payload
}
