package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/cartrita/mcp/internal/common/logger"
	v1 "github.com/cartrita/mcp/pkg/mcp/v1"
)

// Handler processes a received message. The client id identifies the peer
// connection on the server side and is "server" on the client side.
type Handler func(ctx context.Context, msg *v1.Message, clientID string) error

// conn manages one framed connection: a single-writer send path and a
// receive loop that forwards valid messages to the handler.
type conn struct {
	netConn  net.Conn
	clientID string
	maxSize  int
	handler  Handler
	logger   *logger.Logger

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

func newConn(netConn net.Conn, clientID string, maxSize int, handler Handler, log *logger.Logger) *conn {
	return &conn{
		netConn:  netConn,
		clientID: clientID,
		maxSize:  maxSize,
		handler:  handler,
		logger:   log.WithFields(zap.String("client_id", clientID)),
	}
}

// send serializes and writes one message. Concurrent sends serialize on the
// write mutex so frames never interleave.
func (c *conn) send(msg *v1.Message) error {
	body, err := msgpack.Marshal(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.netConn, body, c.maxSize)
}

// receiveLoop reads frames until the connection closes. Deserialization and
// validation failures are logged and skipped; oversize frames close the
// connection.
func (c *conn) receiveLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		body, err := ReadFrame(c.netConn, c.maxSize)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
				// Peer closed or short read mid-frame; terminate quietly.
			case errors.Is(err, ErrEmptyFrame):
				c.logger.Error("rejected zero-length frame")
				c.close()
			case errors.Is(err, ErrFrameTooLarge):
				c.logger.Error("frame too large, closing connection", zap.Error(err))
				c.close()
			default:
				c.logger.Error("receive loop error", zap.Error(err))
			}
			return
		}

		var msg v1.Message
		if err := msgpack.Unmarshal(body, &msg); err != nil {
			c.logger.Error("failed to decode message", zap.Error(err))
			continue
		}
		if err := v1.ValidateMessage(&msg); err != nil {
			c.logger.Error("invalid message dropped",
				zap.String("message_id", msg.ID),
				zap.Error(err))
			continue
		}

		if c.handler != nil {
			if err := c.handler(ctx, &msg, c.clientID); err != nil {
				c.logger.Error("message handler failed",
					zap.String("message_id", msg.ID),
					zap.String("message_type", msg.MessageType),
					zap.Error(err))
			}
		}
	}
}

func (c *conn) close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.netConn.Close()
}
