package gateway

import (
	"bytes"
	"compress/zlib"
	"io"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// adapter wraps a single websocket connection so that every transport
// callback (connect, disconnect, error, message) is translated into a
// tagged InboundEvent posted to eventCh, exactly as spec.md §4.2
// describes. One adapter instance is bound to one connection; a
// reconnect always allocates a fresh adapter and a fresh eventCh.
type adapter struct {
	conn    *websocket.Conn
	log     zerolog.Logger
	eventCh chan InboundEvent
}

// dialOptions configures a websocket dial per spec.md §4.2: a maximum
// message size (default 4 MiB) and HTTPS endpoint identification.
type dialOptions struct {
	bufferSize int
}

var websocketDialer = websocket.Dialer{
	Proxy:            http.ProxyFromEnvironment,
	HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
}

// connectAdapter dials url and starts the adapter's read loop, posting a
// Connect event immediately on success and a Disconnect when the loop
// ends, preceded by an Error event if the read failed for a reason other
// than a close frame. Grounded on the teacher's
// gateway/connection.go wrapper and session.go's zlib decompression path.
func connectAdapter(log zerolog.Logger, opts dialOptions, url string, eventCh chan InboundEvent) (*adapter, error) {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	conn, _, err := websocketDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}

	conn.SetReadLimit(int64(opts.bufferSize))

	a := &adapter{conn: conn, log: log, eventCh: eventCh}

	eventCh <- Connect()

	go a.readLoop()

	return a, nil
}

// readLoop is the adapter's sole goroutine: it reads frames until the
// connection closes or errors, posting one tagged event per frame, then
// posts a terminal Disconnect (after an Error for a non-close failure)
// and returns.
func (a *adapter) readLoop() {
	for {
		mt, data, err := a.conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				a.eventCh <- Disconnect(ce.Code, ce.Text)
			} else {
				a.eventCh <- ErrorEvent(err)
				a.eventCh <- Disconnect(websocket.CloseAbnormalClosure, err.Error())
			}

			return
		}

		if mt == websocket.BinaryMessage {
			data, err = decompressZlib(data)
			if err != nil {
				a.eventCh <- ErrorEvent(err)
				continue
			}
		}

		a.eventCh <- Message(data)
	}
}

// write sends a single JSON-marshaled frame to the Gateway.
func (a *adapter) write(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return a.conn.WriteMessage(websocket.TextMessage, b)
}

// close initiates a normal transport close. Errors are logged and
// swallowed per spec.md §4.2: the Shard Runtime must never fail
// reconnection because of a close error. Callbacks from the prior
// connection may continue arriving on the old eventCh briefly; the
// runtime discards those by replacing eventCh on every (re)connect.
func (a *adapter) close() {
	if a == nil || a.conn == nil {
		return
	}

	if err := a.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
		a.log.Debug().Err(err).Msg("error writing close frame, ignoring")
	}

	if err := a.conn.Close(); err != nil {
		a.log.Debug().Err(err).Msg("error closing websocket, ignoring")
	}
}

func decompressZlib(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}
