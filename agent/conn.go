package agent

import (
	"context"
	"fmt"

	"github.com/guseggert/wsremote/protocol"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// connHandler serves one controller connection.
// Frames are handled strictly in order: a new frame is not read until the reply to the previous one has been written.
type connHandler struct {
	log  *zap.SugaredLogger
	conn *websocket.Conn
	exec Executor
}

func (h *connHandler) serve(ctx context.Context, greeting string) error {
	err := h.conn.Write(ctx, websocket.MessageText, []byte(greeting))
	if err != nil {
		h.conn.Close(websocket.StatusInternalError, "")
		return fmt.Errorf("sending greeting: %w", err)
	}
	h.log.Debug("connected to controller")

	for {
		typ, b, err := h.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				h.log.Debug("got normal closure from controller")
			} else {
				h.conn.Close(websocket.StatusInternalError, "")
			}
			return fmt.Errorf("reading frame: %w", err)
		}

		replyType, reply := h.handleFrame(ctx, typ, b)

		err = h.conn.Write(ctx, replyType, reply)
		if err != nil {
			h.conn.Close(websocket.StatusInternalError, "")
			return fmt.Errorf("writing reply: %w", err)
		}
	}
}

func (h *connHandler) handleFrame(ctx context.Context, typ websocket.MessageType, b []byte) (websocket.MessageType, []byte) {
	if typ == websocket.MessageText {
		h.log.Debugw("got text frame", "Text", string(b))
		return websocket.MessageText, []byte("Echo:" + string(b))
	}

	h.log.Debugf("got binary frame of %d bytes", len(b))
	var res protocol.Result
	req, err := protocol.DecodeRequest(b)
	if err != nil {
		h.log.Debugw("error decoding request", "Error", err)
		res = protocol.Fail(err, protocol.ContextDecode)
	} else {
		res = h.exec.Execute(ctx, req)
	}

	encoded, err := protocol.EncodeResult(res)
	if err != nil {
		h.log.Errorw("error encoding result", "Error", err)
		return websocket.MessageText, []byte(protocol.EncodeFailurePrefix + err.Error())
	}
	return websocket.MessageBinary, encoded
}
