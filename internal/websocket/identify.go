// Package websocket provides the two streaming surfaces beyond the REST
// API: WS /identify (upload-then-single-response recognition) and
// WS /tasks/{id} (push task state until terminal). Built on
// github.com/coder/websocket, narrowed to two one-shot request/response
// flows rather than a many-to-many broadcast fabric.
package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/soundtrace/soundtrace/internal/errors"
	"github.com/soundtrace/soundtrace/internal/fingerprint"
	"github.com/soundtrace/soundtrace/internal/logger"
	"github.com/soundtrace/soundtrace/internal/matcher"
	"go.uber.org/zap"
)

const (
	// maxMessageSize bounds a single binary audio frame.
	maxMessageSize = 512 * 1024

	// maxIdentifyBytes bounds the total audio accumulated across frames
	// before the connection is fingerprinted, matching MatchAudio's HTTP
	// twin (internal/handlers/match.go).
	maxIdentifyBytes = 20 * 1024 * 1024

	identifyReadTimeout = 30 * time.Second
)

// identifyResponse is the single message sent back on /identify before
// the connection is closed: the same {match_found, ...} payload POST
// /match returns, plus an error field for decode failures.
type identifyResponse struct {
	matcher.Response
	Error string `json:"error,omitempty"`
}

// HandleIdentify upgrades the connection, accumulates binary audio frames
// sent by the client until either a non-binary "done" frame arrives or the
// connection is closed, then fingerprints the accumulated bytes and sends
// back one identifyResponse before closing. A text frame is used
// to mark end-of-stream rather than the connection close handshake itself,
// since RFC 6455 forbids sending data after receiving a peer's close frame.
func HandleIdentify(m *matcher.Matcher, params fingerprint.Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			CompressionMode: websocket.CompressionDisabled,
		})
		if err != nil {
			logger.Log.Warn("identify: websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()

		conn.SetReadLimit(maxMessageSize)

		var audio []byte
		for {
			ctx, cancel := context.WithTimeout(r.Context(), identifyReadTimeout)
			typ, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				break
			}
			if typ != websocket.MessageBinary {
				// Any non-binary frame (e.g. {"done":true}) marks end of
				// upload; the client doesn't need a specific payload.
				break
			}
			audio = append(audio, data...)
			if len(audio) > maxIdentifyBytes {
				writeIdentifyResult(r.Context(), conn, identifyResponse{Error: "audio payload too large"})
				conn.Close(websocket.StatusMessageTooBig, "audio payload too large")
				return
			}
		}

		resp := identifyResponse{Response: matcher.NoMatch()}
		if len(audio) > 0 {
			query, err := fingerprint.FromBytes(audio, params)
			if err != nil {
				if apiErr, ok := err.(*errors.APIError); !ok || apiErr.Code != errors.ErrEmptyFingerprint {
					resp.Error = err.Error()
				}
			} else {
				resp.Response = m.Identify(r.Context(), query)
			}
		}

		writeIdentifyResult(r.Context(), conn, resp)
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

func writeIdentifyResult(ctx context.Context, conn *websocket.Conn, resp identifyResponse) {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, resp); err != nil {
		logger.Log.Warn("identify: failed to write result", zap.Error(err))
	}
}
