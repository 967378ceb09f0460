package websocket

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/soundtrace/soundtrace/internal/fingerprint"
	"github.com/soundtrace/soundtrace/internal/index"
	"github.com/soundtrace/soundtrace/internal/matcher"
	"github.com/soundtrace/soundtrace/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) index.Store {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Track{}, &models.Posting{}))
	return index.NewStore(db)
}

func TestHandleIdentifyDoneWithNoAudioReturnsEmptyMatches(t *testing.T) {
	store := newTestStore(t)
	m := matcher.New(store, matcher.DefaultConfig())

	server := httptest.NewServer(HandleIdentify(m, fingerprint.DefaultParams()))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + server.URL[len("http"):]
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	// A text frame with no prior binary data marks immediate end-of-upload.
	require.NoError(t, wsjson.Write(ctx, conn, map[string]bool{"done": true}))

	var resp identifyResponse
	require.NoError(t, wsjson.Read(ctx, conn, &resp))
	require.False(t, resp.MatchFound)
	require.Empty(t, resp.Error)
}

func TestHandleIdentifyAccumulatesBinaryFramesBeforeDone(t *testing.T) {
	store := newTestStore(t)
	m := matcher.New(store, matcher.DefaultConfig())

	server := httptest.NewServer(HandleIdentify(m, fingerprint.DefaultParams()))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + server.URL[len("http"):]
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.NoError(t, conn.Write(ctx, websocket.MessageBinary, []byte{0x00, 0x01, 0x02}))
	require.NoError(t, wsjson.Write(ctx, conn, map[string]bool{"done": true}))

	var resp identifyResponse
	require.NoError(t, wsjson.Read(ctx, conn, &resp))
	// Too few bytes to be real audio: decoding fails, which the handler
	// reports as an error rather than a panic.
	require.NotEmpty(t, resp.Error)
}
