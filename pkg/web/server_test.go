package web

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/teslashibe/go-spot/pkg/protocol"
	"github.com/teslashibe/go-spot/pkg/spot"
	"github.com/teslashibe/go-spot/pkg/timesync"
)

var depthBack = spot.ImageSource{Camera: spot.CameraBack, Type: spot.SourceDepth}

func testBatch() *spot.BatchResult {
	const rows, cols = 4, 4
	data := make([]byte, rows*cols*2)
	for i := 0; i < rows*cols; i++ {
		data[2*i] = byte(i * 16)
	}
	stamp := timesync.Time{Sec: 1700000000, Nanosec: 5}
	img := &spot.Image{
		Header:      spot.Header{FrameID: "back", Stamp: stamp},
		Height:      rows,
		Width:       cols,
		Encoding:    spot.EncodingMono16,
		Step:        cols * 2,
		Data:        data,
		PixelFormat: spot.PixelFormatDepthU16,
	}
	intr := &spot.PinholeIntrinsics{
		FocalLength:    spot.Vec2{X: 100, Y: 100},
		PrincipalPoint: spot.Vec2{X: 2, Y: 2},
	}
	return &spot.BatchResult{
		ID:   uuid.New(),
		Skew: durationpb.New(1500 * time.Millisecond),
		Images: map[spot.ImageSource]spot.ImageWithCameraInfo{
			depthBack: {Image: img, Info: spot.BuildCameraInfo(intr, rows, cols, "back", stamp)},
		},
		Failures: []*spot.ItemFailure{
			{Index: 1, SourceName: "left_fisheye_image", Stage: spot.StageDecode, Err: spot.ErrDecode},
		},
	}
}

func TestServer_HTTP(t *testing.T) {
	s := NewServer("0")
	batch := testBatch()
	s.Publish(batch)

	t.Run("status", func(t *testing.T) {
		resp, err := s.App().Test(httptest.NewRequest("GET", "/api/status", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		var st protocol.StatusData
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
		assert.Equal(t, uint64(1), st.Batches)
		assert.Equal(t, uint64(1), st.Failures)
		assert.Equal(t, batch.ID.String(), st.LastBatchID)
		assert.Equal(t, "1.5s", st.ClockSkew)
		assert.True(t, st.Synchronized)
		assert.Equal(t, []string{"depth/back"}, st.Sources)
	})

	t.Run("sources", func(t *testing.T) {
		resp, err := s.App().Test(httptest.NewRequest("GET", "/api/sources", nil), -1)
		require.NoError(t, err)

		var list []protocol.ImageData
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
		require.Len(t, list, 1)
		assert.Equal(t, "depth/back", list[0].Source)
		assert.Equal(t, "mono16", list[0].Encoding)
		assert.Positive(t, list[0].PreviewBytes)
	})

	t.Run("camera info", func(t *testing.T) {
		resp, err := s.App().Test(httptest.NewRequest("GET", "/api/sources/back_depth/camera_info", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		var info spot.CameraInfo
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
		assert.Equal(t, spot.DistortionModelPlumbBob, info.DistortionModel)
		assert.Equal(t, 100.0, info.K[0])
		assert.Equal(t, 4, info.Width)
	})

	t.Run("preview", func(t *testing.T) {
		resp, err := s.App().Test(httptest.NewRequest("GET", "/api/sources/back_depth/image.jpg", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Greater(t, len(body), 2)
		assert.Equal(t, []byte{0xFF, 0xD8}, body[:2])
	})

	t.Run("not published", func(t *testing.T) {
		resp, err := s.App().Test(httptest.NewRequest("GET", "/api/sources/left_depth/camera_info", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, 404, resp.StatusCode)
	})

	t.Run("unknown source", func(t *testing.T) {
		resp, err := s.App().Test(httptest.NewRequest("GET", "/api/sources/tail_camera/image.jpg", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode)
	})

	t.Run("websocket requires upgrade", func(t *testing.T) {
		resp, err := s.App().Test(httptest.NewRequest("GET", "/ws/frames", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, 426, resp.StatusCode)
	})
}

func TestServer_StatusBeforePublish(t *testing.T) {
	s := NewServer("0", WithSyncState(func() bool { return true }))
	st := s.Status()
	assert.Zero(t, st.Batches)
	assert.Empty(t, st.Sources)
	assert.True(t, st.Synchronized)

	s.Publish(nil)
	assert.Zero(t, s.Status().Batches)
}

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer("0")
	go func() {
		if err := s.Serve(ln); err != nil && !errors.Is(err, net.ErrClosed) {
			t.Logf("serve: %v", err)
		}
	}()
	t.Cleanup(func() { s.Shutdown() })
	return s, "ws://" + ln.Addr().String()
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	var conn *websocket.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, _, err = websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			t.Cleanup(func() { conn.Close() })
			return conn
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("dial %s: %v", url, err)
	return nil
}

func readMessage(t *testing.T, conn *websocket.Conn) (int, []byte) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return mt, data
}

func TestServer_FramesWebsocket(t *testing.T) {
	s, base := startServer(t)
	conn := dial(t, base+"/ws/frames")

	require.Eventually(t, func() bool { return s.framesHub.ClientCount() == 1 }, 3*time.Second, 10*time.Millisecond)

	batch := testBatch()
	s.Publish(batch)

	mt, data := readMessage(t, conn)
	require.Equal(t, websocket.TextMessage, mt)
	msg, err := protocol.ParseMessage(data)
	require.NoError(t, err)
	require.Equal(t, protocol.TypeImage, msg.Type)
	img, err := msg.GetImageData()
	require.NoError(t, err)
	assert.Equal(t, batch.ID.String(), img.BatchID)
	assert.Equal(t, "depth/back", img.Source)

	mt, preview := readMessage(t, conn)
	require.Equal(t, websocket.BinaryMessage, mt)
	assert.Len(t, preview, img.PreviewBytes)

	mt, data = readMessage(t, conn)
	require.Equal(t, websocket.TextMessage, mt)
	msg, err = protocol.ParseMessage(data)
	require.NoError(t, err)
	require.Equal(t, protocol.TypeFailure, msg.Type)
	failure, err := msg.GetFailureData()
	require.NoError(t, err)
	assert.Equal(t, "left_fisheye_image", failure.SourceName)
	assert.Equal(t, "decode", failure.Stage)
}

func TestServer_StatusWebsocket(t *testing.T) {
	_, base := startServer(t)
	conn := dial(t, base+"/ws/status")

	// Current status on connect.
	_, data := readMessage(t, conn)
	msg, err := protocol.ParseMessage(data)
	require.NoError(t, err)
	require.Equal(t, protocol.TypeStatus, msg.Type)

	ping, err := protocol.NewMessage(protocol.TypePing, protocol.PingData{ID: "p1", Timestamp: 1000})
	require.NoError(t, err)
	raw, err := ping.Bytes()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))

	_, data = readMessage(t, conn)
	msg, err = protocol.ParseMessage(data)
	require.NoError(t, err)
	require.Equal(t, protocol.TypePong, msg.Type)

	var pong protocol.PongData
	require.NoError(t, msg.ParseData(&pong))
	assert.Equal(t, "p1", pong.ID)
	assert.Equal(t, int64(1000), pong.PingTS)
}
