// Package transport fetches Spot image responses: live from an HTTP image
// gateway, or from a recorded CBOR log.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-spot/internal/httpc"
	"github.com/teslashibe/go-spot/pkg/spot"
	"github.com/teslashibe/go-spot/pkg/timesync"
)

// Gateway endpoints.
const (
	ImagesPath   = "/v1/images"
	TimeSyncPath = "/v1/time_sync"
)

// GetImageRequest is the body of an images request.
type GetImageRequest struct {
	ImageRequests []spot.ImageRequest `json:"image_requests"`
}

// GetImageResponse is the body of an images response.
type GetImageResponse struct {
	ImageResponses []spot.ImageResponse `json:"image_responses"`
}

// TimeSyncRequest is the body of a time sync request.
type TimeSyncRequest struct {
	ClientTx time.Time `json:"client_tx"`
}

// TimeSyncResponse carries the robot's receive and transmit times.
type TimeSyncResponse struct {
	ServerRx time.Time `json:"server_rx"`
	ServerTx time.Time `json:"server_tx"`
}

// Gateway talks to an HTTP gateway in front of the robot's image and time
// sync services.
type Gateway struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

// NewGateway creates a gateway client. A nil client uses httpc.Client.
func NewGateway(baseURL string, client *http.Client) *Gateway {
	if client == nil {
		client = httpc.Client
	}
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		now:     time.Now,
	}
}

// Fetch requests a batch of images.
func (g *Gateway) Fetch(ctx context.Context, requests []spot.ImageRequest) ([]spot.ImageResponse, error) {
	var resp GetImageResponse
	err := httpc.PostJSON(ctx, g.client, g.baseURL+ImagesPath, GetImageRequest{ImageRequests: requests}, &resp)
	if err != nil {
		return nil, fmt.Errorf("transport: get images: %w", err)
	}
	return resp.ImageResponses, nil
}

// Exchange performs one time sync round trip.
func (g *Gateway) Exchange(ctx context.Context) (timesync.Sample, error) {
	clientTx := g.now()

	var resp TimeSyncResponse
	err := httpc.PostJSON(ctx, g.client, g.baseURL+TimeSyncPath, TimeSyncRequest{ClientTx: clientTx}, &resp)
	if err != nil {
		return timesync.Sample{}, fmt.Errorf("transport: time sync: %w", err)
	}

	return timesync.Sample{
		ClientTx: clientTx,
		ServerRx: resp.ServerRx,
		ServerTx: resp.ServerTx,
		ClientRx: g.now(),
	}, nil
}

// Ensure Gateway implements both collaborators
var (
	_ spot.Fetcher       = (*Gateway)(nil)
	_ timesync.Exchanger = (*Gateway)(nil)
)
