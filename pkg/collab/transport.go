package collab

import (
	"context"
	"encoding/json"

	"github.com/matzehuels/canvasgraph/pkg/document"
)

// Transport carries document updates between clients of the same canvas.
//
// Subscribe returns a channel of updates and a function that ends the
// subscription and closes the channel. Publishers receive their own updates
// back; receivers are expected to drop them by origin.
type Transport interface {
	Publish(ctx context.Context, canvasID string, u document.Update) error
	Subscribe(ctx context.Context, canvasID string) (<-chan document.Update, func(), error)
	Close() error
}

// subscriptionBuffer is the per-subscriber channel capacity.
const subscriptionBuffer = 64

// Channel returns the pub/sub channel name for a canvas.
func Channel(canvasID string) string {
	return "canvas:" + canvasID + ":updates"
}

func encodeUpdate(u document.Update) ([]byte, error) {
	return json.Marshal(u)
}

func decodeUpdate(data []byte) (document.Update, error) {
	var u document.Update
	err := json.Unmarshal(data, &u)
	return u, err
}
