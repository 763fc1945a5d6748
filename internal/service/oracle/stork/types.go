package stork

import (
	"context"
)

type Fetcher interface {
	Run(ctx context.Context) error
	// Track subscribes to assetID if it isn't subscribed yet.
	Track(assetID string)
	Data(assetID string) (Data, bool)
}
