package scraper

import (
	"context"
	"time"
)

// Fetcher performs a single bounded GET.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// Limiter spaces outgoing requests.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Publisher pushes per-task notifications to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time.
type Clock func() time.Time
