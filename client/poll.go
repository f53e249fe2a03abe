package client

import (
	"context"
	"time"

	"marketplace/models"
)

// DefaultPollInterval matches the web client's chat refresh rate.
const DefaultPollInterval = 5 * time.Second

// PollMessages fetches the thread every interval and calls fn whenever it changed,
// including once for the initial fetch. It returns when ctx is done or fn returns an error.
// Fetch errors are passed to onError when set and otherwise ignored.
func (c *Client) PollMessages(ctx context.Context, serviceID string, interval time.Duration, fn func([]models.Message) error, onError ...func(error)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last string
	first := true
	for {
		msgs, err := c.Messages(ctx, serviceID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			for _, h := range onError {
				h(err)
			}
		case first || fingerprint(msgs) != last:
			first = false
			last = fingerprint(msgs)
			if err := fn(msgs); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// fingerprint changes when a message is added or its read flag flips.
func fingerprint(msgs []models.Message) string {
	b := make([]byte, 0, len(msgs)*26)
	for _, m := range msgs {
		b = append(b, m.ID.Hex()...)
		if m.Read {
			b = append(b, 'r')
		} else {
			b = append(b, 'u')
		}
		b = append(b, ';')
	}
	return string(b)
}
