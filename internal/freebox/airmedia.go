package freebox

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const mediaTypeVideo = "video"

// ListReceivers returns the AirMedia receivers in server order. The slice is
// never nil, even alongside an error.
func (c *Client) ListReceivers(ctx context.Context) ([]Receiver, error) {
	const op = "list_receivers"

	session := c.session()
	if session == "" {
		return []Receiver{}, &PreconditionError{Op: op, Missing: "no session"}
	}

	raw, err := c.call(ctx, op, http.MethodGet, "airmedia/receivers/", nil, session)
	if err != nil {
		return []Receiver{}, err
	}

	receivers := []Receiver{}
	if len(raw) == 0 || string(raw) == "null" {
		return receivers, nil
	}
	if err := decodeResult(op, raw, &receivers); err != nil {
		return []Receiver{}, err
	}
	if receivers == nil {
		receivers = []Receiver{}
	}
	return receivers, nil
}

// FindPlayableReceiver looks name up in the receiver list. The first exact
// match wins.
func (c *Client) FindPlayableReceiver(ctx context.Context, name string) (ReceiverAvailability, error) {
	receivers, err := c.ListReceivers(ctx)
	if err != nil {
		return ReceiverNotFound, err
	}
	for _, r := range receivers {
		if r.Name != name {
			continue
		}
		if r.PasswordProtected {
			return ReceiverPasswordProtected, nil
		}
		return ReceiverAvailable, nil
	}
	return ReceiverNotFound, nil
}

// StartPlayback asks the configured receiver to play mediaURL as video.
func (c *Client) StartPlayback(ctx context.Context, mediaURL string) error {
	return c.control(ctx, "start_playback", receiverRequest{
		Action:    "start",
		MediaType: mediaTypeVideo,
		Media:     mediaURL,
	})
}

// StopPlayback stops whatever the configured receiver is playing.
func (c *Client) StopPlayback(ctx context.Context) error {
	return c.control(ctx, "stop_playback", receiverRequest{
		Action:    "stop",
		MediaType: mediaTypeVideo,
	})
}

func (c *Client) control(ctx context.Context, op string, req receiverRequest) error {
	session := c.session()
	if session == "" {
		return &PreconditionError{Op: op, Missing: "no session"}
	}

	availability, err := c.FindPlayableReceiver(ctx, c.receiverName)
	if err != nil {
		return fmt.Errorf("check receiver %q: %w", c.receiverName, err)
	}
	if availability != ReceiverAvailable {
		return &PreconditionError{
			Op:       op,
			Missing:  fmt.Sprintf("receiver %q is %s", c.receiverName, availability),
			Receiver: availability,
		}
	}

	_, err = c.call(ctx, op, http.MethodPost, "airmedia/receivers/"+url.PathEscape(c.receiverName), req, session)
	if err != nil {
		return err
	}

	c.logger.Info().Str("receiver", c.receiverName).Str("action", req.Action).Msg("airmedia action accepted")
	return nil
}

// AirMediaConfig reads the box's AirMedia settings.
func (c *Client) AirMediaConfig(ctx context.Context) (*AirMediaConfig, error) {
	const op = "get_airmedia_config"

	session := c.session()
	if session == "" {
		return nil, &PreconditionError{Op: op, Missing: "no session"}
	}

	raw, err := c.call(ctx, op, http.MethodGet, "airmedia/config/", nil, session)
	if err != nil {
		return nil, err
	}
	var cfg AirMediaConfig
	if err := decodeResult(op, raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetAirMediaConfig updates the box's AirMedia settings and returns the
// resulting configuration.
func (c *Client) SetAirMediaConfig(ctx context.Context, cfg AirMediaConfig) (*AirMediaConfig, error) {
	const op = "set_airmedia_config"

	session := c.session()
	if session == "" {
		return nil, &PreconditionError{Op: op, Missing: "no session"}
	}

	raw, err := c.call(ctx, op, http.MethodPut, "airmedia/config/", cfg, session)
	if err != nil {
		return nil, err
	}
	var updated AirMediaConfig
	if err := decodeResult(op, raw, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}
