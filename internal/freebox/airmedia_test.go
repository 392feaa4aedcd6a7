package freebox_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/freebox-hub-go/internal/freebox"
	"github.com/strefethen/freebox-hub-go/internal/freebox/freeboxtest"
)

func countControl(box *freeboxtest.Box) int {
	n := 0
	for _, r := range box.Requests() {
		if r.Method == http.MethodPost && strings.HasPrefix(r.RequestURI, "/api/v8/airmedia/receivers/") {
			n++
		}
	}
	return n
}

func TestListReceivers_RequiresSession(t *testing.T) {
	box := freeboxtest.New(t)
	c := newClient(t, box)

	receivers, err := c.ListReceivers(context.Background())
	require.Equal(t, freebox.KindPrecondition, freebox.Kind(err))
	require.NotNil(t, receivers)
	require.Empty(t, receivers)
	require.Empty(t, box.Requests())
}

func TestListReceivers_ServerOrder(t *testing.T) {
	box := freeboxtest.New(t)
	box.SetReceivers([]freebox.Receiver{
		{Name: "Freebox Player", Capabilities: freebox.Capabilities{Video: true}},
		{Name: "Freebox Server", Capabilities: freebox.Capabilities{Audio: true}},
	})
	c := newClient(t, box)
	openSession(t, box, c)

	receivers, err := c.ListReceivers(context.Background())
	require.NoError(t, err)
	require.Len(t, receivers, 2)
	require.Equal(t, "Freebox Player", receivers[0].Name)
	require.True(t, receivers[0].Capabilities.Video)
	require.Equal(t, "Freebox Server", receivers[1].Name)
}

func TestListReceivers_EmptyResult(t *testing.T) {
	box := freeboxtest.New(t)
	box.Override("GET airmedia/receivers/", func(w http.ResponseWriter, r *http.Request) {
		freeboxtest.Reply(w, nil)
	})
	c := newClient(t, box)
	openSession(t, box, c)

	receivers, err := c.ListReceivers(context.Background())
	require.NoError(t, err)
	require.NotNil(t, receivers)
	require.Empty(t, receivers)
}

func TestListReceivers_FailureReturnsEmpty(t *testing.T) {
	box := freeboxtest.New(t)
	box.Override("GET airmedia/receivers/", func(w http.ResponseWriter, r *http.Request) {
		freeboxtest.Fail(w, http.StatusForbidden, "insufficient_rights", "no player permission")
	})
	c := newClient(t, box)
	openSession(t, box, c)

	receivers, err := c.ListReceivers(context.Background())
	require.Equal(t, freebox.KindApplication, freebox.Kind(err))
	require.NotNil(t, receivers)
	require.Empty(t, receivers)
}

func TestFindPlayableReceiver(t *testing.T) {
	tests := []struct {
		name      string
		receivers []freebox.Receiver
		want      freebox.ReceiverAvailability
	}{
		{
			name:      "available",
			receivers: []freebox.Receiver{{Name: "Freebox Player", Capabilities: freebox.Capabilities{Video: true}}},
			want:      freebox.ReceiverAvailable,
		},
		{
			name: "password protected even with video",
			receivers: []freebox.Receiver{{
				Name:              "Freebox Player",
				PasswordProtected: true,
				Capabilities:      freebox.Capabilities{Photo: true, Audio: true, Video: true, Screen: true},
			}},
			want: freebox.ReceiverPasswordProtected,
		},
		{
			name:      "not found",
			receivers: []freebox.Receiver{{Name: "Freebox Server"}},
			want:      freebox.ReceiverNotFound,
		},
		{
			name:      "name match is exact",
			receivers: []freebox.Receiver{{Name: "freebox player"}, {Name: "Freebox Player "}},
			want:      freebox.ReceiverNotFound,
		},
		{
			name: "first match wins",
			receivers: []freebox.Receiver{
				{Name: "Freebox Player", PasswordProtected: true},
				{Name: "Freebox Player"},
			},
			want: freebox.ReceiverPasswordProtected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			box := freeboxtest.New(t)
			box.SetReceivers(tt.receivers)
			c := newClient(t, box)
			openSession(t, box, c)

			got, err := c.FindPlayableReceiver(context.Background(), "Freebox Player")
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFindPlayableReceiver_ListFailureIsNotFound(t *testing.T) {
	box := freeboxtest.New(t)
	c := newClient(t, box)

	got, err := c.FindPlayableReceiver(context.Background(), "Freebox Player")
	require.Error(t, err)
	require.Equal(t, freebox.ReceiverNotFound, got)
}

func TestStartPlayback_EncodesReceiverName(t *testing.T) {
	box := freeboxtest.New(t)
	c := newClient(t, box)
	openSession(t, box, c)

	require.NoError(t, c.StartPlayback(context.Background(), "http://example.com/video.mp4"))

	reqs := box.Requests()
	last := reqs[len(reqs)-1]
	require.Equal(t, http.MethodPost, last.Method)
	require.Equal(t, "/api/v8/airmedia/receivers/Freebox%20Player", last.RequestURI)
	require.Equal(t, "S1", last.Auth)
	require.Equal(t, "start", last.Body["action"])
	require.Equal(t, "video", last.Body["media_type"])
	require.Equal(t, "http://example.com/video.mp4", last.Body["media"])
}

func TestStopPlayback_OmitsMedia(t *testing.T) {
	box := freeboxtest.New(t)
	c := newClient(t, box)
	openSession(t, box, c)

	require.NoError(t, c.StopPlayback(context.Background()))

	reqs := box.Requests()
	last := reqs[len(reqs)-1]
	require.Equal(t, "stop", last.Body["action"])
	require.Equal(t, "video", last.Body["media_type"])
	_, hasMedia := last.Body["media"]
	require.False(t, hasMedia)
}

func TestStartPlayback_NoRequestWhenNotAvailable(t *testing.T) {
	tests := []struct {
		name      string
		receivers []freebox.Receiver
		want      freebox.ReceiverAvailability
	}{
		{"password protected", []freebox.Receiver{{Name: "Freebox Player", PasswordProtected: true, Capabilities: freebox.Capabilities{Video: true}}}, freebox.ReceiverPasswordProtected},
		{"missing", []freebox.Receiver{}, freebox.ReceiverNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			box := freeboxtest.New(t)
			box.SetReceivers(tt.receivers)
			c := newClient(t, box)
			openSession(t, box, c)

			err := c.StartPlayback(context.Background(), "http://example.com/video.mp4")
			var preErr *freebox.PreconditionError
			require.ErrorAs(t, err, &preErr)
			require.Equal(t, tt.want, preErr.Receiver)
			require.Equal(t, 0, countControl(box))
		})
	}
}

func TestStartPlayback_WithoutSession(t *testing.T) {
	box := freeboxtest.New(t)
	c := newClient(t, box)

	err := c.StartPlayback(context.Background(), "http://example.com/video.mp4")
	require.Equal(t, freebox.KindPrecondition, freebox.Kind(err))
	require.Empty(t, box.Requests())
}

func TestStartPlayback_RejectedByBox(t *testing.T) {
	box := freeboxtest.New(t)
	box.Override("POST airmedia/receivers/", func(w http.ResponseWriter, r *http.Request) {
		freeboxtest.Fail(w, http.StatusOK, "invalid_request", "receiver busy")
	})
	c := newClient(t, box)
	openSession(t, box, c)

	err := c.StartPlayback(context.Background(), "http://example.com/video.mp4")
	require.Equal(t, freebox.KindApplication, freebox.Kind(err))
}

func TestWithReceiverName(t *testing.T) {
	box := freeboxtest.New(t)
	box.SetReceivers([]freebox.Receiver{{Name: "Salon"}})
	c := newClient(t, box, freebox.WithReceiverName("Salon"))
	openSession(t, box, c)

	require.Equal(t, "Salon", c.ReceiverName())
	require.NoError(t, c.StopPlayback(context.Background()))
	require.Equal(t, 1, box.Count(http.MethodPost, "/api/v8/airmedia/receivers/Salon"))
}

func TestAirMediaConfig(t *testing.T) {
	box := freeboxtest.New(t)
	c := newClient(t, box)
	ctx := context.Background()

	_, err := c.AirMediaConfig(ctx)
	require.Equal(t, freebox.KindPrecondition, freebox.Kind(err))

	openSession(t, box, c)

	cfg, err := c.AirMediaConfig(ctx)
	require.NoError(t, err)
	require.True(t, cfg.Enabled)

	updated, err := c.SetAirMediaConfig(ctx, freebox.AirMediaConfig{Enabled: false, Password: "1234"})
	require.NoError(t, err)
	require.False(t, updated.Enabled)

	reqs := box.Requests()
	last := reqs[len(reqs)-1]
	require.Equal(t, http.MethodPut, last.Method)
	require.Equal(t, "1234", last.Body["password"])
}

func TestSetAirMediaConfig_InsufficientRights(t *testing.T) {
	box := freeboxtest.New(t)
	box.Override("PUT airmedia/config/", func(w http.ResponseWriter, r *http.Request) {
		freeboxtest.Fail(w, http.StatusForbidden, "insufficient_rights", "Your app permissions does not allow accessing this API")
	})
	c := newClient(t, box)
	openSession(t, box, c)

	_, err := c.SetAirMediaConfig(context.Background(), freebox.AirMediaConfig{Enabled: true})
	require.Equal(t, freebox.KindApplication, freebox.Kind(err))
}
