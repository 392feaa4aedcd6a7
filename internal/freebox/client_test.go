package freebox_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/freebox-hub-go/internal/freebox"
	"github.com/strefethen/freebox-hub-go/internal/freebox/freeboxtest"
)

var testApp = freebox.AppInfo{
	AppID:      "ctf",
	AppName:    "Cast to Freebox",
	AppVersion: "1.0",
	DeviceName: "Smartphone",
}

func newClient(t *testing.T, box *freeboxtest.Box, opts ...freebox.Option) *freebox.Client {
	t.Helper()
	opts = append([]freebox.Option{freebox.WithBaseURL(box.URL()), freebox.WithTimeout(2 * time.Second)}, opts...)
	return freebox.NewClient(opts...)
}

// openSession walks a client through discover, authorization and login.
func openSession(t *testing.T, box *freeboxtest.Box, c *freebox.Client) {
	t.Helper()
	ctx := context.Background()

	_, err := c.Discover(ctx)
	require.NoError(t, err)
	auth, err := c.RequestAppToken(ctx, testApp)
	require.NoError(t, err)

	box.SetStatus("granted")
	status, err := c.PollAuthorization(ctx, auth.TrackID)
	require.NoError(t, err)
	require.Equal(t, freebox.AuthorizationGranted, status)

	require.NoError(t, c.OpenSession(ctx, testApp.AppID, testApp.AppVersion, ""))
	require.Equal(t, freebox.StateSessionOpen, c.State())
}

func TestPassword_KnownVector(t *testing.T) {
	require.Equal(t, "7784b8caedec4155eea1f31953737acaa133b5cf", freebox.Password("s3cr3t", "abc123"))
	require.Equal(t, "d188d2a32208ac14b1f143bb50684ea5290156a0", freebox.Password("T1", "chall-42"))
}

func TestDiscover_CachesDescriptor(t *testing.T) {
	box := freeboxtest.New(t)
	c := newClient(t, box)
	require.Equal(t, freebox.StateUnknown, c.State())
	require.Nil(t, c.Descriptor())

	desc, err := c.Discover(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Freebox Server", desc.DeviceName)
	require.Equal(t, "/api/", desc.APIBaseURL)
	require.True(t, desc.HTTPSAvailable)
	require.Equal(t, 4242, desc.HTTPSPort)

	require.Equal(t, freebox.StateDiscovered, c.State())
	require.Equal(t, desc, c.Descriptor())
	require.Equal(t, 1, box.Count(http.MethodGet, "/api_version"))
}

func TestDiscover_UnreachableIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := freebox.NewClient(freebox.WithBaseURL(url))
	_, err := c.Discover(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, freebox.ErrDeviceNotFound))
	require.Equal(t, freebox.KindTransport, freebox.Kind(err))
	require.Equal(t, freebox.StateUnknown, c.State())
}

func TestDiscover_MalformedIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"device_name":"box","api_version":"beta"}`))
	}))
	t.Cleanup(srv.Close)

	c := freebox.NewClient(freebox.WithBaseURL(srv.URL))
	_, err := c.Discover(context.Background())
	require.ErrorIs(t, err, freebox.ErrDeviceNotFound)
	require.Equal(t, freebox.KindApplication, freebox.Kind(err))
}

func TestDiscover_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c := freebox.NewClient(freebox.WithBaseURL(srv.URL), freebox.WithTimeout(50*time.Millisecond))
	_, err := c.Discover(context.Background())
	require.ErrorIs(t, err, freebox.ErrDeviceNotFound)

	var transportErr *freebox.TransportError
	require.True(t, errors.As(err, &transportErr))
	require.True(t, transportErr.Timeout())
}

func TestWithHTTPS_UsesAPIDomain(t *testing.T) {
	box := freeboxtest.New(t)
	c := newClient(t, box, freebox.WithHTTPS(true))

	_, err := c.Discover(context.Background())
	require.NoError(t, err)

	// The HTTPS endpoint is not served by the fake box, so the call fails in
	// transport instead of reaching it.
	_, err = c.RequestAppToken(context.Background(), testApp)
	require.Error(t, err)
	require.Equal(t, freebox.KindTransport, freebox.Kind(err))
	require.Equal(t, 0, box.Count(http.MethodPost, freeboxtest.APIPath("login/authorize/")))
}

func TestKind_Unknown(t *testing.T) {
	require.Equal(t, freebox.KindUnknown, freebox.Kind(errors.New("boom")))
	require.Equal(t, freebox.KindUnknown, freebox.Kind(nil))
}

func TestClient_PooledBuffersKeepRequestsApart(t *testing.T) {
	box := freeboxtest.New(t)
	c := newClient(t, box)
	ctx := context.Background()

	_, err := c.Discover(ctx)
	require.NoError(t, err)

	names := []string{"Salon", "A much longer device name than the first one", "TV"}
	for _, name := range names {
		app := testApp
		app.DeviceName = name
		auth, err := c.RequestAppToken(ctx, app)
		require.NoError(t, err)
		require.Equal(t, 42, auth.TrackID)
	}

	var sent []any
	for _, r := range box.Requests() {
		if r.RequestURI == freeboxtest.APIPath("login/authorize/") {
			sent = append(sent, r.Body["device_name"])
		}
	}
	require.Equal(t, []any{names[0], names[1], names[2]}, sent)
}
