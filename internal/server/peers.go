package server

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/strefethen/freebox-hub-go/internal/audit"
	"github.com/strefethen/freebox-hub-go/internal/events"
	"github.com/strefethen/freebox-hub-go/internal/nsd"
)

// peerListener adapts nsd callbacks to the audit log and event bus, keeping
// the nsd package free of hub dependencies.
type peerListener struct {
	recorder  audit.Recorder
	publisher events.Publisher
	logger    zerolog.Logger
}

var _ nsd.Listener = (*peerListener)(nil)

func (l *peerListener) OnFound(peer nsd.Peer) {
	l.recorder.Record(context.Background(), audit.EventPeerFound, audit.EventLevelInfo, "Peer found: "+peer.Instance,
		audit.WithPayload(peerPayload(peer)))
	l.publisher.Publish(events.TypePeerFound, peerPayload(peer))
}

func (l *peerListener) OnLost(peer nsd.Peer) {
	l.recorder.Record(context.Background(), audit.EventPeerLost, audit.EventLevelInfo, "Peer lost: "+peer.Instance,
		audit.WithPayload(peerPayload(peer)))
	l.publisher.Publish(events.TypePeerLost, peerPayload(peer))
}

func (l *peerListener) OnError(err error) {
	l.logger.Warn().Err(err).Msg("service discovery error")
}

func peerPayload(peer nsd.Peer) map[string]any {
	return map[string]any{
		"instance":  peer.Instance,
		"host":      peer.Host,
		"port":      peer.Port,
		"addresses": peer.Addresses,
	}
}
