package nsd

import "time"

const (
	DefaultServiceName = "Cast to Freebox Service"
	DefaultServiceType = "_fbx-api._tcp"
	DefaultDomain      = "local."
)

// Peer is a service instance seen on the local network.
type Peer struct {
	Instance  string    `json:"instance"`
	Service   string    `json:"service"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Addresses []string  `json:"addresses"`
	Text      []string  `json:"text,omitempty"`
	SeenAt    time.Time `json:"seen_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Listener receives browse results. Implementations must not block.
type Listener interface {
	OnFound(peer Peer)
	OnLost(peer Peer)
	OnError(err error)
}

// ListenerFuncs adapts plain functions to Listener. Nil funcs are skipped.
type ListenerFuncs struct {
	Found func(Peer)
	Lost  func(Peer)
	Error func(error)
}

func (l ListenerFuncs) OnFound(peer Peer) {
	if l.Found != nil {
		l.Found(peer)
	}
}

func (l ListenerFuncs) OnLost(peer Peer) {
	if l.Lost != nil {
		l.Lost(peer)
	}
}

func (l ListenerFuncs) OnError(err error) {
	if l.Error != nil {
		l.Error(err)
	}
}

// Config controls advertisement and browsing.
type Config struct {
	ServiceName string
	ServiceType string
	Domain      string
	// Port is advertised as-is; zero picks a free ephemeral port.
	Port int
	Text []string
}

func (c Config) withDefaults() Config {
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.ServiceType == "" {
		c.ServiceType = DefaultServiceType
	}
	if c.Domain == "" {
		c.Domain = DefaultDomain
	}
	return c
}
