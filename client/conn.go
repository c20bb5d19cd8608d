package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/Spinkelben/MarketDash/internal/metrics"
	"github.com/Spinkelben/MarketDash/protocol"
	"github.com/Spinkelben/MarketDash/transport"
)

const (
	DefaultSocketHost      = "s-usc1a-nss-2040.firebaseio.com"
	DefaultProtocolVersion = "5"
	DefaultNamespace       = "pq-dev"
	DefaultClientUnit      = "compassdk_danskebank"

	DefaultHandshakeTimeout = 5 * time.Second

	// maxRedirects is how many handshake redirects are followed per connect
	maxRedirects = 1
)

type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// SocketURL builds the realtime database endpoint for host.
func SocketURL(host, version, namespace string) string {
	return fmt.Sprintf("wss://%s/.ws?v=%s&ns=%s", host, url.QueryEscape(version), url.QueryEscape(namespace))
}

type Options struct {
	// Endpoint is the full WebSocket URL, see SocketURL
	Endpoint string

	// ClientUnit selects the vendor list that GetVendors fetches
	ClientUnit string

	// HandshakeTimeout bounds the wait for the server's header
	HandshakeTimeout time.Duration

	Dialer transport.Dialer

	Log *zap.Logger
}

// Client talks to the realtime database over a single WebSocket. The socket
// is stateful so only one logical operation runs at a time, every public
// method except State holds mu for its whole duration.
type Client struct {
	endpoint         string
	clientUnit       string
	handshakeTimeout time.Duration
	dialer           transport.Dialer
	log              *zap.Logger

	// state is written under mu and read without it
	state atomic.Int32

	mu            sync.Mutex
	socket        transport.Socket
	session       protocol.Header
	nextRequestID uint64
}

func New(options Options) *Client {
	if options.Endpoint == "" {
		options.Endpoint = SocketURL(DefaultSocketHost, DefaultProtocolVersion, DefaultNamespace)
	}

	if options.ClientUnit == "" {
		options.ClientUnit = DefaultClientUnit
	}

	if options.HandshakeTimeout <= 0 {
		options.HandshakeTimeout = DefaultHandshakeTimeout
	}

	if options.Log == nil {
		options.Log = zap.NewNop()
	}

	if options.Dialer == nil {
		options.Dialer = transport.NewWebSocketDialer(transport.Options{
			Log: options.Log.Named("transport"),
		})
	}

	return &Client{
		endpoint:         options.Endpoint,
		clientUnit:       options.ClientUnit,
		handshakeTimeout: options.HandshakeTimeout,
		dialer:           options.Dialer,
		log:              options.Log,
	}
}

// Connect dials the endpoint and waits for the handshake. It does nothing if
// the client is already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connect(ctx)
}

// Close drops the connection, if there is one.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.disconnect(nil)
}

// State does not wait for an operation in flight, it reports the state as of
// the last connect or disconnect.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Session returns the header of the current connection.
func (c *Client) Session() (protocol.Header, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.session, c.State() == Connected
}

func (c *Client) connect(ctx context.Context) error {
	if c.State() == Connected {
		return nil
	}

	err := c.dial(ctx)
	metrics.RecordConnect(err)
	return err
}

// dial opens a socket and completes the handshake, following at most
// maxRedirects redirects.
func (c *Client) dial(ctx context.Context) error {
	endpoint := c.endpoint

	for redirects := 0; ; redirects++ {
		socket, err := c.dialer.Dial(ctx, endpoint)
		if err != nil {
			c.log.Warn("Failed to dial", zap.String("endpoint", endpoint), zap.Error(err))
			return err
		}

		control, err := c.handshake(ctx, socket)
		if err != nil {
			c.log.Warn("Handshake failed", zap.String("endpoint", endpoint), zap.Error(err))
			c.closeSocket(socket)
			return err
		}

		switch control.Type {
		case protocol.ControlHeader:
			c.socket = socket
			c.setState(Connected)
			c.session = control.Header
			c.nextRequestID = 1

			c.log.Info("Connected",
				zap.String("endpoint", endpoint),
				zap.String("host", control.Header.Host),
				zap.String("sessionID", control.Header.SessionID),
				zap.String("version", control.Header.Version))

			return nil

		case protocol.ControlRedirect:
			c.closeSocket(socket)

			if redirects >= maxRedirects {
				return fmt.Errorf("%w: too many redirects, last to '%s'", protocol.ErrProtocolViolation, control.Redirect)
			}

			endpoint, err = redirectEndpoint(endpoint, control.Redirect)
			if err != nil {
				return err
			}

			c.log.Info("Following redirect", zap.String("endpoint", endpoint))
		}
	}
}

// handshake reads the first frame of a connection, which must be a control
// message.
func (c *Client) handshake(ctx context.Context, socket transport.Socket) (protocol.Control, error) {
	text, err := protocol.ReadMessage(ctx, socket, c.handshakeTimeout)
	if err != nil {
		return protocol.Control{}, err
	}

	env, err := protocol.Unmarshal(text)
	if err != nil {
		return protocol.Control{}, err
	}

	control, ok := env.Control()
	if !ok {
		return protocol.Control{}, fmt.Errorf("%w: expected a control header, got kind '%s'",
			protocol.ErrProtocolViolation, env.Kind())
	}

	return control, nil
}

// disconnect forgets the socket and closes it. reason is nil for deliberate
// closes.
func (c *Client) disconnect(reason error) error {
	if c.socket == nil {
		c.setState(Disconnected)
		return nil
	}

	if reason != nil {
		c.log.Warn("Dropping connection", zap.Error(reason))
	}

	socket := c.socket
	c.socket = nil
	c.setState(Disconnected)
	c.session = protocol.Header{}

	return socket.Close()
}

func (c *Client) setState(state State) {
	c.state.Store(int32(state))
}

func (c *Client) closeSocket(socket transport.Socket) {
	if err := socket.Close(); err != nil {
		c.log.Debug("Socket did not close cleanly", zap.Error(err))
	}
}

func redirectEndpoint(endpoint, host string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}

	if host == "" || strings.ContainsAny(host, "/?#@ ") {
		return "", fmt.Errorf("%w: invalid redirect host '%s'", protocol.ErrProtocolViolation, host)
	}

	u.Host = host
	return u.String(), nil
}
