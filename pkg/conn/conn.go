package conn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pion/logging"

	"github.com/droidlink/droidlink/pkg/auth"
	"github.com/droidlink/droidlink/pkg/transport"
	"github.com/droidlink/droidlink/pkg/wire"
)

// DefaultHandshakeTimeout bounds the CNXN/AUTH exchange.
const DefaultHandshakeTimeout = 10 * time.Second

// DefaultApprovalTimeout bounds the wait after sending the public key,
// while the operator decides on the device's allow dialog.
const DefaultApprovalTimeout = 30 * time.Second

// Config configures a connection attempt.
type Config struct {
	// Channel is the message channel to the device. Required. The
	// session takes ownership: closing the session closes the channel.
	Channel transport.Channel

	// Signers are tried in order when the device demands authentication.
	Signers []auth.Signer

	// Features is the feature set advertised in the host banner.
	// Defaults to shell_v2, cmd and stat_v2.
	Features FeatureSet

	// HandshakeTimeout bounds each handshake step.
	// Default: DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// ApprovalTimeout bounds the wait for operator approval after the
	// public key is sent. Default: DefaultApprovalTimeout.
	ApprovalTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Session is an online ADB connection: the transport channel plus the
// state negotiated during the handshake. It is created by Connect and
// destroyed when the channel closes.
type Session struct {
	channel transport.Channel
	log     logging.LeveledLogger

	version    uint32
	maxPayload uint32
	banner     Banner
	policy     wire.ChecksumPolicy
}

// Connect drives the CNXN/AUTH exchange until the session is online.
// On any failure the channel is closed.
func Connect(ctx context.Context, config Config) (*Session, error) {
	if config.Channel == nil {
		return nil, fmt.Errorf("%w: no channel", ErrConnectionFailed)
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if config.ApprovalTimeout == 0 {
		config.ApprovalTimeout = DefaultApprovalTimeout
	}
	if config.Features == nil {
		config.Features = NewFeatureSet(FeatureShellV2, FeatureCmd, FeatureStatV2)
	}

	var log logging.LeveledLogger
	if config.LoggerFactory != nil {
		log = config.LoggerFactory.NewLogger("conn")
	}

	h := &handshake{
		channel: config.Channel,
		config:  config,
		log:     log,
		state:   StateInit,
	}

	sess, err := h.run(ctx)
	if err != nil {
		config.Channel.Close()
		return nil, err
	}
	return sess, nil
}

// handshake holds the in-flight state machine.
type handshake struct {
	channel transport.Channel
	config  Config
	log     logging.LeveledLogger
	state   State
}

func (h *handshake) run(ctx context.Context) (*Session, error) {
	banner := HostBanner(h.config.Features)
	hdr := wire.NewHeader(wire.CmdConnect, wire.Version, wire.MaxPayloadDefault, banner)
	if err := h.channel.WriteMessage(hdr, banner); err != nil {
		return nil, fmt.Errorf("%w: sending CNXN: %v", ErrConnectionFailed, err)
	}
	h.state = StateSentConnect

	nextSigner := 0
	sentPublicKey := false

	for {
		timeout := h.config.HandshakeTimeout
		if sentPublicKey {
			timeout = h.config.ApprovalTimeout
		}

		peer, payload, err := h.read(ctx, timeout)
		if err != nil {
			if sentPublicKey && isTimeout(err) {
				return nil, fmt.Errorf("%w: operator did not approve the key", ErrAuthFailed)
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}

		switch peer.Command {
		case wire.CmdConnect:
			return h.online(peer, payload)

		case wire.CmdSTLS:
			return nil, ErrTLSRequired

		case wire.CmdAuth:
			if peer.Arg0 != wire.AuthToken {
				return nil, fmt.Errorf("%w: AUTH type %d", ErrInvalidResponse, peer.Arg0)
			}
			h.state = StateAuthenticating

			if nextSigner < len(h.config.Signers) {
				signer := h.config.Signers[nextSigner]
				nextSigner++

				sig, err := signer.Sign(payload)
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
				}
				if h.log != nil {
					h.log.Debugf("sending signature for key %d/%d", nextSigner, len(h.config.Signers))
				}
				hdr := wire.NewHeader(wire.CmdAuth, wire.AuthSignature, 0, sig)
				if err := h.channel.WriteMessage(hdr, sig); err != nil {
					return nil, fmt.Errorf("%w: sending signature: %v", ErrConnectionFailed, err)
				}
				continue
			}

			// Keys exhausted. Offer the public key and wait for the
			// operator to approve it on the device.
			if sentPublicKey {
				return nil, ErrAuthFailed
			}
			if len(h.config.Signers) == 0 {
				return nil, fmt.Errorf("%w: no keys available", ErrAuthFailed)
			}
			pub, err := h.config.Signers[0].PublicKey()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
			}
			pub = append(pub, 0)
			if h.log != nil {
				h.log.Infof("all keys rejected, waiting for operator approval")
			}
			hdr := wire.NewHeader(wire.CmdAuth, wire.AuthRSAPublicKey, 0, pub)
			if err := h.channel.WriteMessage(hdr, pub); err != nil {
				return nil, fmt.Errorf("%w: sending public key: %v", ErrConnectionFailed, err)
			}
			sentPublicKey = true

		default:
			return nil, fmt.Errorf("%w: %s before CNXN", ErrInvalidResponse, peer.Command)
		}
	}
}

// online finishes the handshake from the peer's CNXN.
func (h *handshake) online(peer wire.Header, payload []byte) (*Session, error) {
	if peer.Arg0 < wire.VersionMin {
		return nil, fmt.Errorf("%w: peer version %#x", ErrVersionMismatch, peer.Arg0)
	}

	banner, err := ParseBanner(payload)
	if err != nil {
		return nil, err
	}

	maxPayload := peer.Arg1
	if maxPayload < wire.MaxPayloadMin {
		maxPayload = wire.MaxPayloadMin
	}
	if maxPayload > wire.MaxPayloadDefault {
		maxPayload = wire.MaxPayloadDefault
	}

	policy := wire.PolicyForVersions(wire.Version, peer.Arg0)
	h.channel.SetChecksumPolicy(policy)
	h.channel.SetMaxPayload(maxPayload)
	h.state = StateOnline

	if h.log != nil {
		h.log.Infof("online: state=%s version=%#x max-payload=%d features=%v checksums=%s",
			banner.State, peer.Arg0, maxPayload, banner.Features.List(), policy)
	}

	return &Session{
		channel:    h.channel,
		log:        h.log,
		version:    peer.Arg0,
		maxPayload: maxPayload,
		banner:     banner,
		policy:     policy,
	}, nil
}

// read waits for one message with the given timeout, honoring ctx.
func (h *handshake) read(ctx context.Context, timeout time.Duration) (wire.Header, []byte, error) {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := h.channel.SetReadDeadline(deadline); err != nil {
		return wire.Header{}, nil, err
	}
	defer h.channel.SetReadDeadline(time.Time{})

	hdr, payload, err := h.channel.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return wire.Header{}, nil, ctx.Err()
		}
		return wire.Header{}, nil, err
	}
	return hdr, payload, nil
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	for e := err; e != nil; {
		if t, ok := e.(timeouter); ok && t.Timeout() {
			return true
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}

// Channel returns the transport channel. The multiplexer takes it over
// once the session is online; nothing else reads from it.
func (s *Session) Channel() transport.Channel {
	return s.channel
}

// Version is the peer's protocol version.
func (s *Session) Version() uint32 {
	return s.version
}

// MaxPayload is the negotiated outer frame payload bound.
func (s *Session) MaxPayload() uint32 {
	return s.maxPayload
}

// Banner is the parsed peer banner.
func (s *Session) Banner() Banner {
	return s.banner
}

// DeviceState is the peer state from the banner ("device", ...).
func (s *Session) DeviceState() string {
	return s.banner.State
}

// Supports reports whether the peer advertised the feature.
func (s *Session) Supports(feature string) bool {
	return s.banner.Features.Has(feature)
}

// ChecksumPolicy is the negotiated checksum policy.
func (s *Session) ChecksumPolicy() wire.ChecksumPolicy {
	return s.policy
}

// Close closes the underlying channel.
func (s *Session) Close() error {
	return s.channel.Close()
}
