package conn

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/droidlink/droidlink/pkg/auth"
	"github.com/droidlink/droidlink/pkg/transport"
	"github.com/droidlink/droidlink/pkg/wire"
)

var testKey = mustGenerateKey()

func mustGenerateKey() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return key
}

// fakeDevice scripts the device side of a handshake on one end of a
// pipe. The script runs in its own goroutine; errors surface on errCh.
type fakeDevice struct {
	ch    transport.Channel
	errCh chan error
}

func newFakeDevice(t *testing.T, script func(ch transport.Channel) error) (transport.Channel, *fakeDevice) {
	t.Helper()
	host, device := transport.NewPipe()
	d := &fakeDevice{ch: device, errCh: make(chan error, 1)}
	go func() {
		d.errCh <- script(device)
	}()
	t.Cleanup(func() {
		device.Close()
		host.Close()
	})
	return host, d
}

func (d *fakeDevice) wait(t *testing.T) {
	t.Helper()
	select {
	case err := <-d.errCh:
		if err != nil {
			t.Fatalf("device script failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("device script did not finish")
	}
}

func sendMessage(ch transport.Channel, cmd wire.Command, arg0, arg1 uint32, payload []byte) error {
	return ch.WriteMessage(wire.NewHeader(cmd, arg0, arg1, payload), payload)
}

func expectCommand(ch transport.Channel, cmd wire.Command) (wire.Header, []byte, error) {
	hdr, payload, err := ch.ReadMessage()
	if err != nil {
		return hdr, payload, err
	}
	if hdr.Command != cmd {
		return hdr, payload, errors.New("unexpected command " + hdr.Command.String())
	}
	return hdr, payload, nil
}

func TestConnectNoAuth(t *testing.T) {
	deviceBanner := []byte("device::ro.product.name=generic;features=shell_v2,cmd\x00")

	host, device := newFakeDevice(t, func(ch transport.Channel) error {
		hdr, payload, err := expectCommand(ch, wire.CmdConnect)
		if err != nil {
			return err
		}
		if hdr.Arg0 != wire.Version {
			return errors.New("host sent wrong version")
		}
		if hdr.Arg1 != wire.MaxPayloadDefault {
			return errors.New("host sent wrong max payload")
		}
		if payload[len(payload)-1] != 0 {
			return errors.New("host banner not NUL terminated")
		}
		return sendMessage(ch, wire.CmdConnect, wire.Version, wire.MaxPayloadDefault, deviceBanner)
	})

	sess, err := Connect(context.Background(), Config{Channel: host})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()
	device.wait(t)

	if sess.Version() != wire.Version {
		t.Errorf("version = %#x, want %#x", sess.Version(), wire.Version)
	}
	if sess.MaxPayload() != wire.MaxPayloadDefault {
		t.Errorf("max payload = %d, want %d", sess.MaxPayload(), wire.MaxPayloadDefault)
	}
	if sess.DeviceState() != DeviceStateDevice {
		t.Errorf("state = %q, want %q", sess.DeviceState(), DeviceStateDevice)
	}
	if !sess.Supports(FeatureShellV2) || !sess.Supports(FeatureCmd) {
		t.Errorf("features = %v", sess.Banner().Features.List())
	}
	if sess.ChecksumPolicy() != wire.ChecksumDisabled {
		t.Errorf("checksum policy = %s, want disabled for %#x/%#x",
			sess.ChecksumPolicy(), wire.Version, wire.Version)
	}
}

func TestConnectWithAuth(t *testing.T) {
	signer, err := auth.NewSigner(testKey, "tester@host")
	if err != nil {
		t.Fatal(err)
	}

	token := make([]byte, wire.AuthTokenSize)
	if _, err := rand.Read(token); err != nil {
		t.Fatal(err)
	}

	host, device := newFakeDevice(t, func(ch transport.Channel) error {
		if _, _, err := expectCommand(ch, wire.CmdConnect); err != nil {
			return err
		}
		if err := sendMessage(ch, wire.CmdAuth, wire.AuthToken, 0, token); err != nil {
			return err
		}
		hdr, sig, err := expectCommand(ch, wire.CmdAuth)
		if err != nil {
			return err
		}
		if hdr.Arg0 != wire.AuthSignature {
			return errors.New("expected AUTH signature")
		}
		if err := rsa.VerifyPKCS1v15(&testKey.PublicKey, crypto.SHA1, token, sig); err != nil {
			return errors.New("signature does not verify: " + err.Error())
		}
		return sendMessage(ch, wire.CmdConnect, wire.Version, wire.MaxPayloadDefault,
			[]byte("device::features=shell_v2\x00"))
	})

	sess, err := Connect(context.Background(), Config{
		Channel: host,
		Signers: []auth.Signer{signer},
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()
	device.wait(t)
}

func TestConnectPublicKeyApproval(t *testing.T) {
	signer, err := auth.NewSigner(testKey, "tester@host")
	if err != nil {
		t.Fatal(err)
	}

	token := make([]byte, wire.AuthTokenSize)
	if _, err := rand.Read(token); err != nil {
		t.Fatal(err)
	}

	host, device := newFakeDevice(t, func(ch transport.Channel) error {
		if _, _, err := expectCommand(ch, wire.CmdConnect); err != nil {
			return err
		}
		// Reject the signature, demand the key itself.
		if err := sendMessage(ch, wire.CmdAuth, wire.AuthToken, 0, token); err != nil {
			return err
		}
		if _, _, err := expectCommand(ch, wire.CmdAuth); err != nil {
			return err
		}
		if err := sendMessage(ch, wire.CmdAuth, wire.AuthToken, 0, token); err != nil {
			return err
		}
		hdr, pub, err := expectCommand(ch, wire.CmdAuth)
		if err != nil {
			return err
		}
		if hdr.Arg0 != wire.AuthRSAPublicKey {
			return errors.New("expected AUTH public key")
		}
		if len(pub) == 0 || pub[len(pub)-1] != 0 {
			return errors.New("public key not NUL terminated")
		}
		// Operator tapped allow.
		return sendMessage(ch, wire.CmdConnect, wire.Version, wire.MaxPayloadDefault,
			[]byte("device::\x00"))
	})

	sess, err := Connect(context.Background(), Config{
		Channel: host,
		Signers: []auth.Signer{signer},
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()
	device.wait(t)
}

func TestConnectAuthRejectedAfterPublicKey(t *testing.T) {
	signer, err := auth.NewSigner(testKey, "tester@host")
	if err != nil {
		t.Fatal(err)
	}

	token := make([]byte, wire.AuthTokenSize)
	if _, err := rand.Read(token); err != nil {
		t.Fatal(err)
	}

	host, _ := newFakeDevice(t, func(ch transport.Channel) error {
		if _, _, err := expectCommand(ch, wire.CmdConnect); err != nil {
			return err
		}
		if err := sendMessage(ch, wire.CmdAuth, wire.AuthToken, 0, token); err != nil {
			return err
		}
		if _, _, err := expectCommand(ch, wire.CmdAuth); err != nil {
			return err
		}
		if err := sendMessage(ch, wire.CmdAuth, wire.AuthToken, 0, token); err != nil {
			return err
		}
		if _, _, err := expectCommand(ch, wire.CmdAuth); err != nil {
			return err
		}
		// Still not satisfied after the key was offered.
		return sendMessage(ch, wire.CmdAuth, wire.AuthToken, 0, token)
	})

	_, err = Connect(context.Background(), Config{
		Channel: host,
		Signers: []auth.Signer{signer},
	})
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("Connect error = %v, want ErrAuthFailed", err)
	}
}

func TestConnectNoKeys(t *testing.T) {
	token := make([]byte, wire.AuthTokenSize)

	host, _ := newFakeDevice(t, func(ch transport.Channel) error {
		if _, _, err := expectCommand(ch, wire.CmdConnect); err != nil {
			return err
		}
		return sendMessage(ch, wire.CmdAuth, wire.AuthToken, 0, token)
	})

	_, err := Connect(context.Background(), Config{Channel: host})
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("Connect error = %v, want ErrAuthFailed", err)
	}
}

func TestConnectApprovalTimeout(t *testing.T) {
	signer, err := auth.NewSigner(testKey, "tester@host")
	if err != nil {
		t.Fatal(err)
	}

	token := make([]byte, wire.AuthTokenSize)

	host, _ := newFakeDevice(t, func(ch transport.Channel) error {
		if _, _, err := expectCommand(ch, wire.CmdConnect); err != nil {
			return err
		}
		if err := sendMessage(ch, wire.CmdAuth, wire.AuthToken, 0, token); err != nil {
			return err
		}
		if _, _, err := expectCommand(ch, wire.CmdAuth); err != nil {
			return err
		}
		if err := sendMessage(ch, wire.CmdAuth, wire.AuthToken, 0, token); err != nil {
			return err
		}
		if _, _, err := expectCommand(ch, wire.CmdAuth); err != nil {
			return err
		}
		// Operator never answers the dialog.
		return nil
	})

	_, err = Connect(context.Background(), Config{
		Channel:         host,
		Signers:         []auth.Signer{signer},
		ApprovalTimeout: 100 * time.Millisecond,
	})
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("Connect error = %v, want ErrAuthFailed", err)
	}
}

func TestConnectTLSRequired(t *testing.T) {
	host, device := newFakeDevice(t, func(ch transport.Channel) error {
		if _, _, err := expectCommand(ch, wire.CmdConnect); err != nil {
			return err
		}
		return sendMessage(ch, wire.CmdSTLS, 1, 0, nil)
	})

	_, err := Connect(context.Background(), Config{Channel: host})
	if !errors.Is(err, ErrTLSRequired) {
		t.Fatalf("Connect error = %v, want ErrTLSRequired", err)
	}
	device.wait(t)
}

func TestConnectVersionMismatch(t *testing.T) {
	host, device := newFakeDevice(t, func(ch transport.Channel) error {
		if _, _, err := expectCommand(ch, wire.CmdConnect); err != nil {
			return err
		}
		return sendMessage(ch, wire.CmdConnect, 0x00fffff0, wire.MaxPayloadDefault,
			[]byte("device::\x00"))
	})

	_, err := Connect(context.Background(), Config{Channel: host})
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("Connect error = %v, want ErrVersionMismatch", err)
	}
	device.wait(t)
}

func TestConnectUnexpectedCommand(t *testing.T) {
	host, device := newFakeDevice(t, func(ch transport.Channel) error {
		if _, _, err := expectCommand(ch, wire.CmdConnect); err != nil {
			return err
		}
		return sendMessage(ch, wire.CmdWrite, 1, 2, []byte("nope"))
	})

	_, err := Connect(context.Background(), Config{Channel: host})
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("Connect error = %v, want ErrInvalidResponse", err)
	}
	device.wait(t)
}

func TestConnectClampsMaxPayload(t *testing.T) {
	host, device := newFakeDevice(t, func(ch transport.Channel) error {
		if _, _, err := expectCommand(ch, wire.CmdConnect); err != nil {
			return err
		}
		return sendMessage(ch, wire.CmdConnect, wire.Version, 16,
			[]byte("device::\x00"))
	})

	sess, err := Connect(context.Background(), Config{Channel: host})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer sess.Close()
	device.wait(t)

	if sess.MaxPayload() != wire.MaxPayloadMin {
		t.Errorf("max payload = %d, want clamped to %d", sess.MaxPayload(), wire.MaxPayloadMin)
	}
}

func TestConnectRequiresChannel(t *testing.T) {
	if _, err := Connect(context.Background(), Config{}); !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnectContextCanceled(t *testing.T) {
	host, _ := newFakeDevice(t, func(ch transport.Channel) error {
		_, _, err := expectCommand(ch, wire.CmdConnect)
		return err
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Connect(ctx, Config{
		Channel:          host,
		HandshakeTimeout: 50 * time.Millisecond,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Connect error = %v, want context.Canceled", err)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateInit:           "init",
		StateSentConnect:    "sent-connect",
		StateAuthenticating: "authenticating",
		StateOnline:         "online",
		StateClosed:         "closed",
		State(99):           "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
