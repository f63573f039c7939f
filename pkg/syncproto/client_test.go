package syncproto

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"io/fs"
	"net"
	"testing"
	"time"
)

// newTestClient wires a client to a scripted device over a pipe.
func newTestClient(t *testing.T, script func(c net.Conn) error) (*Client, chan error) {
	t.Helper()
	local, remote := net.Pipe()
	errCh := make(chan error, 1)
	go func() {
		errCh <- script(remote)
	}()
	t.Cleanup(func() {
		local.Close()
		remote.Close()
	})

	client, err := NewClient(Config{Stream: local})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client, errCh
}

func waitScript(t *testing.T, errCh chan error) {
	t.Helper()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("device script failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("device script did not finish")
	}
}

func readHeaderFrom(c net.Conn) (Op, uint32, error) {
	var buf [headerSize]byte
	if _, err := io.ReadFull(c, buf[:]); err != nil {
		return 0, 0, err
	}
	return Op(binary.LittleEndian.Uint32(buf[0:])), binary.LittleEndian.Uint32(buf[4:]), nil
}

func writeHeaderTo(c net.Conn, op Op, value uint32) error {
	var buf [headerSize]byte
	binary.LittleEndian.PutUint32(buf[0:], uint32(op))
	binary.LittleEndian.PutUint32(buf[4:], value)
	_, err := c.Write(buf[:])
	return err
}

// expectRequest consumes one request and its path payload.
func expectRequest(c net.Conn, op Op) (string, error) {
	got, length, err := readHeaderFrom(c)
	if err != nil {
		return "", err
	}
	if got != op {
		return "", errors.New("unexpected request " + got.String())
	}
	path := make([]byte, length)
	if _, err := io.ReadFull(c, path); err != nil {
		return "", err
	}
	return string(path), nil
}

func sendFail(c net.Conn, message string) error {
	if err := writeHeaderTo(c, OpFail, uint32(len(message))); err != nil {
		return err
	}
	_, err := c.Write([]byte(message))
	return err
}

func TestStat(t *testing.T) {
	client, errCh := newTestClient(t, func(c net.Conn) error {
		path, err := expectRequest(c, OpStat)
		if err != nil {
			return err
		}
		if path != "/sdcard/notes.txt" {
			return errors.New("unexpected path " + path)
		}
		var reply [16]byte
		binary.LittleEndian.PutUint32(reply[0:], uint32(OpStat))
		binary.LittleEndian.PutUint32(reply[4:], 0o100644)
		binary.LittleEndian.PutUint32(reply[8:], 4096)
		binary.LittleEndian.PutUint32(reply[12:], 1700000000)
		_, err = c.Write(reply[:])
		return err
	})

	info, err := client.Stat("/sdcard/notes.txt")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	waitScript(t, errCh)

	if info.Mode.Perm() != 0o644 {
		t.Errorf("mode = %v, want 0644", info.Mode)
	}
	if info.Mode.IsDir() {
		t.Error("regular file reported as directory")
	}
	if info.Size != 4096 {
		t.Errorf("size = %d, want 4096", info.Size)
	}
	if info.MTime.Unix() != 1700000000 {
		t.Errorf("mtime = %v", info.MTime)
	}
}

func TestStatNotExist(t *testing.T) {
	client, errCh := newTestClient(t, func(c net.Conn) error {
		if _, err := expectRequest(c, OpStat); err != nil {
			return err
		}
		var reply [16]byte
		binary.LittleEndian.PutUint32(reply[0:], uint32(OpStat))
		_, err := c.Write(reply[:])
		return err
	})

	if _, err := client.Stat("/nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Stat error = %v, want fs.ErrNotExist", err)
	}
	waitScript(t, errCh)
}

func TestList(t *testing.T) {
	sendDent := func(c net.Conn, mode, size, mtime uint32, name string) error {
		buf := make([]byte, 20+len(name))
		binary.LittleEndian.PutUint32(buf[0:], uint32(OpDent))
		binary.LittleEndian.PutUint32(buf[4:], mode)
		binary.LittleEndian.PutUint32(buf[8:], size)
		binary.LittleEndian.PutUint32(buf[12:], mtime)
		binary.LittleEndian.PutUint32(buf[16:], uint32(len(name)))
		copy(buf[20:], name)
		_, err := c.Write(buf)
		return err
	}

	client, errCh := newTestClient(t, func(c net.Conn) error {
		path, err := expectRequest(c, OpList)
		if err != nil {
			return err
		}
		if path != "/sdcard" {
			return errors.New("unexpected path " + path)
		}
		if err := sendDent(c, 0o40755, 0, 1700000000, "DCIM"); err != nil {
			return err
		}
		if err := sendDent(c, 0o100644, 123, 1700000001, "notes.txt"); err != nil {
			return err
		}
		return writeHeaderTo(c, OpDone, 0)
	})

	entries, err := client.List("/sdcard")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	waitScript(t, errCh)

	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Name != "DCIM" || !entries[0].Mode.IsDir() {
		t.Errorf("entry 0 = %+v, want DCIM directory", entries[0])
	}
	if entries[1].Name != "notes.txt" || entries[1].Size != 123 {
		t.Errorf("entry 1 = %+v, want notes.txt size 123", entries[1])
	}
}

func TestListFail(t *testing.T) {
	client, errCh := newTestClient(t, func(c net.Conn) error {
		if _, err := expectRequest(c, OpList); err != nil {
			return err
		}
		return sendFail(c, "permission denied")
	})

	_, err := client.List("/data")
	waitScript(t, errCh)

	var se *SyncError
	if !errors.As(err, &se) {
		t.Fatalf("List error = %v, want SyncError", err)
	}
	if se.Message != "permission denied" {
		t.Errorf("message = %q", se.Message)
	}
	if se.Op != OpList {
		t.Errorf("op = %s, want LIST", se.Op)
	}
}

func TestPush(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), 9000) // 144000 bytes, 3 chunks
	mtime := time.Unix(1700000000, 0)

	client, errCh := newTestClient(t, func(c net.Conn) error {
		meta, err := expectRequest(c, OpSend)
		if err != nil {
			return err
		}
		if meta != "/sdcard/blob.bin,644" {
			return errors.New("unexpected metadata " + meta)
		}

		var got []byte
		for {
			op, value, err := readHeaderFrom(c)
			if err != nil {
				return err
			}
			if op == OpDone {
				if value != uint32(mtime.Unix()) {
					return errors.New("DONE carries wrong mtime")
				}
				break
			}
			if op != OpData {
				return errors.New("unexpected op " + op.String())
			}
			if value > MaxChunk {
				return errors.New("oversize chunk")
			}
			chunk := make([]byte, value)
			if _, err := io.ReadFull(c, chunk); err != nil {
				return err
			}
			got = append(got, chunk...)
		}
		if !bytes.Equal(got, data) {
			return errors.New("payload mismatch")
		}
		return writeHeaderTo(c, OpOkay, 0)
	})

	err := client.Push(context.Background(), bytes.NewReader(data), "/sdcard/blob.bin", 0o644, mtime)
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	waitScript(t, errCh)
}

func TestPushFail(t *testing.T) {
	client, errCh := newTestClient(t, func(c net.Conn) error {
		if _, err := expectRequest(c, OpSend); err != nil {
			return err
		}
		for {
			op, value, err := readHeaderFrom(c)
			if err != nil {
				return err
			}
			if op == OpDone {
				break
			}
			if _, err := io.CopyN(io.Discard, c, int64(value)); err != nil {
				return err
			}
		}
		return sendFail(c, "No space left on device")
	})

	err := client.Push(context.Background(), bytes.NewReader([]byte("x")), "/sdcard/x", 0o644, time.Unix(0, 0))
	waitScript(t, errCh)

	var se *SyncError
	if !errors.As(err, &se) {
		t.Fatalf("Push error = %v, want SyncError", err)
	}
	if se.Message != "No space left on device" {
		t.Errorf("message = %q", se.Message)
	}
}

func TestPull(t *testing.T) {
	client, errCh := newTestClient(t, func(c net.Conn) error {
		if _, err := expectRequest(c, OpRecv); err != nil {
			return err
		}
		for _, chunk := range []string{"hello ", "world"} {
			if err := writeHeaderTo(c, OpData, uint32(len(chunk))); err != nil {
				return err
			}
			if _, err := c.Write([]byte(chunk)); err != nil {
				return err
			}
		}
		return writeHeaderTo(c, OpDone, 0)
	})

	var out bytes.Buffer
	n, err := client.Pull(context.Background(), &out, "/sdcard/hello.txt")
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	waitScript(t, errCh)

	if out.String() != "hello world" {
		t.Errorf("pulled %q", out.String())
	}
	if n != int64(len("hello world")) {
		t.Errorf("n = %d, want %d", n, len("hello world"))
	}
}

func TestPullFailAfterPartialData(t *testing.T) {
	client, errCh := newTestClient(t, func(c net.Conn) error {
		if _, err := expectRequest(c, OpRecv); err != nil {
			return err
		}
		if err := writeHeaderTo(c, OpData, 4); err != nil {
			return err
		}
		if _, err := c.Write([]byte("part")); err != nil {
			return err
		}
		return sendFail(c, "read failed")
	})

	var out bytes.Buffer
	n, err := client.Pull(context.Background(), &out, "/sdcard/broken")
	waitScript(t, errCh)

	var se *SyncError
	if !errors.As(err, &se) {
		t.Fatalf("Pull error = %v, want SyncError", err)
	}
	if n != 4 || out.String() != "part" {
		t.Errorf("partial data = %q (%d bytes)", out.String(), n)
	}
}

func TestPullOversizeChunk(t *testing.T) {
	client, errCh := newTestClient(t, func(c net.Conn) error {
		if _, err := expectRequest(c, OpRecv); err != nil {
			return err
		}
		return writeHeaderTo(c, OpData, MaxChunk+1)
	})

	var out bytes.Buffer
	_, err := client.Pull(context.Background(), &out, "/sdcard/big")
	if !errors.Is(err, ErrChunkTooLarge) {
		t.Fatalf("Pull error = %v, want ErrChunkTooLarge", err)
	}
	waitScript(t, errCh)
}

func TestQuit(t *testing.T) {
	client, errCh := newTestClient(t, func(c net.Conn) error {
		op, _, err := readHeaderFrom(c)
		if err != nil {
			return err
		}
		if op != OpQuit {
			return errors.New("unexpected op " + op.String())
		}
		return nil
	})

	if err := client.Quit(); err != nil {
		t.Fatalf("Quit failed: %v", err)
	}
	waitScript(t, errCh)
}

func TestOpString(t *testing.T) {
	cases := map[Op]string{
		OpList:   "LIST",
		OpSend:   "SEND",
		OpRecv:   "RECV",
		OpStat:   "STAT",
		OpDent:   "DENT",
		OpData:   "DATA",
		OpDone:   "DONE",
		OpOkay:   "OKAY",
		OpFail:   "FAIL",
		OpQuit:   "QUIT",
		Op(0x42): "????",
	}
	for op, want := range cases {
		if got := op.String(); got != want {
			t.Errorf("Op(%#x).String() = %q, want %q", uint32(op), got, want)
		}
	}
}

func TestNewClientRequiresStream(t *testing.T) {
	if _, err := NewClient(Config{}); !errors.Is(err, ErrNoStream) {
		t.Fatalf("NewClient error = %v, want ErrNoStream", err)
	}
}
