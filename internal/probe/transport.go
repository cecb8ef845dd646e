package probe

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

const (
	initBlockLen = 64
	keyOffset    = 8
	ivOffset     = 40
	tagOffset    = 56
	dcOffset     = 60

	// defaultDC is the Telegram datacenter requested through the proxy.
	defaultDC = 2

	// maxFrameLen bounds a response frame; anything larger means the peer
	// is not speaking the expected framing.
	maxFrameLen = 1 << 20
)

// transport is an obfuscated MTProto client connection: AES-CTR stream
// obfuscation underneath one of the byte-framing modes.
type transport struct {
	conn net.Conn
	mode Mode
	enc  cipher.Stream
	dec  cipher.Stream
}

// secretKey extracts the 16 transport key bytes from a canonical hex
// secret. dd/ee markers and any embedded domain tail are skipped.
func secretKey(secretHex string) ([]byte, error) {
	b, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(secretHex)))
	if err != nil {
		return nil, fmt.Errorf("secret is not hex: %w", err)
	}
	switch {
	case len(b) >= 17 && (b[0] == 0xdd || b[0] == 0xee):
		return b[1:17], nil
	case len(b) >= 16:
		return b[:16], nil
	default:
		return nil, fmt.Errorf("secret too short: %d bytes", len(b))
	}
}

// newTransport performs the obfuscated2 client handshake on conn: builds a
// 64-byte init block, derives the send/receive AES-CTR streams (mixed with
// the proxy secret), and writes the init block with its tail encrypted.
func newTransport(conn net.Conn, mode Mode, secret []byte) (*transport, error) {
	init, err := buildInitBlock(mode)
	if err != nil {
		return nil, err
	}

	sendKey := mixKey(init[keyOffset:keyOffset+32], secret)
	sendIV := append([]byte(nil), init[ivOffset:ivOffset+16]...)

	rev := reverseBytes(init[keyOffset:tagOffset])
	recvKey := mixKey(rev[:32], secret)
	recvIV := append([]byte(nil), rev[32:48]...)

	enc, err := newCTR(sendKey, sendIV)
	if err != nil {
		return nil, err
	}
	dec, err := newCTR(recvKey, recvIV)
	if err != nil {
		return nil, err
	}

	wire := make([]byte, initBlockLen)
	copy(wire, init)
	enc.XORKeyStream(wire, init)
	copy(wire[:tagOffset], init[:tagOffset])

	if _, err := conn.Write(wire); err != nil {
		return nil, fmt.Errorf("write transport init: %w", err)
	}
	return &transport{conn: conn, mode: mode, enc: enc, dec: dec}, nil
}

// buildInitBlock produces the random 64-byte handshake block. The first
// bytes must not collide with plain HTTP verbs or bare framing tags, which
// the proxy uses to reject non-obfuscated clients.
func buildInitBlock(mode Mode) ([]byte, error) {
	forbiddenFirst := map[uint32]bool{
		0x44414548: true, // HEAD
		0x54534f50: true, // POST
		0x20544547: true, // GET
		0x4954504f: true, // OPTI
		0xdddddddd: true,
		0xeeeeeeee: true,
	}

	init := make([]byte, initBlockLen)
	for {
		if _, err := rand.Read(init); err != nil {
			return nil, fmt.Errorf("init block entropy: %w", err)
		}
		if init[0] == 0xef {
			continue
		}
		if forbiddenFirst[binary.LittleEndian.Uint32(init[:4])] {
			continue
		}
		if binary.LittleEndian.Uint32(init[4:8]) == 0 {
			continue
		}
		break
	}

	tag := mode.tag()
	copy(init[tagOffset:], tag[:])
	binary.LittleEndian.PutUint16(init[dcOffset:], uint16(defaultDC))
	return init, nil
}

func mixKey(key, secret []byte) []byte {
	if len(secret) == 0 {
		return append([]byte(nil), key...)
	}
	h := sha256.New()
	h.Write(key)
	h.Write(secret)
	return h.Sum(nil)
}

func newCTR(key, iv []byte) (cipher.Stream, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewCTR(block, iv), nil
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// writeFrame encrypts and sends one payload framed per the transport mode.
func (t *transport) writeFrame(payload []byte) error {
	var frame []byte
	switch t.mode {
	case ModeAbridged:
		if len(payload)%4 != 0 {
			return fmt.Errorf("abridged payload not 4-byte aligned: %d", len(payload))
		}
		words := len(payload) / 4
		if words >= 0x7f {
			frame = make([]byte, 4, 4+len(payload))
			frame[0] = 0x7f
			frame[1] = byte(words)
			frame[2] = byte(words >> 8)
			frame[3] = byte(words >> 16)
		} else {
			frame = []byte{byte(words)}
		}
		frame = append(frame, payload...)
	case ModeIntermediate:
		frame = make([]byte, 4, 4+len(payload))
		binary.LittleEndian.PutUint32(frame, uint32(len(payload)))
		frame = append(frame, payload...)
	case ModePaddedIntermediate:
		var padLen [1]byte
		if _, err := rand.Read(padLen[:]); err != nil {
			return fmt.Errorf("frame padding entropy: %w", err)
		}
		pad := make([]byte, int(padLen[0]&0x03))
		if _, err := rand.Read(pad); err != nil {
			return fmt.Errorf("frame padding entropy: %w", err)
		}
		frame = make([]byte, 4, 4+len(payload)+len(pad))
		binary.LittleEndian.PutUint32(frame, uint32(len(payload)+len(pad)))
		frame = append(frame, payload...)
		frame = append(frame, pad...)
	default:
		return fmt.Errorf("unknown framing mode %d", t.mode)
	}

	enc := make([]byte, len(frame))
	t.enc.XORKeyStream(enc, frame)
	if _, err := t.conn.Write(enc); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// readFrame receives and decrypts one framed payload. A nonsensical length
// field means the peer violated the framing and is reported as such.
func (t *transport) readFrame() ([]byte, error) {
	var length int
	switch t.mode {
	case ModeAbridged:
		head, err := t.read(1)
		if err != nil {
			return nil, err
		}
		if head[0] == 0x7f {
			more, err := t.read(3)
			if err != nil {
				return nil, err
			}
			length = (int(more[0]) | int(more[1])<<8 | int(more[2])<<16) * 4
		} else {
			length = int(head[0]) * 4
		}
	case ModeIntermediate, ModePaddedIntermediate:
		head, err := t.read(4)
		if err != nil {
			return nil, err
		}
		length = int(binary.LittleEndian.Uint32(head))
	default:
		return nil, fmt.Errorf("unknown framing mode %d", t.mode)
	}

	if length <= 0 || length > maxFrameLen {
		return nil, &Error{Kind: KindProtocolGarbage,
			Err: fmt.Errorf("implausible frame length %d", length)}
	}
	payload, err := t.read(length)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (t *transport) read(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(t.conn, buf); err != nil {
		return nil, err
	}
	dec := make([]byte, n)
	t.dec.XORKeyStream(dec, buf)
	return dec, nil
}

func (t *transport) setDeadline(d time.Time) error {
	return t.conn.SetDeadline(d)
}
