package session

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeDecodeCurrentFormat(t *testing.T) {
	in := &Session{
		UserID:        "user-42",
		Method:        MethodRememberedDevice,
		Persistent:    true,
		IPHash:        [32]byte{1, 2, 3},
		UserAgentHash: [32]byte{9},
		CreatedAt:     100,
		ExpiresAt:     200,
	}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if *out != *in {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
}

func TestDecodeV1Record(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(formatVersionV1)
	buf.WriteByte(3)
	buf.WriteString("u-1")
	buf.WriteByte(byte(MethodPassword))
	_ = binary.Write(&buf, binary.BigEndian, int64(10))
	_ = binary.Write(&buf, binary.BigEndian, int64(20))

	s, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode v1: %v", err)
	}
	if s.UserID != "u-1" || s.Persistent || s.CreatedAt != 10 || s.ExpiresAt != 20 {
		t.Fatalf("unexpected v1 session %+v", s)
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	data, err := Encode(&Session{UserID: "u", Method: MethodTOTP})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Decode(append(data, 0)); err == nil {
		t.Fatal("expected trailing data to be rejected")
	}
}

func TestEncodeRejectsBadUserID(t *testing.T) {
	if _, err := Encode(&Session{}); err == nil {
		t.Fatal("expected empty user id to be rejected")
	}
	if _, err := Encode(&Session{UserID: string(make([]byte, 256))}); err == nil {
		t.Fatal("expected long user id to be rejected")
	}
}

func TestMethodString(t *testing.T) {
	cases := map[Method]string{
		MethodPassword:         "pwd",
		MethodTOTP:             "otp",
		MethodRecoveryCode:     "rc",
		MethodRememberedDevice: "dev",
		Method(0):              "unknown",
	}
	for m, want := range cases {
		if m.String() != want {
			t.Fatalf("%d: got %q want %q", m, m.String(), want)
		}
	}
}

func FuzzDecode(f *testing.F) {
	valid, _ := Encode(&Session{UserID: "u-1", Method: MethodTOTP, CreatedAt: 1, ExpiresAt: 2})
	f.Add(valid)
	f.Add([]byte{})
	f.Add([]byte{formatVersionCurrent, 0})
	f.Add([]byte{0xff})

	f.Fuzz(func(t *testing.T, data []byte) {
		s, err := Decode(data)
		if err != nil {
			return
		}
		again, err := Encode(s)
		if err != nil {
			t.Fatalf("decoded session does not re-encode: %v", err)
		}
		if _, err := Decode(again); err != nil {
			t.Fatalf("re-encoded session does not decode: %v", err)
		}
	})
}
