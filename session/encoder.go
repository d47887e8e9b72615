package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	formatVersionCurrent = 2
	formatVersionV1      = 1
)

const flagPersistent = 1 << 0

var errInvalidFormat = errors.New("invalid session format")

// Encode serializes s. SessionID is the Redis key and is not encoded.
func Encode(s *Session) ([]byte, error) {
	if len(s.UserID) == 0 || len(s.UserID) > 255 {
		return nil, errors.New("userID length out of range")
	}

	var buf bytes.Buffer
	buf.Grow(2 + len(s.UserID) + 2 + 64 + 16)

	buf.WriteByte(formatVersionCurrent)
	buf.WriteByte(byte(len(s.UserID)))
	buf.WriteString(s.UserID)
	buf.WriteByte(byte(s.Method))

	var flags byte
	if s.Persistent {
		flags |= flagPersistent
	}
	buf.WriteByte(flags)

	buf.Write(s.IPHash[:])
	buf.Write(s.UserAgentHash[:])

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a record written by any format version. Version 1 records
// carry no flags byte and no client hashes.
func Decode(data []byte) (*Session, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != formatVersionCurrent && version != formatVersionV1 {
		return nil, errInvalidFormat
	}

	userLen, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if userLen == 0 {
		return nil, errInvalidFormat
	}
	userID := make([]byte, userLen)
	if _, err := io.ReadFull(r, userID); err != nil {
		return nil, err
	}

	s := &Session{UserID: string(userID)}

	method, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	s.Method = Method(method)

	if version == formatVersionCurrent {
		flags, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		s.Persistent = flags&flagPersistent != 0

		if _, err := io.ReadFull(r, s.IPHash[:]); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, s.UserAgentHash[:]); err != nil {
			return nil, err
		}
	}

	if err := binary.Read(r, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, errInvalidFormat
	}
	return s, nil
}
