package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const deviceRecordVersion1 = 1

var (
	ErrDeviceNotFound = errors.New("device trust record not found")
	ErrDeviceBackend  = errors.New("device trust backend unavailable")
)

// DeviceTrust is the stored form of a remember-this-device token. Times are
// unix milliseconds.
type DeviceTrust struct {
	UserID      string
	IssuedAt    int64
	ExpiresAt   int64
	Fingerprint [32]byte
}

// DeviceTrustStore keeps device trust records keyed by token hash, plus a
// per-user index so every device of a user can be revoked at once.
type DeviceTrustStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewDeviceTrustStore(redisClient redis.UniversalClient, prefix string) *DeviceTrustStore {
	if prefix == "" {
		prefix = "gdt"
	}
	return &DeviceTrustStore{redis: redisClient, prefix: prefix}
}

func (s *DeviceTrustStore) tokenKey(hash [32]byte) string {
	return s.prefix + ":t:" + hex.EncodeToString(hash[:])
}

func (s *DeviceTrustStore) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Save inserts a new record. ttl only bounds storage; validity is decided
// by ExpiresAt.
func (s *DeviceTrustStore) Save(ctx context.Context, hash [32]byte, record *DeviceTrust, ttl time.Duration) error {
	encoded, err := encodeDeviceTrust(record)
	if err != nil {
		return err
	}
	member := hex.EncodeToString(hash[:])
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.tokenKey(hash), encoded, ttl)
		pipe.SAdd(ctx, s.userKey(record.UserID), member)
		pipe.Expire(ctx, s.userKey(record.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceBackend, err)
	}
	return nil
}

func (s *DeviceTrustStore) Get(ctx context.Context, hash [32]byte) (*DeviceTrust, error) {
	data, err := s.redis.Get(ctx, s.tokenKey(hash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDeviceBackend, err)
	}
	return decodeDeviceTrust(data)
}

// Delete removes one record if it belongs to userID. It reports whether a
// record was removed.
func (s *DeviceTrustStore) Delete(ctx context.Context, userID string, hash [32]byte) (bool, error) {
	record, err := s.Get(ctx, hash)
	if errors.Is(err, ErrDeviceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if record.UserID != userID {
		return false, nil
	}

	var removed *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.Del(ctx, s.tokenKey(hash))
		pipe.SRem(ctx, s.userKey(userID), hex.EncodeToString(hash[:]))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDeviceBackend, err)
	}
	return removed.Val() > 0, nil
}

// DeleteAll removes every record indexed under userID and returns how many
// token keys were deleted.
func (s *DeviceTrustStore) DeleteAll(ctx context.Context, userID string) (int, error) {
	members, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDeviceBackend, err)
	}

	keys := make([]string, 0, len(members)+1)
	for _, m := range members {
		keys = append(keys, s.prefix+":t:"+m)
	}
	var removed *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			removed = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, s.userKey(userID))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDeviceBackend, err)
	}
	if removed == nil {
		return 0, nil
	}
	return int(removed.Val()), nil
}

// CountActive returns the number of records for userID that are still
// valid at now. Index entries whose record is gone are pruned.
func (s *DeviceTrustStore) CountActive(ctx context.Context, userID string, now time.Time) (int, error) {
	members, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDeviceBackend, err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = s.prefix + ":t:" + m
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDeviceBackend, err)
	}

	active := 0
	var stale []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, members[i])
			continue
		}
		record, err := decodeDeviceTrust([]byte(raw))
		if err != nil || record.UserID != userID {
			continue
		}
		if now.UnixMilli() < record.ExpiresAt {
			active++
		}
	}
	if len(stale) > 0 {
		_ = s.redis.SRem(ctx, s.userKey(userID), stale...).Err()
	}
	return active, nil
}

func encodeDeviceTrust(record *DeviceTrust) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(deviceRecordVersion1)
	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.Fingerprint[:])
	if err := writeString(&buf, record.UserID); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeDeviceTrust(data []byte) (*DeviceTrust, error) {
	reader := bytes.NewReader(data)
	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != deviceRecordVersion1 {
		return nil, errors.New("invalid device trust record version")
	}

	record := &DeviceTrust{}
	if err := binary.Read(reader, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := reader.Read(record.Fingerprint[:]); err != nil {
		return nil, err
	}
	if record.UserID, err = readString(reader); err != nil {
		return nil, err
	}
	return record, nil
}
