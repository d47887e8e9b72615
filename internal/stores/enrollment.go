package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const enrollmentRecordVersion1 = 1

var (
	ErrEnrollmentNotFound = errors.New("totp enrollment not found")
	ErrEnrollmentBackend  = errors.New("totp enrollment backend unavailable")
)

// Enrollment is a TOTP secret that has been shown to the user but not yet
// confirmed with a valid code. SealedSecret is encrypted by the caller.
type Enrollment struct {
	SealedSecret []byte
	ExpiresAt    int64
}

// EnrollmentStore holds at most one pending enrollment per user.
type EnrollmentStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewEnrollmentStore(redisClient redis.UniversalClient, prefix string) *EnrollmentStore {
	if prefix == "" {
		prefix = "gte"
	}
	return &EnrollmentStore{redis: redisClient, prefix: prefix}
}

func (s *EnrollmentStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// Save replaces any pending enrollment for userID.
func (s *EnrollmentStore) Save(ctx context.Context, userID string, record *Enrollment, ttl time.Duration) error {
	var buf bytes.Buffer
	buf.WriteByte(enrollmentRecordVersion1)
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return err
	}
	if err := writeBytes(&buf, record.SealedSecret); err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(userID), buf.Bytes(), ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrEnrollmentBackend, err)
	}
	return nil
}

func (s *EnrollmentStore) Get(ctx context.Context, userID string, now time.Time) (*Enrollment, error) {
	data, err := s.redis.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrEnrollmentBackend, err)
	}

	reader := bytes.NewReader(data)
	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != enrollmentRecordVersion1 {
		return nil, errors.New("invalid enrollment record version")
	}
	record := &Enrollment{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if record.SealedSecret, err = readBytes(reader); err != nil {
		return nil, err
	}
	if now.UnixMilli() >= record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(userID)).Result()
		return nil, ErrEnrollmentNotFound
	}
	return record, nil
}

func (s *EnrollmentStore) Delete(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrEnrollmentBackend, err)
	}
	return nil
}
