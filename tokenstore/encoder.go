package tokenstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const recordFormatVersion = 1

// encodeRecord lays a record out as
//
//	[version:1][ownerLen:1][owner][createdAtMs:8][expiresAtMs:8]
//
// Key is not part of the payload; it is the Redis key suffix.
func encodeRecord(r Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordFormatVersion)

	if len(r.OwnerID) == 0 || len(r.OwnerID) > 255 {
		return nil, errors.New("ownerID length out of range")
	}
	buf.WriteByte(byte(len(r.OwnerID)))
	buf.WriteString(r.OwnerID)

	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt.UnixMilli()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeRecord(key string, data []byte) (Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return Record{}, err
	}
	if version != recordFormatVersion {
		return Record{}, errors.New("invalid record version")
	}

	ownerLen, err := reader.ReadByte()
	if err != nil {
		return Record{}, err
	}
	if ownerLen == 0 {
		return Record{}, errors.New("empty owner")
	}
	owner := make([]byte, ownerLen)
	if _, err := io.ReadFull(reader, owner); err != nil {
		return Record{}, err
	}

	var created, expires int64
	if err := binary.Read(reader, binary.BigEndian, &created); err != nil {
		return Record{}, err
	}
	if err := binary.Read(reader, binary.BigEndian, &expires); err != nil {
		return Record{}, err
	}
	if reader.Len() != 0 {
		return Record{}, errors.New("trailing record bytes")
	}

	return Record{
		Key:       key,
		OwnerID:   string(owner),
		CreatedAt: time.UnixMilli(created),
		ExpiresAt: time.UnixMilli(expires),
	}, nil
}
