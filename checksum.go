package livecmp

import (
	"errors"
	"fmt"

	"github.com/pthm/livecmp/lib/encoding"
)

// Codec is an alias for encoding.Codec for convenience.
type Codec = encoding.Codec

// NewCodec creates a new snapshot codec with the given key.
func NewCodec(key []byte) (*Codec, error) {
	return encoding.New(key)
}

// generateChecksum computes the integrity stamp for a snapshot. The checksum
// field itself is never part of the input.
func generateChecksum(codec *encoding.Codec, snap *Snapshot) (string, error) {
	payload, err := snap.checksumPayload()
	if err != nil {
		return "", err
	}
	return codec.Checksum(payload), nil
}

// verifySnapshot checks the submitted checksum and returns a cleaned copy
// with the checksum field stripped. Downstream consumers never see the
// checksum again; it is recomputed fresh on the next dehydration.
func verifySnapshot(codec *encoding.Codec, snap *Snapshot) (*Snapshot, error) {
	payload, err := snap.checksumPayload()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	if err := codec.VerifyChecksum(payload, snap.Checksum); err != nil {
		return nil, wrapEncodingError(err)
	}
	return &Snapshot{Data: snap.Data, Memo: snap.Memo}, nil
}

// wrapEncodingError wraps encoding package errors with livecmp sentinel errors.
func wrapEncodingError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, encoding.ErrCorruptPayload) || errors.Is(err, encoding.ErrSealedPayload) {
		return fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	return err
}
