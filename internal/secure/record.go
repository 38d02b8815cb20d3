// Package secure stores credentials and small preference blobs, preferring
// the system keychain with an encrypted-file fallback and an in-memory
// store of last resort. Every value carries a write timestamp and optional
// TTL so stale entries expire on read.
package secure

import (
	"encoding/json"
	"time"
)

// Record wraps a stored value with its metadata.
type Record struct {
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds at write
	Encrypted bool   `json:"encrypted"`
	TTL       int64  `json:"ttl,omitempty"` // milliseconds, 0 means no expiry
}

// newRecord creates a record stamped at now. ttl of zero disables expiry.
func newRecord(value string, encrypted bool, ttl time.Duration) Record {
	return Record{
		Value:     value,
		Timestamp: time.Now().UnixMilli(),
		Encrypted: encrypted,
		TTL:       ttl.Milliseconds(),
	}
}

// Expired reports whether the record's TTL has elapsed.
func (r Record) Expired() bool {
	if r.TTL <= 0 {
		return false
	}
	age := time.Now().UnixMilli() - r.Timestamp
	return age > r.TTL
}

func (r Record) encode() ([]byte, error) {
	return json.Marshal(r)
}

func decodeRecord(data []byte) (Record, error) {
	var r Record
	err := json.Unmarshal(data, &r)
	return r, err
}
