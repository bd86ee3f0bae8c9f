package entity

import "time"

type APIKeyStatus string

const (
	APIKeyActive  APIKeyStatus = "active"
	APIKeyRevoked APIKeyStatus = "revoked"
)

// APIKey admits push sessions. Only the hash of the key is stored; the
// plaintext is shown once, at creation.
type APIKey struct {
	Id          string       `bson:"_id" json:"id"`
	Hash        string       `bson:"hash" json:"-"`
	Prefix      string       `bson:"prefix" json:"prefix"`
	OwnerId     string       `bson:"ownerId" json:"ownerId"`
	Description string       `bson:"description" json:"description"`
	Status      APIKeyStatus `bson:"status" json:"status"`
	ExpiresAt   *time.Time   `bson:"expiresAt,omitempty" json:"expiresAt,omitempty"`
	CreatedAt   time.Time    `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time    `bson:"updatedAt" json:"updatedAt"`
}

// Usable reports whether the key may admit a session at t.
func (k APIKey) Usable(t time.Time) bool {
	if k.Status != APIKeyActive {
		return false
	}
	return k.ExpiresAt == nil || t.Before(*k.ExpiresAt)
}

type CreateAPIKeyRequest struct {
	Description string `json:"description"`
	// TTL in seconds; zero means the key never expires.
	TTLSeconds int64 `json:"ttlSeconds"`
}

type CreateAPIKeyResponse struct {
	Key    string `json:"key"`
	APIKey APIKey `json:"apiKey"`
}

type RevokeAPIKeyRequest struct {
	Id string `json:"id"`
}
