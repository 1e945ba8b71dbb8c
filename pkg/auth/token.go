package auth

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// APIKeyPrefix identifies API keys in the Authorization header
	APIKeyPrefix = "sk-"
	// apiKeyHexLength is the number of hex characters after the prefix (128 bits)
	apiKeyHexLength = 32
)

// KeyGenerator generates and validates API keys
type KeyGenerator struct{}

// NewKeyGenerator creates a new key generator
func NewKeyGenerator() *KeyGenerator {
	return &KeyGenerator{}
}

// GenerateKey creates a new API key
// Format: sk-<32 lowercase hex chars>
func (kg *KeyGenerator) GenerateKey() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate random key: %w", err)
	}
	return APIKeyPrefix + hex.EncodeToString(id[:]), nil
}

// IsAPIKey reports whether a bearer credential looks like an API key rather than a JWT
func (kg *KeyGenerator) IsAPIKey(token string) bool {
	return strings.HasPrefix(token, APIKeyPrefix)
}

// ValidateKeyFormat checks if a key has the correct format
func (kg *KeyGenerator) ValidateKeyFormat(key string) error {
	if !strings.HasPrefix(key, APIKeyPrefix) {
		return fmt.Errorf("api key must start with %q", APIKeyPrefix)
	}

	encodedPart := strings.TrimPrefix(key, APIKeyPrefix)
	if len(encodedPart) != apiKeyHexLength {
		return fmt.Errorf("api key must have %d characters after the prefix", apiKeyHexLength)
	}

	if _, err := hex.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid api key encoding: %w", err)
	}

	return nil
}

// DisplayPrefix returns a short, loggable prefix of a key
func (kg *KeyGenerator) DisplayPrefix(key string) string {
	if !strings.HasPrefix(key, APIKeyPrefix) {
		return ""
	}

	encodedPart := strings.TrimPrefix(key, APIKeyPrefix)
	if len(encodedPart) >= 8 {
		return APIKeyPrefix + encodedPart[:8]
	}

	return key
}

// RandomPassword returns a throwaway password for accounts that never sign in with one
func RandomPassword() string {
	return uuid.NewString()
}
