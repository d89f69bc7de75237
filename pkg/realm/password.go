package realm

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // {SHA} and {SSHA} are legacy directory schemes
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the default cost parameter for bcrypt hashing.
const DefaultBcryptCost = 10

// MinPasswordLength is the minimum required password length.
const MinPasswordLength = 8

// MaxPasswordLength is the maximum allowed password length.
// bcrypt silently truncates at 72 bytes, so we enforce this limit.
const MaxPasswordLength = 72

var (
	// ErrPasswordTooShort is returned when a password is too short.
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")

	// ErrPasswordTooLong is returned when a password exceeds the bcrypt limit.
	ErrPasswordTooLong = errors.New("password must be at most 72 characters")
)

// HashPassword creates a bcrypt hash of the given password.
//
// Parameters:
//   - password: The plaintext password to hash
//
// Returns:
//   - string: The bcrypt hash
//   - error: If the password is invalid or hashing fails
func HashPassword(password []byte) (string, error) {
	return HashPasswordWithCost(password, DefaultBcryptCost)
}

// HashPasswordWithCost creates a bcrypt hash with a custom cost between
// bcrypt.MinCost and bcrypt.MaxCost.
func HashPasswordWithCost(password []byte, cost int) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword(password, cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ValidatePassword checks the length requirements.
func ValidatePassword(password []byte) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

// NeedsRehash reports whether stored should be regenerated with the
// current cost, which is the case for every non-bcrypt value.
func NeedsRehash(stored string) bool {
	cost, err := bcrypt.Cost([]byte(strings.TrimPrefix(stored, "{BCRYPT}")))
	if err != nil {
		return true
	}
	return cost < DefaultBcryptCost
}

// VerifyPassword checks password against a stored value.
//
// Supported stored forms:
//   - bcrypt hashes ($2a$, $2b$, $2y$), optionally prefixed with {BCRYPT}
//   - RFC 2307 {SSHA} and {SHA} values, as commonly found in userPassword
//   - {CLEARTEXT} values and values without a scheme, compared as is
//
// An empty stored value or an unknown {SCHEME} never verifies.
func VerifyPassword(password, stored []byte) bool {
	if len(stored) == 0 {
		return false
	}
	scheme, value := splitScheme(stored)
	switch scheme {
	case "":
		if isBcrypt(value) {
			return bcrypt.CompareHashAndPassword(value, password) == nil
		}
		return subtle.ConstantTimeCompare(password, value) == 1
	case "CLEARTEXT":
		return subtle.ConstantTimeCompare(password, value) == 1
	case "BCRYPT":
		return bcrypt.CompareHashAndPassword(value, password) == nil
	case "SHA":
		return verifySHA(password, value, false)
	case "SSHA":
		return verifySHA(password, value, true)
	default:
		return false
	}
}

func isBcrypt(v []byte) bool {
	return bytes.HasPrefix(v, []byte("$2a$")) || bytes.HasPrefix(v, []byte("$2b$")) || bytes.HasPrefix(v, []byte("$2y$"))
}

func splitScheme(stored []byte) (string, []byte) {
	if len(stored) == 0 || stored[0] != '{' {
		return "", stored
	}
	end := bytes.IndexByte(stored, '}')
	if end < 0 {
		return "", stored
	}
	return strings.ToUpper(string(stored[1:end])), stored[end+1:]
}

func verifySHA(password, encoded []byte, salted bool) bool {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	n, err := base64.StdEncoding.Decode(raw, encoded)
	if err != nil || n < sha1.Size {
		return false
	}
	raw = raw[:n]
	digest, salt := raw[:sha1.Size], raw[sha1.Size:]
	if !salted && len(salt) > 0 {
		return false
	}
	h := sha1.New() //nolint:gosec
	h.Write(password)
	h.Write(salt)
	return subtle.ConstantTimeCompare(h.Sum(nil), digest) == 1
}

// SSHA encodes password as an RFC 2307 {SSHA} value with the given salt.
func SSHA(password, salt []byte) string {
	h := sha1.New() //nolint:gosec
	h.Write(password)
	h.Write(salt)
	return "{SSHA}" + base64.StdEncoding.EncodeToString(append(h.Sum(nil), salt...))
}
