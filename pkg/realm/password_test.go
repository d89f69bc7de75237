package realm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPasswordWithCost([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, VerifyPassword([]byte("correct horse"), []byte(hash)))
	assert.False(t, VerifyPassword([]byte("wrong horse"), []byte(hash)))
	assert.True(t, VerifyPassword([]byte("correct horse"), []byte("{BCRYPT}"+hash)))
	assert.True(t, NeedsRehash(hash), "min cost is below the default")
}

func TestVerifyPassword_Schemes(t *testing.T) {
	tests := []struct {
		name   string
		stored string
		pass   string
		want   bool
	}{
		{"Plain", "serverPassword", "serverPassword", true},
		{"PlainMismatch", "serverPassword", "serverpassword", false},
		{"Cleartext", "{CLEARTEXT}secret", "secret", true},
		{"SSHA", SSHA([]byte("secret"), []byte("salt1234")), "secret", true},
		{"SSHAMismatch", SSHA([]byte("secret"), []byte("salt1234")), "Secret", false},
		{"SHA", "{SHA}5en6G6MezRroT3XKqkdPOmY/BfQ=", "secret", true},
		{"LowercaseScheme", "{sha}5en6G6MezRroT3XKqkdPOmY/BfQ=", "secret", true},
		{"UnknownScheme", "{MD5}Xr4ilOzQ4PCOq3aQ0qbuaQ==", "secret", false},
		{"BadBase64", "{SSHA}!!!", "secret", false},
		{"EmptyStored", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifyPassword([]byte(tt.pass), []byte(tt.stored)))
		})
	}
}

func TestValidatePassword(t *testing.T) {
	assert.ErrorIs(t, ValidatePassword([]byte("short")), ErrPasswordTooShort)
	assert.ErrorIs(t, ValidatePassword(make([]byte, MaxPasswordLength+1)), ErrPasswordTooLong)
	assert.NoError(t, ValidatePassword([]byte("long enough")))

	_, err := HashPassword([]byte("short"))
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestNeedsRehash_NonBcrypt(t *testing.T) {
	assert.True(t, NeedsRehash("plain"))
	hash, err := HashPassword([]byte("default cost"))
	require.NoError(t, err)
	assert.False(t, NeedsRehash(hash))
}
