package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMD5Hasher_Hash(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     string
	}{
		{
			name:     "regular password",
			password: "password",
			want:     "5f4dcc3b5aa765d61d8327deb882cf99",
		},
		{
			name:     "empty password",
			password: "",
			want:     "d41d8cd98f00b204e9800998ecf8427e",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MD5Hasher{}.Hash(tt.password)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, LegacyHashLength)
			assert.True(t, IsLegacy(got))
		})
	}
}

func TestHashers_Verify(t *testing.T) {
	hashers := map[string]Hasher{
		"md5":    MD5Hasher{},
		"bcrypt": BcryptHasher{Cost: bcrypt.MinCost},
		"compat": CompatHasher{Bcrypt: BcryptHasher{Cost: bcrypt.MinCost}},
	}
	passwords := []string{
		"password123",
		"p@ssw0rd!@#$%^&*()",
		"short",
		"",
		strings.Repeat("a", 73),
		strings.Repeat("пароль", 13),
	}

	for name, h := range hashers {
		t.Run(name, func(t *testing.T) {
			for _, p := range passwords {
				hash, err := h.Hash(p)
				require.NoError(t, err)
				assert.True(t, h.Verify(hash, p), "password %q", p)
				assert.False(t, h.Verify(hash, p+"x"), "password %q", p)
			}
		})
	}
}

func TestCompatHasher_AcceptsLegacyHashes(t *testing.T) {
	legacy, err := MD5Hasher{}.Hash("correct_password")
	require.NoError(t, err)

	h := CompatHasher{Bcrypt: BcryptHasher{Cost: bcrypt.MinCost}}
	assert.True(t, h.Verify(legacy, "correct_password"))
	assert.False(t, h.Verify(legacy, "wrong_password"))
	assert.True(t, h.NeedsRehash(legacy))

	fresh, err := h.Hash("correct_password")
	require.NoError(t, err)
	assert.False(t, h.NeedsRehash(fresh))
	assert.NotEqual(t, legacy, fresh)
}

func TestIsLegacy(t *testing.T) {
	assert.True(t, IsLegacy("5f4dcc3b5aa765d61d8327deb882cf99"))
	assert.False(t, IsLegacy("5F4DCC3B5AA765D61D8327DEB882CF99"))
	assert.False(t, IsLegacy("5f4dcc3b5aa765d61d8327deb882cf9"))
	assert.False(t, IsLegacy("$2a$10$abcdefghijklmnopqrstuv"))
}

func TestNew(t *testing.T) {
	for _, kind := range []string{KindMD5, KindBcrypt, KindCompat, ""} {
		h, err := New(kind)
		require.NoError(t, err, kind)
		assert.NotNil(t, h)
	}

	_, err := New("sha1")
	assert.ErrorIs(t, err, ErrUnknownHasher)
}

func TestBcryptHasher_LongPasswords(t *testing.T) {
	h, err := New(KindCompat)
	require.NoError(t, err)

	long := strings.Repeat("a", 73)
	hash, err := h.Hash(long)
	require.NoError(t, err)
	assert.True(t, h.Verify(hash, long))

	// Совпадают первые 72 байта, отличается хвост.
	assert.False(t, h.Verify(hash, strings.Repeat("a", 72)))
	assert.False(t, h.Verify(hash, strings.Repeat("a", 72)+"b"))

	multibyte := strings.Repeat("ё", 40)
	require.Greater(t, len(multibyte), 72)
	hash, err = h.Hash(multibyte)
	require.NoError(t, err)
	assert.True(t, h.Verify(hash, multibyte))
	assert.False(t, h.Verify(hash, strings.Repeat("ё", 39)))
}
