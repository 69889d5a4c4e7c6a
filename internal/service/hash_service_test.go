package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgon2HashService_HashAndVerify(t *testing.T) {
	svc := NewArgon2HashService()

	hash, err := svc.Hash("SecureP@ssw0rd!")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))

	match, err := svc.Verify("SecureP@ssw0rd!", hash)
	require.NoError(t, err)
	assert.True(t, match)

	match, err = svc.Verify("wrong-password", hash)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestArgon2HashService_UniqueSalts(t *testing.T) {
	svc := NewArgon2HashService()

	hash1, err := svc.Hash("same-password")
	require.NoError(t, err)
	hash2, err := svc.Hash("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, hash1, hash2)
}

func TestArgon2HashService_VerifyMalformed(t *testing.T) {
	svc := NewArgon2HashService()
	valid, err := svc.Hash("pw")
	require.NoError(t, err)
	parts := strings.Split(valid, "$")

	tests := []struct {
		name string
		hash string
	}{
		{"garbage", "not-a-valid-hash"},
		{"wrong algorithm", strings.Replace(valid, "argon2id", "argon2i", 1)},
		{"wrong version", strings.Replace(valid, "v=19", "v=16", 1)},
		{"zero threads", strings.Replace(valid, "p=4", "p=0", 1)},
		{"bad salt", "$" + strings.Join([]string{parts[1], parts[2], parts[3], "!!!", parts[5]}, "$")},
		{"empty key", "$" + strings.Join([]string{parts[1], parts[2], parts[3], parts[4], ""}, "$")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify("pw", tt.hash)
			assert.ErrorIs(t, err, errMalformedHash)
		})
	}
}
