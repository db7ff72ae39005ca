package dhan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"exchange/internal/domain"
)

const testEncryptionKey = "unit-test-passphrase"

func sealCredential(t *testing.T, plain string) string {
	t.Helper()
	sealed, err := EncryptSecret(plain, testEncryptionKey)
	require.NoError(t, err)
	return sealed
}

func TestCredentialFactoryExpandsPerConnection(t *testing.T) {
	raw := []string{
		sealCredential(t, "client-1:key-1"),
		sealCredential(t, "client-2:key-2"),
	}

	factory, err := NewCredentialFactory(raw, 3, testEncryptionKey)
	require.NoError(t, err)

	creds := factory.Credentials()
	require.Len(t, creds, 6)

	counts := map[domain.Credential]int{}
	for _, cred := range creds {
		counts[cred]++
	}
	require.Equal(t, 3, counts[domain.Credential{ClientID: "client-1", APIKey: "key-1"}])
	require.Equal(t, 3, counts[domain.Credential{ClientID: "client-2", APIKey: "key-2"}])
}

func TestCredentialFactoryTrimsWhitespace(t *testing.T) {
	factory, err := NewCredentialFactory([]string{sealCredential(t, " client-1 : key-1 ")}, 1, testEncryptionKey)
	require.NoError(t, err)
	require.Equal(t, []domain.Credential{{ClientID: "client-1", APIKey: "key-1"}}, factory.Credentials())
}

func TestCredentialFactoryRejectsBadSecrets(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not base64", "%%%"},
		{"wrong key", mustSealWith(t, "client:key", "other-passphrase")},
		{"no delimiter", sealCredential(t, "clientkey")},
		{"two delimiters", sealCredential(t, "a:b:c")},
		{"empty client id", sealCredential(t, ":key")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCredentialFactory([]string{tc.raw}, 1, testEncryptionKey)
			require.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}

func mustSealWith(t *testing.T, plain, key string) string {
	t.Helper()
	sealed, err := EncryptSecret(plain, key)
	require.NoError(t, err)
	return sealed
}

func TestRandomCredential(t *testing.T) {
	factory, err := NewCredentialFactory([]string{sealCredential(t, "client-1:key-1")}, 2, testEncryptionKey)
	require.NoError(t, err)

	cred, err := factory.RandomCredential()
	require.NoError(t, err)
	require.Equal(t, "client-1", cred.ClientID)

	empty := &CredentialFactory{}
	_, err = empty.RandomCredential()
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	sealed, err := EncryptSecret("client-9:key-9", testEncryptionKey)
	require.NoError(t, err)

	plain, err := decryptSecret(sealed, testEncryptionKey)
	require.NoError(t, err)
	require.Equal(t, "client-9:key-9", plain)
}
