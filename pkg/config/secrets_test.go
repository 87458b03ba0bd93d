package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptSecretsRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()

	password := "test-password-12345"
	secrets := map[string]string{
		"ANTHROPIC_API_KEY":    "sk-ant-test123",
		"OPENAI_API_KEY":       "sk-test-openai",
		"GOOGLE_GENAI_API_KEY": "AIza-test",
	}

	require.NoError(t, EncryptSecretsFile(tmpDir, password, secrets))

	secretsPath := filepath.Join(tmpDir, ".csvanalyst", secretsFileName)
	info, err := os.Stat(secretsPath)
	require.NoError(t, err, "secrets file was not created")
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	decrypted, err := DecryptSecretsFile(tmpDir, password)
	require.NoError(t, err)
	assert.Equal(t, secrets, decrypted)
}

func TestDecryptWithWrongPassword(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, EncryptSecretsFile(tmpDir, "correct-password", map[string]string{
		"OPENAI_API_KEY": "sk-test",
	}))

	_, err := DecryptSecretsFile(tmpDir, "wrong-password")
	require.Error(t, err)
	assert.Equal(t, "decryption failed (wrong password or corrupted file)", err.Error())
}

func TestSecretsFileExists(t *testing.T) {
	tmpDir := t.TempDir()

	assert.False(t, SecretsFileExists(tmpDir))
	require.NoError(t, EncryptSecretsFile(tmpDir, "pw", map[string]string{"K": "V"}))
	assert.True(t, SecretsFileExists(tmpDir))
}

func TestGetSecretPrecedence(t *testing.T) {
	defer SetDecryptedSecrets(nil)

	t.Setenv("CSVANALYST_TEST_SECRET", "from-env")

	SetDecryptedSecrets(nil)
	value, err := GetSecret("CSVANALYST_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-env", value)

	SetDecryptedSecrets(map[string]string{"CSVANALYST_TEST_SECRET": "from-file"})
	value, err = GetSecret("CSVANALYST_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-file", value, "secrets file should win over environment")

	_, err = GetSecret("CSVANALYST_SECRET_THAT_DOES_NOT_EXIST")
	assert.Error(t, err)
}

func TestGetDecryptedSecretNames(t *testing.T) {
	defer SetDecryptedSecrets(nil)

	SetDecryptedSecrets(map[string]string{"B_KEY": "2", "A_KEY": "1"})
	assert.Equal(t, []string{"A_KEY", "B_KEY"}, GetDecryptedSecretNames())
}

func TestCorruptedSecretsFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, ".csvanalyst"), 0755))
	require.NoError(t, os.WriteFile(SecretsFilePath(tmpDir), []byte("short"), 0600))

	_, err := DecryptSecretsFile(tmpDir, "pw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too small")
}

func TestDecryptFixesPermissions(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(tmpDir, "pw", map[string]string{"K": "V"}))
	require.NoError(t, os.Chmod(SecretsFilePath(tmpDir), 0644))

	_, err := DecryptSecretsFile(tmpDir, "pw")
	require.NoError(t, err)

	info, err := os.Stat(SecretsFilePath(tmpDir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
