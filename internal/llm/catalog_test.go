package llm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-assistant/internal/keys"
)

func testCipher(t *testing.T) keys.Cipher {
	t.Helper()
	key := make([]byte, keys.KeySize)
	for i := range key {
		key[i] = byte(i * 7)
	}
	c, err := keys.New(keys.CipherCBC, key)
	require.NoError(t, err)
	return c
}

func TestLoadCatalog_JSONDecryptsKeys(t *testing.T) {
	c := testCipher(t)
	enc, err := c.Encrypt("sk-secret")
	require.NoError(t, err)

	p := filepath.Join(t.TempDir(), "llm_models.json")
	data := `[
	  {"name": "gpt-3.5-turbo", "endpoint": "https://api.openai.com/v1/chat/completions", "encrypted_api_key": "` + enc + `"},
	  {"name": "local", "endpoint": "http://localhost:1234/v1/chat/completions", "service": "openai"}
	]`
	require.NoError(t, os.WriteFile(p, []byte(data), 0o600))

	cat, err := LoadCatalog(p, "gpt-3.5-turbo", c)
	require.NoError(t, err)
	assert.Equal(t, 2, cat.Len())

	m, err := cat.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", m.Key())
	assert.True(t, m.NeedsKey())

	local, err := cat.Resolve("local")
	require.NoError(t, err)
	assert.False(t, local.NeedsKey())
	assert.Equal(t, []string{"gpt-3.5-turbo", "local"}, cat.Names())
}

func TestLoadCatalog_YAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "models.yaml")
	data := `
- name: claude
  provider_model: claude-3-haiku-20240307
  endpoint: https://api.anthropic.com/v1/messages
  service: anthropic
  api_key_env: ANTHROPIC_API_KEY
- name: ollama
  endpoint: http://192.168.1.10:11434/v1/chat/completions
  requires_key: true
`
	require.NoError(t, os.WriteFile(p, []byte(data), 0o600))

	cat, err := LoadCatalog(p, "claude", nil)
	require.NoError(t, err)
	m, err := cat.Resolve("claude")
	require.NoError(t, err)
	assert.Equal(t, ServiceAnthropic, m.ServiceName())
	assert.Equal(t, "claude-3-haiku-20240307", m.RemoteModel())

	o, err := cat.Resolve("ollama")
	require.NoError(t, err)
	assert.True(t, o.NeedsKey())
	assert.Equal(t, "ollama", o.RemoteModel())
}

func TestLoadCatalog_MissingFileIsEmpty(t *testing.T) {
	cat, err := LoadCatalog(filepath.Join(t.TempDir(), "absent.json"), "gpt-3.5-turbo", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, cat.Len())
	_, err = cat.Resolve("")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestLoadCatalog_EncryptedKeyWithoutDecrypter(t *testing.T) {
	p := filepath.Join(t.TempDir(), "m.json")
	require.NoError(t, os.WriteFile(p, []byte(`[{"name":"x","endpoint":"https://e","encrypted_api_key":"abc"}]`), 0o600))
	_, err := LoadCatalog(p, "x", nil)
	assert.ErrorIs(t, err, keys.ErrMissingMasterKey)
}

func TestNewCatalog_Rejects(t *testing.T) {
	_, err := NewCatalog([]ModelDescriptor{{Name: "a", Endpoint: "https://e"}, {Name: "a", Endpoint: "https://e"}}, "a")
	assert.Error(t, err)
	_, err = NewCatalog([]ModelDescriptor{{Name: "a"}}, "a")
	assert.Error(t, err)
	_, err = NewCatalog([]ModelDescriptor{{Name: "ya", Service: "yandex", FolderID: "f"}}, "ya")
	assert.NoError(t, err)
	_, err = NewCatalog([]ModelDescriptor{{Name: "ya", Service: "yandex", FolderID: "f", ProviderModel: "yandexgpt-lite"}}, "ya")
	assert.NoError(t, err)
	_, err = NewCatalog([]ModelDescriptor{{Name: "ya", Service: "yandex", FolderID: "f", ProviderModel: "yandexgpt"}}, "ya")
	assert.Error(t, err)
}

func TestOpenAIBaseURL(t *testing.T) {
	assert.Equal(t, "https://api.openai.com/v1", openaiBaseURL("https://api.openai.com/v1/chat/completions"))
	assert.Equal(t, "http://localhost:1234/v1", openaiBaseURL("http://localhost:1234/v1/chat/completions/"))
	assert.Equal(t, "https://openrouter.ai/api/v1", openaiBaseURL("https://openrouter.ai/api/v1"))
}
