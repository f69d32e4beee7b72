package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Morwran/yagpt"
	"gopkg.in/yaml.v3"

	"llm-assistant/internal/keys"
)

const (
	ServiceOpenAI    = "openai"
	ServiceAnthropic = "anthropic"
	ServiceYandex    = "yandex"
)

var ErrModelNotFound = errors.New("llm model not found")

// ModelDescriptor identifies one callable model endpoint.
type ModelDescriptor struct {
	Name            string            `json:"name" yaml:"name"`
	ProviderModel   string            `json:"provider_model,omitempty" yaml:"provider_model,omitempty"`
	Endpoint        string            `json:"endpoint" yaml:"endpoint"`
	Service         string            `json:"service,omitempty" yaml:"service,omitempty"`
	APIKey          string            `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	APIKeyEnv       string            `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	EncryptedAPIKey string            `json:"encrypted_api_key,omitempty" yaml:"encrypted_api_key,omitempty"`
	FolderID        string            `json:"folder_id,omitempty" yaml:"folder_id,omitempty"`
	RequiresKey     *bool             `json:"requires_key,omitempty" yaml:"requires_key,omitempty"`
	Headers         map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// ServiceName normalises Service; anything unknown speaks the OpenAI protocol.
func (m ModelDescriptor) ServiceName() string {
	switch s := strings.ToLower(strings.TrimSpace(m.Service)); s {
	case ServiceAnthropic, ServiceYandex:
		return s
	default:
		return ServiceOpenAI
	}
}

// RemoteModel is the model identifier sent on the wire.
func (m ModelDescriptor) RemoteModel() string {
	if m.ProviderModel != "" {
		return m.ProviderModel
	}
	return m.Name
}

// Key returns the configured credential: a literal or decrypted key first,
// then the named environment variable.
func (m ModelDescriptor) Key() string {
	if m.APIKey != "" {
		return m.APIKey
	}
	if m.APIKeyEnv != "" {
		return strings.TrimSpace(os.Getenv(m.APIKeyEnv))
	}
	return ""
}

// NeedsKey reports whether calls must carry a credential. Local endpoints
// (LM Studio, Ollama) default to no key; cloud services default to one.
func (m ModelDescriptor) NeedsKey() bool {
	if m.RequiresKey != nil {
		return *m.RequiresKey
	}
	if m.ServiceName() != ServiceOpenAI {
		return true
	}
	return !isLocalEndpoint(m.Endpoint)
}

func isLocalEndpoint(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	if host == "localhost" || strings.HasSuffix(host, ".local") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}

// Catalog is the immutable set of models loaded at startup.
type Catalog struct {
	models      []ModelDescriptor
	byName      map[string]int
	defaultName string
}

func NewCatalog(models []ModelDescriptor, defaultName string) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]int, len(models)), defaultName: defaultName}
	for _, m := range models {
		if strings.TrimSpace(m.Name) == "" {
			return nil, fmt.Errorf("model without a name in catalog")
		}
		if _, dup := c.byName[m.Name]; dup {
			return nil, fmt.Errorf("duplicate model %q in catalog", m.Name)
		}
		if m.Endpoint == "" && m.ServiceName() != ServiceYandex {
			return nil, fmt.Errorf("model %q has no endpoint", m.Name)
		}
		// yagpt always targets the lite model.
		if m.ServiceName() == ServiceYandex && m.ProviderModel != "" && m.ProviderModel != yagpt.YaModelLite {
			return nil, fmt.Errorf("model %q: yandex supports only provider_model %q", m.Name, yagpt.YaModelLite)
		}
		c.byName[m.Name] = len(c.models)
		c.models = append(c.models, m)
	}
	return c, nil
}

// LoadCatalog reads a JSON or YAML model list. A missing file yields an
// empty catalog. Encrypted keys are decrypted once here; dec may be nil when
// no entry carries encrypted_api_key.
func LoadCatalog(path, defaultName string, dec keys.Decrypter) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewCatalog(nil, defaultName)
	}
	if err != nil {
		return nil, fmt.Errorf("read model catalog: %w", err)
	}

	var models []ModelDescriptor
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &models)
	default:
		err = json.Unmarshal(data, &models)
	}
	if err != nil {
		return nil, fmt.Errorf("parse model catalog %s: %w", path, err)
	}

	for i := range models {
		m := &models[i]
		if m.EncryptedAPIKey == "" {
			continue
		}
		if dec == nil {
			return nil, fmt.Errorf("model %q has an encrypted key: %w", m.Name, keys.ErrMissingMasterKey)
		}
		key, err := dec.Decrypt(m.EncryptedAPIKey)
		if err != nil {
			return nil, fmt.Errorf("decrypt key for model %q: %w", m.Name, err)
		}
		m.APIKey = key
	}
	return NewCatalog(models, defaultName)
}

// Resolve finds a model by name; an empty name selects the default.
func (c *Catalog) Resolve(name string) (ModelDescriptor, error) {
	if name == "" {
		name = c.defaultName
	}
	i, ok := c.byName[name]
	if !ok {
		return ModelDescriptor{}, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	return c.models[i], nil
}

func (c *Catalog) DefaultName() string { return c.defaultName }

func (c *Catalog) Len() int { return len(c.models) }

// Names lists the catalog's model names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.models))
	for _, m := range c.models {
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names
}
