package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config is loaded from a JSON file on disk, falling back to DefaultConfig
// when the file is absent. Mirrors the teacher's own config shape: plain
// fields, no env-var layering, no remote config service.
type Config struct {
	// Admin HTTP server
	Listen    string `json:"listen"`
	JWTSecret string `json:"jwt_secret"`
	DBPath    string `json:"db_path"`

	// Admin credentials (bootstrap account, same backwards-compat fallback
	// as the teacher's login handler)
	AdminUser string `json:"admin_user"`
	AdminPass string `json:"admin_pass"`

	// Chat server. URLTemplate contains "{kind}", substituted with
	// "identified" or "unidentified" when dialing.
	ChatServerURLTemplate string `json:"chat_server_url_template"`

	// Credential sources: opaque strings handed to the transport layer as
	// extra dial headers for each kind. What they contain (a session
	// cookie, a signed device cert, ...) is outside this module's concern.
	IdentifiedCredentialSource   string `json:"identified_credential_source"`
	UnidentifiedCredentialSource string `json:"unidentified_credential_source"`

	// Paths
	DataDir string `json:"-"`
}

func DefaultConfig() *Config {
	return &Config{
		Listen:                "0.0.0.0:8080",
		JWTSecret:             "chatconn-secret-change-me",
		DBPath:                "data/chatconn.db",
		AdminUser:             "admin",
		AdminPass:             "admin123",
		ChatServerURLTemplate: "wss://chat.example.com/v1/websocket/{kind}",
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) ResolvePaths(baseDir string) {
	c.DataDir = filepath.Join(baseDir, "data")
	if !filepath.IsAbs(c.DBPath) {
		c.DBPath = filepath.Join(baseDir, c.DBPath)
	}
	os.MkdirAll(c.DataDir, 0755)
}

func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	os.MkdirAll(filepath.Dir(path), 0755)
	return os.WriteFile(path, data, 0644)
}
