package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Credentials is the optional TOML file that keeps deploy secrets out of the
// main configuration:
//
//	host = "ftp.example.com"
//	user = "site"
//	password = "secret"
type Credentials struct {
	Host       string   `toml:"host"`
	Port       int      `toml:"port"`
	User       string   `toml:"user"`
	Password   string   `toml:"password"`
	RemoteRoot string   `toml:"remote_root"`
	Timeout    duration `toml:"timeout"`

	defined map[string]bool
}

// duration lets the file spell timeouts as "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// LoadCredentials decodes a credentials file. Unknown keys are rejected so a
// typo does not silently fall back to the main configuration.
func LoadCredentials(path string) (*Credentials, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("deploy credentials file: %w", err)
	}

	var creds Credentials
	meta, err := toml.DecodeFile(path, &creds)
	if err != nil {
		return nil, fmt.Errorf("parsing deploy credentials %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("deploy credentials %s: unknown key %q", path, undecoded[0].String())
	}

	creds.defined = make(map[string]bool)
	for _, key := range []string{"host", "port", "user", "password", "remote_root", "timeout"} {
		if meta.IsDefined(key) {
			creds.defined[key] = true
		}
	}

	return &creds, nil
}

// Apply overrides the keys the file defines.
func (c *Credentials) Apply(d *DeployConfig) {
	if c.defined["host"] {
		d.Host = c.Host
	}
	if c.defined["port"] {
		d.Port = c.Port
	}
	if c.defined["user"] {
		d.User = c.User
	}
	if c.defined["password"] {
		d.Password = c.Password
	}
	if c.defined["remote_root"] {
		d.RemoteRoot = c.RemoteRoot
	}
	if c.defined["timeout"] {
		d.Timeout = c.Timeout.Duration
	}
}
