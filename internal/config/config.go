// Package config handles sctools.toml project configuration.
package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/invopop/jsonschema"
)

// FileName is the project file looked up by FindAndLoad.
const FileName = "sctools.toml"

// Config represents a sctools.toml project configuration.
type Config struct {
	Target   string         `toml:"target" json:"target" jsonschema:"title=Target,description=Default instruction set,enum=gta4,enum=gta5,enum=rdr2"`
	Assemble AssembleConfig `toml:"assemble" json:"assemble"`
	Disasm   DisasmConfig   `toml:"disasm" json:"disasm"`
	Cipher   CipherConfig   `toml:"cipher" json:"cipher"`
	Log      LogConfig      `toml:"log" json:"log"`

	// Dir is the directory containing the sctools.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// AssembleConfig configures the asm command.
type AssembleConfig struct {
	Optimize        bool   `toml:"optimize" json:"optimize" jsonschema:"title=Optimize,description=Run the peephole optimizer"`
	StripNames      bool   `toml:"strip-names" json:"stripNames" jsonschema:"title=Strip Names,description=Leave function names out of prologues"`
	RequireFunction bool   `toml:"require-function" json:"requireFunction" jsonschema:"title=Require Function,description=Reject instructions before the first ENTER"`
	Output          string `toml:"output" json:"output" jsonschema:"title=Output,description=Output directory for images"`
}

// DisasmConfig configures listings.
type DisasmConfig struct {
	Color     string `toml:"color" json:"color" jsonschema:"title=Color,description=Highlight listings,enum=auto,enum=always,enum=never"`
	Addresses bool   `toml:"addresses" json:"addresses" jsonschema:"title=Addresses,description=Prefix instructions with their address"`
	RawBytes  bool   `toml:"raw-bytes" json:"rawBytes" jsonschema:"title=Raw Bytes,description=Append the encoded bytes as a comment"`
	Lenient   bool   `toml:"lenient" json:"lenient" jsonschema:"title=Lenient,description=List bytes that are not opcodes instead of failing"`
}

// CipherConfig configures encrypt and decrypt.
type CipherConfig struct {
	Algorithm string `toml:"algorithm" json:"algorithm" jsonschema:"title=Algorithm,enum=aes,enum=xxtea,enum=xxtea-framed"`
	Key       string `toml:"key" json:"key" jsonschema:"title=Key,description=Hex encoded key"`
	KeyFile   string `toml:"key-file" json:"keyFile" jsonschema:"title=Key File,description=File holding the raw key bytes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Debug bool   `toml:"debug" json:"debug" jsonschema:"title=Debug,description=Enable debug logging"`
	File  string `toml:"file" json:"file" jsonschema:"title=Log File,description=Write logs to this file"`
}

// Default is the configuration used when no project file exists.
func Default() *Config {
	c := &Config{}
	c.fill()
	return c
}

func (c *Config) fill() {
	if c.Target == "" {
		c.Target = "gta5"
	}
	if c.Disasm.Color == "" {
		c.Disasm.Color = "auto"
	}
	if c.Cipher.Algorithm == "" {
		c.Cipher.Algorithm = "aes"
	}
	c.Target = strings.ToLower(c.Target)
}

// Load parses a sctools.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	c.fill()
	return &c, nil
}

// FindAndLoad walks up from startDir to find a sctools.toml file, then
// loads it. Returns nil if no project file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// CipherKey returns the configured key bytes. Relative key files are
// resolved against the project directory.
func (c *Config) CipherKey() ([]byte, error) {
	switch {
	case c.Cipher.Key != "":
		key, err := hex.DecodeString(c.Cipher.Key)
		if err != nil {
			return nil, fmt.Errorf("cipher key: %w", err)
		}
		return key, nil
	case c.Cipher.KeyFile != "":
		path := c.Cipher.KeyFile
		if !filepath.IsAbs(path) && c.Dir != "" {
			path = filepath.Join(c.Dir, path)
		}
		return os.ReadFile(path)
	}
	return nil, nil
}

// Schema returns the JSON schema of Config.
func Schema() ([]byte, error) {
	reflector := new(jsonschema.Reflector)
	bts, err := json.MarshalIndent(reflector.Reflect(&Config{}), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return bts, nil
}
