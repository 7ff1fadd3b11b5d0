package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeProject(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		target string
		color  string
		opt    bool
	}{
		{"empty", "", "gta5", "auto", false},
		{"target", `target = "RDR2"`, "rdr2", "auto", false},
		{"sections", "target = \"gta4\"\n[assemble]\noptimize = true\n[disasm]\ncolor = \"never\"\n", "gta4", "never", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeProject(t, dir, tt.body)
			c, err := Load(dir)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if c.Target != tt.target || c.Disasm.Color != tt.color || c.Assemble.Optimize != tt.opt {
				t.Errorf("config = %+v", c)
			}
			if c.Dir == "" {
				t.Errorf("Dir not set")
			}
		})
	}
}

func TestLoadError(t *testing.T) {
	dir := t.TempDir()
	writeProject(t, dir, "target = [")
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "parse error") {
		t.Errorf("err = %v", err)
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeProject(t, root, "[cipher]\nkey-file = \"key.bin\"\n")
	if err := os.WriteFile(filepath.Join(root, "key.bin"), []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil || c == nil {
		t.Fatalf("FindAndLoad = %v, %v", c, err)
	}
	key, err := c.CipherKey()
	if err != nil || !bytes.Equal(key, []byte{1, 2, 3}) {
		t.Errorf("CipherKey = % X, %v", key, err)
	}
}

func TestCipherKeyHex(t *testing.T) {
	c := Default()
	c.Cipher.Key = "00ff10"
	key, err := c.CipherKey()
	if err != nil || !bytes.Equal(key, []byte{0x00, 0xFF, 0x10}) {
		t.Errorf("CipherKey = % X, %v", key, err)
	}
	c.Cipher.Key = "xyz"
	if _, err := c.CipherKey(); err == nil {
		t.Errorf("bad hex should fail")
	}
}

func TestSchema(t *testing.T) {
	bts, err := Schema()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"rdr2", "requireFunction", "rawBytes"} {
		if !bytes.Contains(bts, []byte(want)) {
			t.Errorf("schema lacks %q", want)
		}
	}
}
