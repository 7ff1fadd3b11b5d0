package image

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"sctools/internal/asm"
	"sctools/internal/isa"
)

func TestMergeSplit(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		pageSize int
		pages    int
	}{
		{"empty", 0, 0x4000, 1},
		{"one page", 100, 0x4000, 1},
		{"exact", 0x8000, 0x4000, 2},
		{"short last", 0x8001, 0x4000, 3},
		{"unpaged", 0x9000, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := make([]byte, tt.size)
			for i := range code {
				code[i] = byte(i)
			}
			pages := Split(code, tt.pageSize)
			if len(pages) != tt.pages {
				t.Fatalf("pages = %d, want %d", len(pages), tt.pages)
			}
			if got := Merge(pages); !bytes.Equal(got, code) {
				t.Errorf("Merge(Split(code)) differs")
			}
		})
	}
}

func TestReadWrite(t *testing.T) {
	e := asm.NewEmitter(isa.RDR2)
	e.Enter(0, 0, "main")
	e.Leave(0, 0)
	im, err := e.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	f := New(isa.RDR2, im)
	f.Functions = []Function{{Name: "main", Start: 0, End: len(im.Code)}}

	dir := t.TempDir()
	path := filepath.Join(dir, "main.scbc")
	if err := Write(path, f); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(path, "")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Target != "rdr2" || got.PageSize != isa.RDR2.PageSize || !bytes.Equal(got.Code, im.Code) {
		t.Errorf("read back %+v", got)
	}
	if len(got.Functions) != 1 || got.Functions[0] != f.Functions[0] {
		t.Errorf("functions = %+v", got.Functions)
	}
}

func TestReadRaw(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "code.bin")
	raw := []byte{byte(isa.GTA5.MustOpcode("NOP"))}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path, ""); err == nil {
		t.Errorf("raw code without a target should fail")
	}
	f, err := Read(path, "GTA5")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if f.Target != "gta5" || !bytes.Equal(f.Code, raw) {
		t.Errorf("raw image = %+v", f)
	}
}

func TestUnmarshalRejects(t *testing.T) {
	bad := &File{Magic: Magic, Version: Version, Target: "gta5", Code: []byte{1, 2},
		Functions: []Function{{Name: "f", Start: 0, End: 3}}}
	data, err := Marshal(bad)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(data); err == nil {
		t.Errorf("function past the code end should be rejected")
	}
	if _, err := Unmarshal([]byte("not cbor")); err == nil {
		t.Errorf("garbage should be rejected")
	}
}
