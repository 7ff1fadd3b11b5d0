// Package image stores finished bytecode as .scbc files: the code, its
// target and page size, and the function table recovered or emitted for
// it, CBOR encoded.
package image

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"sctools/internal/asm"
	"sctools/internal/isa"
)

// Magic identifies .scbc files.
const Magic = "scbc"

// Version is bumped on incompatible layout changes.
const Version = 1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Function is one entry of the function table, a half-open byte range.
type Function struct {
	Name  string `cbor:"1,keyasint"`
	Start int    `cbor:"2,keyasint"`
	End   int    `cbor:"3,keyasint"`
}

// File is a code image.
type File struct {
	Magic     string     `cbor:"0,keyasint"`
	Version   uint8      `cbor:"1,keyasint"`
	Target    string     `cbor:"2,keyasint"`
	PageSize  int        `cbor:"3,keyasint"`
	Code      []byte     `cbor:"4,keyasint"`
	Functions []Function `cbor:"5,keyasint,omitempty"`
}

// New wraps finished code for set.
func New(set *isa.Set, im *asm.Image) *File {
	return &File{
		Magic:    Magic,
		Version:  Version,
		Target:   set.Name,
		PageSize: im.PageSize,
		Code:     im.Code,
	}
}

// Set returns the instruction set the image was built for.
func (f *File) Set() (*isa.Set, error) { return isa.Lookup(f.Target) }

// Pages splits the code into pages; the last one may be short.
func (f *File) Pages() [][]byte { return Split(f.Code, f.PageSize) }

// Marshal serializes f to CBOR bytes.
func Marshal(f *File) ([]byte, error) {
	return cborEncMode.Marshal(f)
}

// Unmarshal deserializes a File from CBOR bytes.
func Unmarshal(data []byte) (*File, error) {
	var f File
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if f.Magic != Magic {
		return nil, fmt.Errorf("image: not a %s file", Magic)
	}
	if f.Version > Version {
		return nil, fmt.Errorf("image: version %d is newer than %d", f.Version, Version)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	prev := 0
	for _, fn := range f.Functions {
		if fn.Start < prev || fn.End < fn.Start || fn.End > len(f.Code) {
			return fmt.Errorf("image: function %s [%d, %d) is out of order or outside %d bytes of code",
				fn.Name, fn.Start, fn.End, len(f.Code))
		}
		prev = fn.End
	}
	return nil
}

// Read loads path. A file that is not an image is taken as raw code pages
// for target, which must then be known.
func Read(path, target string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if f, err := Unmarshal(data); err == nil {
		return f, nil
	}
	if target == "" {
		return nil, fmt.Errorf("%s is raw code: a target is required", path)
	}
	set, err := isa.Lookup(target)
	if err != nil {
		return nil, err
	}
	return &File{Magic: Magic, Version: Version, Target: set.Name, PageSize: set.PageSize, Code: data}, nil
}

// Write stores f at path.
func Write(path string, f *File) error {
	data, err := Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Merge concatenates code pages into one address space.
func Merge(pages [][]byte) []byte {
	n := 0
	for _, p := range pages {
		n += len(p)
	}
	code := make([]byte, 0, n)
	for _, p := range pages {
		code = append(code, p...)
	}
	return code
}

// Split cuts code into pageSize chunks. Unpaged code is one chunk.
func Split(code []byte, pageSize int) [][]byte {
	if pageSize <= 0 || len(code) <= pageSize {
		return [][]byte{code}
	}
	var pages [][]byte
	for len(code) > pageSize {
		pages = append(pages, code[:pageSize:pageSize])
		code = code[pageSize:]
	}
	return append(pages, code)
}
