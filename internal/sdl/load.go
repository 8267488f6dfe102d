// Package sdl loads schemas written in CUE.
//
// A schema file declares a top-level schema struct:
//
//	schema: {
//		module: "default"
//		scalars: Color: enum: ["Red", "Green", "Blue"]
//		types: {
//			Named: {
//				abstract: true
//				properties: name: {type: "str", required: true, exclusive: true}
//			}
//			User: {
//				extending: ["Named"]
//				properties: friend_names: {type: "str", expr: ".friends.name"}
//				links: friends: {target: "User", multi: true, properties: since: type: "datetime"}
//			}
//		}
//		casts: [{from: "str", to: "Color"}]
//	}
//
// Computed pointer expressions, constraint except clauses and parameter
// defaults are query expressions in the YAML form read by qlast.
package sdl

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/pathql/internal/schema"
)

// Result is a loaded schema with the CUE value it was built from.
type Result struct {
	Schema    *schema.Schema
	Module    string
	Value     cue.Value
	FileCount int
	// Digest hashes the schema sources. Caches use it as the schema
	// version.
	Digest string
}

// LoadDir loads every .cue file of dir as one CUE instance and builds
// the schema it declares. Validation errors are joined; use Errors to
// list them.
func LoadDir(dir string) (*Result, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("accessing schema directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	insts := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(insts) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	if err := insts[0].Err; err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", err)}
	}

	v := cuecontext.New().BuildInstance(insts[0])
	res, err := fromValue(v)
	if err != nil {
		return nil, err
	}
	res.FileCount = len(files)
	res.Digest, err = digestFiles(dir, files)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("hashing schema files: %v", err)}
	}
	return res, nil
}

// LoadFile loads a single CUE file.
func LoadFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading schema file: %v", err)}
	}
	res, err := LoadString(string(data), path)
	if res != nil {
		res.FileCount = 1
	}
	return res, err
}

// LoadString compiles src as CUE and builds the schema it declares.
// filename is used in positions.
func LoadString(src, filename string) (*Result, error) {
	v := cuecontext.New().CompileString(src, cue.Filename(filename))
	res, err := fromValue(v)
	if err != nil {
		return nil, err
	}
	h := sha256.Sum256([]byte(src))
	res.Digest = hex.EncodeToString(h[:])
	return res, nil
}

// Load loads path, which may be a file or a directory.
func Load(path string) (*Result, error) {
	info, err := os.Stat(path)
	if err == nil && !info.IsDir() {
		return LoadFile(path)
	}
	return LoadDir(path)
}

func fromValue(v cue.Value) (*Result, error) {
	if err := v.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err), Pos: v.Pos()}
	}
	sv := v.LookupPath(cue.ParsePath("schema"))
	if !sv.Exists() {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: "no top-level schema struct", Pos: v.Pos()}
	}
	s, module, err := Build(sv)
	if err != nil {
		return nil, err
	}
	return &Result{Schema: s, Module: module, Value: v}, nil
}

// digestFiles hashes the names relative to dir and contents of files, in
// order.
func digestFiles(dir string, files []string) (string, error) {
	h := sha256.New()
	for _, f := range files {
		rel, err := filepath.Rel(dir, f)
		if err != nil {
			return "", err
		}
		data, err := os.ReadFile(f)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s\x00%d\x00", filepath.ToSlash(rel), len(data))
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FindCUEFiles walks dir and returns the paths of its .cue files.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	return files, nil
}
