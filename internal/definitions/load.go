package definitions

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"acolyte/internal/logging"

	"gopkg.in/yaml.v3"
)

// ErrInvalidDefinition is wrapped by every definition problem.
var ErrInvalidDefinition = errors.New("invalid definition")

// Files expands paths into the definition files they name: files as given,
// directories as their *.yaml and *.yml entries, sorted.
func Files(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("definitions path %s: %w", p, err)
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("read definitions dir %s: %w", p, err)
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && IsDefinitionFile(e.Name()) {
				found = append(found, filepath.Join(p, e.Name()))
			}
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}

// IsDefinitionFile reports whether name looks like a definitions file.
func IsDefinitionFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// ParseFile decodes one definitions document. Unknown keys are rejected.
func ParseFile(data []byte) (File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, err
	}
	return f, nil
}

// Load reads every definition file under paths and resolves them into a
// Library. Problems are returned as a list; the library holds everything that
// was valid. A nil library means nothing could be read at all.
func Load(paths []string) (*Library, []error) {
	files, err := Files(paths)
	if err != nil {
		return nil, []error{err}
	}

	var (
		docs  []sourced
		probs []error
	)
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			probs = append(probs, &DefinitionError{File: path, Kind: "file", Msg: err.Error()})
			continue
		}
		f, err := ParseFile(data)
		if err != nil {
			probs = append(probs, &DefinitionError{File: path, Kind: "file", Msg: err.Error()})
			continue
		}
		docs = append(docs, sourced{path: path, file: f})
	}

	lib, more := resolve(docs)
	lib.Files = files
	probs = append(probs, more...)

	logging.Definitions("loaded %d operations, %d goals, %d motivations from %d files (%d problems)",
		len(lib.Operations), len(lib.Goals), len(lib.Motivations), len(files), len(probs))
	for _, p := range probs {
		logging.DefinitionsWarn("%v", p)
	}
	return lib, probs
}

// LoadBytes resolves a single in-memory document, named name in errors.
func LoadBytes(name string, data []byte) (*Library, []error) {
	f, err := ParseFile(data)
	if err != nil {
		return newLibrary(), []error{&DefinitionError{File: name, Kind: "file", Msg: err.Error()}}
	}
	return resolve([]sourced{{path: name, file: f}})
}

type sourced struct {
	path string
	file File
}
