package converters

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteTables writes the whole tables.json array in one go.
func WriteTables(path string, schemas []*SchemaDescriptor) error {
	if schemas == nil {
		schemas = []*SchemaDescriptor{}
	}
	data, err := json.MarshalIndent(schemas, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode schemas: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadTables loads a tables.json file.
func ReadTables(path string) ([]*SchemaDescriptor, error) {
	var schemas []*SchemaDescriptor
	if err := ReadJSON(path, &schemas); err != nil {
		return nil, err
	}
	return schemas, nil
}

// ExampleWriter appends UnifiedExamples to a JSON lines file, one per line.
type ExampleWriter struct {
	f     *os.File
	w     *bufio.Writer
	enc   *json.Encoder
	count int
}

// CreateExampleWriter truncates path and returns a writer for it.
func CreateExampleWriter(path string) (*ExampleWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &ExampleWriter{f: f, w: w, enc: enc}, nil
}

// Write encodes ex as one line.
func (e *ExampleWriter) Write(ex UnifiedExample) error {
	if err := e.enc.Encode(ex); err != nil {
		return fmt.Errorf("failed to write example: %w", err)
	}
	e.count++
	return nil
}

// Count is the number of examples written so far.
func (e *ExampleWriter) Count() int { return e.count }

// Close flushes and closes the file.
func (e *ExampleWriter) Close() error {
	if err := e.w.Flush(); err != nil {
		e.f.Close()
		return fmt.Errorf("failed to flush examples: %w", err)
	}
	return e.f.Close()
}

// ReadJSON decodes the JSON document at path into v.
func ReadJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// ReadJSONLines calls fn with every non-blank line of the file at path.
func ReadJSONLines(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)
	for {
		line, err := r.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			if ferr := fn(trimmed); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
}

// CopyFile copies src to dst, creating dst's directory.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrMissingInput, src)
		}
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}

// CopyDir copies the tree under src into dst, merging with what is there.
func CopyDir(src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("%w: %s", ErrMissingInput, src)
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return CopyFile(path, target)
	})
}
