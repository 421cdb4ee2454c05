package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	ErrMissingSection = errors.New("section not found")
	ErrMissingKey     = errors.New("key not found")
	ErrUnsupportedKey = errors.New("key not supported")
	ErrInvalidValue   = errors.New("invalid value")
)

// KeyError identifies the section and key a configuration problem refers to.
type KeyError struct {
	Section string
	Key     string
	Reason  string
	Err     error
}

func (e *KeyError) Error() string {
	msg := fmt.Sprintf("<%s>", e.Section)
	if e.Key != "" {
		msg += fmt.Sprintf(" '%s'", e.Key)
	}
	msg += ": " + e.Err.Error()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

// File is a parsed configuration: named sections of key = value entries,
// kept in the order they were read.
type File struct {
	Path     string
	sections map[string]*Section
	order    []string
}

// Section holds the entries of one configuration section.
type Section struct {
	name   string
	values map[string]string
	keys   []string
}

func New() *File {
	return &File{sections: make(map[string]*Section)}
}

// Load reads a configuration file. Files ending in .yaml or .yml are read
// as YAML; anything else uses the sectioned <tag> key = value format.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var f *File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		f, err = ParseYAML(data)
	default:
		f, err = Parse(strings.NewReader(string(data)))
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	f.Path = path
	return f, nil
}

// Parse reads the sectioned format:
//
//	<classifier_system>
//		population size = 400
//	</classifier_system>
//
// Everything after a '#' is a comment.
func Parse(r io.Reader) (*File, error) {
	f := New()
	scanner := bufio.NewScanner(r)
	current := ""
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "<") {
			end := strings.Index(line, ">")
			if end < 0 {
				return nil, fmt.Errorf("line %d: unterminated tag %q", lineNo, line)
			}
			if strings.HasPrefix(line, "</") {
				name := strings.TrimSpace(line[2:end])
				if name != current {
					return nil, fmt.Errorf("line %d: section <%s> ends with </%s>", lineNo, current, name)
				}
				current = ""
				continue
			}
			if current != "" {
				return nil, fmt.Errorf("line %d: nested section in <%s>", lineNo, current)
			}
			name := strings.TrimSpace(line[1:end])
			if name == "" || strings.Contains(name, "/") {
				return nil, fmt.Errorf("line %d: invalid section name %q", lineNo, name)
			}
			current = name
			f.section(name)
			continue
		}
		eq := strings.Index(line, "=")
		if eq < 0 {
			return nil, fmt.Errorf("line %d: entry %q is not a comment, a tag, or an assignment", lineNo, line)
		}
		if current == "" {
			return nil, fmt.Errorf("line %d: assignment outside of a section", lineNo)
		}
		f.Set(current, strings.TrimSpace(line[:eq]), strings.TrimSpace(line[eq+1:]))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if current != "" {
		return nil, fmt.Errorf("section <%s> is not closed", current)
	}
	return f, nil
}

// Set stores a value, creating the section when needed.
func (f *File) Set(section, key, value string) {
	s := f.section(section)
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

func (f *File) section(name string) *Section {
	if s, ok := f.sections[name]; ok {
		return s
	}
	s := &Section{name: name, values: make(map[string]string)}
	f.sections[name] = s
	f.order = append(f.order, name)
	return s
}

func (f *File) Has(name string) bool {
	_, ok := f.sections[name]
	return ok
}

// Section returns the named section or a KeyError wrapping ErrMissingSection.
func (f *File) Section(name string) (*Section, error) {
	s, ok := f.sections[name]
	if !ok {
		return nil, &KeyError{Section: name, Err: ErrMissingSection}
	}
	return s, nil
}

// Optional returns the named section, or an empty one when the file has
// none, so every lookup falls back to its default.
func (f *File) Optional(name string) *Section {
	if s, ok := f.sections[name]; ok {
		return s
	}
	return &Section{name: name, values: map[string]string{}}
}

// Sections lists section names in file order.
func (f *File) Sections() []string {
	return append([]string(nil), f.order...)
}

// Write emits the file in the sectioned format.
func (f *File) Write(w io.Writer) error {
	for _, name := range f.order {
		s := f.sections[name]
		if _, err := fmt.Fprintf(w, "<%s>\n", name); err != nil {
			return err
		}
		for _, key := range s.keys {
			if _, err := fmt.Fprintf(w, "\t%s = %s\n", key, s.values[key]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "</%s>\n", name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Section) Name() string {
	return s.name
}

func (s *Section) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Check rejects keys that are not in allowed.
func (s *Section) Check(allowed []string) error {
	set := make(map[string]struct{}, len(allowed))
	for _, key := range allowed {
		set[key] = struct{}{}
	}
	for _, key := range s.keys {
		if _, ok := set[key]; !ok {
			return &KeyError{Section: s.name, Key: key, Err: ErrUnsupportedKey}
		}
	}
	return nil
}

func (s *Section) lookup(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *Section) Value(key string) (string, error) {
	v, ok := s.lookup(key)
	if !ok {
		return "", &KeyError{Section: s.name, Key: key, Err: ErrMissingKey}
	}
	return v, nil
}

func (s *Section) ValueOr(key, def string) string {
	if v, ok := s.lookup(key); ok {
		return v
	}
	return def
}

func (s *Section) Float(key string) (float64, error) {
	v, err := s.Value(key)
	if err != nil {
		return 0, err
	}
	return s.parseFloat(key, v)
}

func (s *Section) FloatOr(key string, def float64) (float64, error) {
	v, ok := s.lookup(key)
	if !ok {
		return def, nil
	}
	return s.parseFloat(key, v)
}

func (s *Section) Int(key string) (int, error) {
	v, err := s.Value(key)
	if err != nil {
		return 0, err
	}
	return s.parseInt(key, v)
}

func (s *Section) IntOr(key string, def int) (int, error) {
	v, ok := s.lookup(key)
	if !ok {
		return def, nil
	}
	return s.parseInt(key, v)
}

func (s *Section) Flag(key string) (bool, error) {
	v, err := s.Value(key)
	if err != nil {
		return false, err
	}
	return s.parseFlag(key, v)
}

func (s *Section) FlagOr(key string, def bool) (bool, error) {
	v, ok := s.lookup(key)
	if !ok {
		return def, nil
	}
	return s.parseFlag(key, v)
}

func (s *Section) parseFloat(key, v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &KeyError{Section: s.name, Key: key, Err: ErrInvalidValue, Reason: fmt.Sprintf("%q is not a number", v)}
	}
	return f, nil
}

func (s *Section) parseInt(key, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err == nil {
		return n, nil
	}
	// values such as "400.0" are accepted when they are whole numbers
	f, ferr := strconv.ParseFloat(v, 64)
	if ferr != nil || f != float64(int(f)) {
		return 0, &KeyError{Section: s.name, Key: key, Err: ErrInvalidValue, Reason: fmt.Sprintf("%q is not an integer", v)}
	}
	return int(f), nil
}

func (s *Section) parseFlag(key, v string) (bool, error) {
	switch v {
	case "on", "ON":
		return true, nil
	case "off", "OFF":
		return false, nil
	default:
		return false, &KeyError{Section: s.name, Key: key, Err: ErrInvalidValue, Reason: fmt.Sprintf("%q must be 'on' or 'off'", v)}
	}
}
