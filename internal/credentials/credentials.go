// Package credentials persists the oracle API identities. The file is a JSON
// object mapping a session name to [api_id, api_hash, ...]; object key order
// is the rotation order.
package credentials

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/contact-enricher/internal/model"
)

// ErrDuplicate is returned by Add for a name already in the file.
var ErrDuplicate = errors.New("credentials: duplicate session name")

var trailingNumber = regexp.MustCompile(`(\d+)$`)

// entry keeps the raw value array so fields beyond api_id and api_hash
// survive a rewrite.
type entry struct {
	name   string
	values []any
}

// File is a credential file on disk.
type File struct {
	path string
}

// NewFile returns a File at path. The file need not exist yet.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the file location.
func (f *File) Path() string {
	return f.path
}

// Load returns the credentials in file order.
func (f *File) Load() ([]model.Credential, error) {
	entries, err := f.read()
	if err != nil {
		return nil, err
	}

	creds := make([]model.Credential, 0, len(entries))
	for _, e := range entries {
		c, err := toCredential(e)
		if err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	return creds, nil
}

// NextName proposes the name for a new credential: the trailing number of
// the last entry plus one, "session1" for an empty file.
func (f *File) NextName() (string, error) {
	entries, err := f.read()
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "session1", nil
	}

	n := len(entries)
	if m := trailingNumber.FindStringSubmatch(entries[len(entries)-1].name); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			n = v
		}
	}
	return fmt.Sprintf("session%d", n+1), nil
}

// Add appends cred and rewrites the file.
func (f *File) Add(cred model.Credential) error {
	if cred.Name == "" || cred.APIID == 0 || cred.APIHash == "" {
		return eris.New("credentials: name, api id and api hash are required")
	}

	entries, err := f.read()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.name == cred.Name {
			return eris.Wrapf(ErrDuplicate, "credentials: %s", cred.Name)
		}
	}

	entries = append(entries, entry{name: cred.Name, values: []any{cred.APIID, cred.APIHash}})
	return f.write(entries)
}

// read decodes the file through a yaml.Node so object key order is kept.
// A missing file reads as empty.
func (f *File) read() ([]entry, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "credentials: read %s", f.path)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "credentials: parse %s", f.path)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, eris.Errorf("credentials: %s must hold an object", f.path)
	}

	entries := make([]entry, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		var values []any
		if err := root.Content[i+1].Decode(&values); err != nil {
			return nil, eris.Wrapf(err, "credentials: entry %s", name)
		}
		entries = append(entries, entry{name: name, values: values})
	}
	return entries, nil
}

// write replaces the file atomically, keeping entry order.
func (f *File) write(entries []entry) error {
	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, e := range entries {
		key, err := marshal(e.name)
		if err != nil {
			return err
		}
		val, err := marshal(e.values)
		if err != nil {
			return err
		}
		buf.WriteString("    ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(val)
		if i < len(entries)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "credentials: create dir %s", dir)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return eris.Wrapf(err, "credentials: write %s", tmp)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return eris.Wrapf(err, "credentials: replace %s", f.path)
	}
	return nil
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, eris.Wrap(err, "credentials: encode")
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func toCredential(e entry) (model.Credential, error) {
	if len(e.values) < 2 {
		return model.Credential{}, eris.Errorf("credentials: entry %s needs [api_id, api_hash]", e.name)
	}

	var id int
	switch v := e.values[0].(type) {
	case int:
		id = v
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return model.Credential{}, eris.Wrapf(err, "credentials: entry %s api_id", e.name)
		}
		id = n
	default:
		return model.Credential{}, eris.Errorf("credentials: entry %s api_id has type %T", e.name, v)
	}

	hash, ok := e.values[1].(string)
	if !ok || hash == "" {
		return model.Credential{}, eris.Errorf("credentials: entry %s api_hash must be a string", e.name)
	}
	return model.Credential{Name: e.name, APIID: id, APIHash: hash}, nil
}
