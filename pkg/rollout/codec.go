package rollout

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Format is a rollout document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the document format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
}

//go:embed schema.json
var schemaDocument []byte

var schema = func() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaDocument))
	if err != nil {
		panic(fmt.Sprintf("rollout: invalid embedded schema: %v", err))
	}
	return s
}()

// Decode parses a rollout document, checks it against the schema and validates it.
// The returned result carries warnings even when decoding succeeds. A document
// that fails any step is rejected with an error.
func Decode(r io.Reader, format Format) (*Config, ValidationResult, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, ValidationResult{}, errors.Join(ErrDecode, err)
	}

	doc, err := toJSON(raw, format)
	if err != nil {
		return nil, ValidationResult{}, err
	}

	if err := checkSchema(doc); err != nil {
		return nil, ValidationResult{}, err
	}

	var cfg Config
	if err := json.Unmarshal(doc, &cfg); err != nil {
		return nil, ValidationResult{}, errors.Join(ErrDecode, err)
	}
	cfg.normalize()
	for i := range cfg.Phases {
		if cfg.Phases[i].Status == "" {
			cfg.Phases[i].Status = StatusPending
		}
	}
	for name, env := range cfg.Environments {
		if env.Override != nil && env.Override.Status == "" {
			env.Override.Status = StatusPending
			cfg.Environments[name] = env
		}
	}

	res := Validate(&cfg)
	if err := res.Err(); err != nil {
		return nil, res, err
	}
	return &cfg, res, nil
}

// Encode serializes cfg, including mutated phase pointers and statuses.
func Encode(w io.Writer, cfg *Config, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			return errors.Join(ErrEncode, err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return errors.Join(ErrEncode, err)
		}
		if err := enc.Close(); err != nil {
			return errors.Join(ErrEncode, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// LoadFile reads and decodes the rollout document at path.
func LoadFile(path string) (*Config, ValidationResult, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, ValidationResult{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, ValidationResult{}, errors.Join(ErrDecode, err)
	}
	defer f.Close()
	return Decode(f, format)
}

// SaveFile writes cfg to path, replacing the file atomically.
func SaveFile(path string, cfg *Config) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Join(ErrEncode, err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, cfg, format); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Join(ErrEncode, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Join(ErrEncode, err)
	}
	return nil
}

// toJSON converts the raw document into JSON so that both formats share the
// schema check and the json struct tags.
func toJSON(raw []byte, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		if !json.Valid(raw) {
			return nil, errors.Join(ErrDecode, errors.New("malformed JSON"))
		}
		return raw, nil
	case FormatYAML:
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, errors.Join(ErrDecode, err)
		}
		out, err := json.Marshal(doc)
		if err != nil {
			return nil, errors.Join(ErrDecode, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func checkSchema(doc []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return errors.Join(ErrDecode, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(msgs, "; "))
}
