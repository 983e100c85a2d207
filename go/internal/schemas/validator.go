package schemas

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// validator compiles JSON-Schema documents and caches them by schema name.
// A cached entry is reused only while the stored document is unchanged.
type validator struct {
	mu    sync.Mutex
	cache map[string]compiledSchema
}

type compiledSchema struct {
	raw    string
	schema *jsonschema.Schema
}

func newValidator() *validator {
	return &validator{cache: make(map[string]compiledSchema)}
}

func (v *validator) compile(name string, raw []byte) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if c, ok := v.cache[name]; ok && c.raw == string(raw) {
		return c.schema, nil
	}

	compiled, err := compile(name, raw)
	if err != nil {
		return nil, err
	}
	v.cache[name] = compiledSchema{raw: string(raw), schema: compiled}
	return compiled, nil
}

func (v *validator) forget(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.cache, name)
}

func compile(name string, raw []byte) (*jsonschema.Schema, error) {
	url := fmt.Sprintf("mem://schemas/%s.json", name)
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// validationMessage flattens a jsonschema error into one readable line.
func validationMessage(err error) string {
	var verr *jsonschema.ValidationError
	if errors.As(err, &verr) {
		leaf := verr
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		if leaf.InstanceLocation != "" {
			return fmt.Sprintf("%s: %s", leaf.InstanceLocation, leaf.Message)
		}
		return leaf.Message
	}
	return err.Error()
}
