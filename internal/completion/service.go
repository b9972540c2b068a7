package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"unicode/utf8"

	"github.com/invopop/jsonschema"

	"joke_contest/internal/domain"
)

// Service turns instructions plus a conversation into raw model text that
// should match req.Schema. Implementations must honor ctx cancellation.
type Service interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type Request struct {
	Instructions string
	Conversation []domain.Turn
	Schema       Schema
}

type Schema struct {
	Name        string
	Description string
	Definition  *jsonschema.Schema
}

// Shape is a structured result the caller expects back.
type Shape interface {
	Validate() error
}

// Func adapts a plain function to Service.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Complete asks svc for a result shaped like out (a pointer), decodes it
// strictly and validates it. Decode or validation failures wrap
// domain.ErrValidation; failures of svc itself wrap domain.ErrCollaborator.
// A single attempt is made.
func Complete(ctx context.Context, svc Service, instructions string, conversation []domain.Turn, out Shape) error {
	schema, err := SchemaFor(out)
	if err != nil {
		return err
	}
	raw, err := svc.Complete(ctx, Request{
		Instructions: instructions,
		Conversation: conversation,
		Schema:       schema,
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrCollaborator, schema.Name, err)
	}
	if err := Decode(raw, out); err != nil {
		return fmt.Errorf("%s: %w", schema.Name, err)
	}
	return nil
}

// Decode parses raw into out and validates the result.
func Decode(raw string, out Shape) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(extractJSONObject(raw))))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: decode model output: %v; output: %s", domain.ErrValidation, err, trim(raw, 200))
	}
	if err := out.Validate(); err != nil {
		if !errors.Is(err, domain.ErrValidation) {
			err = fmt.Errorf("%w: %w", domain.ErrValidation, err)
		}
		return err
	}
	return nil
}

var reflector = jsonschema.Reflector{
	Anonymous:                 true,
	AllowAdditionalProperties: false,
	DoNotReference:            true,
}

// SchemaFor derives the strict JSON schema for out, which must be a
// non-nil pointer to a struct.
func SchemaFor(out Shape) (Schema, error) {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return Schema{}, fmt.Errorf("%w: completion target must be a pointer to struct, got %T", domain.ErrConfiguration, out)
	}
	name := rv.Elem().Type().Name()
	def := reflector.Reflect(out)
	// strict response formats reject the $schema keyword
	def.Version = ""
	return Schema{
		Name:        name,
		Description: "structured " + name,
		Definition:  def,
	}, nil
}

func trim(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
