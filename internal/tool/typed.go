package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"atproto-mcp/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
)

// Func is the strongly-typed body of a tool.
type Func[In, Out any] func(ctx context.Context, in In) (Out, error)

// NoArgs is the input of tools that take no arguments.
type NoArgs struct{}

var (
	validate = newValidator()
	// Inline every type, named or not. ExpandedStruct looks the root up by
	// type name and so cannot handle anonymous argument structs.
	reflector = &jsonschema.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
)

type typedTool[In, Out any] struct {
	name        string
	description string
	schema      json.RawMessage
	fn          Func[In, Out]
}

// New builds a tool whose input schema is generated from In. Arguments are
// decoded into In and checked against its `validate` tags before fn runs.
func New[In, Out any](name, description string, fn Func[In, Out]) domain.Tool {
	return &typedTool[In, Out]{
		name:        name,
		description: description,
		schema:      Schema[In](),
		fn:          fn,
	}
}

func (t *typedTool[In, Out]) Name() string                 { return t.name }
func (t *typedTool[In, Out]) Description() string          { return t.description }
func (t *typedTool[In, Out]) InputSchema() json.RawMessage { return t.schema }

func (t *typedTool[In, Out]) Execute(ctx context.Context, args map[string]any) (any, error) {
	var in In
	if err := Decode(args, &in); err != nil {
		return nil, fmt.Errorf("%s: %w", t.name, err)
	}
	return t.fn(ctx, in)
}

// Schema returns the JSON Schema object describing In.
func Schema[In any]() json.RawMessage {
	var zero In
	s := reflector.Reflect(&zero)
	s.Version = ""

	data, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	// MCP clients expect an object schema with a properties member, even when empty.
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	obj["type"] = "object"
	if _, ok := obj["properties"]; !ok {
		obj["properties"] = map[string]any{}
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return out
}

// Decode converts loosely-typed arguments into dst and validates it.
func Decode(args map[string]any, dst any) error {
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return domain.WrapError(domain.CodeValidation, "invalid arguments", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			return domain.Validationf("invalid argument %s: expected %s, got %s", te.Field, te.Type, te.Value)
		}
		return domain.WrapError(domain.CodeValidation, "invalid arguments", err)
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.WrapError(domain.CodeValidation, "invalid arguments", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return domain.Validationf("%s", strings.Join(msgs, "; "))
}

// describe renders a field error using the argument's JSON path.
func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return "missing required argument: " + field
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
