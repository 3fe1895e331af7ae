// Package operations is the table of budget API operations shared by the
// gRPC and HTTP transports. Each operation decodes a JSON request object,
// runs one app.Service method and returns a JSON-encodable result.
package operations

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
	"github.com/openkfw/trubudget/internal/services/budget/app"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
)

// Method says whether an operation reads or changes state.
type Method string

const (
	// Read operations take their parameters from the query string.
	Read Method = "GET"
	// Write operations take a JSON body.
	Write Method = "POST"
)

// Handler runs one operation for actor.
type Handler func(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in Input) (any, error)

// Operation is one named API call.
type Operation struct {
	Name   string
	Method Method
	Handle Handler
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Input is the undecoded request object of an operation.
type Input struct {
	raw json.RawMessage
}

// JSONInput wraps a JSON object. An empty body is an empty object.
func JSONInput(raw []byte) Input {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = []byte("{}")
	}
	return Input{raw: raw}
}

// QueryInput turns the first value of each query parameter into a string
// field of the request object.
func QueryInput(values url.Values) Input {
	fields := make(map[string]string, len(values))
	for key, list := range values {
		if len(list) > 0 {
			fields[key] = list[0]
		}
	}
	raw, _ := json.Marshal(fields)
	return Input{raw: raw}
}

// Decode unmarshals the request into dst and checks its validate tags.
func (in Input) Decode(dst any) error {
	raw := in.raw
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperrors.InvalidInput(apperrors.CodeInvalidInput, fmt.Sprintf("request is not a valid JSON object: %v", err))
	}
	if err := validate.Struct(dst); err != nil {
		return invalidFields(err)
	}
	return nil
}

func invalidFields(err error) error {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return apperrors.InvalidInput(apperrors.CodeInvalidInput, err.Error())
	}
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Field())
	}
	return apperrors.WithMetadata(apperrors.CodeInvalidInput,
		"missing or invalid fields: "+strings.Join(names, ", "),
		map[string]string{"Fields": strings.Join(names, ",")})
}

// handle adapts a typed handler to Handler.
func handle[In any](fn func(ctx context.Context, svc *app.Service, actor identity.ServiceUser, in In) (any, error)) Handler {
	return func(ctx context.Context, svc *app.Service, actor identity.ServiceUser, input Input) (any, error) {
		var in In
		if err := input.Decode(&in); err != nil {
			return nil, err
		}
		return fn(ctx, svc, actor, in)
	}
}

var table = map[string]Operation{}

func register(ops ...Operation) {
	for _, op := range ops {
		if _, dup := table[op.Name]; dup {
			panic("duplicate operation " + op.Name)
		}
		table[op.Name] = op
	}
}

// Lookup returns the operation called name.
func Lookup(name string) (Operation, bool) {
	op, ok := table[name]
	return op, ok
}

// All returns every operation ordered by name.
func All() []Operation {
	out := make([]Operation, 0, len(table))
	for _, op := range table {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
