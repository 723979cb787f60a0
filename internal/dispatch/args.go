package dispatch

import (
	"errors"
	"fmt"
	"math"

	"github.com/oklog/ulid/v2"
	"github.com/tidwall/gjson"

	"github.com/rcliao/openmemory/internal/engine"
)

// args reads typed fields out of a tool call's JSON arguments.
type args struct {
	op string
	r  gjson.Result
}

func parseArgs(op string, raw []byte) (args, error) {
	a := args{op: op, r: gjson.Parse("{}")}
	if len(raw) == 0 {
		return a, nil
	}
	if !gjson.ValidBytes(raw) {
		return a, a.invalid("", errors.New("arguments are not valid JSON"))
	}
	r := gjson.ParseBytes(raw)
	if r.Type == gjson.Null {
		return a, nil
	}
	a.r = r
	if !a.r.IsObject() {
		return a, a.invalid("", errors.New("arguments must be a JSON object"))
	}
	return a, nil
}

func (a args) invalid(field string, err error) *engine.Error {
	return &engine.Error{Kind: engine.KindValidation, Op: a.op, Field: field, Err: err}
}

func (a args) get(field string) gjson.Result {
	return a.r.Get(field)
}

// str returns a string field. Missing and null both read as absent.
func (a args) str(field string, required bool) (string, bool, error) {
	v := a.get(field)
	if !v.Exists() || v.Type == gjson.Null {
		if required {
			return "", false, a.invalid(field, fmt.Errorf("%s is required", field))
		}
		return "", false, nil
	}
	if v.Type != gjson.String {
		return "", false, a.invalid(field, fmt.Errorf("%s must be a string", field))
	}
	return v.Str, true, nil
}

func (a args) number(field string) (*float64, error) {
	v := a.get(field)
	if !v.Exists() || v.Type == gjson.Null {
		return nil, nil
	}
	if v.Type != gjson.Number {
		return nil, a.invalid(field, fmt.Errorf("%s must be a number", field))
	}
	n := v.Num
	return &n, nil
}

// integer returns 0 when the field is absent, leaving the default to the
// engine. Fractional values are rejected.
func (a args) integer(field string) (int, error) {
	p, err := a.number(field)
	if err != nil || p == nil {
		return 0, err
	}
	n := *p
	if n != math.Trunc(n) || math.IsInf(n, 0) || math.Abs(n) > math.MaxInt32 {
		return 0, a.invalid(field, fmt.Errorf("%s must be an integer", field))
	}
	return int(n), nil
}

func (a args) strings(field string) ([]string, bool, error) {
	v := a.get(field)
	if !v.Exists() || v.Type == gjson.Null {
		return nil, false, nil
	}
	if !v.IsArray() {
		return nil, false, a.invalid(field, fmt.Errorf("%s must be an array of strings", field))
	}
	out := []string{}
	for _, item := range v.Array() {
		if item.Type != gjson.String {
			return nil, false, a.invalid(field, fmt.Errorf("%s must be an array of strings", field))
		}
		out = append(out, item.Str)
	}
	return out, true, nil
}

// id returns a required, well-formed ULID field.
func (a args) id(field string) (string, error) {
	s, _, err := a.str(field, true)
	if err != nil {
		return "", err
	}
	if _, err := ulid.ParseStrict(s); err != nil {
		return "", a.invalid(field, fmt.Errorf("%s is not a valid id: %w", field, err))
	}
	return s, nil
}
