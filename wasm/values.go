package wasm

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tetratelabs/wazero/api"
)

// CallText calls an export with textual arguments, converting them according
// to the function signature, and formats the results the same way.
func (m *Module) CallText(ctx context.Context, name string, args ...string) ([]string, error) {
	fn, ok := m.funcs[name]
	if !ok {
		return nil, ExportNotFoundError{Module: m.name, Name: name}
	}
	def := fn.Definition()
	params, err := EncodeValues(def.ParamTypes(), args)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", name, err)
	}
	results, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", name, err)
	}
	return FormatValues(def.ResultTypes(), results), nil
}

// EncodeValues parses args into raw wasm values of the given types.
func EncodeValues(types []api.ValueType, args []string) ([]uint64, error) {
	if len(types) != len(args) {
		return nil, fmt.Errorf("want %d arguments, got %d", len(types), len(args))
	}
	out := make([]uint64, len(args))
	for i, arg := range args {
		var err error
		switch types[i] {
		case api.ValueTypeI32:
			var v int64
			v, err = strconv.ParseInt(arg, 10, 32)
			out[i] = api.EncodeI32(int32(v))
		case api.ValueTypeI64:
			var v int64
			v, err = strconv.ParseInt(arg, 10, 64)
			out[i] = api.EncodeI64(v)
		case api.ValueTypeF32:
			var v float64
			v, err = strconv.ParseFloat(arg, 32)
			out[i] = api.EncodeF32(float32(v))
		case api.ValueTypeF64:
			var v float64
			v, err = strconv.ParseFloat(arg, 64)
			out[i] = api.EncodeF64(v)
		default:
			err = fmt.Errorf("unsupported parameter type %s", api.ValueTypeName(types[i]))
		}
		if err != nil {
			return nil, fmt.Errorf("argument %d (%q): %w", i, arg, err)
		}
	}
	return out, nil
}

// FormatValues renders raw wasm values of the given types.
func FormatValues(types []api.ValueType, values []uint64) []string {
	out := make([]string, len(values))
	for i, v := range values {
		var t api.ValueType
		if i < len(types) {
			t = types[i]
		}
		switch t {
		case api.ValueTypeI32:
			out[i] = strconv.FormatInt(int64(api.DecodeI32(v)), 10)
		case api.ValueTypeI64:
			out[i] = strconv.FormatInt(int64(v), 10)
		case api.ValueTypeF32:
			out[i] = strconv.FormatFloat(float64(api.DecodeF32(v)), 'g', -1, 32)
		case api.ValueTypeF64:
			out[i] = strconv.FormatFloat(api.DecodeF64(v), 'g', -1, 64)
		default:
			out[i] = "0x" + strconv.FormatUint(v, 16)
		}
	}
	return out
}
