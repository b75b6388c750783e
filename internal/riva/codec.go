package riva

import "fmt"

// rawCodec passes pre-encoded protobuf bytes through gRPC untouched. Riva
// messages are built with protowire, so no generated stubs are needed.
type rawCodec struct{}

func (rawCodec) Name() string { return "proto" }

func (rawCodec) Marshal(v any) ([]byte, error) {
	switch msg := v.(type) {
	case []byte:
		return msg, nil
	case *[]byte:
		return *msg, nil
	default:
		return nil, fmt.Errorf("raw codec cannot marshal %T", v)
	}
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	out, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("raw codec cannot unmarshal into %T", v)
	}
	*out = append((*out)[:0], data...)
	return nil
}
