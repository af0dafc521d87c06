package grpcsvc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// CodecName — content-subtype кодека OrderService (application/grpc+pbstruct).
// На проводе — protobuf-сообщение google.protobuf.Struct, см. api/proto/wholesale/v1/order_service.proto.
const CodecName = "pbstruct"

// maxExactInteger — предел целых, которые Struct (double) передаёт без потерь.
const maxExactInteger = 1 << 53

// structCodec кодирует сообщения OrderService как google.protobuf.Struct.
// proto.Message передаются как есть.
type structCodec struct{}

func (structCodec) Marshal(v any) ([]byte, error) {
	if msg, ok := v.(proto.Message); ok {
		return proto.Marshal(msg)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var fields map[string]any
	if err := decoder.Decode(&fields); err != nil {
		return nil, fmt.Errorf("encode %T: message must be an object: %w", v, err)
	}

	msg, err := structFromMap(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return proto.Marshal(msg)
}

func (structCodec) Unmarshal(data []byte, v any) error {
	if msg, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, msg)
	}

	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	raw, err := protojson.Marshal(&msg)
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return json.Unmarshal(raw, v)
}

func (structCodec) Name() string {
	return CodecName
}

func structFromMap(fields map[string]any) (*structpb.Struct, error) {
	out := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(fields))}
	for key, raw := range fields {
		value, err := structValue(raw)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		out.Fields[key] = value
	}
	return out, nil
}

func structValue(raw any) (*structpb.Value, error) {
	switch v := raw.(type) {
	case nil:
		return structpb.NewNullValue(), nil
	case bool:
		return structpb.NewBoolValue(v), nil
	case string:
		return structpb.NewStringValue(v), nil
	case json.Number:
		return numberValue(v)
	case map[string]any:
		nested, err := structFromMap(v)
		if err != nil {
			return nil, err
		}
		return structpb.NewStructValue(nested), nil
	case []any:
		list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(v))}
		for i, item := range v {
			value, err := structValue(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			list.Values = append(list.Values, value)
		}
		return structpb.NewListValue(list), nil
	default:
		return nil, fmt.Errorf("unsupported json value %T", raw)
	}
}

// numberValue отказывает целым за пределами точности double, чтобы суммы не искажались молча.
func numberValue(n json.Number) (*structpb.Value, error) {
	if i, err := n.Int64(); err == nil {
		if i > maxExactInteger || i < -maxExactInteger {
			return nil, fmt.Errorf("integer %d exceeds %d", i, int64(maxExactInteger))
		}
		return structpb.NewNumberValue(float64(i)), nil
	}
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) {
		return nil, fmt.Errorf("invalid number %s", n.String())
	}
	return structpb.NewNumberValue(f), nil
}

func init() {
	encoding.RegisterCodec(structCodec{})
}
