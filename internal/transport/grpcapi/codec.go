package grpcapi

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName — content-subtype запросов OrderDesk (application/grpc+json).
const codecName = "json"

// jsonCodec кодирует сообщения OrderDesk в JSON; health и прочие protobuf-сервисы
// продолжают использовать кодек по умолчанию.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
