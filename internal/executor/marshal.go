package executor

import (
	"encoding/json"

	"github.com/langbridge/bridge-engine/internal/protocol"
)

func marshalRequest(req protocol.Request) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, protocol.Wrap(protocol.KindSerialization, err)
	}
	return append(payload, '\n'), nil
}
