package backend

import (
	"encoding/json"
	"mime"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// decodeBody decodes a response body according to its Content-Type.
// Anything that is not msgpack is treated as JSON.
func decodeBody(contentType string, data []byte, v interface{}) error {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}

	if strings.Contains(strings.ToLower(mediaType), "msgpack") {
		return msgpack.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}
