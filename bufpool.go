package typecodec

import (
	"bytes"
	"sync"
)

// bytesBufPool reuses the JSON format's encode buffers.
var bytesBufPool = sync.Pool{
	New: func() any {
		// Most payloads fit in 512 bytes; larger ones grow the buffer once.
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}
