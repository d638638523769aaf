package mockresponse

import (
	"fmt"
	"sync/atomic"
	"time"
)

var messageSequence atomic.Uint64

// nextMessageID synthesizes a unique id for every mock response emitted by
// this process: msg_<unix-millis>_<process-local-sequence>, the same shape
// original_source's build_message_id produces.
func nextMessageID() string {
	seq := messageSequence.Add(1)
	return fmt.Sprintf("msg_%d_%d", time.Now().UnixMilli(), seq)
}
