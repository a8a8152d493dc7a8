package chain

import (
	"strconv"
	"time"
)

type deferredKey struct {
	sender string
	id     uint64
}

func (k deferredKey) String() string {
	return k.sender + ":" + strconv.FormatUint(k.id, 10)
}

type deferredTx struct {
	key       deferredKey
	deliverAt time.Time
	actions   []Action
}
