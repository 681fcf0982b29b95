package core

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewLogID 生成结算记录 ID
func NewLogID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("cmp_%d_%s", time.Now().UnixNano(), hex.EncodeToString(b))
}
