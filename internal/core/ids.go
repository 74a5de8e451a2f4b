package core

import (
	"fmt"
	"time"
)

const conversationIDLayout = "20060102_150405"

// newConversationID derives an id from the wall clock. When the second is
// already taken a counter suffix is added: 20240501_101500_1, _2, ...
func newConversationID(now time.Time, taken func(string) bool) string {
	base := now.Format(conversationIDLayout)
	if !taken(base) {
		return base
	}
	for n := 1; ; n++ {
		id := fmt.Sprintf("%s_%d", base, n)
		if !taken(id) {
			return id
		}
	}
}
