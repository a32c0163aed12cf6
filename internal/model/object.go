package model

import "time"

// Object is a binary blob held by the object store, addressed by key.
type Object struct {
	Key       string
	MIME      string
	Data      []byte
	CreatedAt time.Time
}
