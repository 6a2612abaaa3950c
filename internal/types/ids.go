// internal/types/ids.go
package types

import "github.com/google/uuid"

type ContentID string

func NewContentID() ContentID {
	return ContentID(uuid.New().String())
}
