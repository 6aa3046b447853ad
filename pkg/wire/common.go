// pkg/wire/common.go
package wire

import "github.com/google/uuid"

// GenerateID creates a new random identifier for connections and ack correlation.
func GenerateID() string {
	return uuid.NewString()
}
