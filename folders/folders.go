// Package folders persists the bot's named content lists. Each folder is a
// two-digit slot holding an ordered list of text entries; the whole set is
// stored as one JSON document and rewritten in full on every mutation.
package folders

import (
	"errors"
	"fmt"
)

const (
	documentVersion = 1
	slotCount       = 5
)

var ErrUnknownSlot = errors.New("folders: unknown slot")

// SlotIDs returns the recognized slot identifiers in scan order.
func SlotIDs() []string {
	out := make([]string, 0, slotCount)
	for i := 1; i <= slotCount; i++ {
		out = append(out, slotID(i))
	}
	return out
}

func IsSlotID(id string) bool {
	for i := 1; i <= slotCount; i++ {
		if slotID(i) == id {
			return true
		}
	}
	return false
}

func slotID(n int) string {
	return fmt.Sprintf("%02d", n)
}

type document struct {
	Version int                 `json:"version"`
	Slots   map[string][]string `json:"slots"`
}
