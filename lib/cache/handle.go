package cache

import (
	"fmt"
	"strings"
)

// DocumentHandle identifies a single document by collection and key
type DocumentHandle struct {
	Collection string
	Key        string
}

// NewHandle creates a document handle
func NewHandle(collection, key string) DocumentHandle {
	return DocumentHandle{Collection: collection, Key: key}
}

// ParseHandle parses a document id of the form "collection/key"
func ParseHandle(id string) (DocumentHandle, error) {
	collection, key, ok := strings.Cut(id, "/")
	if !ok || collection == "" || key == "" || strings.Contains(key, "/") {
		return DocumentHandle{}, fmt.Errorf("invalid document id %q, expected collection/key", id)
	}
	return DocumentHandle{Collection: collection, Key: key}, nil
}

// String returns the document id "collection/key"
func (h DocumentHandle) String() string {
	return h.Collection + "/" + h.Key
}
