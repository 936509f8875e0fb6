// Package objectid generates document identifiers.
//
// An identifier is 24 lower-case hex characters: a 4-byte big-endian Unix
// timestamp, 5 bytes of per-process randomness (the machine and process
// components) and a 3-byte counter that starts at a random value and wraps
// at 2^24. Identifiers generated in the same second sort by creation order
// unless the counter wraps.
package objectid

import "go.mongodb.org/mongo-driver/bson/primitive"

// Len is the length of an identifier in hex characters.
const Len = 24

// New returns a fresh identifier.
func New() string {
	return primitive.NewObjectID().Hex()
}

// IsValid reports whether s is a well-formed identifier.
func IsValid(s string) bool {
	_, err := primitive.ObjectIDFromHex(s)
	return err == nil
}
