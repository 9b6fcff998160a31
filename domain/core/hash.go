package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Short returns the first 12 hex characters
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// ComputeInputHash fingerprints an evaluation input by its shape: the era
// sequence, the evaluated columns and the settings that change the numbers.
func ComputeInputHash(eras []string, columns []string, settings map[string]string) Hash {
	var data strings.Builder
	data.WriteString(fmt.Sprintf("rows:%d|", len(eras)))
	prev := ""
	for i, era := range eras {
		if i == 0 || era != prev {
			data.WriteString(era)
			data.WriteByte(',')
			prev = era
		}
	}
	data.WriteString("|columns:")
	data.WriteString(strings.Join(columns, ","))

	keys := sortedKeys(settings)
	for _, key := range keys {
		data.WriteString("|")
		data.WriteString(key)
		data.WriteString("=")
		data.WriteString(settings[key])
	}
	return NewHash([]byte(data.String()))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
