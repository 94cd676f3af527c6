package settings

import (
	"errors"
	"fmt"
)

// KeySeparator joins group and setting ids in persistent keys
const KeySeparator = ":"

var ErrKeyTooLong = errors.New("persistent key too long")

// Keys maps every setting of a pack to its persistent key
type Keys struct {
	keys map[*Setting]string
}

// Of returns the key derived for s, or "" if s was not part of the pack.
func (k Keys) Of(s *Setting) string {
	return k.keys[s]
}

// Len returns the number of keys in the table
func (k Keys) Len() int {
	return len(k.keys)
}

// DeriveKeys builds the key table for p. Any key longer than maxLen
// fails the whole derivation and no table is returned.
func DeriveKeys(p *Pack, maxLen int) (Keys, error) {
	keys := make(map[*Setting]string, p.Len())
	for _, g := range p.Groups {
		for _, s := range g.Settings {
			key := g.ID + KeySeparator + s.ID
			if len(key) > maxLen {
				return Keys{}, fmt.Errorf("%w (%d > %d): %s", ErrKeyTooLong, len(key), maxLen, key)
			}
			keys[s] = key
		}
	}
	return Keys{keys: keys}, nil
}
