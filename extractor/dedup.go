package extractor

// KeySet tracks which natural keys of one entity kind are already staged,
// together with the descriptive fingerprint of the row that won. Policy is
// first-write-wins: repeat keys stage nothing, and a repeat carrying other
// descriptive attributes only bumps the conflict counter.
type KeySet struct {
	items map[string]string
}

func NewKeySet(capacity int) *KeySet {
	return &KeySet{items: make(map[string]string, capacity)}
}

// Seen records key on first sight. firstseen reports whether the entity must
// be staged now; conflict reports a repeat key with differing attributes.
func (k *KeySet) Seen(key string, fingerprint string) (firstseen bool, conflict bool) {
	prev, ok := k.items[key]
	if !ok {
		k.items[key] = fingerprint
		return true, false
	}
	return false, prev != fingerprint
}

func (k *KeySet) Len() int {
	return len(k.items)
}
