package abc

import "strings"

// KeySignature maps a key name ("g", "em", "bb", "f#m", ...) to the
// per-diatonic-step accidental offsets its signature implies. Unknown keys
// yield all-naturals.
func KeySignature(name string) map[byte]int {
	out := map[byte]int{'c': 0, 'd': 0, 'e': 0, 'f': 0, 'g': 0, 'a': 0, 'b': 0}
	key := strings.ToLower(strings.TrimSpace(name))
	// strip mode words and explicit-accidental tails ("G mixolydian", "D ^f")
	if sp := strings.IndexByte(key, ' '); sp >= 0 {
		mode := strings.TrimSpace(key[sp:])
		key = key[:sp]
		if strings.HasPrefix(mode, "m") && !strings.HasPrefix(mode, "mix") {
			key += "m"
		}
	}
	key = strings.ReplaceAll(key, "maj", "")
	key = strings.ReplaceAll(key, "min", "m")
	switch key {
	case "", "c", "am", "none":
		// all naturals
	case "g", "em":
		out['f'] = 1
	case "d", "bm":
		out['f'], out['c'] = 1, 1
	case "a", "f#m":
		out['f'], out['c'], out['g'] = 1, 1, 1
	case "e", "c#m":
		out['f'], out['c'], out['g'], out['d'] = 1, 1, 1, 1
	case "b", "g#m":
		out['f'], out['c'], out['g'], out['d'], out['a'] = 1, 1, 1, 1, 1
	case "f#", "d#m":
		out['f'], out['c'], out['g'], out['d'], out['a'], out['e'] = 1, 1, 1, 1, 1, 1
	case "c#", "a#m":
		out['f'], out['c'], out['g'], out['d'], out['a'], out['e'], out['b'] = 1, 1, 1, 1, 1, 1, 1
	case "f", "dm":
		out['b'] = -1
	case "bb", "gm":
		out['b'], out['e'] = -1, -1
	case "eb", "cm":
		out['b'], out['e'], out['a'] = -1, -1, -1
	case "ab", "fm":
		out['b'], out['e'], out['a'], out['d'] = -1, -1, -1, -1
	case "db", "bbm":
		out['b'], out['e'], out['a'], out['d'], out['g'] = -1, -1, -1, -1, -1
	case "gb", "ebm":
		out['b'], out['e'], out['a'], out['d'], out['g'], out['c'] = -1, -1, -1, -1, -1, -1
	case "cb", "abm":
		out['b'], out['e'], out['a'], out['d'], out['g'], out['c'], out['f'] = -1, -1, -1, -1, -1, -1, -1
	}
	return out
}
