// Package device holds the adapters between the safe core ports and the
// outside world: a line-oriented keypad, logging and recording indicators,
// and wall-clock and fake delayers.
package device

import "digisafe/internal/safe/models"

// The 4x4 keypad, column by column:
//
//	1 2 3 A
//	4 5 6 B
//	7 8 9 C
//	* 0 # D
var keyRunes = map[rune]models.Key{
	'0': 0, '1': 1, '2': 2, '3': 3, '4': 4,
	'5': 5, '6': 6, '7': 7, '8': 8, '9': 9,
	'*': models.KeyCancel,
	'#': models.KeyConfirm,
	'A': models.KeySelect0,
	'B': models.KeySelect0 + 1,
	'C': models.KeySelect0 + 2,
	'D': models.KeySelect0 + 3,
	'a': models.KeySelect0,
	'b': models.KeySelect0 + 1,
	'c': models.KeySelect0 + 2,
	'd': models.KeySelect0 + 3,
}

// ParseKey maps a keypad legend to its key code.
func ParseKey(r rune) (models.Key, bool) {
	k, ok := keyRunes[r]
	return k, ok
}

// KeyRune returns the keypad legend for k, or '?' for an invalid key.
func KeyRune(k models.Key) rune {
	switch {
	case k.IsDigit():
		return rune('0' + k)
	case k == models.KeyCancel:
		return '*'
	case k == models.KeyConfirm:
		return '#'
	case k.IsSelect():
		return rune('A' + k - models.KeySelect0)
	}
	return '?'
}

// ParseKeys maps every legend in s, skipping anything that is not a key.
func ParseKeys(s string) []models.Key {
	keys := make([]models.Key, 0, len(s))
	for _, r := range s {
		if k, ok := ParseKey(r); ok {
			keys = append(keys, k)
		}
	}
	return keys
}
