package capability

import (
	"fmt"
	"net/url"
	"unicode/utf8"

	"github.com/roach88/kllcore/internal/engine"
)

func stringAt(inv *engine.Invocation) (string, error) {
	strs := inv.Tables().UnicodeStrings
	i := int(inv.Param(0))
	if i < 0 || i >= len(strs) {
		return "", fmt.Errorf("%s: string index %d out of range (%d strings)", inv.Name, i, len(strs))
	}
	return strs[i], nil
}

func unicodeString(inv *engine.Invocation) error {
	_, err := stringAt(inv)
	return err
}

func unicodeChar(inv *engine.Invocation) error {
	if r := rune(inv.Param(0)); !utf8.ValidRune(r) {
		return fmt.Errorf("%s: invalid code point %#x", inv.Name, inv.Param(0))
	}
	return nil
}

// urlOpen checks that the indexed string is an absolute URL.
func urlOpen(inv *engine.Invocation) error {
	s, err := stringAt(inv)
	if err != nil {
		return err
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("%s: %w", inv.Name, err)
	}
	if !u.IsAbs() {
		return fmt.Errorf("%s: %q is not an absolute URL", inv.Name, s)
	}
	return nil
}
