package stage

import "fmt"

// ParseEndstop decodes the two-character endstop status. The first character
// flags the maximum endstop and the second the minimum endstop, so the result
// is +1 at the maximum, -1 at the minimum and 0 in between.
func ParseEndstop(resp string) (int, error) {
	if resp == "11" {
		return 0, ErrInconsistentEndstop
	}
	if len(resp) != 2 {
		return 0, fmt.Errorf("%w: endstop status %q", ErrMalformedResponse, resp)
	}
	maxFlag, ok1 := flag(resp[0])
	minFlag, ok2 := flag(resp[1])
	if !ok1 || !ok2 {
		return 0, fmt.Errorf("%w: endstop status %q", ErrMalformedResponse, resp)
	}
	return maxFlag - minFlag, nil
}

func flag(c byte) (int, bool) {
	switch c {
	case '0':
		return 0, true
	case '1':
		return 1, true
	}
	return 0, false
}
