package common

import (
	"strconv"
	"strings"
)

// ParseUint64orHex converts the given uint64 string into the number.
// It can parse the string with 0x prefix as well.
func ParseUint64orHex(val *string) (uint64, error) {
	if val == nil {
		return 0, nil
	}

	str := *val
	base := 10

	if strings.HasPrefix(str, "0x") {
		str = str[2:]
		base = 16
	}

	return strconv.ParseUint(str, base, 64)
}

// ParseEventSequence extracts the in-transaction sequence from a Soroban event id
// of the form "<toid>-<sequence>". Ids without a numeric second segment yield 0.
func ParseEventSequence(id string) uint64 {
	parts := strings.Split(id, "-")
	if len(parts) < 2 { //nolint:mnd
		return 0
	}

	seq, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0
	}

	return seq
}

func ToLowerWithTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
