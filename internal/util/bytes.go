package util

import (
	"strings"

	units "github.com/docker/go-units"
)

// ParseByteSize converts a human-readable size such as "1.50GiB", "200MB" or
// "512" into bytes. Suffixes carrying an "i" (KiB, MiB, GiB) are binary
// multiples of 1024; the rest are decimal multiples of 1000. A bare number is
// a byte count. Anything unparseable, including docker's "--" placeholder,
// yields 0.
func ParseByteSize(s string) int64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return 0
	}

	var (
		n   int64
		err error
	)
	if strings.ContainsAny(s, "iI") {
		n, err = units.RAMInBytes(s)
	} else {
		n, err = units.FromHumanSize(s)
	}
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// SplitPair splits "a / b" pairs as printed by docker stats (MemUsage, NetIO,
// BlockIO) and parses each side with ParseByteSize.
func SplitPair(s string) (int64, int64) {
	left, right, ok := strings.Cut(s, "/")
	if !ok {
		return ParseByteSize(left), 0
	}
	return ParseByteSize(left), ParseByteSize(right)
}
