package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

func NowISO() string {
	return time.Now().Format(time.RFC3339)
}

// SplitCommand splits a chat message into words, dropping @mentions and the
// bot-name suffix of the command ("/tourns@bot").
func SplitCommand(text string) []string {
	var out []string
	for _, w := range strings.Fields(text) {
		if strings.HasPrefix(w, "@") {
			continue
		}
		if len(out) == 0 && strings.HasPrefix(w, "/") {
			if i := strings.Index(w, "@"); i > 0 {
				w = w[:i]
			}
		}
		out = append(out, w)
	}
	return out
}

// ParseIndexList turns a 1-based list such as "1,3,5" into 0-based indices
// below n, skipping anything unparsable or out of range.
func ParseIndexList(s string, n int) []int {
	var out []int
	for _, part := range strings.Split(s, ",") {
		i, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || i < 1 || i > n {
			continue
		}
		out = append(out, i-1)
	}
	return out
}

// ChunkLines joins lines with newlines into messages shorter than limit
// characters. A single line longer than limit gets a message of its own.
func ChunkLines(lines []string, limit int) []string {
	var (
		out  []string
		pool []string
		size int
	)
	for _, l := range lines {
		n := utf8.RuneCountInString(l)
		if len(pool) > 0 && size+1+n >= limit {
			out = append(out, strings.Join(pool, "\n"))
			pool, size = nil, 0
		}
		if len(pool) > 0 {
			size++
		}
		pool = append(pool, l)
		size += n
	}
	if len(pool) > 0 {
		out = append(out, strings.Join(pool, "\n"))
	}
	return out
}

// SecretEqual compares two secrets in constant time.
func SecretEqual(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return hmac.Equal(ha[:], hb[:])
}
