package shortener

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"time"
)

// Base62 alphabet: 0-9, a-z, A-Z
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// TempIDSuffixLength is the number of random characters in a temp id.
const TempIDSuffixLength = 9

// GenerateSecureSlug creates a cryptographically secure random Base62 slug.
func GenerateSecureSlug(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid slug length: %d", length)
	}

	// Rejection sampling avoids modulo bias; 248 = 4*62.
	const maxRandomByte = 248

	slug := make([]byte, length)
	buf := make([]byte, length*2)
	written := 0

	for written < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read secure random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= maxRandomByte {
				continue
			}
			slug[written] = alphabet[int(b)%len(alphabet)]
			written++
			if written == length {
				break
			}
		}
	}

	return string(slug), nil
}

// TempID returns an id for photos uploaded before an account exists,
// shaped temp_{unixMillis}_{9 base62 chars}.
func TempID(now time.Time) (string, error) {
	suffix, err := GenerateSecureSlug(TempIDSuffixLength)
	if err != nil {
		return "", err
	}
	return "temp_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + suffix, nil
}
