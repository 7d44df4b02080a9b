package password

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argon2Version is argon2.Version (0x13) as written in PHC strings.
const argon2Version = 19

var phcB64 = base64.RawStdEncoding

// phcHash is a decoded $argon2id$ PHC string.
type phcHash struct {
	params Argon2idParams
	salt   []byte
	key    []byte
}

// derive computes the Argon2id key of password under p and salt.
func derive(password string, salt []byte, p Argon2idParams) []byte {
	return argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)
}

func newPHC(password string, salt []byte, p Argon2idParams) phcHash {
	p.SaltLength = uint32(len(salt)) // #nosec G115 -- salt length comes from Config.Check bounds.
	return phcHash{params: p, salt: salt, key: derive(password, salt, p)}
}

// String renders $argon2id$v=19$m=<kib>,t=<iter>,p=<par>$<salt>$<key>.
func (h phcHash) String() string {
	var b strings.Builder
	b.WriteString("$argon2id$v=")
	b.WriteString(strconv.Itoa(argon2Version))
	fmt.Fprintf(&b, "$m=%d,t=%d,p=%d$", h.params.MemoryKiB, h.params.Iterations, h.params.Parallelism)
	b.WriteString(phcB64.EncodeToString(h.salt))
	b.WriteByte('$')
	b.WriteString(phcB64.EncodeToString(h.key))
	return b.String()
}

// matches recomputes the key for password and compares in constant time.
func (h phcHash) matches(password string) bool {
	got := derive(password, h.salt, h.params)
	return subtle.ConstantTimeCompare(got, h.key) == 1
}

// parsePHC strictly decodes an encoded hash. Stored hashes are untrusted
// input, so every field is checked before any Argon2 work happens.
func parsePHC(encoded string) (phcHash, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return phcHash{}, ErrInvalidHash
	}
	if fields[2] != "v="+strconv.Itoa(argon2Version) {
		return phcHash{}, ErrInvalidHash
	}

	var mem, iter, par uint32
	if n, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &mem, &iter, &par); err != nil || n != 3 {
		return phcHash{}, ErrInvalidHash
	}
	if mem == 0 || iter == 0 || par == 0 || par > 255 {
		return phcHash{}, ErrInvalidHash
	}

	salt, err := phcB64.DecodeString(fields[4])
	if err != nil || len(salt) == 0 {
		return phcHash{}, ErrInvalidHash
	}
	key, err := phcB64.DecodeString(fields[5])
	if err != nil || len(key) == 0 {
		return phcHash{}, ErrInvalidHash
	}

	return phcHash{
		params: Argon2idParams{
			MemoryKiB:   mem,
			Iterations:  iter,
			Parallelism: uint8(par),
			SaltLength:  uint32(len(salt)), // #nosec G115 -- bounded by the encoded string length.
			KeyLength:   uint32(len(key)),  // #nosec G115 -- bounded by the encoded string length.
		},
		salt: salt,
		key:  key,
	}, nil
}

// affordable reports whether verifying h stays within twice the configured
// cost. Hashes made with older, cheaper settings still verify.
func (h phcHash) affordable(limit Argon2idParams) bool {
	p := h.params
	switch {
	case p.MemoryKiB > limit.MemoryKiB*2,
		p.Iterations > limit.Iterations*2,
		uint32(p.Parallelism) > uint32(limit.Parallelism)*2:
		return false
	case p.SaltLength < 8 || p.SaltLength > 64:
		return false
	case p.KeyLength < 16 || p.KeyLength > 128:
		return false
	}
	return true
}

// weakerThan reports whether h was produced with cheaper settings than p.
func (h phcHash) weakerThan(p Argon2idParams) bool {
	return h.params.MemoryKiB < p.MemoryKiB ||
		h.params.Iterations < p.Iterations ||
		h.params.KeyLength < p.KeyLength
}
