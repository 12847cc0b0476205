package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// GenerateKey joins a namespace prefix and an identifier.
func GenerateKey(prefix, id string) string {
	return prefix + ":" + id
}

// GenerateKeyWithParams builds a key from a prefix and ordered parameters,
// so equivalent requests map to the same cache entry.
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range params {
		fmt.Fprintf(&b, ":%v", p)
	}
	return b.String()
}

// HashKey digests a key to a fixed-width hex string. Used when raw keys
// can grow unbounded, such as keys derived from request parameter lists.
func HashKey(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// BuildPattern turns a prefix into the glob DeleteByPattern expects.
func BuildPattern(prefix string) string {
	return prefix + "*"
}
