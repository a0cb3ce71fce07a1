package rag

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"
)

const tenantTagLen = 16

// Fingerprint identifies an ask request for caching. Each field is written
// with a length prefix so ("ab", "c") and ("a", "bc") never collide, and the
// digest is stable across processes and restarts.
func Fingerprint(tenantID, question, systemPrompt string) string {
	h := sha256.New()
	var size [8]byte
	for _, field := range []string{tenantID, question, systemPrompt} {
		binary.BigEndian.PutUint64(size[:], uint64(len(field)))
		h.Write(size[:])
		h.Write([]byte(field))
	}
	return TenantTag(tenantID) + ":" + hex.EncodeToString(h.Sum(nil))
}

// WithEpoch scopes a fingerprint to a tenant cache epoch. The
// tenant tag stays the leading segment.
func WithEpoch(fingerprint string, epoch int64) string {
	return fingerprint + ":e" + strconv.FormatInt(epoch, 10)
}

// TenantTag is the fingerprint prefix shared by all of a tenant's requests.
// It lets the cache drop one tenant's answers without storing raw tenant ids
// in keys.
func TenantTag(tenantID string) string {
	sum := sha256.Sum256([]byte(tenantID))
	return hex.EncodeToString(sum[:])[:tenantTagLen]
}

// FingerprintTenantTag returns the tenant tag embedded in a fingerprint.
func FingerprintTenantTag(fingerprint string) string {
	tag, _, ok := strings.Cut(fingerprint, ":")
	if !ok {
		return ""
	}
	return tag
}
