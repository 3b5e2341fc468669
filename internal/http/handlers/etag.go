package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// etagPolicy picks the validator strength and cache scope of a response.
type etagPolicy struct {
	weak    bool
	private bool
}

var (
	// a single event or certificate: byte-for-byte stable
	resourceETag = etagPolicy{}
	// a public page; the same rows may come back in a new encoding
	pageETag = etagPolicy{weak: true}
	// a list owned by the caller, e.g. /certificates/me
	ownerListETag = etagPolicy{weak: true, private: true}
)

// RespondJSONWithETag writes payload with a strong ETag and answers 304
// when If-None-Match already holds it.
func RespondJSONWithETag(ctx *gin.Context, status int, payload any) {
	respondWithETag(ctx, status, payload, resourceETag)
}

func respondWithETag(ctx *gin.Context, status int, payload any, policy etagPolicy) {
	b, err := json.Marshal(payload)
	if err != nil {
		ctx.JSON(status, payload)
		return
	}

	etag := policy.tag(b)
	ctx.Header("ETag", etag)
	if policy.private {
		ctx.Header("Cache-Control", "private, no-cache")
		ctx.Header("Vary", "Authorization")
	}

	if ifNoneMatchMatches(ctx.GetHeader("If-None-Match"), etag) {
		ctx.Status(http.StatusNotModified)
		return
	}

	ctx.Data(status, "application/json; charset=utf-8", b)
}

func (p etagPolicy) tag(body []byte) string {
	sum := sha256.Sum256(body)
	tag := `"` + hex.EncodeToString(sum[:16]) + `"`
	if p.weak {
		return "W/" + tag
	}
	return tag
}

// ifNoneMatchMatches uses weak comparison, so W/"x" and "x" are equal.
func ifNoneMatchMatches(header, current string) bool {
	header = strings.TrimSpace(header)
	if header == "" || current == "" {
		return false
	}
	if header == "*" {
		return true
	}

	want := opaqueTag(current)
	for _, part := range strings.Split(header, ",") {
		if opaqueTag(part) == want {
			return true
		}
	}
	return false
}

func opaqueTag(raw string) string {
	v := strings.TrimSpace(raw)
	return strings.TrimSpace(strings.TrimPrefix(v, "W/"))
}
