package evidence

import (
	"github.com/APTrust/evidence-services/util"
)

// DigestPair holds the lowercase hex SHA-256 and SHA-512 digests of
// an artifact's content.
type DigestPair struct {
	Sha256 string `json:"sha256"`
	Sha512 string `json:"sha512"`
}

// Valid returns true if both digests are lowercase hex of the
// correct length.
func (d DigestPair) Valid() bool {
	return util.LooksLikeDigest(d.Sha256, 64) && util.LooksLikeDigest(d.Sha512, 128)
}
