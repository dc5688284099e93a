package reaction

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	salt    = []byte("pulse.core.reaction.token")
	nowFunc = time.Now // mockable
)

// EncodeRecordID base64 encodes a record ID for use in reaction links.
func EncodeRecordID(id int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

func decodeRecordID(rid string) (int64, error) {
	data, err := base64.RawURLEncoding.DecodeString(rid)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(data), 10, 64)
}

func makeToken(secret []byte, rec Record) string {
	return makeTokenWithTimestamp(secret, rec, numDaysSince2001(nowFunc()))
}

// verifyToken checks that a reaction token is untampered and within expiry.
func verifyToken(secret []byte, rec Record, token string, expiry time.Duration) error {
	if token == "" {
		return ErrInvalidToken
	}

	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return ErrInvalidToken
	}

	data, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(parts[0])
	if err != nil {
		return ErrInvalidToken
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return ErrInvalidToken
	}

	newToken := makeTokenWithTimestamp(secret, rec, ts)
	if subtle.ConstantTimeCompare([]byte(newToken), []byte(token)) == 0 {
		return ErrInvalidToken
	}

	if (numDaysSince2001(nowFunc()) - ts) > int(expiry/(24*time.Hour)) {
		return ErrTokenExpired
	}
	return nil
}

func makeTokenWithTimestamp(secret []byte, rec Record, ts int) string {
	tsB32 := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(strconv.Itoa(ts)))
	return fmt.Sprintf("%s-%s", tsB32, sign(secret, hashValue(rec, ts)))
}

func numDaysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}

func sign(secret, val []byte) string {
	key := sha256.Sum256(append(salt, secret...))
	h := hmac.New(sha256.New, key[:])
	h.Write(val)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func hashValue(rec Record, ts int) []byte {
	var val bytes.Buffer
	val.WriteString(strconv.FormatInt(rec.ID, 10))
	val.WriteString(strconv.Itoa(rec.InstanceID))
	val.WriteString(strconv.Itoa(rec.UserID))
	val.WriteString(string(rec.Type))
	if !rec.CreatedAt.IsZero() {
		val.WriteString(rec.CreatedAt.UTC().String())
	}
	val.WriteString(strconv.Itoa(ts))
	return val.Bytes()
}
