package hasher

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
)

// PasswordDigest is the lowercase hex MD5 of the password, the form the vendor login expects.
func PasswordDigest(password string) string {
	sum := md5.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}

// GenerateDeviceID returns a random 16 byte client id, hex encoded.
func GenerateDeviceID() (string, error) {
	return GenerateToken(16)
}

func GenerateToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
