package utils

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"
	"strings"
)

func GetSHA1(data []byte) string {
	return fmt.Sprintf("%x", sha1.Sum(data))
}

func GetMD5(data []byte) string {
	return fmt.Sprintf("%x", md5.Sum(data))
}

func GetSHA256(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// NewHasher returns nil for an empty or "none" algorithm.
func NewHasher(algorithm string) (hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "NONE":
		return nil, nil
	case "MD5":
		return md5.New(), nil
	case "SHA1":
		return sha1.New(), nil
	case "SHA256":
		return sha256.New(), nil
	}
	return nil, fmt.Errorf("unsupported hash %s, use MD5 SHA1 or SHA256", algorithm)
}
