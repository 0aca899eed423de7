package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomString 生成长度在 [minLen, maxLen] 之间的随机字母数字串
func RandomString(minLen, maxLen int) (string, error) {
	if minLen <= 0 || maxLen < minLen {
		return "", fmt.Errorf("invalid length range [%d, %d]", minLen, maxLen)
	}
	length := minLen
	if maxLen > minLen {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(maxLen-minLen+1)))
		if err != nil {
			return "", err
		}
		length += int(n.Int64())
	}
	return randomFrom(alphanumeric, length)
}

// RandomDigits 生成 n 位随机数字串
func RandomDigits(n int) (string, error) {
	return randomFrom("0123456789", n)
}

func randomFrom(alphabet string, length int) (string, error) {
	limit := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, length)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf), nil
}

var mobileUA = regexp.MustCompile(`(?i)phone|pad|pod|iphone|ipod|ios|ipad|android|mobile|blackberry|iemobile|mqqbrowser|juc|fennec|wosbrowser|browserng|webos|symbian|windows phone`)

// Platform names used to namespace session tokens.
const (
	PlatformMobile  = "mobile"
	PlatformDesktop = "desktop"
)

// DetectPlatform 根据 User-Agent 判断客户端平台
func DetectPlatform(userAgent string) string {
	if mobileUA.MatchString(userAgent) {
		return PlatformMobile
	}
	return PlatformDesktop
}

// RemoveControlCharacters 移除控制字符，保留换行符和制表符
func RemoveControlCharacters(text string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, text)
}
