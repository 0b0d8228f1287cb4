package service

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Ограничения длины полей перед записью
const (
	maxPathLength      = 500
	maxTitleLength     = 500
	maxReferrerLength  = 1000
	maxDomainLength    = 255
	maxUserAgentLength = 500
	maxSessionIDLength = 100
)

// HashIdentity необратимый хэш сетевого адреса посетителя
func HashIdentity(address string) string {
	sum := sha256.Sum256([]byte(address))
	return hex.EncodeToString(sum[:])
}

// ReferrerDomain извлекает хост из URL реферера. Некорректный URL - nil.
func ReferrerDomain(referrer string) *string {
	if referrer == "" {
		return nil
	}
	u, err := url.Parse(referrer)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	host := truncate(strings.ToLower(u.Hostname()), maxDomainLength)
	return &host
}

// stripNUL удаляет символы NUL, которые не принимает text в PostgreSQL
func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

// truncate удаляет NUL и обрезает строку до max символов
func truncate(s string, max int) string {
	s = stripNUL(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// optional пустая строка - nil, иначе обрезанное значение
func optional(s string, max int) *string {
	if stripNUL(s) == "" {
		return nil
	}
	v := truncate(s, max)
	return &v
}
