package service

import (
	"regexp"
	"strings"

	"github.com/SergeiKhy/site-analytics/internal/models"
)

var (
	mobilePattern = regexp.MustCompile(`mobile|android|iphone|ipod|blackberry|iemobile|opera mini`)
	tabletPattern = regexp.MustCompile(`tablet|ipad|playbook|silk`)
)

// signature именованный набор подстрок, совпадение любой из них - попадание
type signature struct {
	name string
	any  []string
}

// Порядок важен: побеждает первое совпадение
var browserSignatures = []signature{
	{"Edge", []string{"edg"}},
	{"Opera", []string{"opera", "opr/"}},
	{"Chrome", []string{"chrome", "crios"}},
	{"Firefox", []string{"firefox", "fxios"}},
	{"Safari", []string{"safari"}},
	{"Internet Explorer", []string{"msie", "trident"}},
}

var osSignatures = []signature{
	{"Windows", []string{"windows"}},
	{"iOS", []string{"iphone", "ipad", "ipod"}},
	{"macOS", []string{"mac os", "macos"}},
	{"Android", []string{"android"}},
	{"Linux", []string{"linux"}},
}

// UserAgentInfo результат разбора user agent
type UserAgentInfo struct {
	DeviceType string
	Browser    *string
	OS         *string
}

// ParseUserAgent определяет тип устройства, браузер и ОС эвристиками по подстрокам
func ParseUserAgent(userAgent string) UserAgentInfo {
	info := UserAgentInfo{DeviceType: models.DeviceDesktop}
	if userAgent == "" {
		return info
	}

	ua := strings.ToLower(userAgent)

	switch {
	case mobilePattern.MatchString(ua):
		info.DeviceType = models.DeviceMobile
	case tabletPattern.MatchString(ua):
		info.DeviceType = models.DeviceTablet
	}

	info.Browser = matchSignature(ua, browserSignatures)
	info.OS = matchSignature(ua, osSignatures)

	return info
}

func matchSignature(ua string, signatures []signature) *string {
	for _, sig := range signatures {
		for _, fragment := range sig.any {
			if strings.Contains(ua, fragment) {
				name := sig.name
				return &name
			}
		}
	}
	return nil
}
