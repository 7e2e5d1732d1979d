// Package uaparser classifies the device, browser and OS behind a
// click from its raw User-Agent string.
package uaparser

import (
	"strings"

	"github.com/mssola/useragent"

	"github.com/penshort/penshort/internal/model"
)

// Classification is the parsed shape of a User-Agent string.
type Classification struct {
	DeviceType  model.DeviceType
	BrowserName string
	BrowserVer  string
	OSName      string
	OSVersion   string
}

var botTokens = []string{"bot", "crawler", "spider", "headless", "selenium", "webdriver"}
var tabletTokens = []string{"ipad", "tablet", "kindle", "playbook"}
var mobileTokens = []string{"mobile", "iphone", "ipod", "blackberry", "windows phone", "android"}
var desktopTokens = []string{"windows", "macintosh", "mac os x", "linux", "x11"}

// Parse classifies raw. The reputable parser supplies the browser and
// OS fields and bot detection; the device type comes from token
// matching on the raw string (device-family tokens first, then the
// generic tablet/mobile/desktop token lists).
func Parse(raw string) Classification {
	if raw == "" {
		return Classification{DeviceType: model.DeviceUnknown}
	}

	ua := useragent.New(raw)
	browserName, browserVer := ua.Browser()
	osName := ua.OSInfo().Name
	osVersion := ua.OSInfo().Version

	c := Classification{
		BrowserName: browserName,
		BrowserVer:  browserVer,
		OSName:      osName,
		OSVersion:   osVersion,
	}

	c.DeviceType = classifyDevice(raw, ua)
	return c
}

func classifyDevice(raw string, ua *useragent.UserAgent) model.DeviceType {
	lower := strings.ToLower(raw)

	if ua.Bot() {
		return model.DeviceBot
	}
	if containsAny(lower, botTokens) {
		return model.DeviceBot
	}

	switch {
	case strings.Contains(lower, "ipad"), strings.Contains(lower, "kindle"), strings.Contains(lower, "playbook"):
		return model.DeviceTablet
	case strings.Contains(lower, "iphone"), strings.Contains(lower, "ipod"):
		return model.DeviceMobile
	case strings.Contains(lower, "android"):
		if strings.Contains(lower, "tablet") || !strings.Contains(lower, "mobile") {
			return model.DeviceTablet
		}
		return model.DeviceMobile
	case strings.Contains(lower, "blackberry"), strings.Contains(lower, "windows phone"):
		return model.DeviceMobile
	}

	if containsAny(lower, tabletTokens) {
		return model.DeviceTablet
	}
	if containsAny(lower, mobileTokens) {
		return model.DeviceMobile
	}
	if containsAny(lower, desktopTokens) {
		return model.DeviceDesktop
	}

	return model.DeviceUnknown
}

func containsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}
