package uaparser

import (
	"testing"

	"github.com/penshort/penshort/internal/model"
)

func TestParse_DeviceClassification(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want model.DeviceType
	}{
		{"empty", "", model.DeviceUnknown},
		{"googlebot", "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", model.DeviceBot},
		{"headless chrome", "Mozilla/5.0 HeadlessChrome/120.0", model.DeviceBot},
		{"iphone", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)", model.DeviceMobile},
		{"ipad", "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X)", model.DeviceTablet},
		{"android phone", "Mozilla/5.0 (Linux; Android 13; Pixel 7 Mobile)", model.DeviceMobile},
		{"android tablet", "Mozilla/5.0 (Linux; Android 13; SM-T870)", model.DeviceTablet},
		{"windows desktop", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)", model.DeviceDesktop},
		{"mac desktop", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)", model.DeviceDesktop},
		{"linux desktop", "Mozilla/5.0 (X11; Linux x86_64)", model.DeviceDesktop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.ua)
			if got.DeviceType != tt.want {
				t.Errorf("Parse(%q).DeviceType = %v, want %v", tt.ua, got.DeviceType, tt.want)
			}
		})
	}
}
