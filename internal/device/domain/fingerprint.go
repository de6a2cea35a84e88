package domain

import (
	"encoding/hex"
	"strings"

	"github.com/mssola/useragent"
	"golang.org/x/crypto/blake2b"
)

// ParseUserAgent derives DeviceInfo from a raw User-Agent header.
// Unknown or empty agents yield FormFactorUnknown with empty families.
func ParseUserAgent(raw string) DeviceInfo {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DeviceInfo{FormFactor: FormFactorUnknown}
	}
	ua := useragent.New(raw)
	browser, _ := ua.Browser()
	info := DeviceInfo{
		BrowserFamily: normalize(browser),
		OSFamily:      osFamily(ua.OSInfo().Name),
		IsMobile:      ua.Mobile(),
	}
	switch {
	case ua.Bot():
		info.FormFactor = FormFactorBot
	case isTablet(raw):
		info.FormFactor = FormFactorTablet
	case info.IsMobile:
		info.FormFactor = FormFactorMobile
	case info.BrowserFamily != "" || info.OSFamily != "":
		info.FormFactor = FormFactorDesktop
	default:
		info.FormFactor = FormFactorUnknown
	}
	return info
}

// Merge fills empty fields of d from parsed, so explicit client hints win over
// what the User-Agent suggests.
func (d DeviceInfo) Merge(parsed DeviceInfo) DeviceInfo {
	out := d
	if out.BrowserFamily == "" {
		out.BrowserFamily = parsed.BrowserFamily
	}
	if out.OSFamily == "" {
		out.OSFamily = parsed.OSFamily
	}
	if out.FormFactor == "" || out.FormFactor == FormFactorUnknown {
		out.FormFactor = parsed.FormFactor
		out.IsMobile = out.IsMobile || parsed.IsMobile
	}
	if out.FormFactor == "" {
		out.FormFactor = FormFactorUnknown
	}
	return out
}

// Fingerprint returns a stable digest of the device attributes. Two sessions
// from the same browser/OS/form factor/screen/timezone share a fingerprint.
func (d DeviceInfo) Fingerprint() string {
	parts := []string{
		normalize(d.BrowserFamily),
		normalize(d.OSFamily),
		string(d.FormFactor),
		normalize(d.ScreenResolution),
		normalize(d.Timezone),
	}
	sum := blake2b.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:16])
}

// Similarity is the fraction of matching attributes among browser family, OS
// family, screen resolution and timezone. An attribute is compared only when
// both sides carry it; with nothing to compare the devices are treated as equal.
func Similarity(a, b DeviceInfo) float64 {
	pairs := [][2]string{
		{a.BrowserFamily, b.BrowserFamily},
		{a.OSFamily, b.OSFamily},
		{a.ScreenResolution, b.ScreenResolution},
		{a.Timezone, b.Timezone},
	}
	compared, matched := 0, 0
	for _, p := range pairs {
		x, y := normalize(p[0]), normalize(p[1])
		if x == "" || y == "" {
			continue
		}
		compared++
		if x == y {
			matched++
		}
	}
	if compared == 0 {
		return 1
	}
	return float64(matched) / float64(compared)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// osFamily collapses versioned OS names ("Windows 10", "Mac OS X") to a family.
func osFamily(name string) string {
	n := normalize(name)
	switch {
	case n == "":
		return ""
	case strings.HasPrefix(n, "windows"):
		return "windows"
	case strings.Contains(n, "iphone") || strings.Contains(n, "ipad") || strings.HasPrefix(n, "ios"):
		return "ios"
	case strings.Contains(n, "mac os") || strings.HasPrefix(n, "macos"):
		return "macos"
	case strings.HasPrefix(n, "android"):
		return "android"
	case strings.Contains(n, "linux") || strings.Contains(n, "ubuntu"):
		return "linux"
	case strings.Contains(n, "cros") || strings.Contains(n, "chrome os"):
		return "chromeos"
	default:
		return n
	}
}

func isTablet(raw string) bool {
	r := strings.ToLower(raw)
	return strings.Contains(r, "ipad") || (strings.Contains(r, "android") && !strings.Contains(r, "mobile")) || strings.Contains(r, "tablet")
}
