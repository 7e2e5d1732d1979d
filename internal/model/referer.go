package model

import "net/url"

// ExtractRefererDomain reduces a stored referer to its bare host, for
// breakdown aggregation. The referer column holds the full
// query/fragment-stripped value; this runs at read time so the raw
// value stays available for anything else that might need it.
func ExtractRefererDomain(ref string) string {
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return parsed.Host
}
