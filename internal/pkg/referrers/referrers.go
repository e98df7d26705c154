// Package referrers turns raw referrer URLs into display names for the dashboard.
package referrers

import (
	"net/url"
	"strings"
)

// Direct labels visits without a usable referrer
const Direct = "Direct"

// Referrer hostnames a portfolio typically receives traffic from
var knownReferrers = map[string]string{
	// Search engines
	"google.com":     "Google",
	"google.co.uk":   "Google",
	"google.de":      "Google",
	"google.fr":      "Google",
	"google.es":      "Google",
	"bing.com":       "Bing",
	"duckduckgo.com": "DuckDuckGo",
	"ecosia.org":     "Ecosia",
	"kagi.com":       "Kagi",
	"yandex.ru":      "Yandex",

	// Professional networks and hiring
	"linkedin.com":         "LinkedIn",
	"lnkd.in":              "LinkedIn",
	"indeed.com":           "Indeed",
	"glassdoor.com":        "Glassdoor",
	"wellfound.com":        "Wellfound",
	"angel.co":             "Wellfound",
	"weworkremotely.com":   "We Work Remotely",
	"remoteok.com":         "Remote OK",
	"upwork.com":           "Upwork",
	"fiverr.com":           "Fiverr",
	"toptal.com":           "Toptal",
	"otta.com":             "Otta",
	"workatastartup.com":   "Work at a Startup",
	"news.ycombinator.com": "Hacker News",

	// Code and design showcases
	"github.com":        "GitHub",
	"gitlab.com":        "GitLab",
	"codepen.io":        "CodePen",
	"dribbble.com":      "Dribbble",
	"behance.net":       "Behance",
	"figma.com":         "Figma",
	"awwwards.com":      "Awwwards",
	"producthunt.com":   "Product Hunt",
	"stackoverflow.com": "Stack Overflow",

	// Writing
	"dev.to":       "DEV Community",
	"hashnode.com": "Hashnode",
	"medium.com":   "Medium",
	"substack.com": "Substack",
	"lobste.rs":    "Lobsters",

	// Social
	"x.com":           "X/Twitter",
	"twitter.com":     "X/Twitter",
	"t.co":            "X/Twitter",
	"bsky.app":        "Bluesky",
	"mastodon.social": "Mastodon",
	"threads.net":     "Threads",
	"facebook.com":    "Facebook",
	"instagram.com":   "Instagram",
	"reddit.com":      "Reddit",
	"youtube.com":     "YouTube",
	"discord.com":     "Discord",
	"slack.com":       "Slack",
	"t.me":            "Telegram",

	// Mail clients, for links sent with applications
	"mail.google.com":    "Gmail",
	"outlook.live.com":   "Outlook",
	"outlook.office.com": "Outlook",
	"mail.proton.me":     "Proton Mail",
}

// FriendlyName returns a display name for a referrer hostname. Unknown hosts
// come back without "www." and with the first letter capitalised.
func FriendlyName(hostname string) string {
	hostname = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(hostname)), ".")
	if hostname == "" {
		return Direct
	}

	if name, ok := knownReferrers[hostname]; ok {
		return name
	}

	if withoutWWW, found := strings.CutPrefix(hostname, "www."); found {
		if name, ok := knownReferrers[withoutWWW]; ok {
			return name
		}
		hostname = withoutWWW
	}

	// Subdomains of a known referrer, walking up one label at a time
	for rest := hostname; ; {
		i := strings.Index(rest, ".")
		if i < 0 {
			break
		}
		rest = rest[i+1:]
		if name, ok := knownReferrers[rest]; ok {
			return name
		}
	}

	return capitalizeFirst(hostname)
}

// FromURL extracts the hostname of a referrer URL and returns its display name.
// Empty and unparsable referrers are Direct.
func FromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Direct
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Hostname() == "" {
		return Direct
	}
	return FriendlyName(parsed.Hostname())
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
