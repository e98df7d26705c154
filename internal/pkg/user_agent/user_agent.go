package user_agent

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// Device categories
const (
	DeviceDesktop = "Desktop"
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
)

// Browser families
const (
	BrowserChrome  = "Chrome"
	BrowserFirefox = "Firefox"
	BrowserSafari  = "Safari"
	BrowserEdge    = "Edge"
	BrowserOther   = "Other"
)

// UserAgent is the coarse classification of a user-agent string. Versions and
// models are never retained.
type UserAgent struct {
	Browser string
	Device  string
	Bot     bool
}

//go:embed database/rules.yml
var databaseFiles embed.FS

// TokenRule maps a label to the lowercase substrings that identify it
type TokenRule struct {
	Name   string   `yaml:"name"`
	Tokens []string `yaml:"tokens"`
}

// Rules is the embedded classification table
type Rules struct {
	Browsers []TokenRule `yaml:"browsers"`
	Devices  []TokenRule `yaml:"devices"`
	Bots     []string    `yaml:"bots"`
}

type classifier struct {
	rules Rules
	bots  []*pcre.Regexp
}

var (
	parser *classifier
	once   sync.Once
)

func getClassifier() *classifier {
	once.Do(func() {
		parser = &classifier{}

		data, err := databaseFiles.ReadFile("database/rules.yml")
		if err != nil {
			fmt.Printf("Error reading rules.yml: %v\n", err)
			return
		}
		if err := yaml.Unmarshal(data, &parser.rules); err != nil {
			fmt.Printf("Error parsing rules.yml: %v\n", err)
			return
		}

		for _, pattern := range parser.rules.Bots {
			regex, err := pcre.Compile(pattern)
			if err != nil {
				fmt.Printf("Error compiling bot pattern %q: %v\n", pattern, err)
				continue
			}
			parser.bots = append(parser.bots, regex)
		}
	})
	return parser
}

func matchRule(rules []TokenRule, ua string) (string, bool) {
	for _, rule := range rules {
		for _, token := range rule.Tokens {
			if strings.Contains(ua, token) {
				return rule.Name, true
			}
		}
	}
	return "", false
}

func (c *classifier) isBot(userAgent string) bool {
	for _, regex := range c.bots {
		if regex.MatchString(userAgent) {
			return true
		}
	}
	return false
}

func (c *classifier) browser(ua string) string {
	if name, ok := matchRule(c.rules.Browsers, ua); ok {
		return name
	}
	return BrowserOther
}

func (c *classifier) device(ua string) string {
	rules := c.rules.Devices

	// Tablet tokens take priority, tablets frequently advertise "mobile" too
	if len(rules) > 0 && rules[0].Name == DeviceTablet {
		if name, ok := matchRule(rules[:1], ua); ok {
			return name
		}
		rules = rules[1:]
	}

	// Android tablets omit the "mobile" token
	if strings.Contains(ua, "android") && !strings.Contains(ua, "mobi") {
		return DeviceTablet
	}

	if name, ok := matchRule(rules, ua); ok {
		return name
	}
	if strings.Contains(ua, "android") {
		return DeviceMobile
	}
	return DeviceDesktop
}

// ParseUserAgent buckets a user-agent string into a device category and a browser
// family using substring matches.
func ParseUserAgent(userAgent string) UserAgent {
	c := getClassifier()
	ua := strings.ToLower(userAgent)

	return UserAgent{
		Browser: c.browser(ua),
		Device:  c.device(ua),
		Bot:     userAgent != "" && c.isBot(userAgent),
	}
}
