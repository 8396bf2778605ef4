package tlsprofile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// Header is a default request header sent by a profile.
type Header struct {
	Name  string
	Value string
}

// HTTP2Settings mirrors the SETTINGS a client advertises.
type HTTP2Settings struct {
	MaxHeaderListSize          uint32
	MaxReadFrameSize           uint32
	StrictMaxConcurrentStreams bool
}

// Profile describes how a client presents itself on the wire. Hello selects
// the ClientHello the TLS handshake replays: cipher and extension order,
// GREASE, key shares and ALPN.
type Profile struct {
	Hello   utls.ClientHelloID
	Name    string
	Family  string
	Headers []Header
	HTTP2   HTTP2Settings
}

// UserAgent returns the profile's user-agent header value.
func (p *Profile) UserAgent() string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, "user-agent") {
			return h.Value
		}
	}
	return ""
}

// chromeHello picks the closest handshake for a chromium major version.
func chromeHello(version string) utls.ClientHelloID {
	major, _ := strconv.Atoi(version)
	switch {
	case major >= 120:
		return utls.HelloChrome_120
	case major >= 106:
		return utls.HelloChrome_106_Shuffle
	case major >= 102:
		return utls.HelloChrome_102
	default:
		return utls.HelloChrome_100
	}
}

func edgeHello(version string) utls.ClientHelloID {
	if major, _ := strconv.Atoi(version); major >= 106 {
		return utls.HelloEdge_106
	}
	return utls.HelloEdge_85
}

var (
	chromeVersions = []string{"100", "101", "104", "105", "106", "107", "108", "109", "114", "116", "117", "118", "119", "120", "123", "124", "126", "127", "128", "129"}
	edgeVersions   = []string{"101", "122", "127"}
	safariVersions = []string{"15.3", "15.5", "15.6.1", "16", "16.5", "17.0", "17.2.1", "17.4.1", "17.5", "18"}
	safariIOS      = []string{"16.5", "17.2", "17.4.1"}
	okhttpVersions = []string{"3.9", "3.11", "3.13", "3.14", "4.9", "4.10", "5"}
)

func chromium(name, family, brand, version, ua string, hello utls.ClientHelloID) *Profile {
	return &Profile{
		Name:   name,
		Family: family,
		Hello:  hello,
		HTTP2: HTTP2Settings{
			MaxHeaderListSize: 262144,
		},
		Headers: []Header{
			{"sec-ch-ua", fmt.Sprintf(`"Chromium";v="%s", "%s";v="%s", "Not=A?Brand";v="24"`, version, brand, version)},
			{"sec-ch-ua-mobile", "?0"},
			{"sec-ch-ua-platform", `"Windows"`},
			{"user-agent", ua},
			{"accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"},
			{"accept-language", "en-US,en;q=0.9"},
		},
	}
}

func chromeProfile(version string) *Profile {
	ua := fmt.Sprintf("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s.0.0.0 Safari/537.36", version)
	return chromium("chrome_"+version, "chrome", "Google Chrome", version, ua, chromeHello(version))
}

func edgeProfile(version string) *Profile {
	ua := fmt.Sprintf("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s.0.0.0 Safari/537.36 Edg/%s.0.0.0", version, version)
	return chromium("edge_"+version, "edge", "Microsoft Edge", version, ua, edgeHello(version))
}

func safariProfile(name, ua string, hello utls.ClientHelloID) *Profile {
	return &Profile{
		Name:   name,
		Family: "safari",
		Hello:  hello,
		HTTP2: HTTP2Settings{
			MaxReadFrameSize:           16384,
			StrictMaxConcurrentStreams: true,
		},
		Headers: []Header{
			{"user-agent", ua},
			{"accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
			{"accept-language", "en-US,en;q=0.9"},
		},
	}
}

func okhttpProfile(version string) *Profile {
	full := version + ".0"
	if !strings.Contains(version, ".") {
		full = version + ".0.0"
	}
	return &Profile{
		Name:   "okhttp_" + version,
		Family: "okhttp",
		Hello:  utls.HelloAndroid_11_OkHttp,
		Headers: []Header{
			{"user-agent", "okhttp/" + full},
			{"accept", "*/*"},
			{"accept-language", "en-US,en;q=0.9"},
		},
	}
}

func buildCatalogue() map[string]*Profile {
	profiles := make(map[string]*Profile)
	add := func(p *Profile) { profiles[p.Name] = p }

	for _, v := range chromeVersions {
		add(chromeProfile(v))
	}
	for _, v := range edgeVersions {
		add(edgeProfile(v))
	}
	for _, v := range safariVersions {
		add(safariProfile("safari_"+v, fmt.Sprintf(
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/%s Safari/605.1.15", v), utls.HelloSafari_16_0))
	}
	for _, v := range safariIOS {
		add(safariProfile("safari_ios_"+v, fmt.Sprintf(
			"Mozilla/5.0 (iPhone; CPU iPhone OS %s like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/%s Mobile/15E148 Safari/604.1",
			strings.ReplaceAll(v, ".", "_"), v), utls.HelloIOS_14))
	}
	add(safariProfile("safari_ipad_18",
		"Mozilla/5.0 (iPad; CPU OS 18_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.0 Mobile/15E148 Safari/604.1", utls.HelloIOS_Auto))
	for _, v := range okhttpVersions {
		add(okhttpProfile(v))
	}
	return profiles
}

var catalogue = buildCatalogue()

// Lookup returns a built-in profile by name.
func Lookup(name string) (*Profile, bool) {
	p, ok := catalogue[name]
	return p, ok
}

// Names returns the built-in profile names in sorted order.
func Names() []string {
	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
