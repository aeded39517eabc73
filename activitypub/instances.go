package activitypub

import (
	"net/url"
	"strings"

	"github.com/deemkeen/inboxd/util"
)

// InstancePolicy decides which peers we accept activities and objects from.
type InstancePolicy struct {
	AllowHttp bool
	LocalHost string
	Blocked   map[string]bool
	Allowed   map[string]bool
}

func NewInstancePolicy(conf *util.AppConfig) *InstancePolicy {
	p := &InstancePolicy{
		AllowHttp: conf.Federation.AllowHttp,
		LocalHost: strings.ToLower(conf.LocalHost()),
		Blocked:   make(map[string]bool),
		Allowed:   make(map[string]bool),
	}
	for _, h := range conf.Federation.BlockedInstances {
		p.Blocked[strings.ToLower(h)] = true
	}
	for _, h := range conf.Federation.AllowedInstances {
		p.Allowed[strings.ToLower(h)] = true
	}
	return p
}

// Check returns ErrInstanceBlocked unless the host of rawURL may federate
// with us.
func (p *InstancePolicy) Check(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return fail(ErrInstanceBlocked, "%q has no host", rawURL)
	}
	if u.Scheme != "https" && !(p.AllowHttp && u.Scheme == "http") {
		return fail(ErrInstanceBlocked, "scheme %q not allowed for %s", u.Scheme, rawURL)
	}

	host := strings.ToLower(u.Host)
	hostname := strings.ToLower(u.Hostname())
	if host == p.LocalHost || hostname == p.LocalHost {
		return fail(ErrInstanceBlocked, "%s claims to be local", rawURL)
	}
	if p.Blocked[host] || p.Blocked[hostname] {
		return fail(ErrInstanceBlocked, "%s is blocked", hostname)
	}
	if len(p.Allowed) > 0 && !p.Allowed[host] && !p.Allowed[hostname] {
		return fail(ErrInstanceBlocked, "%s is not in the allow list", hostname)
	}
	return nil
}
