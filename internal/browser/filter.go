package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockedResourceTypes lists non-essential resource types aborted for
// third-party hosts. Documents, scripts and data requests pass through so the
// challenge and the page-data endpoint keep working.
var blockedResourceTypes = map[proto.NetworkResourceType]bool{
	proto.NetworkResourceTypeImage:      true,
	proto.NetworkResourceTypeMedia:      true,
	proto.NetworkResourceTypeFont:       true,
	proto.NetworkResourceTypeStylesheet: true,
}

// routeRequest allows first-party traffic and blocks non-essential
// third-party resources
func (s *Session) routeRequest(h *rod.Hijack) {
	host := strings.ToLower(h.Request.URL().Hostname())

	if s.isFirstParty(host) {
		h.ContinueRequest(&proto.FetchContinueRequest{})
		return
	}

	if blockedResourceTypes[h.Request.Type()] {
		h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		return
	}

	h.ContinueRequest(&proto.FetchContinueRequest{})
}

func (s *Session) isFirstParty(host string) bool {
	for _, suffix := range s.cfg.FirstPartyHosts {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
