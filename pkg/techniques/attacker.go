package techniques

import (
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/polisai/huntgen/pkg/domain"
)

// NewAttacker generates the adversary profile shared by every stage of a
// scenario.
func NewAttacker(f *gofakeit.Faker) domain.Attacker {
	first, last := f.FirstName(), f.LastName()
	name := strings.ToLower(first + "." + last)
	dom := f.DomainName()
	serverDomain := f.DomainName()
	return domain.Attacker{
		"AccountUpn":         name + "@" + dom,
		"AccountDisplayName": first + " " + last,
		"AccountObjectId":    f.UUID(),
		"OnPremSid":          fmt.Sprintf("S-1-5-21-%d-%d-%d-%d", f.Number(1e8, 1e9), f.Number(1e8, 1e9), f.Number(1e8, 1e9), f.Number(1000, 9999)),
		"AccountName":        name,
		"AccountDomain":      dom,
		"SenderIPv4":         f.IPv4Address(),
		"SenderIPV6":         f.IPv6Address(),
		"PhishingURL":        fmt.Sprintf("https://login.%s/%s", dom, strings.ToLower(randomToken(f, 10))),
		"PhishingIP":         f.IPv4Address(),
		"ExternalServerIP":   f.IPv4Address(),
		"ExternalServerName": "cdn." + serverDomain,
	}
}
