package model

import "strings"

// Provider identifies a third-party reward network that delivers offer
// completion postbacks. The set is closed; unrecognized values map to
// ProviderOther.
type Provider string

const (
	ProviderKiwiwall        Provider = "kiwiwall"
	ProviderAdGateMedia     Provider = "adgatemedia"
	ProviderAdGem           Provider = "adgem"
	ProviderOfferToro       Provider = "offertoro"
	ProviderAyetStudios     Provider = "ayetstudios"
	ProviderCPXResearch     Provider = "cpxresearch"
	ProviderBitLabs         Provider = "bitlabs"
	ProviderPollfish        Provider = "pollfish"
	ProviderTheoremReach    Provider = "theoremreach"
	ProviderWannads         Provider = "wannads"
	ProviderLootably        Provider = "lootably"
	ProviderRevenueUniverse Provider = "revenueuniverse"
	ProviderOther           Provider = "other"
)

var knownProviders = map[Provider]bool{
	ProviderKiwiwall:        true,
	ProviderAdGateMedia:     true,
	ProviderAdGem:           true,
	ProviderOfferToro:       true,
	ProviderAyetStudios:     true,
	ProviderCPXResearch:     true,
	ProviderBitLabs:         true,
	ProviderPollfish:        true,
	ProviderTheoremReach:    true,
	ProviderWannads:         true,
	ProviderLootably:        true,
	ProviderRevenueUniverse: true,
}

// ParseProvider normalizes a raw provider identifier. Unknown identifiers
// resolve to ProviderOther rather than failing, since postbacks for
// unrecognized networks still need a response.
func ParseProvider(raw string) Provider {
	p := Provider(strings.ToLower(strings.TrimSpace(raw)))
	if knownProviders[p] {
		return p
	}
	return ProviderOther
}

func (p Provider) String() string {
	return string(p)
}
