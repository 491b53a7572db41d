package techniques

import (
	"github.com/polisai/huntgen/pkg/domain"
	"github.com/polisai/huntgen/pkg/engine"
)

// Catalogue returns every built-in technique in stage order.
func Catalogue() []*Technique {
	return []*Technique{
		activeScan, phishingForInformation,
		contentInjection, phishing, validAccounts, malware,
		userExecution, commandScripting,
		passwordSpray, osCredentialDumping,
		remoteServices, internalSpearphishing,
		emailCollection,
		cobaltStrike, networkActivity,
		exfiltrationOverWeb, automatedExfiltration, exfiltrationOverC2,
		accountAccessRemoval, ransomware,
		bootOrLogonAutostart,
	}
}

// Lookup returns the built-in technique for a stage and canonical variant.
func Lookup(stage domain.StageName, variant domain.VariantName) (*Technique, bool) {
	for _, t := range Catalogue() {
		if t.Stage == stage && t.Name == variant {
			return t, true
		}
	}
	return nil, false
}

// Register adds every built-in technique to r and applies the defaults.
func Register(r *engine.Registry) error {
	for _, t := range Catalogue() {
		if err := r.Register(t.Stage, t.Name, t, t.Aliases...); err != nil {
			return err
		}
	}
	for _, t := range Catalogue() {
		if !t.Default {
			continue
		}
		if err := r.SetDefault(t.Stage, t.Name); err != nil {
			return err
		}
	}
	return nil
}

// DefaultRegistry returns a registry holding the built-in techniques.
func DefaultRegistry() *engine.Registry {
	r := engine.NewRegistry()
	if err := Register(r); err != nil {
		panic(err)
	}
	return r
}
