package machine

import "github.com/nao1215/osintnexus/internal/model"

// Names of the built-in machines.
const (
	FootprintDomainL1  = "Footprint Domain L1"
	InvestigatePersona = "Investigate Persona"
	EmailPivot         = "Email Pivot"
)

// Defaults returns the built-in machines. Module names refer to the
// built-in probes.
func Defaults() []*Machine {
	return []*Machine{
		mustNew(FootprintDomainL1, "Map a domain's web presence, then its infrastructure, then its hosts",
			Step{
				Description: "Domain Intelligence",
				Modules:     []string{"Web Footprint", "Domain Hierarchy"},
				EntityTypes: []string{model.EntityDomain},
			},
			Step{
				Description: "Infrastructure Scan",
				Modules:     []string{"DNS Resolver"},
				EntityTypes: []string{model.EntityDomain},
			},
			Step{
				Description: "IP Analysis",
				Modules:     []string{"Reverse DNS", "Shodan Lookup"},
				EntityTypes: []string{model.EntityIP, model.EntityNetblock},
			},
		),
		mustNew(InvestigatePersona, "Look for a username's public profiles",
			Step{
				Description: "Social Profile Search",
				Modules:     []string{"Profile URL Builder"},
				EntityTypes: []string{model.EntityUsername, model.EntityPerson},
			},
		),
		mustNew(EmailPivot, "Break an email address down and expand its parts",
			Step{
				Description: "Mailbox Breakdown",
				Modules:     []string{"Email Split"},
				EntityTypes: []string{model.EntityEmail},
			},
			Step{
				Description: "Identity Expansion",
				Modules:     []string{"Profile URL Builder", "DNS Resolver"},
				EntityTypes: []string{model.EntityUsername, model.EntityDomain},
			},
		),
	}
}

// DefaultRegistry returns a registry holding Defaults.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Defaults()...)
	if err != nil {
		panic(err)
	}
	return r
}

func mustNew(name, description string, steps ...Step) *Machine {
	m, err := New(name, description, steps...)
	if err != nil {
		panic(err)
	}
	return m
}
