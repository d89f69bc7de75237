package commands

import (
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/saslgate/pkg/config"
	"github.com/marmos91/saslgate/pkg/provider"
	"github.com/marmos91/saslgate/pkg/sasl"
)

var mechanismsCmd = &cobra.Command{
	Use:   "mechanisms",
	Short: "List installed mechanisms and what the configured chain advertises",
	Long: `List every installed mechanism in discovery order, its security flags,
the sides it implements, and whether the negotiation chain built from the
configuration advertises it.

Examples:
  saslgate mechanisms
  saslgate mechanisms -o json`,
	RunE: runMechanisms,
}

// MechanismInfo is one row of the mechanisms listing.
type MechanismInfo struct {
	Name       string `json:"name" yaml:"name"`
	Provider   string `json:"provider" yaml:"provider"`
	Flags      string `json:"flags" yaml:"flags"`
	Client     bool   `json:"client" yaml:"client"`
	Server     bool   `json:"server" yaml:"server"`
	Advertised bool   `json:"advertised" yaml:"advertised"`
	Shadowed   bool   `json:"shadowed,omitempty" yaml:"shadowed,omitempty"`
}

// MechanismList renders as a table.
type MechanismList []MechanismInfo

func (l MechanismList) Headers() []string {
	return []string{"Name", "Provider", "Flags", "Client", "Server", "Advertised"}
}

func (l MechanismList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, m := range l {
		name := m.Name
		if m.Shadowed {
			name += " (shadowed)"
		}
		rows = append(rows, []string{
			name, m.Provider, m.Flags,
			strconv.FormatBool(m.Client), strconv.FormatBool(m.Server), strconv.FormatBool(m.Advertised),
		})
	}
	return rows
}

func runMechanisms(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	p, err := printer(cmd)
	if err != nil {
		return err
	}

	factory, err := config.BuildFactory(&e.cfg.Negotiation, e.registry, e.metrics.Exchange)
	if err != nil {
		return err
	}
	return p.Print(listMechanisms(e.registry, factory.ListMechanismNames(nil)))
}

func listMechanisms(reg *provider.Registry, advertised []string) MechanismList {
	var list MechanismList
	seen := make(map[string]bool)
	for _, name := range reg.Installed() {
		prov, ok := reg.Lookup(name)
		if !ok {
			continue
		}
		for _, m := range prov.Mechanisms {
			list = append(list, MechanismInfo{
				Name:       m.Name,
				Provider:   prov.Name,
				Flags:      m.Flags.String(),
				Client:     m.Supports(sasl.SideClient),
				Server:     m.Supports(sasl.SideServer),
				Advertised: !seen[m.Name] && slices.Contains(advertised, m.Name),
				Shadowed:   seen[m.Name],
			})
			seen[m.Name] = true
		}
	}
	return list
}
