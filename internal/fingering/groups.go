package fingering

// Canonical finger groups.
const (
	GroupIndex  = "index"
	GroupMiddle = "middle"
	GroupRing   = "ring"
	GroupPinky  = "pinky"
)

// Groups lists the canonical groups in display order.
var Groups = []string{GroupIndex, GroupMiddle, GroupRing, GroupPinky}

var groupAliases = []struct {
	group   string
	aliases []string
}{
	{GroupIndex, []string{"index", "im"}},
	{GroupMiddle, []string{"middle", "mm"}},
	{GroupRing, []string{"ring", "rm"}},
	{GroupPinky, []string{"pinky", "pm"}},
}

// GroupOf returns the canonical group for a finger name.
// Names outside the alias table are their own group.
func GroupOf(name string) string {
	for _, g := range groupAliases {
		for _, alias := range g.aliases {
			if alias == name {
				return g.group
			}
		}
	}
	return name
}
