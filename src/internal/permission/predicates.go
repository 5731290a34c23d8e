package permission

import "github.com/VectorBits/permscan/src/internal/model"

// SenderConditions returns the text of every conditional node in the closure that
// reads msg.sender, in closure order. Equal texts reached through different
// functions are all kept.
func SenderConditions(c *GuardClosure) []string {
	var out []string
	for _, f := range c.Functions() {
		for _, n := range f.Nodes {
			if n.Conditional && n.ReadsIdentifier(model.SenderSentinel) {
				out = append(out, n.Expression)
			}
		}
	}
	return out
}
