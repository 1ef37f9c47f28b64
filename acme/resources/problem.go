package resources

import (
	"fmt"
	"strings"
)

// Problem is a struct representing a RFC 7807 problem document from the
// server, including RFC 8555 subproblems.
//
// See https://tools.ietf.org/html/rfc8555#section-6.7
type Problem struct {
	Type        string      `json:"type"`
	Detail      string      `json:"detail,omitempty"`
	Status      int         `json:"status,omitempty"`
	Instance    string      `json:"instance,omitempty"`
	Identifier  *Identifier `json:"identifier,omitempty"`
	Subproblems []Problem   `json:"subproblems,omitempty"`
}

func (p Problem) String() string {
	var b strings.Builder
	b.WriteString(p.Type)
	if p.Identifier != nil {
		fmt.Fprintf(&b, " (%s)", p.Identifier.Value)
	}
	if p.Detail != "" {
		b.WriteString(": ")
		b.WriteString(p.Detail)
	}
	for _, sub := range p.Subproblems {
		b.WriteString("; ")
		b.WriteString(sub.String())
	}
	return b.String()
}

// For returns the subproblem about the given identifier value, or nil.
func (p Problem) For(identifier string) *Problem {
	for i := range p.Subproblems {
		sub := &p.Subproblems[i]
		if sub.Identifier != nil && sub.Identifier.Value == identifier {
			return sub
		}
	}
	return nil
}
