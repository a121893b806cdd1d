// Package council holds the set of members eligible to attest claims and the
// signing keys their finalizing actions are anchored with.
package council

import (
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var ErrUnknownMember = errors.New("unknown council member")

type Member struct {
	ID            string
	DisplayName   string
	LedgerAddress common.Address
}

// Council is an immutable set of members keyed by ID.
type Council struct {
	members map[string]*Member
}

func New(members ...*Member) (*Council, error) {
	c := &Council{members: make(map[string]*Member, len(members))}
	for _, m := range members {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			return nil, errors.New("council member without an id")
		}
		if _, ok := c.members[id]; ok {
			return nil, errors.Errorf("duplicate council member %s", id)
		}
		cp := *m
		cp.ID = id
		if cp.DisplayName == "" {
			cp.DisplayName = id
		}
		c.members[id] = &cp
	}
	return c, nil
}

// Lookup returns a copy of the member so callers can snapshot its fields.
func (c *Council) Lookup(id string) (Member, error) {
	m, ok := c.members[id]
	if !ok {
		return Member{}, errors.Wrapf(ErrUnknownMember, "%q", id)
	}
	return *m, nil
}

func (c *Council) Size() int {
	return len(c.members)
}

// Members returns the members sorted by ID.
func (c *Council) Members() []Member {
	out := make([]Member, 0, len(c.members))
	for _, m := range c.members {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
