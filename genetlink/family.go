package genetlink

import (
	"fmt"

	"github.com/scitags/gonl/attribute"
	"github.com/scitags/gonl/types"
)

// All of these constants' names make the linter complain, but we inherited
// these names from external C code, so we will keep them. Be sure to check
// include/uapi/linux/genetlink.h.
const (
	GENL_ID_CTRL      uint16 = 0x10
	GENL_ID_VFS_DQUOT uint16 = 0x11
	GENL_ID_PMCRAID   uint16 = 0x12

	// The version nlctrl itself advertises.
	CTRL_VERSION uint8 = 2
)

const (
	CTRL_CMD_UNSPEC uint8 = iota
	CTRL_CMD_NEWFAMILY
	CTRL_CMD_DELFAMILY
	CTRL_CMD_GETFAMILY
	CTRL_CMD_NEWOPS
	CTRL_CMD_DELOPS
	CTRL_CMD_GETOPS
	CTRL_CMD_NEWMCAST_GRP
	CTRL_CMD_DELMCAST_GRP
	CTRL_CMD_GETMCAST_GRP
)

const (
	CTRL_ATTR_UNSPEC uint16 = iota
	CTRL_ATTR_FAMILY_ID
	CTRL_ATTR_FAMILY_NAME
	CTRL_ATTR_VERSION
	CTRL_ATTR_HDRSIZE
	CTRL_ATTR_MAXATTR
	CTRL_ATTR_OPS
	CTRL_ATTR_MCAST_GROUPS
)

const (
	CTRL_ATTR_OP_UNSPEC uint16 = iota
	CTRL_ATTR_OP_ID
	CTRL_ATTR_OP_FLAGS
)

const (
	CTRL_ATTR_MCAST_GRP_UNSPEC uint16 = iota
	CTRL_ATTR_MCAST_GRP_NAME
	CTRL_ATTR_MCAST_GRP_ID
)

// CTRL_GROUP_NOTIFY is the multicast group nlctrl announces family changes on.
const CTRL_GROUP_NOTIFY = "notify"

// A Family is a generic netlink family as described by the controller.
type Family struct {
	ID         uint16
	Name       string
	Version    uint32
	HeaderSize uint32
	MaxAttr    uint32

	Operations []Operation
	Groups     []MulticastGroup
}

type Operation struct {
	ID    uint32
	Flags uint32
}

type MulticastGroup struct {
	ID   uint32
	Name string
}

// Group looks up one of the family's multicast groups by name.
func (f Family) Group(name string) (MulticastGroup, bool) {
	for _, g := range f.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return MulticastGroup{}, false
}

// controllerFamily is known beforehand so that its own notifications can be
// told apart before anything has been resolved. The notify group shares the
// controller's fixed ID.
var controllerFamily = Family{
	ID:      GENL_ID_CTRL,
	Name:    "nlctrl",
	Version: uint32(CTRL_VERSION),
	Groups:  []MulticastGroup{{ID: uint32(GENL_ID_CTRL), Name: CTRL_GROUP_NOTIFY}},
}

// parseFamily builds a Family out of a CTRL_CMD_NEWFAMILY reply. A reply
// without a family ID is useless to us, so it's reported as an unknown family.
func parseFamily(attrs attribute.Attributes) (Family, error) {
	var f Family

	id, ok, err := attrs.Uint16(CTRL_ATTR_FAMILY_ID)
	if err != nil {
		return f, fmt.Errorf("error parsing the family ID: %w", err)
	}
	if !ok {
		return f, fmt.Errorf("controller reply lacks a family ID: %w", types.ErrUnknownFamily)
	}
	f.ID = id

	for _, a := range attrs {
		switch a.Type {
		case CTRL_ATTR_FAMILY_NAME:
			f.Name, err = a.String()
		case CTRL_ATTR_VERSION:
			f.Version, err = a.Uint32()
		case CTRL_ATTR_HDRSIZE:
			f.HeaderSize, err = a.Uint32()
		case CTRL_ATTR_MAXATTR:
			f.MaxAttr, err = a.Uint32()
		case CTRL_ATTR_OPS:
			f.Operations, err = parseOperations(a)
		case CTRL_ATTR_MCAST_GROUPS:
			f.Groups, err = parseGroups(a)
		}
		if err != nil {
			return f, fmt.Errorf("error parsing controller attribute %d: %w", a.Type, err)
		}
	}

	return f, nil
}

// The controller doesn't flag the operation and group arrays as nested, so
// their payloads are decoded on demand.
func parseOperations(a attribute.Attribute) ([]Operation, error) {
	entries, err := a.NestedAttributes()
	if err != nil {
		return nil, err
	}

	ops := make([]Operation, 0, len(entries))
	for _, e := range entries {
		fields, err := e.NestedAttributes()
		if err != nil {
			return nil, err
		}

		var op Operation
		if op.ID, _, err = fields.Uint32(CTRL_ATTR_OP_ID); err != nil {
			return nil, err
		}
		if op.Flags, _, err = fields.Uint32(CTRL_ATTR_OP_FLAGS); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func parseGroups(a attribute.Attribute) ([]MulticastGroup, error) {
	entries, err := a.NestedAttributes()
	if err != nil {
		return nil, err
	}

	groups := make([]MulticastGroup, 0, len(entries))
	for _, e := range entries {
		fields, err := e.NestedAttributes()
		if err != nil {
			return nil, err
		}

		var g MulticastGroup
		if g.Name, _, err = fields.String(CTRL_ATTR_MCAST_GRP_NAME); err != nil {
			return nil, err
		}
		if g.ID, _, err = fields.Uint32(CTRL_ATTR_MCAST_GRP_ID); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// Attributes renders the family the way the controller describes it. It's
// the inverse of parseFamily and it's handy when faking the controller.
func (f Family) Attributes() attribute.Attributes {
	attrs := attribute.Attributes{
		attribute.Uint16(CTRL_ATTR_FAMILY_ID, f.ID),
		attribute.String(CTRL_ATTR_FAMILY_NAME, f.Name),
		attribute.Uint32(CTRL_ATTR_VERSION, f.Version),
		attribute.Uint32(CTRL_ATTR_HDRSIZE, f.HeaderSize),
		attribute.Uint32(CTRL_ATTR_MAXATTR, f.MaxAttr),
	}

	if len(f.Operations) > 0 {
		var ops attribute.Attributes
		for i, op := range f.Operations {
			ops = append(ops, unflagged(uint16(i+1),
				attribute.Uint32(CTRL_ATTR_OP_ID, op.ID),
				attribute.Uint32(CTRL_ATTR_OP_FLAGS, op.Flags),
			))
		}
		attrs = append(attrs, unflagged(CTRL_ATTR_OPS, ops...))
	}

	if len(f.Groups) > 0 {
		var groups attribute.Attributes
		for i, g := range f.Groups {
			groups = append(groups, unflagged(uint16(i+1),
				attribute.Uint32(CTRL_ATTR_MCAST_GRP_ID, g.ID),
				attribute.String(CTRL_ATTR_MCAST_GRP_NAME, g.Name),
			))
		}
		attrs = append(attrs, unflagged(CTRL_ATTR_MCAST_GROUPS, groups...))
	}

	return attrs
}

// unflagged nests children without NLA_F_NESTED, just like the controller
// does with nla_nest_start_noflag.
func unflagged(typ uint16, children ...attribute.Attribute) attribute.Attribute {
	b, err := attribute.Encode(children)
	if err != nil {
		// Only reachable past MaxLen bytes of children.
		panic(fmt.Sprintf("encoding controller attribute %d: %v", typ, err))
	}
	return attribute.Bytes(typ, b)
}
