package subcmd

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/scitags/gonl/attribute"
	"github.com/scitags/gonl/genetlink"
)

func printFamily(w io.Writer, f genetlink.Family) {
	fmt.Fprintf(w, "%s: id %#x, version %d, header %d, maxattr %d\n", f.Name, f.ID, f.Version, f.HeaderSize, f.MaxAttr)
	if len(f.Operations) > 0 {
		fmt.Fprintf(w, "  operations:\n")
		for _, op := range f.Operations {
			fmt.Fprintf(w, "    %d (flags %#x)\n", op.ID, op.Flags)
		}
	}
	if len(f.Groups) > 0 {
		fmt.Fprintf(w, "  multicast groups:\n")
		for _, g := range f.Groups {
			fmt.Fprintf(w, "    %s (%d)\n", g.Name, g.ID)
		}
	}
}

func printNotification(w io.Writer, n genetlink.Notification) {
	family := n.Family.Name
	if family == "" {
		family = n.Header.Type.String()
	}
	fmt.Fprintf(w, "%s: cmd %d, version %d, seq %d, pid %d\n",
		family, n.Message.Header.Command, n.Message.Header.Version, n.Header.Sequence, n.Header.PortID)
	printAttributes(w, n.Message.Attributes, 1)
}

// printAttributes dumps an attribute tree. There's no schema at hand, so
// leaves are shown raw plus whatever reading looks sensible for their size.
func printAttributes(w io.Writer, attrs attribute.Attributes, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, a := range attrs {
		if a.Nested {
			fmt.Fprintf(w, "%s[%d] nested\n", indent, a.Type)
			printAttributes(w, a.Children, depth+1)
			continue
		}
		fmt.Fprintf(w, "%s[%d] %s\n", indent, a.Type, describe(a))
	}
}

func describe(a attribute.Attribute) string {
	if len(a.Data) == 0 {
		return "flag"
	}

	if s, ok := printable(a.Data); ok {
		return fmt.Sprintf("%q", s)
	}

	raw := fmt.Sprintf("% x", a.Data)
	switch len(a.Data) {
	case 1:
		return fmt.Sprintf("%s (%d)", raw, a.Data[0])
	case 2:
		v, _ := a.Uint16()
		return fmt.Sprintf("%s (%d)", raw, v)
	case 4:
		v, _ := a.Uint32()
		return fmt.Sprintf("%s (%d)", raw, v)
	case 8:
		v, _ := a.Uint64()
		return fmt.Sprintf("%s (%d)", raw, v)
	}
	if len(a.Data) > 64 {
		return fmt.Sprintf("% x ... (%d bytes)", a.Data[:64], len(a.Data))
	}
	return raw
}

// printable reports whether b looks like a NUL-terminated string.
func printable(b []byte) (string, bool) {
	if len(b) < 2 || b[len(b)-1] != 0 {
		return "", false
	}
	s := string(b[:len(b)-1])
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return "", false
		}
	}
	return s, true
}
