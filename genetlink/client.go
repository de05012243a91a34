package genetlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/scitags/gonl/attribute"
	"github.com/scitags/gonl/message"
	"github.com/scitags/gonl/transport"
	"github.com/scitags/gonl/types"
)

// Transport is what a Client needs from the layer below. *transport.Conn
// satisfies it.
type Transport interface {
	// Execute sends m and blocks until every reply has been collected.
	Execute(ctx context.Context, m message.Message) ([]message.Message, error)

	// Notifications carries unsolicited messages. It's closed when the
	// transport shuts down.
	Notifications() <-chan message.Message

	JoinGroup(group uint32) error
	LeaveGroup(group uint32) error
}

// A Notification is an unsolicited generic netlink message tagged with the
// family it belongs to. Family is the zero value when the message type maps
// onto no family we've resolved so far.
type Notification struct {
	Family  Family
	Header  message.Header
	Message Message
}

type Client struct {
	Config

	t        Transport
	registry *Registry
	log      *slog.Logger
	obs      transport.Observer

	notifyOnce sync.Once
	notifyChan chan Notification
}

// NewClient wraps t. Notifications dropped by the client itself are reported
// to obs, which may be nil.
func NewClient(t Transport, config *Config, obs transport.Observer) *Client {
	if config == nil {
		config = &DefaultConfig
	}
	if obs == nil {
		obs = transport.NopObserver
	}

	return &Client{
		Config:   *config,
		t:        t,
		registry: NewRegistry(),
		obs:      obs,
		log:      types.ComponentLogger("genetlink", config.Log),
	}
}

// Registry exposes the families resolved so far.
func (c *Client) Registry() *Registry {
	return c.registry
}

func (c *Client) request(ctx context.Context, typ uint16, flags message.Flags, m Message) ([]message.Message, error) {
	payload, err := m.MarshalBinary()
	if err != nil {
		return nil, err
	}

	return c.t.Execute(ctx, message.Message{
		Header:  message.Header{Type: message.Type(typ), Flags: message.Request | flags},
		Payload: payload,
	})
}

// getFamily asks the controller about a single family. The controller will
// only ever answer with one family so anything but the first reply is
// ignored.
func (c *Client) getFamily(ctx context.Context, what string, attr attribute.Attribute) (Family, error) {
	replies, err := c.request(ctx, GENL_ID_CTRL, 0, Message{
		Header:     Header{Command: CTRL_CMD_GETFAMILY, Version: 1},
		Attributes: attribute.Attributes{attr},
	})
	if err != nil {
		var ke *types.KernelError
		if errors.As(err, &ke) {
			return Family{}, fmt.Errorf("%w %s: %w", types.ErrUnknownFamily, what, err)
		}
		return Family{}, fmt.Errorf("error querying the controller for %s: %w", what, err)
	}
	if len(replies) == 0 {
		return Family{}, fmt.Errorf("no controller reply for %s: %w", what, types.ErrUnknownFamily)
	}

	gm, err := Unmarshal(replies[0].Payload)
	if err != nil {
		return Family{}, fmt.Errorf("error parsing the controller reply for %s: %w", what, err)
	}

	f, err := parseFamily(gm.Attributes)
	if err != nil {
		return Family{}, fmt.Errorf("family %s: %w", what, err)
	}

	c.registry.Add(f)
	c.log.Debug("resolved family", "name", f.Name, "id", f.ID, "groups", len(f.Groups))
	return f, nil
}

// ResolveFamily maps a family name onto its description, asking the
// controller only the first time a name is seen.
func (c *Client) ResolveFamily(ctx context.Context, name string) (Family, error) {
	if f, ok := c.registry.Get(name); ok {
		return f, nil
	}
	return c.getFamily(ctx, fmt.Sprintf("%q", name), attribute.String(CTRL_ATTR_FAMILY_NAME, name))
}

// Preload resolves the families named in the configuration so that their
// notifications can be attributed right away.
func (c *Client) Preload(ctx context.Context) error {
	for _, name := range c.Families {
		if _, err := c.ResolveFamily(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// FamilyByID is the reverse of ResolveFamily.
func (c *Client) FamilyByID(ctx context.Context, id uint16) (Family, error) {
	if f, ok := c.registry.ByID(id); ok {
		return f, nil
	}
	return c.getFamily(ctx, fmt.Sprintf("%#x", id), attribute.Uint16(CTRL_ATTR_FAMILY_ID, id))
}

// ListFamilies dumps every family registered with the controller, caching
// all of them along the way.
func (c *Client) ListFamilies(ctx context.Context) ([]Family, error) {
	replies, err := c.request(ctx, GENL_ID_CTRL, message.Dump, Message{
		Header: Header{Command: CTRL_CMD_GETFAMILY, Version: 1},
	})
	if err != nil && !errors.Is(err, types.ErrDumpInterrupted) {
		return nil, fmt.Errorf("error dumping families: %w", err)
	}

	families := make([]Family, 0, len(replies))
	for _, r := range replies {
		gm, perr := Unmarshal(r.Payload)
		if perr != nil {
			return nil, fmt.Errorf("error parsing the controller dump: %w", perr)
		}

		f, perr := parseFamily(gm.Attributes)
		if perr != nil {
			return nil, perr
		}

		c.registry.Add(f)
		families = append(families, f)
	}

	// An interrupted dump is still handed back so that callers can decide
	// whether a possibly inconsistent listing is good enough.
	return families, err
}

// Execute dispatches a command to the named family and parses every reply.
// The request flag is always set. Passing message.Dump issues a dump and
// message.Ack asks for an explicit acknowledgement.
func (c *Client) Execute(ctx context.Context, family string, cmd, version uint8, attrs attribute.Attributes, flags message.Flags) ([]Message, error) {
	f, err := c.ResolveFamily(ctx, family)
	if err != nil {
		return nil, err
	}

	replies, err := c.request(ctx, f.ID, flags, Message{
		Header:     Header{Command: cmd, Version: version},
		Attributes: attrs,
	})
	if err != nil && !errors.Is(err, types.ErrDumpInterrupted) {
		return nil, fmt.Errorf("%s command %d: %w", f.Name, cmd, err)
	}

	msgs := make([]Message, 0, len(replies))
	for _, r := range replies {
		gm, perr := Unmarshal(r.Payload)
		if perr != nil {
			return nil, fmt.Errorf("error parsing a %s reply: %w", f.Name, perr)
		}
		msgs = append(msgs, gm)
	}

	return msgs, err
}

// JoinGroup subscribes to one of the family's multicast groups. Messages
// sent to it show up on Notifications.
func (c *Client) JoinGroup(ctx context.Context, family, group string) error {
	g, err := c.group(ctx, family, group)
	if err != nil {
		return err
	}

	if err := c.t.JoinGroup(g.ID); err != nil {
		return fmt.Errorf("error joining %s/%s: %w", family, group, err)
	}
	c.log.Debug("joined multicast group", "family", family, "group", group, "id", g.ID)
	return nil
}

func (c *Client) LeaveGroup(ctx context.Context, family, group string) error {
	g, err := c.group(ctx, family, group)
	if err != nil {
		return err
	}

	if err := c.t.LeaveGroup(g.ID); err != nil {
		return fmt.Errorf("error leaving %s/%s: %w", family, group, err)
	}
	return nil
}

func (c *Client) group(ctx context.Context, family, group string) (MulticastGroup, error) {
	f, err := c.ResolveFamily(ctx, family)
	if err != nil {
		return MulticastGroup{}, err
	}

	g, ok := f.Group(group)
	if !ok {
		return MulticastGroup{}, fmt.Errorf("family %s has no multicast group %q", family, group)
	}
	return g, nil
}

// Notifications returns the stream of unsolicited messages. Only families
// already in the registry can be named: looking one up would mean issuing a
// request from within the stream.
func (c *Client) Notifications() <-chan Notification {
	c.notifyOnce.Do(func() {
		c.notifyChan = make(chan Notification, c.NotificationBuffer)
		go c.translate()
	})
	return c.notifyChan
}

func (c *Client) translate() {
	defer close(c.notifyChan)

	for m := range c.t.Notifications() {
		gm, err := Unmarshal(m.Payload)
		if err != nil {
			c.log.Warn("dropping malformed notification", "type", m.Header.Type, "err", err)
			c.obs.MessageDropped(transport.DropMalformed)
			continue
		}

		n := Notification{Header: m.Header, Message: gm}
		if f, ok := c.registry.ByID(uint16(m.Header.Type)); ok {
			n.Family = f
		}

		select {
		case c.notifyChan <- n:
		default:
			c.log.Warn("notification buffer full, dropping", "family", n.Family.Name, "cmd", gm.Header.Command)
			c.obs.MessageDropped(transport.DropNotification)
		}
	}

	c.log.Debug("notification stream closed")
}
