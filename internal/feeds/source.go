package feeds

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Source is a named content section that can be loaded on demand.
type Source interface {
	Name() string
	Load(ctx context.Context, c *Client) (any, error)
}

// Section binds a sheet to the decoder for its rows.
type Section[T any] struct {
	Sheet  Sheet
	Decode func(rows [][]string) T
}

func (s Section[T]) Name() string { return s.Sheet.Name }

// Load fetches and decodes the section.
func (s Section[T]) Load(ctx context.Context, c *Client) (any, error) {
	return s.Fetch(ctx, c)
}

// Fetch is Load with the concrete result type. A sheet that is not
// tabular decodes as empty and still returns ErrNotTabular.
func (s Section[T]) Fetch(ctx context.Context, c *Client) (T, error) {
	var zero T
	rows, err := c.FetchRows(ctx, s.Sheet)
	if errors.Is(err, ErrNotTabular) {
		return s.Decode(nil), err
	}
	if err != nil {
		return zero, err
	}
	return s.Decode(rows), nil
}

// HasData reports whether a decoded section has anything to show.
func HasData(v any) bool {
	switch d := v.(type) {
	case []FAQ:
		return len(d) > 0
	case []Announcement:
		return len(d) > 0
	case []FriendlyLink:
		return len(d) > 0
	case HouseRepair:
		return len(d.Vendors) > 0
	case SupportInfo:
		return len(d.Programs) > 0
	}
	return v != nil
}

// Section names.
const (
	FAQName           = "faq"
	AnnouncementsName = "announcements"
	FriendlyLinksName = "friendly-links"
	HouseRepairName   = "house-repair"
	SupportInfoName   = "support-information"
)

// Registry holds the configured sections by name.
type Registry map[string]Source

// NewRegistry builds every section on one spreadsheet. gids maps section
// names to sheet gids; sections without a gid are still registered and fail
// with ErrNotConfigured when loaded.
func NewRegistry(sheetID string, gids map[string]string) Registry {
	sheet := func(name string) Sheet { return Sheet{Name: name, SheetID: sheetID, GID: gids[name]} }
	return Registry{
		FAQName:           Section[[]FAQ]{Sheet: sheet(FAQName), Decode: DecodeFAQ},
		AnnouncementsName: Section[[]Announcement]{Sheet: sheet(AnnouncementsName), Decode: DecodeAnnouncements},
		FriendlyLinksName: Section[[]FriendlyLink]{Sheet: sheet(FriendlyLinksName), Decode: DecodeFriendlyLinks},
		HouseRepairName:   Section[HouseRepair]{Sheet: sheet(HouseRepairName), Decode: DecodeHouseRepair},
		SupportInfoName:   Section[SupportInfo]{Sheet: sheet(SupportInfoName), Decode: DecodeSupportInfo},
	}
}

// Load looks up and loads a section.
func (r Registry) Load(ctx context.Context, c *Client, name string) (any, error) {
	src, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("feeds: unknown section %q", name)
	}
	return src.Load(ctx, c)
}

// Names lists registered sections in sorted order.
func (r Registry) Names() []string {
	out := make([]string, 0, len(r))
	for n := range r {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
