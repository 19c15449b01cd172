package report

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/Shugur-Network/torstatus/internal/constants"
	"github.com/Shugur-Network/torstatus/internal/models"
	"github.com/Shugur-Network/torstatus/internal/query"
	"github.com/Shugur-Network/torstatus/internal/relayutil"
)

// statusIcon describes the image shown for a true boolean flag.
type statusIcon struct {
	image string
	title string
}

var statusIcons = map[string]statusIcon{
	ColFast:        {"Fast", "Fast Server"},
	ColV2Dir:       {"Dir", "Directory Server"},
	ColExit:        {"Exit", "Exit Server"},
	ColGuard:       {"Guard", "Guard Server"},
	ColHibernating: {"Hibernating", "Hibernating Server"},
	ColStable:      {"Stable", "Stable Server"},
	ColAuthority:   {"Authority", "Authority Server"},
}

// Projector renders relays for one column selection.
type Projector struct {
	current []string
	display []string
	named   bool
}

// NewProjector prepares a projector for the given current columns.
func NewProjector(current []string) *Projector {
	return &Projector{
		current: slices.Clone(current),
		display: DisplayColumns(current),
		named:   slices.Contains(current, ColNamed),
	}
}

// Columns returns the display columns in order.
func (p *Projector) Columns() []string {
	return p.display
}

// RowClass picks the row style: bad exit wins over hibernating.
func RowClass(r *models.Relay) string {
	switch {
	case r.IsBadExit:
		return RowClassBadExit
	case r.IsHibernating:
		return RowClassHibernating
	}
	return RowClassDefault
}

// Row renders one relay.
func (p *Projector) Row(r *models.Relay) Row {
	row := Row{
		Class:       RowClass(r),
		Fingerprint: r.Fingerprint,
		Cells:       make([]Cell, 0, len(p.display)),
	}
	for _, col := range p.display {
		row.Cells = append(row.Cells, p.cell(r, col))
	}
	return row
}

func (p *Projector) cell(r *models.Relay, col string) Cell {
	switch col {
	case ColCountryCode:
		return Cell{Column: col, ID: cellIDName, Content: countryContent(r)}
	case ColRouterName:
		return Cell{Column: col, ID: cellIDName, Content: []Fragment{{
			Text:   r.Nickname,
			Href:   fmt.Sprintf(detailsURL, r.Fingerprint),
			Class:  linkClass,
			Target: detailsTarget,
			Bold:   p.named && r.IsNamed,
		}}}
	case ColIcons:
		var content []Fragment
		for _, icon := range IconColumns {
			if slices.Contains(p.current, icon) {
				content = append(content, iconContent(r, icon)...)
			}
		}
		return Cell{Column: col, ID: cellIDIcons, Content: content}
	}
	return Cell{Column: col, ID: cellIDPrefix + col, Content: valueContent(r, col)}
}

func countryContent(r *models.Relay) []Fragment {
	lat := formatCoord(r.Latitude)
	lon := formatCoord(r.Longitude)
	return []Fragment{{
		Href: fmt.Sprintf(mapURL, lon, lat),
		Image: &Image{
			Src:   fmt.Sprintf(flagImagePath, strings.ToLower(r.Country)),
			Alt:   r.Country,
			Title: r.Country + ":" + lat + ", " + lon,
		},
	}}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func flagSet(r *models.Relay, col string) bool {
	field, _ := FieldFor(col)
	v, _ := r.Value(field)
	b, _ := v.(bool)
	return b
}

// iconContent renders one icon column. Flags render only when set; the
// platform icon renders whenever the relay reports a platform.
func iconContent(r *models.Relay, col string) []Fragment {
	if col == ColPlatform {
		return platformContent(r)
	}
	icon, ok := statusIcons[col]
	if !ok || !flagSet(r, col) {
		return nil
	}
	return []Fragment{{Image: &Image{
		Src:   fmt.Sprintf(statusImagePath, icon.image),
		Alt:   icon.title,
		Title: icon.title,
	}}}
}

func platformContent(r *models.Relay) []Fragment {
	if r.Platform == "" {
		return nil
	}
	os := relayutil.NormalizePlatform(r.Platform)
	return []Fragment{{Image: &Image{
		Src:   fmt.Sprintf(osImagePath, os),
		Alt:   os,
		Title: r.Platform,
	}}}
}

func badFlagContent(set bool, yesTitle, noTitle string) []Fragment {
	state, title := "no", noTitle
	if set {
		state, title = "yes", yesTitle
	}
	return []Fragment{{Image: &Image{
		Src:    fmt.Sprintf(badFlagImagePath, state),
		Alt:    title,
		Title:  title,
		Width:  badFlagImageSize,
		Height: badFlagImageSize,
	}}}
}

func valueContent(r *models.Relay, col string) []Fragment {
	text := func(s string) []Fragment { return []Fragment{{Text: s}} }

	switch col {
	case ColBandwidth:
		return text(strconv.FormatInt(relayutil.BytesToKB(r.BandwidthObserved), 10) + bandwidthUnitSuffix)
	case ColUptime:
		return text(strconv.FormatInt(relayutil.SecondsToDays(r.Uptime), 10) + uptimeUnitSuffix)
	case ColIP:
		return []Fragment{
			{Text: "["},
			{Text: r.Address, Href: fmt.Sprintf(whoisURL, r.Address)},
			{Text: "]"},
		}
	case ColORPort:
		return text(strconv.Itoa(r.ORPort))
	case ColDirPort:
		return text(DirPortText(r))
	case ColBadExit:
		return badFlagContent(r.IsBadExit, "Bad Exit", "Not a Bad Exit")
	case ColBadDir:
		return badFlagContent(r.IsBadDirectory, "Bad Directory", "Not a Bad Directory")
	case ColFingerprint:
		return text(r.Fingerprint)
	case ColPublished:
		return text(r.Published.UTC().Format(query.PublishedLayout))
	case ColContact:
		return text(ContactText(r))
	}
	return nil
}

// DirPortText is the directory port as shown to users. Relays without a
// directory port, or advertising port 0, show the "None" sentinel.
func DirPortText(r *models.Relay) string {
	if r.DirPort == nil || *r.DirPort == 0 {
		return constants.DefaultDirPortSentinel
	}
	return strconv.Itoa(*r.DirPort)
}

// ContactText returns the contact line or the no-contact sentinel.
func ContactText(r *models.Relay) string {
	if r.Contact == "" {
		return constants.DefaultContactSentinel
	}
	return r.Contact
}

// PlatformText returns the raw platform line or the NotAvailable sentinel.
func PlatformText(r *models.Relay) string {
	if r.Platform == "" {
		return constants.DefaultPlatformSentinel
	}
	return r.Platform
}
