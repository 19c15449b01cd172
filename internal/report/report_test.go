package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shugur-Network/torstatus/internal/models"
	"github.com/Shugur-Network/torstatus/internal/query"
)

func intPtr(v int) *int { return &v }

func testRelay() models.Relay {
	return models.Relay{
		Fingerprint:       "9695DFC35FFEB861329B9F1AB04C46397020CE31",
		Nickname:          "moria1",
		Address:           "128.31.0.34",
		ORPort:            9101,
		DirPort:           intPtr(9131),
		Country:           "US",
		Latitude:          42.36,
		Longitude:         -71.09,
		BandwidthObserved: 512 * 1024,
		Uptime:            3*86400 + 5,
		Published:         time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
		Platform:          "Tor 0.4.8.9 on Linux",
		IsAuthority:       true,
		IsExit:            true,
		IsNamed:           true,
		IsRunning:         true,
		IsValid:           true,
	}
}

func columnsOf(cells []Cell) []string {
	out := make([]string, 0, len(cells))
	for _, c := range cells {
		out = append(out, c.Column)
	}
	return out
}

func TestDisplayColumns(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		[]string{ColRouterName, ColCountryCode, ColIcons},
		DisplayColumns([]string{ColRouterName, ColCountryCode, ColIcons, ColExit, ColRunning, ColNamed}))

	// Icons disappears without an icon column.
	assert.Equal(t,
		[]string{ColRouterName, ColCountryCode},
		DisplayColumns([]string{ColRouterName, ColCountryCode, ColIcons}))

	assert.Equal(t, []string{ColIP}, DisplayColumns([]string{"Bogus", ColIP, ColHostname, ColValid}))
}

func TestProjector_IconsCell(t *testing.T) {
	t.Parallel()

	r := testRelay()
	r.IsGuard = false

	p := NewProjector([]string{ColRouterName, ColCountryCode, ColIcons, ColExit, ColGuard})
	row := p.Row(&r)
	require.Equal(t, []string{ColRouterName, ColCountryCode, ColIcons}, columnsOf(row.Cells))

	icons, ok := row.Cell(ColIcons)
	require.True(t, ok)
	assert.Equal(t, "col_relayIcons", icons.ID)
	require.Len(t, icons.Images(), 1)
	assert.Equal(t, "static/img/status/Exit.png", icons.Images()[0].Src)
	assert.Equal(t, "Exit Server", icons.Images()[0].Title)

	p = NewProjector([]string{ColRouterName, ColCountryCode, ColIcons})
	_, ok = p.Row(&r).Cell(ColIcons)
	assert.False(t, ok)
}

func TestProjector_IconOrderAndPlatform(t *testing.T) {
	t.Parallel()

	r := testRelay()
	r.IsFast = true
	r.IsHibernating = true

	p := NewProjector([]string{ColIcons, ColPlatform, ColAuthority, ColFast, ColHibernating})
	cell, ok := p.Row(&r).Cell(ColIcons)
	require.True(t, ok)

	var srcs []string
	for _, img := range cell.Images() {
		srcs = append(srcs, img.Src)
	}
	assert.Equal(t, []string{
		"static/img/status/Hibernating.png",
		"static/img/status/Fast.png",
		"static/img/status/Authority.png",
		"static/img/os-icons/Linux.png",
	}, srcs)
	assert.Equal(t, "Tor 0.4.8.9 on Linux", cell.Images()[3].Title)

	r.Platform = ""
	cell, _ = p.Row(&r).Cell(ColIcons)
	assert.Len(t, cell.Images(), 3)
}

func TestProjector_RowClassPrecedence(t *testing.T) {
	t.Parallel()

	r := testRelay()
	assert.Equal(t, "relay", RowClass(&r))
	r.IsHibernating = true
	assert.Equal(t, "relayHibernating", RowClass(&r))
	r.IsBadExit = true
	assert.Equal(t, "relayBadExit", RowClass(&r))
}

func TestProjector_RouterName(t *testing.T) {
	t.Parallel()

	r := testRelay()

	cell, _ := NewProjector([]string{ColRouterName, ColNamed}).Row(&r).Cell(ColRouterName)
	require.Len(t, cell.Content, 1)
	assert.True(t, cell.Content[0].Bold)
	assert.Equal(t, "/details/"+r.Fingerprint, cell.Content[0].Href)
	assert.Equal(t, "moria1", cell.Text())
	assert.Equal(t, "col_relayName", cell.ID)

	cell, _ = NewProjector([]string{ColRouterName}).Row(&r).Cell(ColRouterName)
	assert.False(t, cell.Content[0].Bold)

	r.IsNamed = false
	cell, _ = NewProjector([]string{ColRouterName, ColNamed}).Row(&r).Cell(ColRouterName)
	assert.False(t, cell.Content[0].Bold)
}

func TestProjector_CountryCell(t *testing.T) {
	t.Parallel()

	r := testRelay()
	cell, ok := NewProjector([]string{ColCountryCode}).Row(&r).Cell(ColCountryCode)
	require.True(t, ok)
	require.Len(t, cell.Content, 1)
	f := cell.Content[0]
	assert.Equal(t, "http://www.openstreetmap.org/?mlon=-71.09&mlat=42.36&zoom=6", f.Href)
	require.NotNil(t, f.Image)
	assert.Equal(t, "static/img/flags/us.gif", f.Image.Src)
	assert.Equal(t, "US:42.36, -71.09", f.Image.Title)
}

func TestProjector_ValueCells(t *testing.T) {
	t.Parallel()

	r := testRelay()
	p := NewProjector([]string{ColBandwidth, ColUptime, ColIP, ColORPort, ColDirPort, ColContact, ColPublished, ColBadExit, ColBadDir})
	row := p.Row(&r)

	text := func(col string) string {
		c, ok := row.Cell(col)
		require.True(t, ok, col)
		return c.Text()
	}
	assert.Equal(t, "512 KB/s", text(ColBandwidth))
	assert.Equal(t, "3 d", text(ColUptime))
	assert.Equal(t, "[128.31.0.34]", text(ColIP))
	assert.Equal(t, "9101", text(ColORPort))
	assert.Equal(t, "9131", text(ColDirPort))
	assert.Equal(t, "No contact information given", text(ColContact))
	assert.Equal(t, "2024-03-01 12:30:00", text(ColPublished))

	ip, _ := row.Cell(ColIP)
	assert.Equal(t, "details/128.31.0.34/whois", ip.Content[1].Href)
	assert.Equal(t, "col_relayIP", ip.ID)

	badExit, _ := row.Cell(ColBadExit)
	require.Len(t, badExit.Images(), 1)
	assert.Equal(t, "static/img/bg_no.png", badExit.Images()[0].Src)
	assert.Equal(t, "Not a Bad Exit", badExit.Images()[0].Title)

	r.IsBadDirectory = true
	r.DirPort = nil
	row = p.Row(&r)
	badDir, _ := row.Cell(ColBadDir)
	assert.Equal(t, "static/img/bg_yes.png", badDir.Images()[0].Src)
	assert.Equal(t, "Bad Directory", badDir.Images()[0].Title)
	assert.Equal(t, "None", text(ColDirPort))
}

func TestHeaders(t *testing.T) {
	t.Parallel()

	current := []string{ColCountryCode, ColRouterName, ColUptime, ColIcons, ColFast, ColRunning}
	hs := Headers(current, "uptime", query.Descending)
	require.Len(t, hs, 4)

	assert.Equal(t, "\u00a0\u00a0", hs[0].Text)
	assert.Equal(t, "country", hs[0].ID)
	assert.Equal(t, "/country_ascending", hs[0].SortLink)
	assert.Empty(t, hs[0].Arrow)

	assert.Equal(t, "Router Name", hs[1].Text)
	assert.Equal(t, "relayHeader hoverable", hs[1].Class)

	assert.Equal(t, "uptime", hs[2].ID)
	assert.Equal(t, "↓", hs[2].Arrow)
	assert.Equal(t, "/uptime_ascending", hs[2].SortLink)

	assert.Equal(t, ColIcons, hs[3].Column)
	assert.Equal(t, "relayHeader", hs[3].Class)
	assert.Empty(t, hs[3].SortLink)

	hs = Headers([]string{ColUptime}, "uptime", query.Ascending)
	assert.Equal(t, "↑", hs[0].Arrow)
	assert.Equal(t, "/uptime_descending", hs[0].SortLink)
}

func TestRenderTabular(t *testing.T) {
	t.Parallel()

	a := testRelay()
	b := testRelay()
	b.Nickname, b.Fingerprint, b.IsExit = "alpha", "0000000000000000000000000000000000000000", false

	table, err := RenderTabular([]models.Relay{a, b}, query.Options{}, []string{ColRouterName})
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "alpha", table.Rows[0].Cells[0].Text())

	table, err = RenderTabular([]models.Relay{a, b}, query.Options{"isexit": "yes"}, []string{ColRouterName})
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "moria1", table.Rows[0].Cells[0].Text())

	_, err = RenderTabular([]models.Relay{a}, query.Options{"searchValue": "x", "criteria": "uptime", "boolLogic": "less"}, []string{ColRouterName})
	require.Error(t, err)
}

func TestCSVColumnsAndValues(t *testing.T) {
	t.Parallel()

	current := []string{ColHostname, ColRouterName, ColIcons, ColBandwidth, ColNamed, ColExit, ColDirPort, ColHibernating, ColValid, ColRunning}
	cols := CSVColumns(current)
	assert.Equal(t, []string{ColRouterName, ColBandwidth, ColExit, ColDirPort}, cols)

	r := testRelay()
	assert.Equal(t, []string{"moria1", "524288", "true", "9131"}, CSVValues(&r, cols))
	r.DirPort = nil
	r.Contact = ""
	r.Platform = ""
	assert.Equal(t, []string{"None", "No contact information given", "NotAvailable"},
		CSVValues(&r, []string{ColDirPort, ColContact, ColPlatform}))
}
