package feeds

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchRows(t *testing.T) {
	srv := serve(t, 200, "date,title,content\r\n2025-09-30,\"停水, 公告\",\"第一行\n第二行\"\r\n")
	c := NewClient(srv.Client(), 0, 0)
	rows, err := c.FetchRows(context.Background(), Sheet{Name: "t", URL: srv.URL})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"2025-09-30", "停水, 公告", "第一行\n第二行"}, rows[1])
}

func TestFetchRowsRejectsHTML(t *testing.T) {
	srv := serve(t, 200, "<!DOCTYPE html><html><body>Sign in</body></html>")
	_, err := NewClient(srv.Client(), 0, 0).FetchRows(context.Background(), Sheet{Name: "t", URL: srv.URL})
	assert.True(t, errors.Is(err, ErrNotTabular))
}

func TestFetchRowsStatusError(t *testing.T) {
	srv := serve(t, 404, "nope")
	_, err := NewClient(srv.Client(), 0, 0).FetchRows(context.Background(), Sheet{Name: "t", URL: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestNotConfigured(t *testing.T) {
	_, err := NewClient(nil, 0, 0).FetchRows(context.Background(), Sheet{Name: "faq", SheetID: "abc"})
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestExportURL(t *testing.T) {
	u, err := Sheet{SheetID: "abc", GID: "42"}.ExportURL()
	require.NoError(t, err)
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/abc/export?format=csv&gid=42", u)
}

func TestDecodeFAQ(t *testing.T) {
	rows := [][]string{
		{"問題", "回答"},
		{"問題", "header repeated"},
		{"哪裡有水？", "車站", "地圖", "https://example.org"},
		{"沒有答案", ""},
	}
	got := DecodeFAQ(rows)
	require.Len(t, got, 1)
	assert.Equal(t, FAQ{Question: "哪裡有水？", Answer: "車站", LinkText: "地圖", LinkURL: "https://example.org"}, got[0])
}

func TestDecodeAnnouncementsRequiresAllFields(t *testing.T) {
	rows := [][]string{{"date", "title", "content"}, {"2025-09-30", "停水", "今日停水"}, {"2025-10-01", "", "x"}}
	got := DecodeAnnouncements(rows)
	require.Len(t, got, 1)
	assert.Equal(t, "停水", got[0].Title)
}

func TestDecodeFriendlyLinks(t *testing.T) {
	rows := [][]string{
		{"title", "image", "desc", "ig", "fb", "web"},
		{"光復志工隊", "img.png", "在地團體", "", "https://fb.example", "https://web.example"},
		{"", "orphan.png"},
	}
	got := DecodeFriendlyLinks(rows)
	require.Len(t, got, 1)
	assert.Equal(t, "unit-0", got[0].ID)
	assert.Equal(t, "https://fb.example", got[0].Facebook)
	assert.Empty(t, got[0].Instagram)
}

// Duplicate rows keep the first occurrence.
func TestDecodeHouseRepairFirstOccurrenceWins(t *testing.T) {
	rows := [][]string{
		{"", "水電", "", ""},
		{"", "廠商名稱", "聯絡人", "電話"},
		{"r1", "阿明水電", "王先生", "0911"},
		{"r2", "阿明水電", "王先生", "0922"},
		{"r3", "小華水電", "李小姐", "0933"},
		{"", "泥作", "", ""},
		{"r4", "阿明水電", "王先生", "0944"},
	}
	got := DecodeHouseRepair(rows)
	assert.Equal(t, []string{AllTypes, "水電", "泥作"}, got.Types)
	require.Len(t, got.Vendors, 3)
	assert.Equal(t, "0911", got.Vendors[0].Phone)
	assert.Equal(t, "泥作", got.Vendors[2].Type)
	assert.Len(t, got.Filter("水電"), 2)
	assert.Len(t, got.Filter(AllTypes), 3)
}

func TestDecodeHouseRepairIgnoresVendorsBeforeFirstType(t *testing.T) {
	got := DecodeHouseRepair([][]string{{"r0", "孤兒廠商", "某人", "0900"}})
	assert.Empty(t, got.Vendors)
}

func TestDecodeSupportInfo(t *testing.T) {
	rows := [][]string{
		{"ID", "Tag", "名稱", "連結"},
		{"1", "一般個人", "急難救助金", "https://a.example", "受災戶", "一萬元", "10/31", "鄉公所", "中正路", "08:00-17:00", "03-1234567", "身分證", "縣府"},
		{"2", "一般個人", "急難救助金", "https://a.example", "", "", "", "", "", "", "03-7654321", "", ""},
		{"3", "商家與企業", "紓困貸款", "https://b.example"},
		{"4", "", "no tag"},
	}
	got := DecodeSupportInfo(rows)
	require.Len(t, got.Programs, 2)
	assert.Equal(t, "03-1234567", got.Programs[0].Phone)
	assert.Equal(t, []string{AllTypes, "一般個人", "商家與企業"}, got.Types)
	assert.Len(t, got.Filter("商家與企業"), 1)
}

func TestRegistryLoad(t *testing.T) {
	srv := serve(t, 200, "q,a\n電話?,1999\n")
	reg := Registry{FAQName: Section[[]FAQ]{Sheet: Sheet{Name: FAQName, URL: srv.URL}, Decode: DecodeFAQ}}
	v, err := reg.Load(context.Background(), NewClient(srv.Client(), 10, 1), FAQName)
	require.NoError(t, err)
	faqs, ok := v.([]FAQ)
	require.True(t, ok)
	assert.Len(t, faqs, 1)

	_, err = reg.Load(context.Background(), NewClient(nil, 0, 0), "nope")
	assert.Error(t, err)
}

func TestHTMLSectionDecodesEmpty(t *testing.T) {
	srv := serve(t, 200, "<!DOCTYPE html><html><body>Sign in</body></html>")
	sec := Section[HouseRepair]{Sheet: Sheet{Name: HouseRepairName, URL: srv.URL}, Decode: DecodeHouseRepair}
	got, err := sec.Fetch(context.Background(), NewClient(srv.Client(), 0, 0))
	assert.True(t, errors.Is(err, ErrNotTabular))
	assert.Equal(t, []string{AllTypes}, got.Types)
	assert.NotNil(t, got.Vendors)
	assert.False(t, HasData(got))
	assert.False(t, HasData([]FAQ{}))
	assert.True(t, HasData([]FAQ{{Question: "q", Answer: "a"}}))
}

func TestNewRegistryWithoutGIDs(t *testing.T) {
	reg := NewRegistry("sheet", nil)
	assert.Len(t, reg.Names(), 5)
	_, err := reg.Load(context.Background(), NewClient(nil, 0, 0), AnnouncementsName)
	assert.True(t, errors.Is(err, ErrNotConfigured))
}
