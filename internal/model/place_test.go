package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDateRange(t *testing.T) {
	tests := []struct {
		name       string
		open, end  string
		want       string
		wantOK     bool
	}{
		{"both", "2025-09-28", "2025-10-05", "2025/09/28 ~ 2025/10/05", true},
		{"open only", "2025-09-28", "", "2025/09/28 ~", true},
		{"end only", "", "2025-10-05T00:00:00Z", "~ 2025/10/05", true},
		{"neither", "", "", "", false},
		{"garbage counts as absent", "soon", "2025/10/05", "~ 2025/10/05", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Place{OpenDate: tt.open, EndDate: tt.end}.DateRange()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeRange(t *testing.T) {
	got, ok := Place{OpenTime: "08:00", EndTime: "17:30"}.TimeRange()
	assert.True(t, ok)
	assert.Equal(t, "08:00 ~ 17:30", got)

	got, ok = Place{EndTime: "17:30:00"}.TimeRange()
	assert.True(t, ok)
	assert.Equal(t, "~ 17:30", got)
}

func TestDisplayAddressFallback(t *testing.T) {
	assert.Equal(t, "光復路 1 號", Place{Address: "光復路 1 號", AddressDescription: "x"}.DisplayAddress())
	assert.Equal(t, "車站旁", Place{AddressDescription: "車站旁"}.DisplayAddress())
	assert.Equal(t, "未提供地址", Place{}.DisplayAddress())
}

func TestParseTab(t *testing.T) {
	tab, ok := ParseTab("")
	assert.True(t, ok)
	assert.Equal(t, TabAll, tab)

	tab, ok = ParseTab("medical")
	assert.True(t, ok)
	assert.Equal(t, Medical, tab.Type())
	assert.True(t, tab.Includes(Medical))
	assert.False(t, tab.Includes(Water))

	tab, ok = ParseTab("加水")
	assert.True(t, ok)
	assert.Equal(t, "加水站", tab.Label())

	_, ok = ParseTab("casino")
	assert.False(t, ok)
}

func TestAllPlaceTypesIsACopy(t *testing.T) {
	a := AllPlaceTypes()
	a[0] = "x"
	assert.Equal(t, Accommodation, AllPlaceTypes()[0])
	assert.Len(t, a, 10)
}
