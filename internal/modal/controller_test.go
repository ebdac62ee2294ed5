package modal

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reliefmap/internal/model"
)

func detail(id string) DetailData {
	return DetailData{Type: "醫療站", Name: id, Place: model.Place{ID: id, Name: id, Type: model.Medical}}
}

func recv(t *testing.T, ch <-chan bool) bool {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("confirm channel never resolved")
		return false
	}
}

func TestReportFromDetailReturnsToDetail(t *testing.T) {
	c := New()
	c.OpenDetail(detail("p1"))
	c.OpenReport(ReportData{Category: "醫療", ID: "p1", Name: "p1"})

	s := c.Snapshot()
	assert.Equal(t, KindReport, s.Kind)
	require.NotNil(t, s.ReturnTo)
	assert.Equal(t, "p1", s.ReturnTo.Place.ID)

	c.CloseAndReturn()
	s = c.Snapshot()
	assert.Equal(t, KindDetail, s.Kind)
	assert.Equal(t, "p1", s.Detail.Place.ID)
	assert.Nil(t, s.ReturnTo)
}

func TestCloseAndReturnWithoutSlotCloses(t *testing.T) {
	c := New()
	c.OpenReport(ReportData{ID: "x"})
	c.CloseAndReturn()
	assert.Equal(t, KindNone, c.Snapshot().Kind)
}

func TestOpenDetailClearsReturnSlot(t *testing.T) {
	c := New()
	c.OpenDetail(detail("p1"))
	c.OpenReport(ReportData{ID: "p1"})
	c.OpenDetail(detail("p2"))
	assert.Nil(t, c.Snapshot().ReturnTo)
}

func TestCloseClearsEverything(t *testing.T) {
	c := New()
	c.OpenDetail(detail("p1"))
	c.OpenReport(ReportData{ID: "p1"})
	c.Close()
	s := c.Snapshot()
	assert.Equal(t, KindNone, s.Kind)
	assert.Nil(t, s.ReturnTo)
}

func TestShowConfirmResolvesOnce(t *testing.T) {
	c := New()
	ch := c.ShowConfirm("位置權限請求", "允許？")
	assert.Equal(t, KindConfirm, c.Snapshot().Kind)
	c.Accept()
	assert.True(t, recv(t, ch))
	assert.Equal(t, KindNone, c.Snapshot().Kind)

	c.Accept()
	c.Decline()
	select {
	case v, ok := <-ch:
		t.Fatalf("resolved twice: %v %v", v, ok)
	default:
	}
}

func TestSecondConfirmResolvesFirstFalse(t *testing.T) {
	c := New()
	first := c.ShowConfirm("a", "a")
	second := c.ShowConfirm("b", "b")
	assert.False(t, recv(t, first))
	assert.Equal(t, "b", c.Snapshot().Confirm.Title)
	c.Accept()
	assert.True(t, recv(t, second))
}

func TestCloseResolvesPendingFalse(t *testing.T) {
	c := New()
	ch := c.ShowConfirm("a", "a")
	c.Close()
	assert.False(t, recv(t, ch))
}

func TestOpenConfirmCallbacks(t *testing.T) {
	c := New()
	var yes, no atomic.Int32
	c.OpenConfirm("t", "m", func() { yes.Add(1) }, func() { no.Add(1) })
	c.Decline()
	c.Decline()
	assert.EqualValues(t, 0, yes.Load())
	assert.EqualValues(t, 1, no.Load())
}

func TestConfirmBlocksUntilAnswered(t *testing.T) {
	c := New()
	go func() {
		assert.Eventually(t, func() bool { return c.Snapshot().Kind == KindConfirm }, time.Second, time.Millisecond)
		c.Decline()
	}()
	ok, err := c.Confirm(context.Background(), "t", "m")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConfirmContextCancelDismisses(t *testing.T) {
	c := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ok, err := c.Confirm(ctx, "t", "m")
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, KindNone, c.Snapshot().Kind)
}

func TestOnChangeReceivesSnapshots(t *testing.T) {
	c := New()
	var kinds []Kind
	unsub := c.OnChange(func(s State) { kinds = append(kinds, s.Kind) })
	c.OpenDetail(detail("p1"))
	c.Close()
	unsub()
	c.OpenDetail(detail("p2"))
	assert.Equal(t, []Kind{KindDetail, KindNone}, kinds)
}
