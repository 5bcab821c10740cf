package tagmanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataLayer_PushMergesNestedMaps(t *testing.T) {
	dl := NewDataLayer()
	dl.Push(MapOf("ecommerce", MapOf("currencyCode", "EUR")))
	dl.Push(MapOf("ecommerce", MapOf("add", MapOf("products", ListOf(MapOf("id", "1"))))))

	assert.Equal(t, "EUR", dl.Get("ecommerce.currencyCode"))
	products, ok := dl.Get("ecommerce.add.products").([]any)
	require.True(t, ok)
	assert.Len(t, products, 1)
}

func TestDataLayer_NilDeletesKey(t *testing.T) {
	dl := NewDataLayer()
	dl.Push(MapOf("a", "1", "b", "2"))
	dl.PushKV("a", nil)

	assert.Nil(t, dl.Get("a"))
	assert.Equal(t, "2", dl.Get("b"))
	assert.Equal(t, `{"b":"2"}`, dl.String())
}

func TestDataLayer_ListsReplace(t *testing.T) {
	dl := NewDataLayer()
	dl.Push(MapOf("items", ListOf("a", "b", "c")))
	dl.Push(MapOf("items", ListOf("z")))

	assert.Equal(t, []any{"z"}, dl.Get("items"))
}

func TestDataLayer_ListenerOnlyOnEvents(t *testing.T) {
	dl := NewDataLayer()
	var events []string
	var last Map
	dl.AddListener(func(event string, snap Map) {
		events = append(events, event)
		last = snap
	})

	dl.Push(MapOf("page", "/home"))
	dl.PushEvent("content-view", MapOf("content-name", "/home"))

	require.Equal(t, []string{"content-view"}, events)
	assert.Equal(t, "/home", last["page"])
	assert.Equal(t, "content-view", last[EventKey])

	// mutating the snapshot must not leak back
	last["page"] = "changed"
	assert.Equal(t, "/home", dl.Get("page"))
}

func TestDataLayer_SnapshotIsDeepCopy(t *testing.T) {
	dl := NewDataLayer()
	dl.Push(MapOf("ecommerce", MapOf("currencyCode", "USD")))

	snap := dl.Snapshot()
	snap["ecommerce"].(Map)["currencyCode"] = "GBP"

	assert.Equal(t, "USD", dl.Get("ecommerce.currencyCode"))
}

func TestMapOf_PanicsOnOddArgs(t *testing.T) {
	assert.Panics(t, func() { MapOf("a") })
	assert.Panics(t, func() { MapOf(1, "a") })
}
