package delta

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dial struct {
	Level float64 `cbor:"level"`
	On    bool    `cbor:"on"`
}

type dialDelta struct {
	Level *float64 `cbor:"level,omitempty"`
	On    *bool    `cbor:"on,omitempty"`
}

func (d dialDelta) Empty() bool { return d.Level == nil && d.On == nil }

func (v *dial) Diff(next *dial) dialDelta {
	return dialDelta{Level: Changed(v.Level, next.Level), On: Changed(v.On, next.On)}
}

func (v *dial) Apply(d *dialDelta) {
	Assign(&v.Level, d.Level)
	Assign(&v.On, d.On)
}

func (v *dial) Clone() dial { return *v }

type dialMap = Map[string, dial, dialDelta, *dial]

func TestMapDiffEmptyForIdenticalSnapshots(t *testing.T) {
	var m dialMap
	m.Set("a", dial{Level: 1, On: true})
	snap := m.Clone()
	assert.True(t, snap.Diff(&m).Empty())
}

func TestMapDiffAndApply(t *testing.T) {
	var m dialMap
	m.Set("keep", dial{Level: 1})
	m.Set("change", dial{Level: 2})
	m.Set("drop", dial{Level: 3})
	prev := m.Clone()

	m.Set("change", dial{Level: 2.5, On: true})
	m.Delete("drop")
	m.Set("new", dial{Level: 4})

	d := prev.Diff(&m)
	require.Len(t, d.Altered, 2)
	require.Equal(t, []string{"drop"}, d.Removed)

	changed := d.Altered["change"]
	require.NotNil(t, changed.Level)
	assert.Equal(t, 2.5, *changed.Level)
	require.NotNil(t, changed.On)
	assert.True(t, *changed.On)

	born := d.Altered["new"]
	require.NotNil(t, born.Level, "new entries travel as identity diffs")
	assert.Equal(t, 4.0, *born.Level)
	assert.Nil(t, born.On, "identity-equal fields stay nil")

	replay := prev.Clone()
	replay.Apply(&d)
	require.Equal(t, m.Len(), replay.Len())
	m.All(func(k string, want dial) bool {
		got, ok := replay.Get(k)
		require.True(t, ok, "missing key %q", k)
		assert.Equal(t, want, got)
		return true
	})
}

func TestMapApplyOnZeroValue(t *testing.T) {
	var src dialMap
	src.Set("x", dial{Level: 7, On: true})
	var empty dialMap
	d := empty.Diff(&src)

	var dst dialMap
	dst.Apply(&d)
	got, ok := dst.Get("x")
	require.True(t, ok)
	assert.Equal(t, dial{Level: 7, On: true}, got)
}

func TestMapApplyRemovedUnknownKeyTolerated(t *testing.T) {
	var m dialMap
	m.Set("a", dial{})
	d := MapDelta[string, dialDelta]{Removed: []string{"ghost"}}
	m.Apply(&d)
	assert.Equal(t, 1, m.Len())
}

func TestMapCloneIsIndependent(t *testing.T) {
	var m dialMap
	m.Set("a", dial{Level: 1})
	c := m.Clone()
	m.Set("a", dial{Level: 2})
	m.Set("b", dial{})

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1.0, got.Level)
	assert.Equal(t, 1, c.Len())
}

func TestMapSerializationRoundTrip(t *testing.T) {
	var m dialMap
	m.Set("a", dial{Level: 1, On: true})
	m.Set("b", dial{Level: -2})

	data, err := cbor.Marshal(&m)
	require.NoError(t, err)
	var back dialMap
	require.NoError(t, cbor.Unmarshal(data, &back))

	require.Equal(t, 2, back.Len())
	got, ok := back.Get("a")
	require.True(t, ok)
	assert.Equal(t, dial{Level: 1, On: true}, got)
}
