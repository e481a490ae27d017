// SPDX-License-Identifier: MIT

package shortcut

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBindingParsesModifiersAndKey(t *testing.T) {
	b, err := ParseBinding(ActionStart, "Ctrl+Shift+F9", DefaultVKLookup)
	require.NoError(t, err)
	assert.Equal(t, ModControl|ModShift, b.Modifiers)
	assert.Equal(t, uint32(0x78), b.VirtualKey) // VK_F9
	assert.Equal(t, ActionStart, b.Action)
}

func TestParseBindingNoModifiers(t *testing.T) {
	b, err := ParseBinding(ActionStop, "Esc", DefaultVKLookup)
	require.NoError(t, err)
	assert.Equal(t, Modifier(0), b.Modifiers)
	assert.Equal(t, uint32(0x1B), b.VirtualKey)
}

func TestParseBindingRejectsUnknownModifier(t *testing.T) {
	_, err := ParseBinding(ActionStart, "Hyper+F9", DefaultVKLookup)
	assert.ErrorIs(t, err, ErrUnknownModifier)
}

func TestParseBindingRejectsUnknownKey(t *testing.T) {
	_, err := ParseBinding(ActionStart, "Ctrl+Nonsense", DefaultVKLookup)
	assert.Error(t, err)
}

func TestDedupDetectsSharedTrigger(t *testing.T) {
	bindings := []Binding{
		{Action: ActionStart, Modifiers: ModControl, VirtualKey: 0x78},
		{Action: ActionStop, Modifiers: ModControl, VirtualKey: 0x78},
	}
	err := Dedup(bindings)
	assert.ErrorIs(t, err, ErrDuplicateBinding)
}

func TestDedupAllowsDistinctTriggers(t *testing.T) {
	bindings := []Binding{
		{Action: ActionStart, Modifiers: ModControl, VirtualKey: 0x78},
		{Action: ActionPauseResume, Modifiers: ModControl | ModShift, VirtualKey: 0x78},
		{Action: ActionStop, Modifiers: ModControl, VirtualKey: 0x1B},
	}
	assert.NoError(t, Dedup(bindings))
}

func TestDefaultVKLookupIsCaseInsensitive(t *testing.T) {
	vk, ok := DefaultVKLookup("f9")
	require.True(t, ok)
	assert.Equal(t, uint32(0x78), vk)

	vk, ok = DefaultVKLookup(" F9 ")
	require.True(t, ok)
	assert.Equal(t, uint32(0x78), vk)
}

func TestDefaultVKLookupUnknown(t *testing.T) {
	_, ok := DefaultVKLookup("Nonsense")
	assert.False(t, ok)
}
