package scripting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/dungeonclicker/internal/scripting"
)

func TestNewSandboxedState_UnsafeLibsNil(t *testing.T) {
	L := scripting.NewSandboxedState()
	require.NotNil(t, L)
	defer L.Close()
	for _, name := range []string{"os", "io", "debug"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandboxedState_DangerousGlobalsNil(t *testing.T) {
	L := scripting.NewSandboxedState()
	require.NotNil(t, L)
	defer L.Close()
	for _, name := range []string{"dofile", "loadfile", "load", "collectgarbage", "require"} {
		assert.Equal(t, lua.LNil, L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandboxedState_SafeLibsAvailable(t *testing.T) {
	L := scripting.NewSandboxedState()
	require.NotNil(t, L)
	defer L.Close()
	err := L.DoString(`
		local x = math.sqrt(4)
		assert(x == 2.0, "math.sqrt failed")
		local s = string.upper("hello")
		assert(s == "HELLO", "string.upper failed")
	`)
	assert.NoError(t, err)
}

func TestRunLimited_InstructionLimitExceeded(t *testing.T) {
	L := scripting.NewSandboxedState()
	defer L.Close()
	err := scripting.RunLimited(L, 10, func() error { return L.DoString(`while true do end`) })
	assert.Error(t, err, "expected instruction limit error")
}

func TestRunLimited_DefaultLimit_NormalScriptRuns(t *testing.T) {
	L := scripting.NewSandboxedState()
	defer L.Close()
	assert.NoError(t, scripting.RunLimited(L, 0, func() error { return L.DoString(`local x = 1 + 1`) }))
}

func TestRunLimited_BudgetIsPerCall(t *testing.T) {
	L := scripting.NewSandboxedState()
	defer L.Close()
	require.NoError(t, L.DoString(`function work() local s = 0 for i = 1, 50 do s = s + i end return s end`))

	for i := 0; i < 20; i++ {
		err := scripting.RunLimited(L, 1_000, func() error { return L.DoString(`work()`) })
		require.NoError(t, err, "call %d should get a fresh budget", i)
	}
}

func TestRunLimited_StateUsableAfterLimitHit(t *testing.T) {
	L := scripting.NewSandboxedState()
	defer L.Close()
	require.Error(t, scripting.RunLimited(L, 10, func() error { return L.DoString(`while true do end`) }))
	assert.NoError(t, scripting.RunLimited(L, 0, func() error { return L.DoString(`y = 2`) }))
	assert.Equal(t, lua.LNumber(2), L.GetGlobal("y"))
}

func TestProperty_InstructionLimitAlwaysErrors(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 50).Draw(t, "limit")
		L := scripting.NewSandboxedState()
		defer L.Close()
		err := scripting.RunLimited(L, limit, func() error { return L.DoString(`while true do end`) })
		if err == nil {
			t.Fatalf("expected error with limit=%d but got nil", limit)
		}
	})
}
