package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonclicker/internal/game/dice"
)

// Hook names a script may define.
const (
	HookFightStart = "on_fight_start"
	HookVictory    = "on_victory"
	HookDefeat     = "on_defeat"
)

// globalKey is the reserved key for shared scripts loaded via LoadGlobal.
// CallHook falls back to this VM when a dungeon has no VM of its own.
// Dungeon IDs are always > 0.
const globalKey int64 = 0

// FightInfo is the fight snapshot passed to narration hooks as a Lua table.
type FightInfo struct {
	DungeonID      int64
	DungeonName    string
	DungeonLevel   int
	BossName       string
	TimeLimit      int
	TimeRemaining  int
	Clicks         int
	ElapsedSeconds int
}

// vm is one sandboxed LState. An LState is single-threaded, so every use
// holds mu.
type vm struct {
	mu sync.Mutex
	L  *lua.LState
}

// Manager owns one sandboxed LState per dungeon plus an optional global
// fallback and exposes hook dispatch. All methods are safe for concurrent use.
type Manager struct {
	mu     sync.RWMutex
	vms    map[int64]*vm
	limit  int
	roller *dice.Roller
	logger *zap.Logger
}

// NewManager creates a Manager.
//
// Precondition: roller and logger must be non-nil; instLimit >= 0 (0 = default).
// Postcondition: Returns a non-nil Manager with no VMs loaded.
func NewManager(roller *dice.Roller, instLimit int, logger *zap.Logger) *Manager {
	if roller == nil {
		panic("scripting.NewManager: roller must not be nil")
	}
	if logger == nil {
		panic("scripting.NewManager: logger must not be nil")
	}
	return &Manager{
		vms:    make(map[int64]*vm),
		limit:  instLimit,
		roller: roller,
		logger: logger,
	}
}

// LoadDungeon creates a sandboxed VM for dungeonID, registers the engine
// module, then executes every *.lua file in scriptDir in lexicographic order.
//
// Precondition: dungeonID > 0; scriptDir must be a readable directory.
// Postcondition: The dungeon VM replaces any previous one; returns error on Lua load failure.
func (m *Manager) LoadDungeon(dungeonID int64, scriptDir string) error {
	if dungeonID <= 0 {
		return fmt.Errorf("scripting: dungeon id must be > 0, got %d", dungeonID)
	}
	return m.loadInto(dungeonID, scriptDir)
}

// LoadGlobal creates the fallback VM used by dungeons without their own scripts.
//
// Precondition: scriptDir must be a readable directory.
// Postcondition: Global VM is registered; returns error on Lua load failure.
func (m *Manager) LoadGlobal(scriptDir string) error {
	return m.loadInto(globalKey, scriptDir)
}

// LoadTree loads root/global as the global VM and every root/dungeons/<id>
// directory as that dungeon's VM. Missing directories are skipped.
//
// Postcondition: Returns the first load error; VMs loaded before it stay registered.
func (m *Manager) LoadTree(root string) error {
	globalDir := filepath.Join(root, "global")
	if info, err := os.Stat(globalDir); err == nil && info.IsDir() {
		if err := m.LoadGlobal(globalDir); err != nil {
			return err
		}
	}

	dungeonsDir := filepath.Join(root, "dungeons")
	entries, err := os.ReadDir(dungeonsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scripting: reading %q: %w", dungeonsDir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.ParseInt(e.Name(), 10, 64)
		if err != nil {
			m.logger.Warn("scripting: skipping non-numeric dungeon script dir", zap.String("dir", e.Name()))
			continue
		}
		if err := m.LoadDungeon(id, filepath.Join(dungeonsDir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) loadInto(key int64, scriptDir string) error {
	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		return fmt.Errorf("scripting: reading script dir %q for dungeon %d: %w", scriptDir, key, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	L := NewSandboxedState()
	m.RegisterModules(L, key)
	for _, path := range luaFiles {
		if err := RunLimited(L, m.limit, func() error { return L.DoFile(path) }); err != nil {
			L.Close()
			return fmt.Errorf("scripting: loading %q for dungeon %d: %w", path, key, err)
		}
	}

	m.mu.Lock()
	old := m.vms[key]
	m.vms[key] = &vm{L: L}
	m.mu.Unlock()

	if old != nil {
		old.mu.Lock()
		old.L.Close()
		old.mu.Unlock()
	}
	m.logger.Debug("scripting: VM loaded", zap.Int64("dungeon_id", key), zap.Int("files", len(luaFiles)))
	return nil
}

// CallHook calls the named Lua global function in dungeonID's VM, falling
// back to the global VM. Returns (LNil, nil) if the hook is not defined or no
// VM exists. Lua runtime errors, including an exhausted instruction budget,
// are logged at Warn level and never propagated.
//
// Precondition: args must be scalars or tables from lua.CreateTable, never
// values owned by another VM.
// Postcondition: Returns the first return value of the hook, or LNil.
func (m *Manager) CallHook(dungeonID int64, hook string, args ...lua.LValue) (lua.LValue, error) {
	v := m.lookup(dungeonID)
	if v == nil {
		m.logger.Debug("scripting: no VM for dungeon",
			zap.Int64("dungeon_id", dungeonID),
			zap.String("hook", hook),
		)
		return lua.LNil, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	return m.call(v.L, dungeonID, hook, args...), nil
}

// Narrate calls hook with a table built from info and returns the string it
// returns. Any other return value, a missing hook or a script error yields "".
func (m *Manager) Narrate(hook string, info FightInfo) string {
	ret, err := m.CallHook(info.DungeonID, hook, fightTable(info))
	if err != nil {
		return ""
	}
	if s, ok := ret.(lua.LString); ok {
		return string(s)
	}
	return ""
}

// Loaded reports whether any VM is registered.
func (m *Manager) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vms) > 0
}

// Close releases every VM. Later hook calls are no-ops.
func (m *Manager) Close() {
	m.mu.Lock()
	vms := m.vms
	m.vms = make(map[int64]*vm)
	m.mu.Unlock()

	for _, v := range vms {
		v.mu.Lock()
		v.L.Close()
		v.mu.Unlock()
	}
}

func (m *Manager) lookup(dungeonID int64) *vm {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.vms[dungeonID]; ok {
		return v
	}
	return m.vms[globalKey]
}

// call invokes hook in L. The caller holds the VM lock.
func (m *Manager) call(L *lua.LState, dungeonID int64, hook string, args ...lua.LValue) lua.LValue {
	fn := L.GetGlobal(hook)
	if fn.Type() != lua.LTFunction {
		return lua.LNil
	}

	var ret lua.LValue = lua.LNil
	err := RunLimited(L, m.limit, func() error {
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
			return err
		}
		ret = L.Get(-1)
		L.Pop(1)
		return nil
	})
	if err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.Int64("dungeon_id", dungeonID),
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil
	}
	return ret
}

func fightTable(info FightInfo) *lua.LTable {
	t := &lua.LTable{Metatable: lua.LNil}
	t.RawSetString("dungeon_id", lua.LNumber(info.DungeonID))
	t.RawSetString("dungeon_name", lua.LString(info.DungeonName))
	t.RawSetString("dungeon_level", lua.LNumber(info.DungeonLevel))
	t.RawSetString("boss_name", lua.LString(info.BossName))
	t.RawSetString("time_limit", lua.LNumber(info.TimeLimit))
	t.RawSetString("time_remaining", lua.LNumber(info.TimeRemaining))
	t.RawSetString("clicks", lua.LNumber(info.Clicks))
	t.RawSetString("elapsed_seconds", lua.LNumber(info.ElapsedSeconds))
	return t
}
