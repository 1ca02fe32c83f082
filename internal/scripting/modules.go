package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterModules registers the engine table into L:
//
//	engine.log(msg)     logs msg at Info, tagged with the dungeon
//	engine.random()     returns a float in [0, 1) from the manager's roller
//	engine.pick(list)   returns a random element of a non-empty array, or nil
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: engine global is defined in L.
func (m *Manager) RegisterModules(L *lua.LState, dungeonID int64) {
	engine := L.NewTable()
	L.SetFuncs(engine, map[string]lua.LGFunction{
		"log": func(L *lua.LState) int {
			m.logger.Info("scripting: engine.log",
				zap.Int64("dungeon_id", dungeonID),
				zap.String("msg", L.CheckString(1)),
			)
			return 0
		},
		"random": func(L *lua.LState) int {
			L.Push(lua.LNumber(m.roller.Draw()))
			return 1
		},
		"pick": func(L *lua.LState) int {
			list := L.CheckTable(1)
			n := list.Len()
			if n == 0 {
				L.Push(lua.LNil)
				return 1
			}
			i := int(m.roller.Draw()*float64(n)) + 1
			if i > n {
				i = n
			}
			L.Push(list.RawGetInt(i))
			return 1
		},
	})
	L.SetGlobal("engine", engine)
}
