// device.go - Lua-scripted device

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionEngine
License: GPLv3 or later
*/

/*
device.go - Script Device

A script device is a machine device whose behaviour is written in Lua. It
is used to prototype glue logic and to inspect a machine's wiring without a
Go rebuild. The script defines global functions for the hooks it wants:

    initialize()                  reset()
    event_callback(kind, err)     event_frame()
    event_pre_frame()             event_vline(v, clocks)
    write_signal(id, data, mask)  read_signal(id) -> value
    read8(space, addr) -> value   write8(space, addr, data)
    update_timing(hz, fps, lines)
    save_state() -> string        load_state(string) -> bool

and reaches the machine through the dev table:

    dev.register_event(kind, usec, loop) -> handle
    dev.register_event_by_clock(kind, clocks, loop) -> handle
    dev.cancel_event(handle)
    dev.current_clock()           dev.passed_clock(prev)
    dev.register_frame_event()    dev.register_vline_event()
    dev.write_signals(port, value)
    dev.log(message)

Hooks run synchronously inside the scheduler. A Lua error is recorded
(see Err), logged once through the machine debug log, and the hook
returns its default.
*/

package script

import (
	"fmt"
	"os"

	lua "github.com/yuin/gopher-lua"

	"github.com/intuitionamiga/chipbus/vm"
)

const scriptStateVersion = 1

type Device struct {
	vm.Base

	L       *lua.LState
	outputs map[int]*vm.Outputs
	err     error
}

// New registers a script device and runs source. The top level of the
// script may already call dev functions. On error the device stays
// registered, so the caller should abandon the machine.
func New(m *vm.Machine, name, source string) (*Device, error) {
	d := &Device{
		L:       lua.NewState(),
		outputs: make(map[int]*vm.Outputs),
	}
	m.Register(d)
	d.SetName(name)
	d.install()
	if err := d.L.DoString(source); err != nil {
		return nil, fmt.Errorf("loading script %q: %w", name, err)
	}
	return d, nil
}

// NewFile is New with the source read from path.
func NewFile(m *vm.Machine, path string) (*Device, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(m, path, string(src))
}

// Output returns the output table the script writes with
// dev.write_signals(port, value).
func (d *Device) Output(port int) *vm.Outputs {
	out, ok := d.outputs[port]
	if !ok {
		out = &vm.Outputs{}
		d.outputs[port] = out
	}
	return out
}

// Err returns the first Lua error raised by a hook.
func (d *Device) Err() error { return d.err }

func (d *Device) install() {
	L := d.L
	api := L.NewTable()
	L.SetField(api, "name", lua.LString(d.Name()))
	fns := map[string]lua.LGFunction{
		"register_event": func(L *lua.LState) int {
			id := d.RegisterEvent(L.CheckInt(1), float64(L.CheckNumber(2)), L.OptBool(3, false))
			L.Push(lua.LNumber(id))
			return 1
		},
		"register_event_by_clock": func(L *lua.LState) int {
			id := d.RegisterEventByClock(L.CheckInt(1), uint64(L.CheckInt64(2)), L.OptBool(3, false))
			L.Push(lua.LNumber(id))
			return 1
		},
		"cancel_event": func(L *lua.LState) int {
			id := vm.EventID(L.CheckInt64(1))
			d.CancelEvent(&id)
			return 0
		},
		"current_clock": func(L *lua.LState) int {
			L.Push(lua.LNumber(d.CurrentClock()))
			return 1
		},
		"passed_clock": func(L *lua.LState) int {
			L.Push(lua.LNumber(d.PassedClock(uint32(L.CheckInt64(1)))))
			return 1
		},
		"register_frame_event": func(L *lua.LState) int {
			d.EventManager().RegisterFrameEvent(d)
			return 0
		},
		"register_vline_event": func(L *lua.LState) int {
			d.EventManager().RegisterVlineEvent(d)
			return 0
		},
		"write_signals": func(L *lua.LState) int {
			d.Output(L.CheckInt(1)).Write(uint32(L.CheckInt64(2)))
			return 0
		},
		"log": func(L *lua.LState) int {
			d.DebugLog("%s: %s\n", d.Name(), L.CheckString(1))
			return 0
		},
	}
	for name, fn := range fns {
		L.SetField(api, name, L.NewFunction(fn))
	}
	L.SetGlobal("dev", api)
}

// call runs the global hook name if the script defines it and returns
// its first result, or nil.
func (d *Device) call(name string, args ...lua.LValue) lua.LValue {
	fn := d.L.GetGlobal(name)
	if fn.Type() != lua.LTFunction {
		return nil
	}
	err := d.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...)
	if err != nil {
		if d.err == nil {
			d.err = fmt.Errorf("%s: %s: %w", d.Name(), name, err)
			d.DebugLog("%v\n", d.err)
		}
		return nil
	}
	ret := d.L.Get(-1)
	d.L.Pop(1)
	return ret
}

func num(v int) lua.LValue { return lua.LNumber(v) }

func unum(v uint32) lua.LValue { return lua.LNumber(v) }

func toUint32(v lua.LValue, def uint32) uint32 {
	if n, ok := v.(lua.LNumber); ok {
		return uint32(int64(n))
	}
	return def
}

func (d *Device) Initialize() { d.call("initialize") }

func (d *Device) Reset() { d.call("reset") }

// Release closes the Lua state. The device must not run afterwards.
func (d *Device) Release() { d.L.Close() }

func (d *Device) EventCallback(kind, err int) {
	d.call("event_callback", num(kind), num(err))
}

func (d *Device) EventPreFrame() { d.call("event_pre_frame") }

func (d *Device) EventFrame() { d.call("event_frame") }

func (d *Device) EventVline(v, clocks int) {
	d.call("event_vline", num(v), num(clocks))
}

func (d *Device) UpdateTiming(cpuHz uint64, framesPerSec float64, linesPerFrame int) {
	d.call("update_timing", lua.LNumber(cpuHz), lua.LNumber(framesPerSec), num(linesPerFrame))
}

func (d *Device) WriteSignal(id int, data, mask uint32) {
	d.call("write_signal", num(id), unum(data), unum(mask))
}

func (d *Device) ReadSignal(id int) uint32 {
	return toUint32(d.call("read_signal", num(id)), 0)
}

func (d *Device) Read8(sp vm.Space, addr uint32) uint32 {
	return toUint32(d.call("read8", num(int(sp)), unum(addr)), 0xFF) & 0xFF
}

func (d *Device) Write8(sp vm.Space, addr, data uint32) {
	d.call("write8", num(int(sp)), unum(addr), unum(data))
}

// SaveState stores whatever string the script's save_state returns.
func (d *Device) SaveState(w *vm.StateWriter) {
	w.Header(scriptStateVersion, d.ID())
	var blob []byte
	if s, ok := d.call("save_state").(lua.LString); ok {
		blob = []byte(s)
	}
	w.PutUint32(uint32(len(blob)))
	w.PutBytes(blob)
}

func (d *Device) LoadState(r *vm.StateReader) bool {
	if !r.CheckHeader(scriptStateVersion, d.ID()) {
		return false
	}
	size := r.Uint32()
	if r.Err() != nil || size > 1<<24 {
		return false
	}
	blob := make([]byte, size)
	r.Bytes(blob)
	if r.Err() != nil {
		return false
	}
	if d.L.GetGlobal("load_state").Type() != lua.LTFunction {
		return size == 0
	}
	ok, _ := d.call("load_state", lua.LString(blob)).(lua.LBool)
	return bool(ok)
}
