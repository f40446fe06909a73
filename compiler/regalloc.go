package compiler

import (
	"sort"

	"github.com/pkg/errors"
)

// valueState tracks where one SSA value currently lives. The allocator is
// the single source of truth for the register <-> value mapping; no other
// code in the emitter tracks registers.
type valueState struct {
	reg  int // physical register, -1 when not resident
	slot int // frame spill slot, -1 until assigned
	// uses holds the remaining use positions in linear instruction order,
	// ascending. Built by a backward pass before allocation starts.
	uses []int
}

// Allocator implements linear-scan register allocation over r0..r14 with
// farthest-next-use spilling: when no register is free, the victim is the
// resident value whose next use lies farthest in the future. Ties break
// toward the lowest register number so allocation is deterministic.
type Allocator struct {
	regs   [AllocatableRegisters]int32 // value id per register; 0 = free
	values map[int32]*valueState

	// spill emits a store of reg into slot; reload the inverse. Wired to
	// the function emitter's raw instruction append.
	spill  func(reg, slot int)
	reload func(reg, slot int)

	slotCount *int // shared with the emitter's alloca slot numbering
}

func NewAllocator(slotCount *int, spill, reload func(reg, slot int)) *Allocator {
	return &Allocator{
		values:    make(map[int32]*valueState),
		spill:     spill,
		reload:    reload,
		slotCount: slotCount,
	}
}

func (a *Allocator) state(id int32) *valueState {
	s, ok := a.values[id]
	if !ok {
		s = &valueState{reg: -1, slot: -1}
		a.values[id] = s
	}
	return s
}

// RecordUse appends one use position during the backward use-distance pass.
// Positions arrive in reverse, so each new one is prepended.
func (a *Allocator) RecordUse(id int32, position int) {
	s := a.state(id)
	s.uses = append([]int{position}, s.uses...)
}

// SortUses normalizes the use lists once the backward pass finishes.
func (a *Allocator) SortUses() {
	for _, s := range a.values {
		sort.Ints(s.uses)
	}
}

// SlotFor assigns (or returns) the value's frame spill slot.
func (a *Allocator) SlotFor(id int32) int {
	s := a.state(id)
	if s.slot < 0 {
		s.slot = *a.slotCount
		*a.slotCount++
	}
	return s.slot
}

// PreassignReg records that a value already sits in a register at function
// entry (the calling convention delivers arguments in r0..).
func (a *Allocator) PreassignReg(id int32, reg int) {
	a.regs[reg] = id
	a.state(id).reg = reg
}

// PreassignSlot records that a value lives in a frame slot at entry (stack
// arguments beyond the register file).
func (a *Allocator) PreassignSlot(id int32, slot int) {
	a.state(id).slot = slot
}

func (a *Allocator) nextUse(id int32) int {
	s := a.state(id)
	if len(s.uses) == 0 {
		return -1
	}
	return s.uses[0]
}

// findFree returns a free register, or -1.
func (a *Allocator) findFree(pinned map[int]bool) int {
	for reg := 0; reg < AllocatableRegisters; reg++ {
		if a.regs[reg] == 0 && !pinned[reg] {
			return reg
		}
	}
	return -1
}

// evictVictim frees the register holding the value with the farthest next
// use, spilling it to its slot first.
func (a *Allocator) evictVictim(pinned map[int]bool) (int, error) {
	victim := -1
	farthest := -1
	for reg := 0; reg < AllocatableRegisters; reg++ {
		if pinned[reg] || a.regs[reg] == 0 {
			continue
		}
		distance := a.nextUse(a.regs[reg])
		if distance < 0 {
			// dead value still resident: free it without a spill
			victim = reg
			farthest = int(^uint(0) >> 1)
			break
		}
		if distance > farthest {
			farthest = distance
			victim = reg
		}
	}
	if victim < 0 {
		return -1, errors.New("register allocation infeasible: every register is pinned")
	}

	id := a.regs[victim]
	if a.nextUse(id) >= 0 {
		a.spill(victim, a.SlotFor(id))
	}
	a.state(id).reg = -1
	a.regs[victim] = 0
	return victim, nil
}

func (a *Allocator) takeReg(pinned map[int]bool) (int, error) {
	if reg := a.findFree(pinned); reg >= 0 {
		return reg, nil
	}
	return a.evictVictim(pinned)
}

// EnsureReg makes the value resident in a register, reloading it from its
// spill slot when necessary, and returns the register.
func (a *Allocator) EnsureReg(id int32, pinned map[int]bool) (int, error) {
	s := a.state(id)
	if s.reg >= 0 {
		return s.reg, nil
	}
	if s.slot < 0 {
		return -1, errors.Errorf("value v%d is neither in a register nor spilled", id)
	}
	reg, err := a.takeReg(pinned)
	if err != nil {
		return -1, err
	}
	a.reload(reg, s.slot)
	a.regs[reg] = id
	s.reg = reg
	return reg, nil
}

// AllocResult assigns a register to a freshly defined value.
func (a *Allocator) AllocResult(id int32, pinned map[int]bool) (int, error) {
	reg, err := a.takeReg(pinned)
	if err != nil {
		return -1, err
	}
	a.regs[reg] = id
	s := a.state(id)
	s.reg = reg
	return reg, nil
}

// ConsumeUse retires one use of the value at the given position. A value
// whose use list empties releases its register.
func (a *Allocator) ConsumeUse(id int32, position int) {
	s := a.state(id)
	for len(s.uses) > 0 && s.uses[0] <= position {
		s.uses = s.uses[1:]
	}
	if len(s.uses) == 0 && s.reg >= 0 {
		a.regs[s.reg] = 0
		s.reg = -1
	}
}

// InReg reports the value's register, or -1.
func (a *Allocator) InReg(id int32) int {
	return a.state(id).reg
}

// Reset forgets register residency without emitting stores. Used at block
// entry: control arrives by jump, so the register file's contents are
// unspecified and every value must reload from its slot.
func (a *Allocator) Reset() {
	for reg := 0; reg < AllocatableRegisters; reg++ {
		id := a.regs[reg]
		if id != 0 {
			a.state(id).reg = -1
			a.regs[reg] = 0
		}
	}
}

// FlushAll spills every live resident value to its slot and empties the
// register file. Used at block boundaries and before calls, which clobber
// the whole file.
func (a *Allocator) FlushAll() {
	for reg := 0; reg < AllocatableRegisters; reg++ {
		id := a.regs[reg]
		if id == 0 {
			continue
		}
		if a.nextUse(id) >= 0 {
			a.spill(reg, a.SlotFor(id))
		}
		a.state(id).reg = -1
		a.regs[reg] = 0
	}
}
