package ir

import (
	"fmt"

	"github.com/pkg/errors"
)

// Verify checks the structural invariants of a function after lowering:
//
//  1. every block ends in exactly one terminator, with no terminator in the
//     middle of a block;
//  2. phi instructions appear only at block entry, and each phi has exactly
//     one argument per predecessor, with the argument blocks matching the
//     predecessor set;
//  3. every value use is dominated by its definition, except phi arguments,
//     which must dominate the corresponding predecessor's terminator.
//
// A violation is a lowering bug, so the error is wrapped with the function
// name for the internal-compiler-error report.
func Verify(f *Function) error {
	if len(f.Blocks) == 0 {
		return errors.Errorf("function %s has no blocks", f.Name)
	}

	for _, block := range f.Blocks {
		if err := verifyBlockShape(block); err != nil {
			return errors.Wrapf(err, "function %s", f.Name)
		}
	}

	idom := dominators(f)
	if err := verifyDominance(f, idom); err != nil {
		return errors.Wrapf(err, "function %s", f.Name)
	}
	return nil
}

// VerifyModule verifies every function of a module.
func VerifyModule(m *Module) error {
	for _, f := range m.Functions {
		if err := Verify(f); err != nil {
			return err
		}
	}
	return nil
}

func verifyBlockShape(block *Block) error {
	if block.Terminator() == nil {
		return fmt.Errorf("block %s does not end in a terminator", block.Name)
	}
	seenNonPhi := false
	for i, inst := range block.Instrs {
		if inst.IsTerminator() && i != len(block.Instrs)-1 {
			return fmt.Errorf("block %s has a terminator before its end", block.Name)
		}
		if inst.Op == OpPhi {
			if seenNonPhi {
				return fmt.Errorf("block %s has a phi after a non-phi instruction", block.Name)
			}
			if err := verifyPhi(block, inst); err != nil {
				return err
			}
		} else if inst.Op != OpDebugLine {
			seenNonPhi = true
		}
	}
	return nil
}

func verifyPhi(block *Block, phi *Instruction) error {
	if len(phi.Incoming) != len(block.Preds) {
		return fmt.Errorf("phi v%d in %s has %d incoming edges, block has %d predecessors",
			phi.Result.ID, block.Name, len(phi.Incoming), len(block.Preds))
	}
	matched := map[*Block]bool{}
	for _, in := range phi.Incoming {
		found := false
		for _, pred := range block.Preds {
			if pred == in.Pred {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("phi v%d in %s names %s, which is not a predecessor",
				phi.Result.ID, block.Name, in.Pred.Name)
		}
		if matched[in.Pred] {
			return fmt.Errorf("phi v%d in %s has duplicate edge from %s",
				phi.Result.ID, block.Name, in.Pred.Name)
		}
		matched[in.Pred] = true
	}
	return nil
}

// dominators computes the immediate dominator of each block with the
// classic iterative dataflow algorithm over reverse postorder.
func dominators(f *Function) map[*Block]*Block {
	entry := f.Entry()
	order := postorder(f)
	index := map[*Block]int{}
	for i, b := range order {
		index[b] = i
	}

	idom := map[*Block]*Block{entry: entry}
	changed := true
	for changed {
		changed = false
		// reverse postorder, skipping the entry
		for i := len(order) - 1; i >= 0; i-- {
			b := order[i]
			if b == entry {
				continue
			}
			var newIdom *Block
			for _, p := range b.Preds {
				if idom[p] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = intersect(p, newIdom, idom, index)
			}
			if newIdom != nil && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	return idom
}

func postorder(f *Function) []*Block {
	seen := map[*Block]bool{}
	order := []*Block{}
	var visit func(b *Block)
	visit = func(b *Block) {
		if seen[b] {
			return
		}
		seen[b] = true
		for _, s := range b.Successors() {
			visit(s)
		}
		order = append(order, b)
	}
	visit(f.Entry())
	return order
}

func intersect(a, b *Block, idom map[*Block]*Block, index map[*Block]int) *Block {
	for a != b {
		for index[a] < index[b] {
			a = idom[a]
		}
		for index[b] < index[a] {
			b = idom[b]
		}
	}
	return a
}

// dominates reports whether a dominates b.
func dominates(a, b *Block, idom map[*Block]*Block) bool {
	for {
		if a == b {
			return true
		}
		next := idom[b]
		if next == nil || next == b {
			return a == b
		}
		b = next
	}
}

func verifyDominance(f *Function, idom map[*Block]*Block) error {
	defBlock := map[int32]*Block{}
	defIndex := map[int32]int{}

	for _, p := range f.Params {
		defBlock[p.Val.ID] = f.Entry()
		defIndex[p.Val.ID] = -1
	}
	for _, block := range f.Blocks {
		for i, inst := range block.Instrs {
			if inst.Result.Valid() {
				defBlock[inst.Result.ID] = block
				defIndex[inst.Result.ID] = i
			}
		}
	}

	for _, block := range f.Blocks {
		// unreachable blocks are swept by dead-code elimination before
		// verification; skip any straggler rather than reasoning about a
		// block with no dominator
		if block != f.Entry() && idom[block] == nil {
			continue
		}
		for i, inst := range block.Instrs {
			if inst.Op == OpPhi {
				for _, in := range inst.Incoming {
					if !in.Val.Valid() {
						continue
					}
					db := defBlock[in.Val.ID]
					if db == nil {
						return fmt.Errorf("phi v%d uses undefined value v%d", inst.Result.ID, in.Val.ID)
					}
					if idom[in.Pred] == nil && in.Pred != f.Entry() {
						continue
					}
					if !dominates(db, in.Pred, idom) {
						return fmt.Errorf("phi v%d argument v%d does not dominate edge from %s",
							inst.Result.ID, in.Val.ID, in.Pred.Name)
					}
				}
				continue
			}
			for _, arg := range inst.Args {
				if !arg.Valid() {
					continue
				}
				db := defBlock[arg.ID]
				if db == nil {
					return fmt.Errorf("instruction in %s uses undefined value v%d", block.Name, arg.ID)
				}
				if db == block {
					if defIndex[arg.ID] >= i {
						return fmt.Errorf("value v%d used before its definition in %s", arg.ID, block.Name)
					}
					continue
				}
				if !dominates(db, block, idom) {
					return fmt.Errorf("definition of v%d does not dominate its use in %s", arg.ID, block.Name)
				}
			}
		}
	}
	return nil
}
