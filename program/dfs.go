package program

import "sort"

// Update drains recentFptrs (running block_dfs on each) and recentIcfs
// (connecting newly-resolved indirect targets into existing blocks),
// processes any deferred splits, and propagates the new update number
// backwards from every touched block so Updated() can answer which
// functions need re-analysis. It is the Program half of the driver's outer
// "register, then update" step (spec.md section 4.4/4.8).
func (p *Program) Update() {
	p.UpdateNum++

	fptrs := p.recentFptrs
	p.recentFptrs = nil
	for _, f := range fptrs {
		if _, placed := p.insns[f]; !placed {
			continue
		}
		if _, already := p.blocks[f]; already {
			continue
		}
		p.blockDFS(f)
	}

	icfs := p.recentIcfs
	p.recentIcfs = nil
	for _, loc := range icfs {
		b, ok := p.blockOwning(loc)
		if !ok {
			continue
		}
		for t := range p.icfs[loc] {
			p.blockConnect(b, t, CondNone, false)
		}
	}

	p.processSplits()
	p.propagateUpdates()
}

// markUpdated stamps b with the in-progress update number and queues it for
// the backward propagation pass.
func (p *Program) markUpdated(b *Block) {
	if b.UpdateNum == p.UpdateNum {
		return
	}
	b.UpdateNum = p.UpdateNum
	p.dirtyBlocks = append(p.dirtyBlocks, b.Start)
}

// propagateUpdates walks predecessor edges from every block touched this
// update, stamping the current update number all the way back to the
// function entries that reach them. Call edges are ordinary block edges
// here, so a change deep in a callee dirties its callers too.
func (p *Program) propagateUpdates() {
	work := p.dirtyBlocks
	p.dirtyBlocks = nil
	for len(work) > 0 {
		start := work[len(work)-1]
		work = work[:len(work)-1]
		b, ok := p.blocks[start]
		if !ok {
			continue
		}
		for _, e := range b.Pred {
			pred, ok := p.blocks[e.To]
			if !ok || pred.UpdateNum == p.UpdateNum {
				continue
			}
			pred.UpdateNum = p.UpdateNum
			work = append(work, pred.Start)
		}
	}
}

// Updated reports whether entry's reachable block graph changed during the
// most recent Update, meaning its function is worth re-analyzing. An entry
// with no placed block yet reads as updated so the caller still attempts
// (and cleanly fails) the build.
func (p *Program) Updated(entry uint64) bool {
	b, ok := p.blocks[entry]
	if !ok {
		return true
	}
	return b.UpdateNum == p.UpdateNum
}

// blockOwning returns the block that currently contains instruction
// offset, if it has been placed.
func (p *Program) blockOwning(offset uint64) (*Block, bool) {
	insn, ok := p.insns[offset]
	if !ok || !insn.Placed {
		return nil, false
	}
	return p.blocks[insn.Parent], true
}

// blockDFS is the core block-construction state machine (spec.md section
// 4.4's "Block DFS").
func (p *Program) blockDFS(start uint64) {
	if _, already := p.blocks[start]; already {
		return
	}
	insn, ok := p.insns[start]
	if !ok {
		return
	}

	b := &Block{Start: start}
	p.blocks[start] = b
	p.markUpdated(b)

	cur := insn
	for {
		b.Insns = append(b.Insns, cur.Offset)
		cur.Parent = start
		cur.Placed = true

		switch {
		case cur.Transfer && cur.Direct && !cur.Indirect:
			p.connectDirect(b, cur)
			return

		case cur.Transfer && cur.Indirect && cur.Jump:
			p.connectIndirect(b, cur)
			return

		case cur.Halt:
			return

		default:
			next, ok := p.insns[cur.NextOffset]
			if !ok {
				if p.Policy.AbortOnMissingNextInsn {
					p.Faulty = true
					return
				}
				cur.ToHalt()
				return
			}
			if next.Placed {
				b.addSucc(next.Offset, CondNone)
				p.connectPlaced(b, next.Offset, CondNone)
				return
			}
			cur = next
		}
	}
}

// connectDirect wires a direct (non-indirect) transfer's target(s): the
// branch target itself, plus a fall-through edge when the instruction is a
// non-noreturn call or a conditional jump.
func (p *Program) connectDirect(b *Block, cur *Insn) {
	if !cur.Call {
		p.blockConnect(b, cur.DirectTarget, CondTrueOrNone(cur.CondJump), true)
		if cur.CondJump {
			p.connectFallThrough(b, cur)
		}
		return
	}

	// Call.
	p.blockConnect(b, cur.DirectTarget, CondNone, true)
	if _, noret := p.Image.NoreturnCalls()[cur.DirectTarget]; noret {
		cur.ToHalt()
		return
	}
	p.connectFallThrough(b, cur)
}

func CondTrueOrNone(isCond bool) Cond {
	if isCond {
		return CondTrue
	}
	return CondNone
}

func (p *Program) connectFallThrough(b *Block, cur *Insn) {
	if _, ok := p.insns[cur.NextOffset]; !ok {
		if p.Policy.AbortOnMissingFallThrough {
			p.Faulty = true
			return
		}
		cur.ToHalt()
		return
	}
	cond := CondNone
	if cur.CondJump {
		cond = CondFalse
	}
	p.blockConnect(b, cur.NextOffset, cond, false)
}

func (p *Program) connectIndirect(b *Block, cur *Insn) {
	targets := p.icfs[cur.Offset]
	if len(targets) == 0 {
		if p.Policy.AbortOnMissingIndirect {
			p.Faulty = true
		}
		return
	}
	keys := make([]uint64, 0, len(targets))
	for t := range targets {
		keys = append(keys, t)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, t := range keys {
		p.blockConnect(b, t, CondNone, false)
	}
}

// blockConnect wires b -> target under the given condition, per spec.md's
// four cases: target already a live block head (connect), target exists
// but mid-block (defer to split), target unplaced (DFS it first), or
// target missing (lock-prefix retry, then Program.Faulty under strict or
// Block.Faulty under lenient).
func (p *Program) blockConnect(b *Block, target uint64, cond Cond, fixPrefix bool) {
	insn, ok := p.insns[target]
	if !ok {
		if fixPrefix && target > 0 {
			if _, ok2 := p.insns[target-1]; ok2 {
				p.blockConnect(b, target-1, cond, false)
				return
			}
		}
		if p.Policy.AbortOnMissingDirect {
			p.Faulty = true
			return
		}
		b.Faulty = true
		return
	}

	if !insn.Placed {
		p.blockDFS(target)
		insn = p.insns[target]
	}

	if insn.Parent == target && p.blocks[target] != nil {
		// target is itself a block head.
		b.addSucc(target, cond)
		p.blocks[target].addPred(b.Start, cond)
		p.markUpdated(b)
		return
	}

	// target lies mid-block: defer a split.
	p.split[target] = true
	p.pendingConnections = append(p.pendingConnections, pendingConn{from: b.Start, to: target, cond: cond})
}

type pendingConn struct {
	from, to uint64
	cond     Cond
}

func (p *Program) connectPlaced(b *Block, target uint64, cond Cond) {
	if bl, ok := p.blocks[target]; ok {
		bl.addPred(b.Start, cond)
	}
}

// processSplits performs every deferred block_split and wires the
// connections that were waiting on it.
func (p *Program) processSplits() {
	for target := range p.split {
		p.blockSplit(target)
	}
	p.split = make(map[uint64]bool)

	pending := p.pendingConnections
	p.pendingConnections = nil
	for _, c := range pending {
		from, ok := p.blocks[c.from]
		if !ok {
			continue
		}
		from.addSucc(c.to, c.cond)
		p.markUpdated(from)
		if to, ok := p.blocks[c.to]; ok {
			to.addPred(c.from, c.cond)
		}
	}
}

// blockSplit splits the block containing target at target: the tail
// (target onward) becomes a new block inheriting the original's
// successors, and the head keeps only a fall-through edge into the tail.
func (p *Program) blockSplit(target uint64) {
	insn, ok := p.insns[target]
	if !ok || !insn.Placed {
		return
	}
	head, ok := p.blocks[insn.Parent]
	if !ok || head.Start == target {
		return // already a block head
	}

	idx := -1
	for i, off := range head.Insns {
		if off == target {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return
	}

	tail := &Block{Start: target, Insns: append([]uint64(nil), head.Insns[idx:]...), Succ: head.Succ}
	head.Insns = head.Insns[:idx]
	head.Succ = []Edge{{To: target, Cond: CondNone}}

	for _, off := range tail.Insns {
		p.insns[off].Parent = target
	}
	p.blocks[target] = tail
	tail.addPred(head.Start, CondNone)
	p.markUpdated(head)
	p.markUpdated(tail)

	for _, e := range tail.Succ {
		if succ, ok := p.blocks[e.To]; ok {
			for i, pe := range succ.Pred {
				if pe.To == head.Start {
					succ.Pred[i].To = target
				}
			}
		}
	}
}
