package chidb

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Opcode is the bytecode VM's instruction tag. The dispatch table in NewVM
// is a fixed array indexed by Opcode, not a map, matching how the original
// dbm_handlers table is built: a switch on an unbounded map would let a
// bad opcode panic on a nil function value instead of failing predictably.
type Opcode int

const (
	OpNoop Opcode = iota
	OpOpenRead
	OpOpenWrite
	OpClose
	OpRewind
	OpNext
	OpPrev
	OpSeek
	OpSeekGT
	OpSeekGE
	OpSeekLT
	OpSeekLE
	OpColumn
	OpKey
	OpInteger
	OpString
	OpNull
	OpResultRow
	OpMakeRecord
	OpInsert
	OpCreateTable
	OpCreateIndex
	OpCopy
	OpSCopy
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpHalt
	OpIdxGT
	OpIdxGE
	OpIdxLT
	OpIdxLE
	OpIdxPKey
	OpIdxInsert
	opcodeCount
)

// Instruction is a single bytecode op: up to three integer operands and one
// string operand, mirroring the original's generic p1/p2/p3/p4 slots so one
// instruction shape serves every opcode.
type Instruction struct {
	Op Opcode
	P1 int32
	P2 int32
	P3 int32
	P4 string
}

// Register holds one VM register's current value: a Value of one of the
// three storage classes (null, int32 integer, text).
type Register struct {
	Value
}

// ResultRow is one row of output a ResultRow instruction emits.
type ResultRow struct {
	Values []Value
}

// VM executes a fixed program of Instructions against a set of cursors over
// a single BTree, the bytecode layer spec.md's VM module describes sitting
// above the cursor/b-tree layers.
type VM struct {
	bt        *BTree
	registers []Register
	cursors   []*Cursor
	program   []Instruction
	pc        int
	results   []ResultRow

	runID uuid.UUID
	log   *logrus.Entry

	dispatch [opcodeCount]func(*VM, Instruction) (halt bool, err error)
}

// NewVM builds a VM ready to execute program against bt, with nRegisters
// registers and nCursors cursor slots.
func NewVM(bt *BTree, program []Instruction, nRegisters, nCursors int) *VM {
	vm := &VM{
		bt:        bt,
		registers: make([]Register, nRegisters),
		cursors:   make([]*Cursor, nCursors),
		program:   program,
		runID:     uuid.New(),
		log:       logrus.NewEntry(logrus.StandardLogger()),
	}
	vm.installDispatch()
	return vm
}

func (vm *VM) installDispatch() {
	vm.dispatch[OpNoop] = (*VM).execNoop
	vm.dispatch[OpOpenRead] = vm.execOpenCursor(CursorRead)
	vm.dispatch[OpOpenWrite] = vm.execOpenCursor(CursorWrite)
	vm.dispatch[OpClose] = (*VM).execClose
	vm.dispatch[OpRewind] = (*VM).execRewind
	vm.dispatch[OpNext] = (*VM).execNext
	vm.dispatch[OpPrev] = (*VM).execPrev
	vm.dispatch[OpSeek] = vm.seekHandler((*Cursor).Seek)
	vm.dispatch[OpSeekGT] = vm.seekHandler((*Cursor).SeekGT)
	vm.dispatch[OpSeekGE] = vm.seekHandler((*Cursor).SeekGE)
	vm.dispatch[OpSeekLT] = vm.seekHandler((*Cursor).SeekLT)
	vm.dispatch[OpSeekLE] = vm.seekHandler((*Cursor).SeekLE)
	vm.dispatch[OpColumn] = (*VM).execColumn
	vm.dispatch[OpKey] = (*VM).execKey
	vm.dispatch[OpInteger] = (*VM).execInteger
	vm.dispatch[OpString] = (*VM).execString
	vm.dispatch[OpNull] = (*VM).execNull
	vm.dispatch[OpResultRow] = (*VM).execResultRow
	vm.dispatch[OpMakeRecord] = (*VM).execMakeRecord
	vm.dispatch[OpInsert] = (*VM).execInsert
	vm.dispatch[OpCreateTable] = (*VM).execCreateTable
	vm.dispatch[OpCreateIndex] = (*VM).execCreateIndex
	vm.dispatch[OpCopy] = (*VM).execCopy
	vm.dispatch[OpSCopy] = (*VM).execSCopy
	vm.dispatch[OpEq] = vm.compareHandler(func(a, b int64) bool { return a == b })
	vm.dispatch[OpNe] = vm.compareHandler(func(a, b int64) bool { return a != b })
	vm.dispatch[OpLt] = vm.compareHandler(func(a, b int64) bool { return a < b })
	vm.dispatch[OpLe] = vm.compareHandler(func(a, b int64) bool { return a <= b })
	vm.dispatch[OpGt] = vm.compareHandler(func(a, b int64) bool { return a > b })
	vm.dispatch[OpGe] = vm.compareHandler(func(a, b int64) bool { return a >= b })
	vm.dispatch[OpHalt] = (*VM).execHalt
	vm.dispatch[OpIdxGT] = vm.seekHandler((*Cursor).SeekGT)
	vm.dispatch[OpIdxGE] = vm.seekHandler((*Cursor).SeekGE)
	vm.dispatch[OpIdxLT] = vm.seekHandler((*Cursor).SeekLT)
	vm.dispatch[OpIdxLE] = vm.seekHandler((*Cursor).SeekLE)
	vm.dispatch[OpIdxPKey] = (*VM).execIdxPKey
	vm.dispatch[OpIdxInsert] = (*VM).execIdxInsert
}

// Run steps the program to completion (a Halt instruction or the end of the
// instruction stream) and returns every row emitted by ResultRow.
func (vm *VM) Run() ([]ResultRow, error) {
	vm.log.WithField("run_id", vm.runID).Debug("vm run start")
	for vm.pc < len(vm.program) {
		instr := vm.program[vm.pc]
		if instr.Op < 0 || instr.Op >= opcodeCount || vm.dispatch[instr.Op] == nil {
			return nil, fmt.Errorf("unimplemented opcode %d at pc %d", instr.Op, vm.pc)
		}
		handler := vm.dispatch[instr.Op]
		halt, err := handler(vm, instr)
		if err != nil {
			return nil, fmt.Errorf("pc %d op %d: %w", vm.pc, instr.Op, err)
		}
		if halt {
			break
		}
		vm.pc++
	}
	vm.log.WithField("run_id", vm.runID).WithField("rows", len(vm.results)).Debug("vm run done")
	return vm.results, nil
}

func (vm *VM) execNoop(Instruction) (bool, error) { return false, nil }

func (vm *VM) execOpenCursor(typ CursorType) func(*VM, Instruction) (bool, error) {
	return func(vm *VM, i Instruction) (bool, error) {
		vm.cursors[i.P1] = OpenCursor(vm.bt, typ, uint32(i.P2), uint32(i.P3))
		return false, nil
	}
}

func (vm *VM) execClose(i Instruction) (bool, error) {
	if c := vm.cursors[i.P1]; c != nil {
		c.Close()
	}
	return false, nil
}

func (vm *VM) execRewind(i Instruction) (bool, error) {
	err := vm.cursors[i.P1].Rewind()
	if err == ErrEmptyBTree {
		vm.pc = int(i.P2) - 1
		return false, nil
	}
	return false, err
}

func (vm *VM) execNext(i Instruction) (bool, error) {
	if err := vm.cursors[i.P1].Next(); err == nil {
		vm.pc = int(i.P2) - 1
	}
	return false, nil
}

func (vm *VM) execPrev(i Instruction) (bool, error) {
	if err := vm.cursors[i.P1].Prev(); err == nil {
		vm.pc = int(i.P2) - 1
	}
	return false, nil
}

func (vm *VM) seekHandler(seek func(*Cursor, uint32) error) func(*VM, Instruction) (bool, error) {
	return func(vm *VM, i Instruction) (bool, error) {
		key := vm.registers[i.P3].Int
		if err := seek(vm.cursors[i.P1], uint32(key)); err != nil {
			vm.pc = int(i.P2) - 1
		}
		return false, nil
	}
}

func (vm *VM) execColumn(i Instruction) (bool, error) {
	cell, err := vm.cursors[i.P1].Cell()
	if err != nil {
		return false, err
	}
	if cell.TableLeaf == nil {
		return false, fmt.Errorf("%w: column op on non-table-leaf cell", ErrInvalidCell)
	}
	record, err := DecodeRecord(cell.TableLeaf.Data)
	if err != nil {
		return false, err
	}
	if int(i.P2) >= len(record.Values) {
		vm.registers[i.P3] = Register{NullValue()}
		return false, nil
	}
	vm.registers[i.P3] = Register{record.Values[i.P2]}
	return false, nil
}

func (vm *VM) execKey(i Instruction) (bool, error) {
	cell, err := vm.cursors[i.P1].Cell()
	if err != nil {
		return false, err
	}
	vm.registers[i.P2] = Register{IntValue(int32(cell.Key()))}
	return false, nil
}

func (vm *VM) execInteger(i Instruction) (bool, error) {
	vm.registers[i.P2] = Register{IntValue(i.P1)}
	return false, nil
}

func (vm *VM) execString(i Instruction) (bool, error) {
	vm.registers[i.P2] = Register{TextValue(i.P4)}
	return false, nil
}

func (vm *VM) execNull(i Instruction) (bool, error) {
	vm.registers[i.P2] = Register{NullValue()}
	return false, nil
}

func (vm *VM) execResultRow(i Instruction) (bool, error) {
	start, count := int(i.P1), int(i.P2)
	row := make([]Value, count)
	for j := 0; j < count; j++ {
		row[j] = vm.registers[start+j].Value
	}
	vm.results = append(vm.results, ResultRow{Values: row})
	return false, nil
}

func (vm *VM) execMakeRecord(i Instruction) (bool, error) {
	start, count := int(i.P1), int(i.P2)
	rec := &Record{Values: make([]Value, count)}
	for j := 0; j < count; j++ {
		rec.Values[j] = vm.registers[start+j].Value
	}
	vm.registers[i.P3] = Register{TextValue(string(rec.Encode()))}
	return false, nil
}

func (vm *VM) execInsert(i Instruction) (bool, error) {
	cursor := vm.cursors[i.P1]
	keyVal := vm.registers[i.P3]
	data := []byte(vm.registers[i.P2].Text)
	return false, vm.bt.InsertInTable(cursor.root, uint32(keyVal.Int), data)
}

func (vm *VM) execCreateTable(i Instruction) (bool, error) {
	page, err := vm.bt.CreateTable()
	if err != nil {
		return false, err
	}
	vm.registers[i.P1] = Register{IntValue(int32(page))}
	return false, nil
}

func (vm *VM) execCreateIndex(i Instruction) (bool, error) {
	page, err := vm.bt.CreateIndex()
	if err != nil {
		return false, err
	}
	vm.registers[i.P1] = Register{IntValue(int32(page))}
	return false, nil
}

func (vm *VM) execCopy(i Instruction) (bool, error) {
	vm.registers[i.P2] = vm.registers[i.P1]
	return false, nil
}

func (vm *VM) execSCopy(i Instruction) (bool, error) {
	vm.registers[i.P2] = vm.registers[i.P1]
	return false, nil
}

func (vm *VM) compareHandler(cmp func(a, b int64) bool) func(*VM, Instruction) (bool, error) {
	return func(vm *VM, i Instruction) (bool, error) {
		a := vm.registers[i.P1]
		b := vm.registers[i.P3]
		if a.IsNull() || b.IsNull() {
			return false, nil
		}
		if cmp(int64(a.Int), int64(b.Int)) {
			vm.pc = int(i.P2) - 1
		}
		return false, nil
	}
}

func (vm *VM) execHalt(Instruction) (bool, error) { return true, nil }

func (vm *VM) execIdxPKey(i Instruction) (bool, error) {
	cell, err := vm.cursors[i.P1].Cell()
	if err != nil {
		return false, err
	}
	if cell.IndexLeaf == nil && cell.IndexInternal == nil {
		return false, fmt.Errorf("%w: IdxPKey on non-index cell", ErrInvalidCell)
	}
	vm.registers[i.P2] = Register{IntValue(int32(cell.IndexPK()))}
	return false, nil
}

func (vm *VM) execIdxInsert(i Instruction) (bool, error) {
	cursor := vm.cursors[i.P1]
	keyReg := vm.registers[i.P2]
	pkReg := vm.registers[i.P3]
	return false, vm.bt.InsertInIndex(cursor.root, uint32(keyReg.Int), uint32(pkReg.Int))
}
