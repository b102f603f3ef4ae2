package chidb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVMInsertAndScanResultRows(t *testing.T) {
	bt := openBtree(t)

	program := []Instruction{
		{Op: OpOpenWrite, P1: 0, P2: 1},
		{Op: OpInteger, P1: 1, P2: 0},
		{Op: OpString, P2: 1, P4: "first"},
		{Op: OpMakeRecord, P1: 1, P2: 1, P3: 2},
		{Op: OpInsert, P1: 0, P2: 2, P3: 0},
		{Op: OpClose, P1: 0},
		{Op: OpHalt},
	}
	vm := NewVM(bt, program, 4, 1)
	_, err := vm.Run()
	require.Nil(t, err)

	readProgram := []Instruction{
		{Op: OpOpenRead, P1: 0, P2: 1},
		{Op: OpRewind, P1: 0, P2: 6},
		{Op: OpColumn, P1: 0, P2: 0, P3: 0},
		{Op: OpResultRow, P1: 0, P2: 1},
		{Op: OpNext, P1: 0, P2: 2},
		{Op: OpClose, P1: 0},
		{Op: OpHalt},
	}
	vm2 := NewVM(bt, readProgram, 4, 1)
	rows, err := vm2.Run()
	require.Nil(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "first", rows[0].Values[0].Text)
}

func TestVMComparisonJump(t *testing.T) {
	bt := openBtree(t)

	program := []Instruction{
		{Op: OpInteger, P1: 5, P2: 0},
		{Op: OpInteger, P1: 10, P2: 1},
		{Op: OpLt, P1: 0, P2: 5, P3: 1},
		{Op: OpInteger, P1: 0, P2: 2},
		{Op: OpHalt},
		{Op: OpInteger, P1: 1, P2: 2},
		{Op: OpHalt},
	}
	vm := NewVM(bt, program, 4, 0)
	_, err := vm.Run()
	require.Nil(t, err)
	assert.Equal(t, int32(1), vm.registers[2].Int)
}
