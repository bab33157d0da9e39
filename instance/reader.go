// Package instance reads MPS files through GLPK.
package instance

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/lukpank/go-glpk/glpk"
	"q.log/steepest/model"
)

var ErrEmpty = errors.New("instance: model has no rows or no columns")

// Reader reads a mps file to construct a model
type Reader struct {
	filename string
}

func NewReader(filename string) *Reader {
	return &Reader{
		filename: filename,
	}
}

// open runs f on the problem read from the file. GLPK keeps per-thread
// state, so the goroutine stays on its thread until f returns.
func (r *Reader) open(f func(lp *glpk.Prob) error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	lp := glpk.New()
	defer lp.Delete()
	if err := lp.ReadMPS(glpk.MPS_FILE, nil, r.filename); err != nil {
		return fmt.Errorf("read %s: %w", r.filename, err)
	}
	if lp.NumRows() == 0 || lp.NumCols() == 0 {
		return fmt.Errorf("%w: %s", ErrEmpty, r.filename)
	}
	return f(lp)
}

// Read returns the model with its bounds as written in the file, less
// the rows that bound nothing.
func (r *Reader) Read() (*model.Model, error) {
	var m *model.Model
	err := r.open(func(lp *glpk.Prob) error {
		numRows, numCols := lp.NumRows(), lp.NumCols()
		m = model.NewModel(numRows, numCols)
		m.Name = lp.ProbName()
		if lp.ObjDir() == glpk.MAX {
			m.Sense = model.Maximize
		}

		//populate obj function
		cVec := make([]float64, numCols)
		for c := range numCols {
			cVec[c] = lp.ObjCoef(c + 1)
		}
		if err := m.SetC(cVec); err != nil {
			return err
		}
		m.Offset = lp.ObjCoef(0)

		//populate constraints; GLPK indices start at 1
		aVec := make([]float64, numRows*numCols)
		for r := range numRows {
			idxs, row := lp.MatRow(r + 1)
			for i, v := range idxs {
				if v == 0 {
					continue
				}
				aVec[r*numCols+v-1] = row[i]
			}
			if err := m.SetRowBounds(r, bound(lp.RowLB(r+1)), bound(lp.RowUB(r+1))); err != nil {
				return fmt.Errorf("row %d: %w", r+1, err)
			}
		}
		if err := m.SetA(aVec); err != nil {
			return err
		}

		for c := range numCols {
			if err := m.SetColBounds(c, bound(lp.ColLB(c+1)), bound(lp.ColUB(c+1))); err != nil {
				return fmt.Errorf("column %d: %w", c+1, err)
			}
		}
		// extra N rows of the file come back from GLPK as free rows
		m.DropFreeRows()
		return m.Validate()
	})
	return m, err
}

// ReferenceObjective solves the file with the GLPK simplex and returns its
// optimal objective, constant term included.
func (r *Reader) ReferenceObjective() (float64, error) {
	var obj float64
	err := r.open(func(lp *glpk.Prob) error {
		smcp := glpk.NewSmcp()
		smcp.SetMsgLev(glpk.MSG_OFF)
		if err := lp.Simplex(smcp); err != nil {
			return fmt.Errorf("glpk simplex: %w", err)
		}
		obj = lp.ObjVal()
		return nil
	})
	return obj, err
}

// bound maps GLPK's ±DBL_MAX for a missing bound to ±Inf.
func bound(v float64) float64 {
	switch v {
	case -math.MaxFloat64:
		return math.Inf(-1)
	case math.MaxFloat64:
		return math.Inf(1)
	}
	return v
}
