// Package ticket generates tombala sheets: a 3x9 grid holding 15 numbers,
// exactly five per row, column c drawn from [10c+1, 10c+10] ascending top to
// bottom. It is a pure generator with no knowledge of rooms or transports.
package ticket

import (
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"tombalago/internal/game"
)

const (
	rows          = 3
	cols          = 9
	numbersPerRow = 5
)

// New generates one sheet from the supplied source. Every column ends up with
// one to three numbers, so the layout always reads like a real strip ticket.
func New(rng *rand.Rand) game.Sheet {
	var layout [rows][cols]bool
	for {
		layout = [rows][cols]bool{}
		counts := [cols]int{}
		for r := 0; r < rows; r++ {
			for _, c := range rng.Perm(cols)[:numbersPerRow] {
				layout[r][c] = true
				counts[c]++
			}
		}
		covered := true
		for _, n := range counts {
			if n == 0 {
				covered = false
				break
			}
		}
		if covered {
			break
		}
	}

	var sheet game.Sheet
	sheet.ID = uuid.NewString()
	for c := 0; c < cols; c++ {
		need := 0
		for r := 0; r < rows; r++ {
			if layout[r][c] {
				need++
			}
		}
		nums := columnNumbers(rng, c, need)
		i := 0
		for r := 0; r < rows; r++ {
			if layout[r][c] {
				sheet.Rows[r][c] = nums[i]
				i++
			}
		}
	}
	return sheet
}

// NewN generates n independent sheets.
func NewN(rng *rand.Rand, n int) []game.Sheet {
	sheets := make([]game.Sheet, 0, n)
	for i := 0; i < n; i++ {
		sheets = append(sheets, New(rng))
	}
	return sheets
}

// columnNumbers picks `need` distinct numbers for column c, ascending.
func columnNumbers(rng *rand.Rand, c, need int) []int {
	lo := c*10 + 1
	picked := rng.Perm(10)[:need]
	nums := make([]int, need)
	for i, off := range picked {
		nums[i] = lo + off
	}
	sort.Ints(nums)
	return nums
}
