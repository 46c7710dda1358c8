package cmm

// FoldSlotsUsed folds f over every sub-area used by a middle instruction.
func FoldSlotsUsed[T any](m Middle, init T, f func(T, SubArea) T) T {
	acc := init
	for _, s := range UsedSlots(m) {
		acc = f(acc, s)
	}
	return acc
}

// FoldSlotsDefd folds f over every sub-area defined by a middle
// instruction.
func FoldSlotsDefd[T any](m Middle, init T, f func(T, SubArea) T) T {
	acc := init
	for _, s := range DefdSlots(m) {
		acc = f(acc, s)
	}
	return acc
}

// FoldLastSlotsUsed folds f over every sub-area used by a last
// instruction. Last instructions never define sub-areas.
func FoldLastSlotsUsed[T any](l Last, init T, f func(T, SubArea) T) T {
	acc := init
	for _, s := range LastUsedSlots(l) {
		acc = f(acc, s)
	}
	return acc
}
