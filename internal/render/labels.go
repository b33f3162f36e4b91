package render

import (
	"fmt"

	"github.com/KenCoder/school-converter/internal/qti"
)

// Section heading titles shared by every output format.
const (
	HeadingMultipleChoice = "Multiple Choice"
	HeadingWritten        = "Short Answer / Essay"
)

// OptionLetter labels an option position: 0 -> "A", 25 -> "Z", 26 -> "AA".
func OptionLetter(i int) string {
	s := ""
	for i >= 0 {
		s = string(rune('A'+i%26)) + s
		i = i/26 - 1
	}
	return s
}

// MCLabel prefixes a multiple-choice question number. The student copy gets
// a blank to write in; the answer key shows the correct letter in brackets.
func MCLabel(num int, q *qti.Question, answerKey bool) string {
	if answerKey && q.CorrectIndex >= 0 && q.CorrectIndex < len(q.Options) {
		return fmt.Sprintf("[ %s ] %d.", OptionLetter(q.CorrectIndex), num)
	}
	return fmt.Sprintf("_____ %d.", num)
}

// SALabel prefixes a short-answer or essay question number.
func SALabel(num int) string {
	return fmt.Sprintf("%d.", num)
}

// SplitSections partitions questions into the multiple-choice section and
// the written section, preserving source order within each. Both sections
// are numbered from 1 by the renderers.
func SplitSections(qs []qti.Question) (mc, written []qti.Question) {
	for _, q := range qs {
		if q.Type == qti.MultipleChoice {
			mc = append(mc, q)
		} else {
			written = append(written, q)
		}
	}
	return mc, written
}
