package attendance

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Operation is the kind of event a record documents. Its value is the
// string stored on chain.
type Operation string

const (
	OpRegistration Operation = "Registrazione"
	OpLesson       Operation = "Lezione"
	OpExam         Operation = "Esame"
)

// Operations lists every operation in display order.
var Operations = []Operation{OpRegistration, OpLesson, OpExam}

var operationAliases = map[string]Operation{
	"registrazione": OpRegistration,
	"registration":  OpRegistration,
	"lezione":       OpLesson,
	"lesson":        OpLesson,
	"esame":         OpExam,
	"exam":          OpExam,
}

// ParseOperation accepts the on-chain value or its English name, in any case.
func ParseOperation(s string) (Operation, error) {
	if op, ok := operationAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return op, nil
	}
	return "", fmt.Errorf("unknown operation %q (want one of: %s)", s, joinOperations())
}

func joinOperations() string {
	names := make([]string, len(Operations))
	for i, op := range Operations {
		names[i] = string(op)
	}
	return strings.Join(names, ", ")
}

func (op Operation) String() string {
	return string(op)
}

// ExamDate joins the parts of an exam date the way records store it:
// day/month/year, each part kept as given.
func ExamDate(day, month, year string) (string, error) {
	if day == "" || month == "" || year == "" {
		return "", fmt.Errorf("exam date needs day, month and year")
	}
	return day + "/" + month + "/" + year, nil
}

// SplitExamDate splits dd/mm/yyyy into its parts and checks that they name
// a real calendar day.
func SplitExamDate(date string) (day, month, year string, err error) {
	parts := strings.Split(date, "/")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("invalid exam date %q: want dd/mm/yyyy", date)
	}
	d, errD := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	y, errY := strconv.Atoi(parts[2])
	if errD != nil || errM != nil || errY != nil {
		return "", "", "", fmt.Errorf("invalid exam date %q: parts must be numeric", date)
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != m || t.Year() != y {
		return "", "", "", fmt.Errorf("invalid exam date %q: no such day", date)
	}
	return parts[0], parts[1], parts[2], nil
}

// KeyLabel is the keychain label under which a course keeps the key for
// records of op: registrations share one key per course, lessons and exams
// get one per lesson name or exam date.
func KeyLabel(op Operation, info string) string {
	if op == OpRegistration {
		return string(OpRegistration)
	}
	return info
}
