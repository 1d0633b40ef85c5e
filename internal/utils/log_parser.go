package utils

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

const retryMarker = "retrying after "

// StepLog is one executed step of a ledger log.
type StepLog struct {
	Step        int      `json:"step"`
	Description string   `json:"description"`
	Statements  []string `json:"statements"`
	Notes       []string `json:"notes,omitempty"`
}

// Attempt is one run of a migration. Notes written before its first step,
// such as the retry marker, land in Preamble.
type Attempt struct {
	Preamble []string  `json:"preamble,omitempty"`
	Steps    []StepLog `json:"steps"`
}

// ParseLogs splits logs written by the migration applier into attempts:
//
//	-- step N: description
//	statement;
//	-- note
func ParseLogs(content string) ([]Attempt, error) {
	attempts := []Attempt{{Steps: []StepLog{}}}
	var current *StepLog
	var stmt strings.Builder

	last := func() *Attempt { return &attempts[len(attempts)-1] }
	flush := func() {
		if current != nil {
			last().Steps = append(last().Steps, *current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		trimmedLine := strings.TrimSpace(line)

		if trimmedLine == "" {
			continue
		}

		if strings.HasPrefix(trimmedLine, "--") {
			if stmt.Len() > 0 {
				return nil, fmt.Errorf("invalid log: unterminated statement before %q", trimmedLine)
			}

			step, desc, ok, err := parseStepHeader(trimmedLine)
			if err != nil {
				return nil, err
			}
			if ok {
				flush()
				if step != len(last().Steps)+1 {
					return nil, fmt.Errorf("invalid log: step %d follows step %d", step, len(last().Steps))
				}
				current = &StepLog{Step: step, Description: desc, Statements: []string{}}
				continue
			}

			note := strings.TrimSpace(strings.TrimPrefix(trimmedLine, "--"))
			if strings.HasPrefix(note, retryMarker) {
				flush()
				attempts = append(attempts, Attempt{Preamble: []string{note}, Steps: []StepLog{}})
				continue
			}
			if current == nil {
				last().Preamble = append(last().Preamble, note)
			} else {
				current.Notes = append(current.Notes, note)
			}
			continue
		}

		if current == nil {
			return nil, fmt.Errorf("invalid log: statement outside of a step: %s", trimmedLine)
		}

		stmt.WriteString(line)
		if strings.HasSuffix(trimmedLine, ";") {
			current.Statements = append(current.Statements, strings.TrimSuffix(strings.TrimSpace(stmt.String()), ";"))
			stmt.Reset()
		} else {
			stmt.WriteString("\n")
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading log content: %w", err)
	}
	if stmt.Len() > 0 {
		return nil, fmt.Errorf("invalid log: unterminated statement at end of log")
	}
	flush()

	return attempts, nil
}

// parseStepHeader parses "-- step N: description".
func parseStepHeader(line string) (int, string, bool, error) {
	input := strings.TrimSpace(strings.TrimPrefix(line, "--"))
	if !strings.HasPrefix(input, "step ") {
		return 0, "", false, nil
	}
	input = strings.TrimPrefix(input, "step ")

	colon := strings.Index(input, ":")
	if colon < 0 {
		return 0, "", false, fmt.Errorf("invalid step header: missing description: %s", line)
	}
	step, err := strconv.Atoi(strings.TrimSpace(input[:colon]))
	if err != nil || step < 1 {
		return 0, "", false, fmt.Errorf("invalid step header: bad step number: %s", line)
	}
	return step, strings.TrimSpace(input[colon+1:]), true, nil
}
