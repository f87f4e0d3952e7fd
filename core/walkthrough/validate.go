package walkthrough

import (
	"fmt"
	"strings"
)

// Result is the outcome of Validate. Problems is never nil.
type Result struct {
	OK       bool     `json:"ok"`
	Problems []string `json:"problems"`
}

// Validate reports every problem that prevents a script from being submitted or published.
// An empty script yields exactly one problem; otherwise all problems are accumulated.
func Validate(script Script) Result {
	if len(script) == 0 {
		return Result{Problems: []string{"walkthrough must contain at least one section"}}
	}

	problems := make([]string, 0)
	for i, sec := range script {
		name := sectionName(i, sec)
		if strings.TrimSpace(sec.Title) == "" {
			problems = append(problems, fmt.Sprintf("%s: title is required", name))
		}
		if len(sec.Steps) == 0 {
			problems = append(problems, fmt.Sprintf("%s: must contain at least one step", name))
			continue
		}
		for j, st := range sec.Steps {
			if strings.TrimSpace(st.Script) == "" {
				problems = append(problems, fmt.Sprintf("%s, step %d: script text is required", name, j+1))
			}
			if st.PassFail && !st.Required {
				problems = append(problems, fmt.Sprintf("%s, step %d: pass/fail steps must be required", name, j+1))
			}
		}
	}
	return Result{OK: len(problems) == 0, Problems: problems}
}

func sectionName(i int, sec Section) string {
	if title := strings.TrimSpace(sec.Title); title != "" {
		return fmt.Sprintf("section %d (%q)", i+1, title)
	}
	return fmt.Sprintf("section %d", i+1)
}

// Guard returns an *InvalidScriptError when the script does not validate.
func Guard(script Script) (Result, error) {
	res := Validate(script)
	if !res.OK {
		return res, &InvalidScriptError{Problems: res.Problems}
	}
	return res, nil
}
