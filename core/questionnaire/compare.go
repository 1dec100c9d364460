package questionnaire

import (
	"reflect"
	"strconv"

	"github.com/formweave/formweave/core/operation"
)

// DiffSummary is the coarse change count between two snapshots.
type DiffSummary struct {
	QuestionsAdded    int
	QuestionsModified int
	QuestionsRemoved  int
	PagesAdded        int
	PagesModified     int
	PagesRemoved      int
	VariablesAdded    int
	VariablesModified int
	VariablesRemoved  int
	SettingsChanged   int
}

func (s DiffSummary) IsEmpty() bool {
	return s == DiffSummary{}
}

// Compare computes the net set of operations that rewrite base into target
// by structural comparison of the two snapshots. Elements are matched by
// id, so moves within a collection register as modifications rather than
// delete/insert pairs.
func Compare(base, target *Questionnaire) ([]operation.Operation, DiffSummary) {
	var ops []operation.Operation
	var summary DiffSummary

	ops = append(ops, compareQuestions(base, target, &summary)...)
	ops = append(ops, comparePages(base, target, &summary)...)
	ops = append(ops, compareVariables(base, target, &summary)...)
	ops = append(ops, compareSettings(base, target, &summary)...)

	return ops, summary
}

func compareQuestions(base, target *Questionnaire, summary *DiffSummary) []operation.Operation {
	var ops []operation.Operation
	baseByID := make(map[string]*Question, len(base.Questions))
	for _, q := range base.Questions {
		baseByID[q.ID] = q
	}

	targetIDs := make(map[string]bool, len(target.Questions))
	for i, q := range target.Questions {
		targetIDs[q.ID] = true
		old, existed := baseByID[q.ID]
		if !existed {
			op, _ := operation.NewInsert(operation.NewPath("questions"), i, q.Clone(), operation.KindQuestion, "")
			ops = append(ops, op)
			summary.QuestionsAdded++
			continue
		}
		ops = append(ops, questionUpdates(old, q, i, summary)...)
	}

	for i, q := range base.Questions {
		if !targetIDs[q.ID] {
			op, _ := operation.NewDelete(operation.NewPath("questions"), i, 1, q.Clone(), operation.KindQuestion, "")
			ops = append(ops, op)
			summary.QuestionsRemoved++
		}
	}
	return ops
}

func questionUpdates(old, current *Question, index int, summary *DiffSummary) []operation.Operation {
	var ops []operation.Operation
	path := operation.NewPath("questions", strconv.Itoa(index))

	if old.Prompt != current.Prompt {
		op, _ := operation.NewUpdate(path, "prompt", old.Prompt, current.Prompt, "")
		ops = append(ops, op)
	}
	if old.Kind != current.Kind {
		op, _ := operation.NewUpdate(path, "kind", old.Kind, current.Kind, "")
		ops = append(ops, op)
	}
	if !reflect.DeepEqual(old.Properties, current.Properties) {
		op, _ := operation.NewUpdate(path, "properties", cloneAnyMap(old.Properties), cloneAnyMap(current.Properties), "")
		ops = append(ops, op)
	}
	if len(ops) > 0 {
		summary.QuestionsModified++
	}
	return ops
}

func comparePages(base, target *Questionnaire, summary *DiffSummary) []operation.Operation {
	var ops []operation.Operation
	baseByID := make(map[string]*Page, len(base.Pages))
	for _, p := range base.Pages {
		baseByID[p.ID] = p
	}

	targetIDs := make(map[string]bool, len(target.Pages))
	for i, p := range target.Pages {
		targetIDs[p.ID] = true
		old, existed := baseByID[p.ID]
		if !existed {
			op, _ := operation.NewInsert(operation.NewPath("pages"), i, p.Clone(), operation.KindPage, "")
			ops = append(ops, op)
			summary.PagesAdded++
			continue
		}
		ops = append(ops, pageUpdates(old, p, i, summary)...)
	}

	for i, p := range base.Pages {
		if !targetIDs[p.ID] {
			op, _ := operation.NewDelete(operation.NewPath("pages"), i, 1, p.Clone(), operation.KindPage, "")
			ops = append(ops, op)
			summary.PagesRemoved++
		}
	}
	return ops
}

func pageUpdates(old, current *Page, index int, summary *DiffSummary) []operation.Operation {
	var ops []operation.Operation
	path := operation.NewPath("pages", strconv.Itoa(index))

	if old.Title != current.Title {
		op, _ := operation.NewUpdate(path, "title", old.Title, current.Title, "")
		ops = append(ops, op)
	}
	if !reflect.DeepEqual(old.QuestionIDs, current.QuestionIDs) {
		op, _ := operation.NewUpdate(path, "questionIds", cloneStrings(old.QuestionIDs), cloneStrings(current.QuestionIDs), "")
		ops = append(ops, op)
	}
	if !reflect.DeepEqual(old.Properties, current.Properties) {
		op, _ := operation.NewUpdate(path, "properties", cloneAnyMap(old.Properties), cloneAnyMap(current.Properties), "")
		ops = append(ops, op)
	}
	if len(ops) > 0 {
		summary.PagesModified++
	}
	return ops
}

func compareVariables(base, target *Questionnaire, summary *DiffSummary) []operation.Operation {
	var ops []operation.Operation
	baseByID := make(map[string]*Variable, len(base.Variables))
	for _, v := range base.Variables {
		baseByID[v.ID] = v
	}

	targetIDs := make(map[string]bool, len(target.Variables))
	for i, v := range target.Variables {
		targetIDs[v.ID] = true
		old, existed := baseByID[v.ID]
		if !existed {
			op, _ := operation.NewInsert(operation.NewPath("variables"), i, v.Clone(), operation.KindVariable, "")
			ops = append(ops, op)
			summary.VariablesAdded++
			continue
		}
		ops = append(ops, variableUpdates(old, v, i, summary)...)
	}

	for i, v := range base.Variables {
		if !targetIDs[v.ID] {
			op, _ := operation.NewDelete(operation.NewPath("variables"), i, 1, v.Clone(), operation.KindVariable, "")
			ops = append(ops, op)
			summary.VariablesRemoved++
		}
	}
	return ops
}

func variableUpdates(old, current *Variable, index int, summary *DiffSummary) []operation.Operation {
	var ops []operation.Operation
	path := operation.NewPath("variables", strconv.Itoa(index))

	if old.Name != current.Name {
		op, _ := operation.NewUpdate(path, "name", old.Name, current.Name, "")
		ops = append(ops, op)
	}
	if !reflect.DeepEqual(old.Value, current.Value) {
		op, _ := operation.NewUpdate(path, "value", cloneValue(old.Value), cloneValue(current.Value), "")
		ops = append(ops, op)
	}
	if !reflect.DeepEqual(old.Properties, current.Properties) {
		op, _ := operation.NewUpdate(path, "properties", cloneAnyMap(old.Properties), cloneAnyMap(current.Properties), "")
		ops = append(ops, op)
	}
	if len(ops) > 0 {
		summary.VariablesModified++
	}
	return ops
}

func compareSettings(base, target *Questionnaire, summary *DiffSummary) []operation.Operation {
	var ops []operation.Operation

	for key, newValue := range target.Settings {
		oldValue, existed := base.Settings[key]
		if existed && reflect.DeepEqual(oldValue, newValue) {
			continue
		}
		op, _ := operation.NewUpdate(operation.NewPath("settings", key), key, cloneValue(oldValue), cloneValue(newValue), "")
		ops = append(ops, op)
		summary.SettingsChanged++
	}

	for key, oldValue := range base.Settings {
		if _, stillThere := target.Settings[key]; !stillThere {
			op, _ := operation.NewUpdate(operation.NewPath("settings", key), key, cloneValue(oldValue), nil, "")
			ops = append(ops, op)
			summary.SettingsChanged++
		}
	}
	return ops
}
