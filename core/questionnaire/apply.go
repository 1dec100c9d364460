package questionnaire

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/formweave/formweave/core/operation"
)

var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrIndexOutOfRange   = errors.New("index out of range")
	ErrBadContent        = errors.New("content does not fit target collection")
)

// Apply mutates the questionnaire in place according to op. The operation
// value itself is never modified. Zero-length deletes (the degenerate
// result of overlapping-delete transforms) apply as no-ops.
func (q *Questionnaire) Apply(op operation.Operation) error {
	switch op.Type {
	case operation.OpInsert:
		return q.applyInsert(op)
	case operation.OpDelete:
		return q.applyDelete(op)
	case operation.OpUpdate:
		return q.applyUpdate(op)
	case operation.OpMove:
		return q.applyMove(op)
	case operation.OpReorder:
		return q.applyReorder(op)
	default:
		return fmt.Errorf("%w: %s", operation.ErrInvalidOperation, op.Type)
	}
}

func (q *Questionnaire) applyInsert(op operation.Operation) error {
	switch op.Path.Head() {
	case "questions":
		item, err := toQuestion(op.Content)
		if err != nil {
			return err
		}
		q.Questions = insertAt(q.Questions, op.Position, item)
	case "pages":
		item, err := toPage(op.Content)
		if err != nil {
			return err
		}
		q.Pages = insertAt(q.Pages, op.Position, item)
	case "variables":
		item, err := toVariable(op.Content)
		if err != nil {
			return err
		}
		q.Variables = insertAt(q.Variables, op.Position, item)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCollection, op.Path.Head())
	}
	return nil
}

func (q *Questionnaire) applyDelete(op operation.Operation) error {
	if op.Length == 0 {
		return nil
	}
	switch op.Path.Head() {
	case "questions":
		q.Questions = deleteRange(q.Questions, op.Position, op.Length)
	case "pages":
		q.Pages = deleteRange(q.Pages, op.Position, op.Length)
	case "variables":
		q.Variables = deleteRange(q.Variables, op.Position, op.Length)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCollection, op.Path.Head())
	}
	return nil
}

func (q *Questionnaire) applyUpdate(op operation.Operation) error {
	switch op.Path.Head() {
	case "settings":
		q.Settings = setMapField(q.Settings, op)
		return nil
	case "metadata":
		q.Metadata = setMapField(q.Metadata, op)
		return nil
	case "questions":
		return q.updateQuestion(op)
	case "pages":
		return q.updatePage(op)
	case "variables":
		return q.updateVariable(op)
	case "title":
		if s, ok := op.NewValue.(string); ok {
			q.Title = s
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCollection, op.Path.Head())
	}
}

// setMapField writes into a flat settings/metadata map. The key is the
// second path segment when present, the update property otherwise.
func setMapField(m map[string]any, op operation.Operation) map[string]any {
	if m == nil {
		m = make(map[string]any)
	}
	key := op.Property
	if len(op.Path) > 1 {
		key = op.Path[1]
	}
	m[key] = op.NewValue
	return m
}

func (q *Questionnaire) updateQuestion(op operation.Operation) error {
	index, err := elementIndex(op.Path)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(q.Questions) {
		return fmt.Errorf("%w: questions[%d]", ErrIndexOutOfRange, index)
	}

	target := q.Questions[index]
	switch op.Property {
	case "prompt":
		if s, ok := op.NewValue.(string); ok {
			target.Prompt = s
		}
	case "kind":
		if s, ok := op.NewValue.(string); ok {
			target.Kind = s
		}
	default:
		target.Properties = setProperty(target.Properties, fieldPath(op), op.Property, op.NewValue)
	}
	return nil
}

func (q *Questionnaire) updatePage(op operation.Operation) error {
	index, err := elementIndex(op.Path)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(q.Pages) {
		return fmt.Errorf("%w: pages[%d]", ErrIndexOutOfRange, index)
	}

	target := q.Pages[index]
	if op.Property == "title" {
		if s, ok := op.NewValue.(string); ok {
			target.Title = s
		}
		return nil
	}
	target.Properties = setProperty(target.Properties, fieldPath(op), op.Property, op.NewValue)
	return nil
}

func (q *Questionnaire) updateVariable(op operation.Operation) error {
	index, err := elementIndex(op.Path)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(q.Variables) {
		return fmt.Errorf("%w: variables[%d]", ErrIndexOutOfRange, index)
	}

	target := q.Variables[index]
	switch op.Property {
	case "name":
		if s, ok := op.NewValue.(string); ok {
			target.Name = s
		}
	case "value":
		target.Value = op.NewValue
	default:
		target.Properties = setProperty(target.Properties, fieldPath(op), op.Property, op.NewValue)
	}
	return nil
}

func elementIndex(path operation.Path) (int, error) {
	if len(path) < 2 {
		return 0, fmt.Errorf("%w: %s has no element index", ErrIndexOutOfRange, path)
	}
	index, err := strconv.Atoi(path[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrIndexOutOfRange, path)
	}
	return index, nil
}

// fieldPath returns the path segments below the element index, minus a
// trailing segment that repeats the update property.
func fieldPath(op operation.Operation) []string {
	if len(op.Path) <= 2 {
		return nil
	}
	rest := op.Path[2:]
	if len(rest) > 0 && rest[len(rest)-1] == op.Property {
		rest = rest[:len(rest)-1]
	}
	return rest
}

// setProperty descends nested property maps, creating levels as needed,
// and sets the named field at the bottom.
func setProperty(props map[string]any, nested []string, field string, value any) map[string]any {
	if props == nil {
		props = make(map[string]any)
	}
	current := props
	for _, segment := range nested {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[segment] = next
		}
		current = next
	}
	current[field] = value
	return props
}

func (q *Questionnaire) applyMove(op operation.Operation) error {
	if op.FromPath.Equal(op.ToPath) {
		return q.moveWithin(op)
	}
	return q.moveAcross(op)
}

func (q *Questionnaire) moveWithin(op operation.Operation) error {
	switch op.FromPath.Head() {
	case "questions":
		moved, err := moveElement(q.Questions, op.FromPosition, op.ToPosition)
		if err != nil {
			return err
		}
		q.Questions = moved
	case "pages":
		moved, err := moveElement(q.Pages, op.FromPosition, op.ToPosition)
		if err != nil {
			return err
		}
		q.Pages = moved
	case "variables":
		moved, err := moveElement(q.Variables, op.FromPosition, op.ToPosition)
		if err != nil {
			return err
		}
		q.Variables = moved
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCollection, op.FromPath.Head())
	}
	return nil
}

// moveAcross relocates a question between page question-id lists; the
// top-level collections hold distinct element types and do not exchange
// members.
func (q *Questionnaire) moveAcross(op operation.Operation) error {
	from, err := q.pageByPath(op.FromPath)
	if err != nil {
		return err
	}
	to, err := q.pageByPath(op.ToPath)
	if err != nil {
		return err
	}
	if op.FromPosition < 0 || op.FromPosition >= len(from.QuestionIDs) {
		return fmt.Errorf("%w: %s[%d]", ErrIndexOutOfRange, op.FromPath, op.FromPosition)
	}

	id := from.QuestionIDs[op.FromPosition]
	from.QuestionIDs = append(from.QuestionIDs[:op.FromPosition], from.QuestionIDs[op.FromPosition+1:]...)
	to.QuestionIDs = insertAt(to.QuestionIDs, op.ToPosition, id)
	return nil
}

func (q *Questionnaire) pageByPath(path operation.Path) (*Page, error) {
	if len(path) < 2 || path.Head() != "pages" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, path)
	}
	index, err := strconv.Atoi(path[1])
	if err != nil || index < 0 || index >= len(q.Pages) {
		return nil, fmt.Errorf("%w: %s", ErrIndexOutOfRange, path)
	}
	return q.Pages[index], nil
}

func (q *Questionnaire) applyReorder(op operation.Operation) error {
	switch op.Path.Head() {
	case "questions":
		reordered, err := permute(q.Questions, op.Indices, op.NewIndices)
		if err != nil {
			return err
		}
		q.Questions = reordered
	case "pages":
		reordered, err := permute(q.Pages, op.Indices, op.NewIndices)
		if err != nil {
			return err
		}
		q.Pages = reordered
	case "variables":
		reordered, err := permute(q.Variables, op.Indices, op.NewIndices)
		if err != nil {
			return err
		}
		q.Variables = reordered
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCollection, op.Path.Head())
	}
	return nil
}

func insertAt[T any](items []T, position int, item T) []T {
	if position < 0 {
		position = 0
	}
	if position > len(items) {
		position = len(items)
	}
	items = append(items, item)
	copy(items[position+1:], items[position:])
	items[position] = item
	return items
}

func deleteRange[T any](items []T, position, length int) []T {
	if position >= len(items) {
		return items
	}
	end := position + length
	if end > len(items) {
		end = len(items)
	}
	return append(items[:position], items[end:]...)
}

func moveElement[T any](items []T, from, to int) ([]T, error) {
	if from < 0 || from >= len(items) {
		return nil, fmt.Errorf("%w: position %d", ErrIndexOutOfRange, from)
	}
	item := items[from]
	items = append(items[:from], items[from+1:]...)
	return insertAt(items, to, item), nil
}

func permute[T any](items []T, indices, newIndices []int) ([]T, error) {
	result := make([]T, len(items))
	copy(result, items)
	for i := range indices {
		src, dst := indices[i], newIndices[i]
		if src < 0 || src >= len(items) || dst < 0 || dst >= len(items) {
			return nil, fmt.Errorf("%w: reorder %d -> %d", ErrIndexOutOfRange, src, dst)
		}
		result[dst] = items[src]
	}
	return result, nil
}

func toQuestion(content any) (*Question, error) {
	switch typed := content.(type) {
	case *Question:
		return typed.Clone(), nil
	case Question:
		return typed.Clone(), nil
	case string:
		return &Question{Prompt: typed}, nil
	case map[string]any:
		return &Question{
			ID:         stringField(typed, "id"),
			Kind:       stringField(typed, "kind"),
			Prompt:     stringField(typed, "prompt"),
			Properties: cloneAnyMap(typed),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %T into questions", ErrBadContent, content)
	}
}

func toPage(content any) (*Page, error) {
	switch typed := content.(type) {
	case *Page:
		return typed.Clone(), nil
	case Page:
		return typed.Clone(), nil
	case string:
		return &Page{Title: typed}, nil
	case map[string]any:
		return &Page{
			ID:         stringField(typed, "id"),
			Title:      stringField(typed, "title"),
			Properties: cloneAnyMap(typed),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %T into pages", ErrBadContent, content)
	}
}

func toVariable(content any) (*Variable, error) {
	switch typed := content.(type) {
	case *Variable:
		return typed.Clone(), nil
	case Variable:
		return typed.Clone(), nil
	case string:
		return &Variable{Name: typed}, nil
	case map[string]any:
		return &Variable{
			ID:         stringField(typed, "id"),
			Name:       stringField(typed, "name"),
			Kind:       stringField(typed, "kind"),
			Value:      typed["value"],
			Properties: cloneAnyMap(typed),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %T into variables", ErrBadContent, content)
	}
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
