package questionnaire

// Questionnaire is the document tree the collaborative editors operate on:
// ordered collections of pages, questions and variables plus flat settings
// and metadata maps. Snapshots stored in version history are deep clones,
// never shared with a live document.
type Questionnaire struct {
	ID        string
	Title     string
	Pages     []*Page
	Questions []*Question
	Variables []*Variable
	Settings  map[string]any
	Metadata  map[string]any
}

type Page struct {
	ID          string
	Title       string
	QuestionIDs []string
	Properties  map[string]any
}

type Question struct {
	ID         string
	Kind       string
	Prompt     string
	Properties map[string]any
}

type Variable struct {
	ID         string
	Name       string
	Kind       string
	Value      any
	Properties map[string]any
}

func New(id, title string) *Questionnaire {
	return &Questionnaire{
		ID:       id,
		Title:    title,
		Settings: make(map[string]any),
		Metadata: make(map[string]any),
	}
}

// Clone produces a structurally independent deep copy. This is an explicit
// typed clone, not a serialize round-trip, so non-JSON values survive and
// the cost is proportional to the tree size.
func (q *Questionnaire) Clone() *Questionnaire {
	if q == nil {
		return nil
	}
	clone := &Questionnaire{
		ID:       q.ID,
		Title:    q.Title,
		Settings: cloneAnyMap(q.Settings),
		Metadata: cloneAnyMap(q.Metadata),
	}
	for _, p := range q.Pages {
		clone.Pages = append(clone.Pages, p.Clone())
	}
	for _, question := range q.Questions {
		clone.Questions = append(clone.Questions, question.Clone())
	}
	for _, v := range q.Variables {
		clone.Variables = append(clone.Variables, v.Clone())
	}
	return clone
}

func (p *Page) Clone() *Page {
	if p == nil {
		return nil
	}
	return &Page{
		ID:          p.ID,
		Title:       p.Title,
		QuestionIDs: cloneStrings(p.QuestionIDs),
		Properties:  cloneAnyMap(p.Properties),
	}
}

func (q *Question) Clone() *Question {
	if q == nil {
		return nil
	}
	return &Question{
		ID:         q.ID,
		Kind:       q.Kind,
		Prompt:     q.Prompt,
		Properties: cloneAnyMap(q.Properties),
	}
}

func (v *Variable) Clone() *Variable {
	if v == nil {
		return nil
	}
	return &Variable{
		ID:         v.ID,
		Name:       v.Name,
		Kind:       v.Kind,
		Value:      cloneValue(v.Value),
		Properties: cloneAnyMap(v.Properties),
	}
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	result := make(map[string]any, len(m))
	for k, v := range m {
		result[k] = cloneValue(v)
	}
	return result
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return cloneAnyMap(typed)
	case []any:
		result := make([]any, len(typed))
		for i, item := range typed {
			result[i] = cloneValue(item)
		}
		return result
	case []string:
		return cloneStrings(typed)
	default:
		return v
	}
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	result := make([]string, len(s))
	copy(result, s)
	return result
}
