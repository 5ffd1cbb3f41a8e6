package quiz

import (
	"errors"
	"reflect"
	"testing"
)

func twoQuestions() []Question {
	return []Question{
		{Prompt: "A", Options: []string{"x", "y"}, CorrectOption: "x"},
		{Prompt: "B", Options: []string{"x", "y"}, CorrectOption: "y"},
	}
}

func TestSingleQuestionCorrect(t *testing.T) {
	var s Session
	s.Load([]Question{{Prompt: "2+2?", Options: []string{"3", "4"}, CorrectOption: "4"}})

	if err := s.SubmitAnswer("4"); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if !s.Completed() {
		t.Fatal("expected session to be completed")
	}
	if s.Score() != 1 {
		t.Errorf("Score() = %d, want 1", s.Score())
	}
	if s.Percent() != 100 {
		t.Errorf("Percent() = %d, want 100", s.Percent())
	}
	if s.State() != StateCompleted {
		t.Errorf("State() = %v, want completed", s.State())
	}
}

func TestTwoQuestionsOneWrong(t *testing.T) {
	var s Session
	s.Load(twoQuestions())

	if err := s.SubmitAnswer("x"); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if s.Completed() {
		t.Fatal("session completed after first answer")
	}
	if s.CurrentIndex() != 1 {
		t.Errorf("CurrentIndex() = %d, want 1", s.CurrentIndex())
	}
	if got := len(s.Answers()); got != s.CurrentIndex() {
		t.Errorf("len(Answers()) = %d, want %d", got, s.CurrentIndex())
	}

	if err := s.SubmitAnswer("x"); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if !s.Completed() {
		t.Fatal("expected session to be completed")
	}
	if s.Score() != 1 {
		t.Errorf("Score() = %d, want 1", s.Score())
	}
	if s.Percent() != 50 {
		t.Errorf("Percent() = %d, want 50", s.Percent())
	}
}

func TestSubmitWithoutQuestions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Session)
	}{
		{"never loaded", func(*Session) {}},
		{"loaded empty list", func(s *Session) { s.Load(nil) }},
		{"loaded then reset", func(s *Session) { s.Load(twoQuestions()); s.Reset() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Session
			tt.setup(&s)

			err := s.SubmitAnswer("anything")
			if !errors.Is(err, ErrInvalidState) {
				t.Fatalf("SubmitAnswer error = %v, want ErrInvalidState", err)
			}
			if s.Completed() {
				t.Error("session should not be completed")
			}
			if len(s.Answers()) != 0 {
				t.Errorf("answers = %v, want none", s.Answers())
			}
			if s.State() != StateEmpty {
				t.Errorf("State() = %v, want empty", s.State())
			}
		})
	}
}

func TestSubmitAfterCompletedIsRejected(t *testing.T) {
	var s Session
	s.Load(twoQuestions())
	_ = s.SubmitAnswer("x")
	_ = s.SubmitAnswer("y")

	before := s.Snapshot()
	err := s.SubmitAnswer("x")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("SubmitAnswer error = %v, want ErrInvalidState", err)
	}
	if after := s.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Errorf("state changed after rejected answer:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestScoreMatchesAnswers(t *testing.T) {
	questions := []Question{
		{Prompt: "1", Options: []string{"a", "b", "c"}, CorrectOption: "a"},
		{Prompt: "2", Options: []string{"a", "b", "c"}, CorrectOption: "b"},
		{Prompt: "3", Options: []string{"a", "b", "c"}, CorrectOption: "c"},
	}

	tests := []struct {
		name    string
		answers []string
		want    int
	}{
		{"all correct", []string{"a", "b", "c"}, 3},
		{"all wrong", []string{"c", "a", "b"}, 0},
		{"mixed", []string{"a", "a", "c"}, 2},
		{"not among options", []string{"z", "b", "zz"}, 1},
		{"case differs", []string{"A", "B", "c"}, 1},
		{"whitespace differs", []string{"a ", " b", "c"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Session
			s.Load(questions)
			for i, a := range tt.answers {
				if err := s.SubmitAnswer(a); err != nil {
					t.Fatalf("SubmitAnswer(%d): %v", i, err)
				}
			}
			if !s.Completed() {
				t.Fatal("expected completed")
			}
			if s.Score() != tt.want {
				t.Errorf("Score() = %d, want %d", s.Score(), tt.want)
			}
			if !reflect.DeepEqual(s.Answers(), tt.answers) {
				t.Errorf("Answers() = %q, want %q", s.Answers(), tt.answers)
			}
		})
	}
}

func TestResetEqualsFresh(t *testing.T) {
	var fresh Session

	var s Session
	s.Load(twoQuestions())
	_ = s.SubmitAnswer("x")
	s.Reset()

	if !reflect.DeepEqual(s, fresh) {
		t.Errorf("after Reset = %+v, want %+v", s, fresh)
	}
	if s.Len() != 0 || s.CurrentIndex() != 0 || s.Score() != 0 || s.Completed() {
		t.Errorf("reset session not empty: %+v", s.Snapshot())
	}
}

func TestLoadTwiceFromEmpty(t *testing.T) {
	var once, twice Session
	once.Load(twoQuestions())
	twice.Load(twoQuestions())
	twice.Load(twoQuestions())

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("loading twice differs from loading once:\n%+v\n%+v", once, twice)
	}
}

func TestLoadDiscardsProgress(t *testing.T) {
	var s Session
	s.Load(twoQuestions())
	_ = s.SubmitAnswer("y")

	s.Load([]Question{{Prompt: "C", Options: []string{"p"}, CorrectOption: "p"}})
	if s.CurrentIndex() != 0 || len(s.Answers()) != 0 || s.Completed() || s.Score() != 0 {
		t.Errorf("Load kept prior progress: %+v", s.Snapshot())
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestRetakeAfterReset(t *testing.T) {
	questions := twoQuestions()

	var s Session
	s.Load(questions)
	_ = s.SubmitAnswer("x")
	_ = s.SubmitAnswer("y")
	if s.Score() != 2 {
		t.Fatalf("Score() = %d, want 2", s.Score())
	}
	s.Reset()
	s.Load(questions)

	var fresh Session
	fresh.Load(questions)
	if !reflect.DeepEqual(s, fresh) {
		t.Errorf("reloaded session = %+v, want %+v", s.Snapshot(), fresh.Snapshot())
	}
}

func TestLoadCopiesInput(t *testing.T) {
	questions := twoQuestions()

	var s Session
	s.Load(questions)
	questions[0].CorrectOption = "y"
	questions[1].Options[0] = "changed"

	got := s.Questions()
	if got[0].CorrectOption != "x" {
		t.Errorf("question mutated through caller slice: %+v", got[0])
	}
	if got[1].Options[0] != "x" {
		t.Errorf("options mutated through caller slice: %+v", got[1])
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	var s Session
	s.Load(twoQuestions())

	qs := s.Questions()
	qs[0].Options[0] = "changed"
	snap := s.Snapshot()
	snap.Questions[1].Options[0] = "changed"
	cur, _ := s.Current()
	cur.Options[1] = "changed"

	got := s.Questions()
	if got[0].Options[0] != "x" || got[0].Options[1] != "y" {
		t.Errorf("first question options mutated: %v", got[0].Options)
	}
	if got[1].Options[0] != "x" {
		t.Errorf("second question options mutated through snapshot: %v", got[1].Options)
	}
}

func TestCurrent(t *testing.T) {
	var s Session
	if _, ok := s.Current(); ok {
		t.Error("empty session should have no current question")
	}

	s.Load(twoQuestions())
	q, ok := s.Current()
	if !ok || q.Prompt != "A" {
		t.Errorf("Current() = %+v, %v; want A", q, ok)
	}
	_ = s.SubmitAnswer("x")
	q, _ = s.Current()
	if q.Prompt != "B" {
		t.Errorf("Current() = %q, want B", q.Prompt)
	}
	_ = s.SubmitAnswer("x")
	if _, ok := s.Current(); ok {
		t.Error("completed session should have no current question")
	}
}

func TestSnapshotProgress(t *testing.T) {
	var s Session
	s.Load([]Question{
		{Prompt: "1", Options: []string{"a"}, CorrectOption: "a"},
		{Prompt: "2", Options: []string{"a"}, CorrectOption: "a"},
		{Prompt: "3", Options: []string{"a"}, CorrectOption: "a"},
		{Prompt: "4", Options: []string{"a"}, CorrectOption: "a"},
	})
	if got := s.Snapshot().Progress(); got != 25 {
		t.Errorf("Progress() = %d, want 25", got)
	}
	_ = s.SubmitAnswer("a")
	_ = s.SubmitAnswer("a")
	if got := s.Snapshot().Progress(); got != 75 {
		t.Errorf("Progress() = %d, want 75", got)
	}
}

func TestPercentRounding(t *testing.T) {
	var s Session
	s.Load([]Question{
		{Prompt: "1", Options: []string{"a", "b"}, CorrectOption: "a"},
		{Prompt: "2", Options: []string{"a", "b"}, CorrectOption: "a"},
		{Prompt: "3", Options: []string{"a", "b"}, CorrectOption: "a"},
	})
	_ = s.SubmitAnswer("a")
	_ = s.SubmitAnswer("a")
	_ = s.SubmitAnswer("b")
	if got := s.Percent(); got != 67 {
		t.Errorf("Percent() = %d, want 67", got)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    int
		wantErr bool
	}{
		{"valid", `[{"question":"Q","options":["a","b"],"correct_answer":"b"}]`, 1, false},
		{"empty list", `[]`, 0, false},
		{"not json", `not json`, 0, true},
		{"correct not in options", `[{"question":"Q","options":["a","b"],"correct_answer":"c"}]`, 0, true},
		{"no options", `[{"question":"Q","options":[],"correct_answer":"a"}]`, 0, true},
		{"blank prompt", `[{"question":"  ","options":["a"],"correct_answer":"a"}]`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qs, err := Decode(tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(qs) != tt.want {
				t.Errorf("len = %d, want %d", len(qs), tt.want)
			}
		})
	}
}

func TestOptionLabel(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "A"}, {1, "B"}, {25, "Z"}, {26, "AA"}, {27, "AB"}, {-1, "?"},
	}
	for _, tt := range tests {
		if got := OptionLabel(tt.in); got != tt.want {
			t.Errorf("OptionLabel(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	if StateInProgress.String() != "in_progress" {
		t.Errorf("StateInProgress.String() = %q", StateInProgress.String())
	}
	if State(9).String() != "State(9)" {
		t.Errorf("State(9).String() = %q", State(9).String())
	}
}
