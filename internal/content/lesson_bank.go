package content

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"learningodyssey/internal/adventure"
)

// LessonBank resolves a lesson topic to its curated question set.
type LessonBank interface {
	Questions(topic string) ([]adventure.LessonQuestion, error)
}

// CSVLessonBank loads lessons.csv with the standard library's csv reader
// (quoted-field parsing is exactly what the format needs; no third-party
// CSV library appears anywhere in the retrieval pack for this role).
//
// Expected columns: topic, question_text, answer_1, is_correct_1,
// answer_2, is_correct_2, answer_3, is_correct_3, answer_4, is_correct_4,
// explanation, difficulty.
type CSVLessonBank struct {
	Path string

	questions map[string][]adventure.LessonQuestion
	topics    []string
}

func NewCSVLessonBank(path string) (*CSVLessonBank, error) {
	bank := &CSVLessonBank{Path: path}
	if err := bank.load(); err != nil {
		return nil, err
	}
	return bank, nil
}

func (b *CSVLessonBank) load() error {
	f, err := os.Open(b.Path)
	if err != nil {
		return fmt.Errorf("open lesson bank %q: %w", b.Path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read lesson bank header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}

	b.questions = make(map[string][]adventure.LessonQuestion)
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read lesson bank row: %w", err)
		}
		q, topic, err := parseLessonRow(record, col)
		if err != nil {
			continue // malformed row; skip rather than fail the whole load
		}
		key := normalizeTopic(topic)
		if _, ok := b.questions[key]; !ok {
			b.topics = append(b.topics, key)
		}
		b.questions[key] = append(b.questions[key], q)
	}
	return nil
}

func parseLessonRow(record []string, col map[string]int) (adventure.LessonQuestion, string, error) {
	get := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}
	topic := get("topic")
	if topic == "" {
		return adventure.LessonQuestion{}, "", fmt.Errorf("missing topic")
	}
	q := adventure.LessonQuestion{
		Topic:        topic,
		QuestionText: get("question_text"),
		Explanation:  get("explanation"),
		Difficulty:   get("difficulty"),
	}
	for i := 1; i <= 4; i++ {
		text := get(fmt.Sprintf("answer_%d", i))
		if text == "" {
			continue
		}
		isCorrect, _ := strconv.ParseBool(strings.TrimSpace(get(fmt.Sprintf("is_correct_%d", i))))
		q.Answers = append(q.Answers, adventure.Answer{Text: text, IsCorrect: isCorrect})
	}
	if q.QuestionText == "" || len(q.Answers) == 0 {
		return adventure.LessonQuestion{}, "", fmt.Errorf("incomplete row")
	}
	return q, topic, nil
}

func normalizeTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

// Questions looks up a topic case-insensitively with whitespace tolerance,
// falling back to a substring match when there is no exact hit.
func (b *CSVLessonBank) Questions(topic string) ([]adventure.LessonQuestion, error) {
	key := normalizeTopic(topic)
	if qs, ok := b.questions[key]; ok {
		return qs, nil
	}
	for _, candidate := range b.topics {
		if strings.Contains(candidate, key) || strings.Contains(key, candidate) {
			return b.questions[candidate], nil
		}
	}
	return nil, fmt.Errorf("no lesson questions found for topic %q", topic)
}
