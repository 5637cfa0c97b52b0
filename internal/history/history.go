// Package history persists graded exams and the mistakes in them, feeding
// the personalization window of open-form grading and the training
// synthesizer. The core pipeline never touches it; the HTTP layer wires
// it in when a student id is present.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/provgen/provgen/internal/model"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed record of grade reports per student.
type Store struct {
	db *sql.DB
}

// New opens (and migrates) the database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS grade_reports (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		course TEXT NOT NULL DEFAULT '',
		level TEXT NOT NULL DEFAULT '',
		total_points REAL NOT NULL DEFAULT 0,
		max_points INTEGER NOT NULL DEFAULT 0,
		taken_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_grade_reports_student
		ON grade_reports(student_id, taken_at);

	CREATE TABLE IF NOT EXISTS mistakes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		report_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		question_type TEXT NOT NULL DEFAULT '',
		question TEXT NOT NULL DEFAULT '',
		response TEXT NOT NULL DEFAULT '',
		feedback TEXT NOT NULL DEFAULT '',
		model_answer TEXT NOT NULL DEFAULT '',
		points REAL NOT NULL DEFAULT 0,
		max_points INTEGER NOT NULL DEFAULT 0,
		taken_at DATETIME NOT NULL,
		FOREIGN KEY (report_id) REFERENCES grade_reports(id)
	);

	CREATE INDEX IF NOT EXISTS idx_mistakes_student
		ON mistakes(student_id, taken_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveReport records a graded exam and a mistake row for every question
// the student lost points on. It returns the report id.
func (s *Store) SaveReport(studentID, course, level string, report model.GradeReport, questions []model.Question, answers []model.Answer) (string, error) {
	responses := make(map[string]string, len(answers))
	for _, a := range answers {
		responses[a.QuestionID] = a.Response
	}
	prompts := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		prompts[q.ID] = q
	}

	id := uuid.NewString()
	now := time.Now().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO grade_reports (id, student_id, course, level, total_points, max_points, taken_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, studentID, course, level, report.TotalPoints, report.MaxPoints, now,
	)
	if err != nil {
		return "", fmt.Errorf("insert report: %w", err)
	}

	for _, r := range report.PerQuestion {
		if r.PointsAwarded >= float64(r.MaxPoints) {
			continue
		}
		q := prompts[r.QuestionID]
		_, err = tx.Exec(
			`INSERT INTO mistakes (report_id, student_id, question_id, question_type, question,
			                       response, feedback, model_answer, points, max_points, taken_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, studentID, r.QuestionID, string(q.Type), q.Prompt,
			responses[r.QuestionID], r.Feedback, r.ModelAnswer, r.PointsAwarded, r.MaxPoints, now,
		)
		if err != nil {
			return "", fmt.Errorf("insert mistake: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// RecentHistory returns the student's most recent graded exams, newest
// first, at most limit entries.
func (s *Store) RecentHistory(studentID string, limit int) ([]model.HistoryEntry, error) {
	rows, err := s.db.Query(
		`SELECT course, level, total_points, max_points, taken_at
		 FROM grade_reports WHERE student_id = ?
		 ORDER BY taken_at DESC, id DESC LIMIT ?`,
		studentID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		if err := rows.Scan(&e.Course, &e.Level, &e.TotalPoints, &e.MaxPoints, &e.TakenAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecentMistakes returns the student's most recent mistakes, newest
// first, at most limit entries.
func (s *Store) RecentMistakes(studentID string, limit int) ([]model.Mistake, error) {
	rows, err := s.db.Query(
		`SELECT question_id, question_type, question, response, feedback, model_answer, points, max_points
		 FROM mistakes WHERE student_id = ?
		 ORDER BY taken_at DESC, id DESC LIMIT ?`,
		studentID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mistakes []model.Mistake
	for rows.Next() {
		var m model.Mistake
		var qType string
		if err := rows.Scan(&m.QuestionID, &qType, &m.Question, &m.Response, &m.Feedback, &m.ModelAnswer, &m.Points, &m.MaxPoints); err != nil {
			return nil, err
		}
		m.Type = model.QuestionType(qType)
		mistakes = append(mistakes, m)
	}
	return mistakes, rows.Err()
}
